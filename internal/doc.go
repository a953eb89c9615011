// Package internal contains the implementation packages of ideamark.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - content: In-memory index of posts, tags, menus and checksums
//   - ingest: Markdown and settings ingestion into the content store
//   - parser: Front matter extraction and markdown to HTML conversion
//   - watcher: File system monitoring with debouncing
//   - cache: Generation-checked response cache
//   - render: Site template loading and execution
//   - server: Request pipeline, static files and the admin sync API
//   - middleware: Security headers, recovery and request logging
//   - livereload: WebSocket hub that tells browsers to reload
//   - publish: Client side of the admin sync protocol
//   - services: Wiring of the above into the serve and publish commands
//   - config, errors, logging, checksum, validation, version: shared plumbing
//
// # Inter-Package Communication
//
//   - Ingest writes into the content store; the store notifies subscribers
//   - Subscribers clear the response cache and trigger a live reload
//   - Watcher events are fed back into ingest one path at a time
//   - Server stages read the store and never write to it, except the admin API
package internal
