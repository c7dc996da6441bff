// Package audit dispatches session audit events asynchronously.
//
// # Components
//
//   - [Sink]: event consumer (slog, channel, JSON writer, no-op).
//   - [Dispatcher]: buffered relay with drop-if-full or block-if-full semantics.
//   - [Event]: audit record with id, timestamp, type, account, token and metadata.
//
// This package owns buffering and sink delivery only. Which events to emit is
// decided by the session flows.
package audit
