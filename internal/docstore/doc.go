// Package docstore is the durable-document boundary: a name-addressed blob
// store with locate, fetch, replace and create operations.
//
// Backends (Drive, Local, SQLite, Memory) report failures as plain errors,
// using ErrNotFound for missing documents and Transient for failures worth
// retrying. Client wraps a backend with per-call timeouts, rate limiting and
// bounded retries, and turns lookups and fetches into tagged results.
package docstore
