// Package store persists publish attempts in a local SQLite database.
//
// Publishing an article is not idempotent: when a publish call times out or
// the transport drops after the request was sent, the article may or may not
// exist on the platform. The ledger records every attempt before it is
// issued and its outcome once known, so an operator can reconcile ambiguous
// attempts against the platform instead of republishing blindly.
//
// The database uses WAL mode and the pure-Go modernc.org/sqlite driver, so
// no cgo is required.
package store
