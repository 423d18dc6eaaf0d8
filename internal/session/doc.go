// Package session owns the connection lifecycle and request correlation
// for the tool invocation bridge.
//
// # State machine
//
// Each Session moves through:
//
//	Connecting -> Ready      on the server's ready frame
//	Ready      -> Draining   on shutdown request or remote bye
//	Draining   -> Closed     when outstanding calls finish or grace elapses
//	any        -> Closed     on transport failure
//
// Closed is terminal. Reconnection means constructing a new Session; a
// closed one is never resurrected.
//
// # Correlation
//
// Submit assigns each call a fresh uuid request ID and parks a pendingCall
// in the in-flight table. The receive loop matches inbound result frames to
// waiting callers by that ID. Whichever path removes the table entry —
// response dispatch, timeout, caller cancellation, or session close — is
// the one that resolves the single-use result slot, so every call resolves
// exactly once. Frames for IDs with no entry (late arrivals, peer bugs)
// are logged and discarded without disturbing anything else.
//
// Calls issued concurrently on one session resolve independently in
// whatever order their responses arrive; no ordering is guaranteed or
// needed.
//
// # Manager
//
// Manager tracks the live sessions in the process under a mutex. Sessions
// share no mutable state with each other; the only cross-session structure
// is the read-only tool registry.
package session
