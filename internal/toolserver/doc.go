// Package toolserver executes registered tools on behalf of a remote agent.
//
// A Server speaks the frame protocol over any transport.Channel: it sends
// the ready handshake, runs each call frame on its own goroutine, and maps
// handler errors onto wire error codes. The wire may deliver frames
// strictly in order (as stdin does) but calls still overlap, so a slow
// platform request never blocks a fast one.
//
// Hub exposes the same Server over HTTP using Server-Sent Events, one
// session per /events connection, with a per-session POST endpoint for
// inbound frames.
package toolserver
