// Package fakes provides in-memory fake implementations of external
// dependencies for testing.
//
// The fakes model the behavior the rotation state machine relies on:
// versioned secrets with staging labels, write-once semantics per client
// request token, and the atomic stage move. They are deterministic and
// need no network or credentials.
package fakes
