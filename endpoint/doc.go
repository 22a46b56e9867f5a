// Package endpoint
// Author: momentics <momentics@gmail.com>
//
// The endpoint owns the connection table and the single-threaded
// dispatch loop. One Operate call performs one readiness wait and
// advances every ready connection through its state machine:
//
//	CONNECTING -> HANDSHAKE_SEND -> HANDSHAKE_WAIT -> OPEN -> CLOSING -> CLOSED
//
// Server-accepted connections enter at HANDSHAKE_WAIT. All four user
// callbacks run on the thread that calls Operate and must not block.
package endpoint
