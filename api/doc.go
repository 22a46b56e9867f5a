// Package api
// Author: momentics <momentics@gmail.com>
//
// Shared declarations for the wsloop endpoint engine: operation status
// kinds, endpoint settings, and the four user event callbacks.
//
// api depends on nothing, so the engine's public vocabulary lives in
// one place that any package can import.
package api
