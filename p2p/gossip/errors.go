package gossip

import "github.com/cockroachdb/errors"

// TransportError covers a connection refused, a frame-parse failure or a
// socket failure (spec.md §7). Logged per-peer; the connection is
// scheduled for reconnect.
type TransportError struct {
	Peer  string
	cause error
}

func (e *TransportError) Error() string {
	return "transport error with peer " + e.Peer + ": " + e.cause.Error()
}
func (e *TransportError) Unwrap() error { return e.cause }

func NewTransportError(peer string, cause error) error {
	return &TransportError{Peer: peer, cause: errors.Wrap(cause, "gossip transport")}
}

// SyncError covers an HTTP timeout, an invalid remote block, or a height
// regression observed mid-sync (spec.md §7): "abort the sync cycle,
// release isSyncing, retry at next watchdog."
type SyncError struct{ cause error }

func (e *SyncError) Error() string { return "sync aborted: " + e.cause.Error() }
func (e *SyncError) Unwrap() error { return e.cause }

func NewSyncError(format string, args ...any) error {
	return &SyncError{cause: errors.Newf(format, args...)}
}
