package core

// Frame is a raw encoded event ready for the wire.
type Frame []byte

type ConnectionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks; a non-nil error means the frame was not queued.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
