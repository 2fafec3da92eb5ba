package queue

import "errors"

var (
	// ErrNoSenders is returned by Recv once every Sender is closed and the
	// queue has been drained.
	ErrNoSenders = errors.New("dispatch queue: all senders closed")

	// ErrReceiverGone is returned by Send after the receiving side closed.
	ErrReceiverGone = errors.New("dispatch queue: receiver gone")

	// ErrSenderClosed is returned by Send on a Sender that was closed.
	ErrSenderClosed = errors.New("dispatch queue: sender closed")
)
