package sci

import "errors"

var (
	// ErrTxBufIsFull indicates no transmit buffer is available.
	ErrTxBufIsFull = errors.New("transmit buffers full")
	// ErrRxMsgNotAvailable indicates no received frame is ready.
	ErrRxMsgNotAvailable = errors.New("no received message available")
	// ErrMicroServerUnresponsive indicates a blocking put did not complete
	// before its timeout.
	ErrMicroServerUnresponsive = errors.New("micro server unresponsive")
	// ErrFrameTooLarge indicates the frame does not fit the buffer.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrBadHandle indicates the message was not obtained from this driver,
	// or is not in a state that allows the operation.
	ErrBadHandle = errors.New("invalid message handle")
)
