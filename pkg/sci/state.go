package sci

import "strconv"

// DriverState is the overall state of a Driver.
type DriverState int

// Driver states.
const (
	DriverSleep DriverState = iota
	DriverNormal
)

func (s DriverState) String() string {
	switch s {
	case DriverSleep:
		return "sleep"
	case DriverNormal:
		return "normal"
	}
	return "driver(" + strconv.Itoa(int(s)) + ")"
}

// RxState is the state of the receiver.
type RxState int

// Receiver states.
const (
	RxIdle RxState = iota
	RxPayload
	RxIgnore
)

func (s RxState) String() string {
	switch s {
	case RxIdle:
		return "idle"
	case RxPayload:
		return "payload"
	case RxIgnore:
		return "ignore"
	}
	return "rx(" + strconv.Itoa(int(s)) + ")"
}

// TxState is the state of the transmitter.
type TxState int

// Transmitter states.
const (
	TxIdle TxState = iota
	TxCmd
	TxHandShake
	TxInfo1
	TxInfo2
	TxPayload
	TxDone
)

var txStateNames = [...]string{"idle", "cmd", "handshake", "info1", "info2", "payload", "done"}

func (s TxState) String() string {
	if s >= 0 && int(s) < len(txStateNames) {
		return txStateNames[s]
	}
	return "tx(" + strconv.Itoa(int(s)) + ")"
}

// RxBufferState is the lifecycle state of a receive buffer.
type RxBufferState int

// Receive buffer states.
const (
	RxBufferEmpty RxBufferState = iota
	RxBufferReceiving
	RxBufferReady
	RxBufferProcessing
)

func (s RxBufferState) String() string {
	switch s {
	case RxBufferEmpty:
		return "empty"
	case RxBufferReceiving:
		return "receiving"
	case RxBufferReady:
		return "ready"
	case RxBufferProcessing:
		return "processing"
	}
	return "rxbuf(" + strconv.Itoa(int(s)) + ")"
}

// TxBufferState is the lifecycle state of a transmit buffer.
type TxBufferState int

// Transmit buffer states.
const (
	TxBufferEmpty TxBufferState = iota
	TxBufferFilling
	TxBufferReady
	TxBufferTransmitting
)

func (s TxBufferState) String() string {
	switch s {
	case TxBufferEmpty:
		return "empty"
	case TxBufferFilling:
		return "filling"
	case TxBufferReady:
		return "ready"
	case TxBufferTransmitting:
		return "transmitting"
	}
	return "txbuf(" + strconv.Itoa(int(s)) + ")"
}

// StateTracer observes every state assignment of the link state machines.
// It is called with the interrupt mask held and must not call the Driver.
type StateTracer interface {
	TxStateChanged(TxState)
	RxStateChanged(RxState)
}
