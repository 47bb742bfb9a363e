package sci

// UART is the serial peripheral carrying frames.
type UART interface {
	// Transmit queues bytes for sending. A transmit-empty event follows
	// once they left the peripheral and the transmit interrupt is enabled.
	Transmit(p []byte) error
	// SetTxInterrupt enables or disables transmit-empty events.
	SetTxInterrupt(enable bool)
	// SetRxInterrupt enables or disables received-byte events.
	SetRxInterrupt(enable bool)
}

// Lines are the handshake signals between host and Micro Server.
// Levels are logical: true means asserted, regardless of board polarity.
type Lines interface {
	SetRTS(asserted bool)
	SetHRDY(asserted bool)
	SetReset(asserted bool)
	CTS() bool
}

// Hardware is the platform below a Driver.
//
// The Driver calls into Hardware while holding its interrupt mask, so
// implementations must never call back into the Driver synchronously.
// Events (received bytes, transmit-empty, CTS edges, ticks) are queued and
// delivered by a single consumer through RxInterrupt, TxInterrupt,
// CtsInterrupt and Tick.
type Hardware interface {
	UART
	Lines
}
