package sci

// Stats are diagnostic counters of a Driver. They never drive control flow.
type Stats struct {
	// RxErrors counts UART errors and oversized uplink frames.
	RxErrors uint32
	// RxTimeouts counts frames aborted by the receive timeout.
	RxTimeouts uint32
	// TxBufUnavailable counts AllocateMsg calls that found no free buffer.
	TxBufUnavailable uint32
	// RemoteResets counts RESET pulses sent to the Micro Server.
	RemoteResets uint32
	KeepAlives   uint32
	RxFrames     uint32
	// RxIgnored counts frames dropped because no receive buffer was free.
	RxIgnored uint32
	TxFrames  uint32
	TxErrors  uint32
}

// Status is a snapshot of the link state.
type Status struct {
	Driver DriverState
	Rx     RxState
	Tx     TxState

	RTS  bool
	HRDY bool
	CTS  bool

	// TxPending is set while a message is assigned to the transmitter.
	TxPending bool

	RxBuffers []RxBufferState
	TxBuffers []TxBufferState
}

// Stats returns a snapshot of the diagnostic counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Status returns a snapshot of driver, receiver and transmitter states.
func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Status{
		Driver:    d.state,
		Rx:        d.rxState,
		Tx:        d.txState,
		RTS:       d.rts,
		HRDY:      d.hrdy,
		CTS:       d.hw.CTS(),
		TxPending: d.txMsg != nil,
		RxBuffers: make([]RxBufferState, len(d.rxBufs)),
		TxBuffers: make([]TxBufferState, len(d.txBufs)),
	}
	for i := range d.rxBufs {
		s.RxBuffers[i] = d.rxBufs[i].state
	}
	for i := range d.txBufs {
		s.TxBuffers[i] = d.txBufs[i].state
	}
	return s
}
