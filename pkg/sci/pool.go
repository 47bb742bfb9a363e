package sci

type rxBuffer struct {
	state RxBufferState
	msg   Msg
}

type txBuffer struct {
	state TxBufferState
	msg   Msg
}

// cursor is a round-robin index into a buffer pool.
type cursor struct {
	pos  int
	size int
}

func (c *cursor) next() {
	if c.pos++; c.pos >= c.size {
		c.pos = 0
	}
}

// AllocateMsg reserves an empty transmit buffer for filling. The
// message goes back to the driver with PutMsg.
func (d *Driver) AllocateMsg() (*Msg, error) {
	// the mask is held per element only, a buffer freed behind the
	// cursor is picked up by the next call
	for i := 0; i < len(d.txBufs); i++ {
		d.mu.Lock()
		buf := &d.txBufs[d.txEmpty.pos]
		d.txEmpty.next()
		if buf.state == TxBufferEmpty {
			buf.state = TxBufferFilling
			d.mu.Unlock()
			return &buf.msg, nil
		}
		d.mu.Unlock()
	}
	d.mu.Lock()
	d.stats.TxBufUnavailable++
	d.mu.Unlock()
	return nil, ErrTxBufIsFull
}

// PutMsg queues an allocated message for transmission. The caller must
// not touch the message afterwards. A length byte pointing past the
// buffer yields ErrFrameTooLarge and the message stays allocated.
func (d *Driver) PutMsg(m *Msg) error {
	buf, err := d.txBufferOf(m)
	if err != nil {
		return err
	}
	if !m.fits() {
		return ErrFrameTooLarge
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf.state != TxBufferFilling {
		return ErrBadHandle
	}
	buf.state = TxBufferReady
	return nil
}

// DiscardMsg returns an allocated message without sending it.
func (d *Driver) DiscardMsg(m *Msg) error {
	buf, err := d.txBufferOf(m)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if buf.state != TxBufferFilling {
		return ErrBadHandle
	}
	buf.state = TxBufferEmpty
	return nil
}

// GetMsg returns the next received message. The message stays valid
// until released with ReleaseMsg.
func (d *Driver) GetMsg() (*Msg, error) {
	for i := 0; i < len(d.rxBufs); i++ {
		d.mu.Lock()
		buf := &d.rxBufs[d.rxReady.pos]
		d.rxReady.next()
		if buf.state == RxBufferReady {
			buf.state = RxBufferProcessing
			d.mu.Unlock()
			return &buf.msg, nil
		}
		d.mu.Unlock()
	}
	return nil, ErrRxMsgNotAvailable
}

// ReleaseMsg returns a received message to the driver and lets the Micro
// Server send again if the driver is running.
func (d *Driver) ReleaseMsg(m *Msg) error {
	if m == nil || m.owner != d || !m.rx || m.slot < 0 || m.slot >= len(d.rxBufs) {
		return ErrBadHandle
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := &d.rxBufs[m.slot]
	if buf.state != RxBufferProcessing {
		return ErrBadHandle
	}
	buf.state = RxBufferEmpty
	if d.state == DriverNormal {
		d.setHRDY(true)
	}
	return nil
}

func (d *Driver) txBufferOf(m *Msg) (*txBuffer, error) {
	if m == nil || m.owner != d || m.rx || m.slot < 0 || m.slot >= len(d.txBufs) {
		return nil, ErrBadHandle
	}
	return &d.txBufs[m.slot], nil
}

// hasEmptyRxBuffer must be called with the mask held.
func (d *Driver) hasEmptyRxBuffer() bool {
	for i := range d.rxBufs {
		if d.rxBufs[i].state == RxBufferEmpty {
			return true
		}
	}
	return false
}
