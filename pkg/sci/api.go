package sci

import (
	"context"
	"time"
)

// FlushMsgs starts the next transmission when the link is idle. It must
// be called at least once per tick by the owner of the driver; the
// interrupt handlers do the rest.
func (d *Driver) FlushMsgs() {
	d.mu.Lock()
	// CTS asserted means a transfer is already under way
	if d.hw.CTS() || d.txState != TxIdle || d.state == DriverSleep {
		d.mu.Unlock()
		return
	}
	if d.txMsg != nil {
		d.setRTS(true)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	for i := 0; i < len(d.txBufs); i++ {
		d.mu.Lock()
		if d.txMsg != nil || d.txState != TxIdle || d.state == DriverSleep {
			d.mu.Unlock()
			return
		}
		buf := &d.txBufs[d.txXmit.pos]
		d.txXmit.next()
		if buf.state == TxBufferReady {
			d.txMsg = &buf.msg
			d.setRTS(true)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
	}
}

// PutMsgBlocking sends a message and waits until it left the host.
//
// m is either a standalone message from NewMsg or an allocated message
// that was not put yet; the latter is copied and its buffer returned.
// If the transmitter does not take and finish the message within timeout,
// ErrMicroServerUnresponsive is returned. A zero timeout fails at once.
// It is meant for initialization handshakes, not steady-state traffic,
// and must not be called concurrently with itself.
func (d *Driver) PutMsgBlocking(ctx context.Context, m *Msg, timeout time.Duration) error {
	if m == nil {
		return ErrBadHandle
	}
	if !m.fits() {
		return ErrFrameTooLarge
	}
	if m.owner != nil {
		buf, err := d.txBufferOf(m)
		if err != nil {
			return err
		}
		d.mu.Lock()
		if buf.state != TxBufferFilling {
			d.mu.Unlock()
			return ErrBadHandle
		}
		m = m.Copy()
		buf.state = TxBufferEmpty
		d.mu.Unlock()
	}

	d.mu.Lock()
	d.putMsgTimer = d.conf.Ticks(timeout)
	d.mu.Unlock()

	for {
		d.mu.Lock()
		if d.putMsgTimer == 0 {
			d.mu.Unlock()
			return ErrMicroServerUnresponsive
		}
		if d.txMsg == nil {
			d.txMsg = m
			d.mu.Unlock()
			break
		}
		d.mu.Unlock()
		// pending messages go first
		if err := d.yield(ctx); err != nil {
			return err
		}
	}

	for {
		d.mu.Lock()
		if d.txMsg != m {
			d.mu.Unlock()
			return nil
		}
		if d.putMsgTimer == 0 {
			d.withdraw(m)
			d.mu.Unlock()
			return ErrMicroServerUnresponsive
		}
		d.mu.Unlock()
		if err := d.yield(ctx); err != nil {
			d.mu.Lock()
			d.withdraw(m)
			d.mu.Unlock()
			return err
		}
	}
}

func (d *Driver) yield(ctx context.Context) error {
	d.FlushMsgs()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	d.Idle()
	return nil
}

// withdraw takes back a message the transmitter has not started.
// A frame already on the wire is left to finish.
func (d *Driver) withdraw(m *Msg) {
	if d.txMsg == m && d.txState == TxIdle {
		d.txMsg = nil
		d.setRTS(false)
	}
}
