package sci

import (
	"fmt"

	"github.com/golang/glog"
)

// TxInterrupt handles the transmit-empty event of the UART.
func (d *Driver) TxInterrupt() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.txInt {
		return
	}
	// everything but the completion needs the Micro Server listening
	if d.txState != TxDone && !d.hw.CTS() {
		d.desync(fmt.Sprintf("CTS deasserted while transmitter in %s", d.txState))
		return
	}

	m := d.txMsg
	switch d.txState {
	case TxIdle:
		if m == nil {
			d.setTxInt(false)
			return
		}
		if m.slot >= 0 {
			if buf := &d.txBufs[m.slot]; buf.state == TxBufferReady {
				buf.state = TxBufferTransmitting
			}
		}
		d.txRemain = int(m.data[0])
		d.txNextChar = HeaderSize
		// length and command go out together, the command decides
		// what follows right away
		d.setTxState(TxCmd)
		if !d.transmit(m.data[:HeaderSize]) {
			return
		}
		switch {
		case m.IsEscape():
			d.handshake(TxInfo1)
		case d.txRemain != 0:
			d.handshake(TxPayload)
		default:
			d.setTxState(TxDone)
		}
	case TxInfo1:
		if !d.transmit([]byte{m.info1()}) {
			return
		}
		d.setTxState(TxInfo2)
	case TxInfo2:
		if !d.transmit([]byte{0}) {
			return
		}
		if d.txRemain != 0 {
			d.handshake(TxPayload)
		} else {
			d.setTxState(TxDone)
		}
	case TxPayload:
		if !d.transmit(m.data[d.txNextChar : d.txNextChar+1]) {
			return
		}
		d.txNextChar++
		if d.txRemain--; d.txRemain == 0 {
			d.setTxState(TxDone)
		} else {
			d.setTxState(TxPayload)
		}
	case TxDone:
		d.txComplete()
	default:
		// HandShake waits for CTS with the interrupt disabled
		return
	}
	d.keepAliveTimer = d.conf.KeepAliveTimeout
}

// CtsInterrupt handles an edge of the CTS line.
func (d *Driver) CtsInterrupt() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != DriverNormal {
		return
	}
	if d.hw.CTS() {
		// the Micro Server is listening, RTS has done its job
		d.setTxInt(true)
		d.setRTS(false)
	} else if d.txState == TxHandShake {
		d.setRTS(true)
		d.setTxState(d.txNext)
	}
}

func (d *Driver) handshake(next TxState) {
	d.setTxState(TxHandShake)
	d.txNext = next
	d.setTxInt(false)
}

func (d *Driver) transmit(p []byte) bool {
	if err := d.hw.Transmit(p); err != nil {
		d.stats.TxErrors++
		d.desync(fmt.Sprintf("transmit: %v", err))
		return false
	}
	return true
}

func (d *Driver) txComplete() {
	if d.txMsg != nil && glog.V(3) {
		glog.Infof("sci: transmitted %s", d.txMsg.String())
	}
	for i := range d.txBufs {
		if d.txBufs[i].state == TxBufferTransmitting {
			d.txBufs[i].state = TxBufferEmpty
			break
		}
	}
	d.txMsg = nil
	d.setTxInt(false)
	d.setTxState(TxIdle)
	d.stats.TxFrames++
}
