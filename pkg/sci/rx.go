package sci

import "github.com/golang/glog"

// RxInterrupt handles one byte received from the Micro Server.
func (d *Driver) RxInterrupt(b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != DriverNormal || !d.rxInt {
		return
	}

	switch d.rxState {
	case RxIdle:
		d.rxHeader(b)
	case RxPayload:
		buf := &d.rxBufs[d.rxRecv.pos]
		buf.msg.data[d.rxNextFree] = b
		d.rxNextFree++
		if d.rxRemain--; d.rxRemain == 0 {
			d.rxComplete(buf)
		} else {
			d.rxTimer = d.conf.RxTimeout
		}
	case RxIgnore:
		if d.rxRemain--; d.rxRemain == 0 {
			d.setRxState(RxIdle)
			d.rxTimer = 0
		} else {
			d.rxTimer = d.conf.RxTimeout
		}
	}
	d.keepAliveTimer = d.conf.KeepAliveTimeout
}

// RxError reports a UART error (framing, overrun, noise).
func (d *Driver) RxError() {
	d.mu.Lock()
	d.stats.RxErrors++
	d.mu.Unlock()
}

func (d *Driver) rxHeader(length byte) {
	// the command byte follows the length byte and is not counted by it
	d.rxRemain = int(length) + 1
	d.rxTimer = d.conf.RxTimeout
	if int(length) >= len(d.rxBufs[0].msg.data)-HeaderSize {
		d.stats.RxErrors++
		glog.Warningf("sci: uplink frame of %d bytes too large, ignored", length)
		d.setRxState(RxIgnore)
		return
	}
	for i := 0; i < len(d.rxBufs); i++ {
		buf := &d.rxBufs[d.rxRecv.pos]
		if buf.state == RxBufferEmpty {
			buf.state = RxBufferReceiving
			buf.msg.data[0] = length
			d.rxNextFree = 1
			d.setRxState(RxPayload)
			return
		}
		d.rxRecv.next()
	}
	d.stats.RxIgnored++
	d.setRxState(RxIgnore)
}

func (d *Driver) rxComplete(buf *rxBuffer) {
	if glog.V(3) {
		glog.Infof("sci: received %s", buf.msg.String())
	}
	d.setRxState(RxIdle)
	buf.state = RxBufferReady
	d.rxTimer = 0
	d.rxRecv.next()
	d.stats.RxFrames++
	if !d.hasEmptyRxBuffer() {
		d.setHRDY(false)
	}
}
