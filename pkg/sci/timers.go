package sci

import "github.com/golang/glog"

// Tick advances the driver timers by one tick.
func (d *Driver) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()

	var desynced bool
	if d.rxTimer != 0 {
		if d.rxTimer--; d.rxTimer == 0 {
			d.stats.RxTimeouts++
			d.desync("receive timeout in " + d.rxState.String())
			desynced = true
		}
	}

	// a fresh wakeup countdown starts with the next tick
	if d.wakeupTimer != 0 && !desynced {
		if d.wakeupTimer--; d.wakeupTimer == 0 {
			d.wakeup()
		}
	}

	if d.keepAliveTimer != 0 {
		if d.keepAliveTimer--; d.keepAliveTimer == 0 {
			// a backpressured Micro Server must stay quiet
			if d.hrdy {
				d.setHRDY(false)
				d.Delay(d.conf.KeepAlivePulse)
				d.setHRDY(true)
				d.stats.KeepAlives++
			}
			d.keepAliveTimer = d.conf.KeepAliveTimeout
		}
	}

	if d.putMsgTimer != 0 {
		d.putMsgTimer--
	}
}

func (d *Driver) wakeup() {
	d.state = DriverNormal
	d.setTxState(TxIdle)
	d.setRxState(RxIdle)
	for i := range d.rxBufs {
		if d.rxBufs[i].state == RxBufferReceiving {
			d.rxBufs[i].state = RxBufferEmpty
		}
	}
	// interrupted frames go out again from the start
	for i := range d.txBufs {
		if d.txBufs[i].state == TxBufferTransmitting {
			d.txBufs[i].state = TxBufferReady
		}
	}
	d.setRxInt(true)
	d.setHRDY(true)
	glog.V(2).Info("sci: driver awake")
}

// desync resets the Micro Server and restarts the link. In-flight frames
// are dropped on the receive side and retried on the transmit side.
func (d *Driver) desync(reason string) {
	glog.Warningf("sci: link out of sync (%s), resetting Micro Server", reason)
	d.stats.RemoteResets++
	d.hw.SetReset(true)
	d.Delay(d.conf.ResetHold)
	d.hw.SetReset(false)
	d.Delay(d.conf.ResetRecovery)
	d.setRxState(RxIdle)
	d.resetLocked()
}
