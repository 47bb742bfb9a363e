package sci

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

// Driver is the host side of one SCI link.
//
// The entry points RxInterrupt, TxInterrupt, CtsInterrupt and Tick must be
// called by a single consumer of hardware events. The message API may be
// called from any goroutine.
type Driver struct {
	// Delay blocks for the RESET and keep-alive pulses.
	Delay func(time.Duration)
	// Idle yields while PutMsgBlocking waits for the transmitter.
	Idle func()
	// Tracer, when set, observes the link state machines.
	Tracer StateTracer

	hw   Hardware
	conf Config

	// mu stands in for the global interrupt mask.
	mu sync.Mutex

	state   DriverState
	rxState RxState
	txState TxState
	txNext  TxState

	rxBufs []rxBuffer
	txBufs []txBuffer

	rxReady cursor
	rxRecv  cursor
	txEmpty cursor
	txXmit  cursor

	rxNextFree int
	rxRemain   int
	txNextChar int
	txRemain   int
	txMsg      *Msg

	rxTimer        uint32
	wakeupTimer    uint32
	keepAliveTimer uint32
	putMsgTimer    uint32

	rts   bool
	hrdy  bool
	txInt bool
	rxInt bool

	stats Stats
}

// New creates a Driver on the hardware. conf may be nil for defaults.
// The Driver stays silent until Init is called.
func New(hw Hardware, conf *Config) *Driver {
	if conf == nil {
		conf = NewConfig()
	}
	d := &Driver{hw: hw, conf: *conf}
	d.conf.normalize()
	d.Delay = time.Sleep
	d.Idle = func() { time.Sleep(d.conf.TickInterval) }
	d.rxBufs = make([]rxBuffer, d.conf.RxBufCount)
	for i := range d.rxBufs {
		d.rxBufs[i].msg = newBufferMsg(d, i, true, d.conf.RxBufSize)
	}
	d.txBufs = make([]txBuffer, d.conf.TxBufCount)
	for i := range d.txBufs {
		d.txBufs[i].msg = newBufferMsg(d, i, false, d.conf.TxBufSize)
	}
	d.rxReady.size, d.rxRecv.size = len(d.rxBufs), len(d.rxBufs)
	d.txEmpty.size, d.txXmit.size = len(d.txBufs), len(d.txBufs)
	return d
}

// Config returns the effective configuration.
func (d *Driver) Config() Config {
	return d.conf
}

// Init puts the driver into its initial state: all buffers empty, lines
// deasserted and the wakeup timer started.
func (d *Driver) Init() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = DriverSleep
	d.setRxState(RxIdle)
	d.setTxState(TxIdle)
	d.rxReady.pos, d.rxRecv.pos, d.txEmpty.pos, d.txXmit.pos = 0, 0, 0, 0
	d.txMsg = nil
	d.wakeupTimer = d.conf.WakeupTime
	d.rxTimer = 0
	d.keepAliveTimer = d.conf.KeepAliveTimeout
	d.putMsgTimer = 0
	for i := range d.rxBufs {
		d.rxBufs[i].state = RxBufferEmpty
	}
	for i := range d.txBufs {
		d.txBufs[i].state = TxBufferEmpty
	}
	d.setRTS(false)
	d.setHRDY(false)
	glog.V(2).Infof("sci: init %d/%d buffers, wakeup in %d ticks",
		len(d.rxBufs), len(d.txBufs), d.wakeupTimer)
}

// Reset drops pending transfers. The link restarts when the wakeup
// timer expires.
func (d *Driver) Reset() {
	d.mu.Lock()
	d.resetLocked()
	d.mu.Unlock()
}

func (d *Driver) resetLocked() {
	d.setTxInt(false)
	d.setRxInt(false)
	d.setRTS(false)
	d.setHRDY(false)
	d.state = DriverSleep
	d.rxTimer = 0
	d.wakeupTimer = d.conf.WakeupTime
}

// Suspend stops the Micro Server from sending and parks the driver.
// It fails if a transfer is in progress or about to start.
func (d *Driver) Suspend() bool {
	d.mu.Lock()
	if d.state != DriverNormal || d.txState != TxIdle || d.rxState != RxIdle || d.rts {
		d.mu.Unlock()
		return false
	}
	d.setHRDY(false)
	d.mu.Unlock()

	// a header may already be on the way
	d.Delay(d.conf.SuspendDrain)

	d.mu.Lock()
	defer d.mu.Unlock()
	// HRDY stays low otherwise so the next attempt can succeed; it comes
	// back with the next released receive buffer.
	if d.rxState != RxIdle || d.txState != TxIdle {
		return false
	}
	d.setTxInt(false)
	d.setRxInt(false)
	d.state = DriverSleep
	d.setRTS(false)
	return true
}

// Resume wakes a suspended driver.
func (d *Driver) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != DriverSleep || d.wakeupTimer != 0 {
		return
	}
	d.state = DriverNormal
	d.setRxInt(true)
	if d.hasEmptyRxBuffer() {
		d.setHRDY(true)
	}
}

func (d *Driver) setRTS(asserted bool) {
	d.rts = asserted
	d.hw.SetRTS(asserted)
}

func (d *Driver) setHRDY(asserted bool) {
	d.hrdy = asserted
	d.hw.SetHRDY(asserted)
}

func (d *Driver) setTxInt(enable bool) {
	d.txInt = enable
	d.hw.SetTxInterrupt(enable)
}

func (d *Driver) setRxInt(enable bool) {
	d.rxInt = enable
	d.hw.SetRxInterrupt(enable)
}

func (d *Driver) setTxState(s TxState) {
	d.txState = s
	if d.Tracer != nil {
		d.Tracer.TxStateChanged(s)
	}
}

func (d *Driver) setRxState(s RxState) {
	d.rxState = s
	if d.Tracer != nil {
		d.Tracer.RxStateChanged(s)
	}
}
