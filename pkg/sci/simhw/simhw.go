// Package simhw simulates the platform below an SCI driver together
// with a Micro Server at the far end of the link.
//
// Hardware events are queued as the driver drives the lines and
// delivered to the driver by Pump, either step by step in tests or from
// Run as the single consumer task.
package simhw

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/connectex/ftclick.go/pkg/sci"
)

type eventKind int

const (
	evRx eventKind = iota
	evRxError
	evTxEmpty
	evCts
)

type event struct {
	kind eventKind
	b    byte
}

type segment int

const (
	segHeader segment = iota
	segInfo
	segPayload
)

// maxPumpEvents bounds a single Pump against a runaway event loop.
const maxPumpEvents = 1 << 16

// Hardware implements sci.Hardware in memory.
type Hardware struct {
	// Echo sends every downlink frame back uplink.
	Echo bool
	// Silent makes the Micro Server ignore RTS.
	Silent bool

	drv  *sci.Driver
	mu   sync.Mutex
	kick chan struct{}

	events []event

	rts   bool
	hrdy  bool
	reset bool
	cts   bool
	txInt bool
	rxInt bool

	wire        []byte
	frames      [][]byte
	infos       [][2]byte
	uplink      [][]byte
	delays      []time.Duration
	resetPulses int
	violations  int

	// downlink frame being received by the Micro Server
	seg        segment
	segRemain  int
	frame      []byte
	info       [2]byte
	infoCount  int
	uplinkBusy bool
}

// New creates simulated hardware.
func New() *Hardware {
	return &Hardware{kick: make(chan struct{}, 1), segRemain: sci.HeaderSize}
}

// NewDriver creates an initialized driver on simulated hardware. Delays
// are recorded instead of slept.
func NewDriver(conf *sci.Config) (*sci.Driver, *Hardware) {
	hw := New()
	drv := sci.New(hw, conf)
	drv.Delay = hw.Delay
	hw.Attach(drv)
	drv.Init()
	return drv, hw
}

// Attach sets the driver receiving the events.
func (h *Hardware) Attach(drv *sci.Driver) {
	h.mu.Lock()
	h.drv = drv
	h.mu.Unlock()
}

// Transmit implements sci.UART.
func (h *Hardware) Transmit(p []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wire = append(h.wire, p...)
	// the transmit-empty event precedes whatever the Micro Server does
	// with the bytes
	h.queue(event{kind: evTxEmpty})
	for _, b := range p {
		h.consume(b)
	}
	return nil
}

// SetTxInterrupt implements sci.UART.
func (h *Hardware) SetTxInterrupt(enable bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if enable && !h.txInt {
		// the transmit register is empty
		h.queue(event{kind: evTxEmpty})
	}
	h.txInt = enable
}

// SetRxInterrupt implements sci.UART.
func (h *Hardware) SetRxInterrupt(enable bool) {
	h.mu.Lock()
	h.rxInt = enable
	h.mu.Unlock()
}

// SetRTS implements sci.Lines.
func (h *Hardware) SetRTS(asserted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rts = asserted
	if asserted && !h.Silent && !h.reset && !h.uplinkBusy {
		h.setCTS(true)
	}
}

// SetHRDY implements sci.Lines.
func (h *Hardware) SetHRDY(asserted bool) {
	h.mu.Lock()
	h.hrdy = asserted
	h.mu.Unlock()
	h.signal()
}

// SetReset implements sci.Lines.
func (h *Hardware) SetReset(asserted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if asserted && !h.reset {
		h.resetPulses++
		h.setCTS(false)
		h.resetReceiver()
	}
	h.reset = asserted
}

// CTS implements sci.Lines.
func (h *Hardware) CTS() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cts
}

// Delay records a delay instead of sleeping.
func (h *Hardware) Delay(d time.Duration) {
	h.mu.Lock()
	h.delays = append(h.delays, d)
	h.mu.Unlock()
}

// Send queues an uplink frame. The Micro Server sends it once HRDY is
// asserted and the line is free.
func (h *Hardware) Send(frame []byte) {
	h.mu.Lock()
	h.uplink = append(h.uplink, append([]byte(nil), frame...))
	h.mu.Unlock()
	h.signal()
}

// SendRaw delivers bytes to the driver regardless of HRDY.
func (h *Hardware) SendRaw(p ...byte) {
	h.mu.Lock()
	for _, b := range p {
		h.queue(event{kind: evRx, b: b})
	}
	h.mu.Unlock()
}

// InjectRxError queues a UART receive error.
func (h *Hardware) InjectRxError() {
	h.mu.Lock()
	h.queue(event{kind: evRxError})
	h.mu.Unlock()
}

// DropCTS deasserts CTS as a Micro Server restarting on its own would.
func (h *Hardware) DropCTS() {
	h.mu.Lock()
	h.setCTS(false)
	h.resetReceiver()
	h.mu.Unlock()
}

// Pump delivers queued events to the driver until none are left, and
// returns the number of events delivered.
func (h *Hardware) Pump() int {
	n := 0
	for ; n < maxPumpEvents; n++ {
		h.mu.Lock()
		drv := h.drv
		if len(h.events) == 0 {
			h.startUplink()
		}
		if drv == nil || len(h.events) == 0 {
			h.mu.Unlock()
			return n
		}
		ev := h.events[0]
		h.events = h.events[1:]
		h.mu.Unlock()

		switch ev.kind {
		case evRx:
			drv.RxInterrupt(ev.b)
		case evRxError:
			drv.RxError()
		case evTxEmpty:
			drv.TxInterrupt()
		case evCts:
			drv.CtsInterrupt()
		}
	}
	glog.Warningf("simhw: event loop did not settle after %d events", n)
	return n
}

// Advance runs ticks timer ticks, pumping events around each one.
func (h *Hardware) Advance(ticks int) {
	for i := 0; i < ticks; i++ {
		h.Pump()
		h.drv.Tick()
		h.Pump()
	}
}

// Step is one iteration of an idle loop: flush, then one tick.
func (h *Hardware) Step() {
	h.drv.FlushMsgs()
	h.Advance(1)
}

// Run delivers events and ticks in real time until ctx is done.
func (h *Hardware) Run(ctx context.Context) error {
	interval := h.drv.Config().TickInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Pump()
			h.drv.Tick()
			h.Pump()
		case <-h.kick:
			h.Pump()
		}
	}
}

// must be called with h.mu held
func (h *Hardware) queue(ev event) {
	h.events = append(h.events, ev)
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

func (h *Hardware) signal() {
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

func (h *Hardware) setCTS(asserted bool) {
	if h.cts != asserted {
		h.cts = asserted
		h.queue(event{kind: evCts})
	}
}

func (h *Hardware) resetReceiver() {
	h.seg = segHeader
	h.segRemain = sci.HeaderSize
	h.frame = nil
	h.infoCount = 0
}

func (h *Hardware) consume(b byte) {
	if !h.cts {
		h.violations++
		return
	}
	switch h.seg {
	case segHeader:
		h.frame = append(h.frame, b)
		if h.segRemain--; h.segRemain > 0 {
			return
		}
		if h.frame[1] == sci.CmdNvEscape {
			h.nextSegment(segInfo, 2)
		} else if h.frame[0] != 0 {
			h.nextSegment(segPayload, int(h.frame[0]))
		} else {
			h.complete()
		}
	case segInfo:
		h.info[h.infoCount] = b
		h.infoCount++
		if h.segRemain--; h.segRemain > 0 {
			return
		}
		h.infos = append(h.infos, h.info)
		if h.frame[0] != 0 {
			h.nextSegment(segPayload, int(h.frame[0]))
		} else {
			h.complete()
		}
	case segPayload:
		h.frame = append(h.frame, b)
		if h.segRemain--; h.segRemain == 0 {
			h.complete()
		}
	}
}

// nextSegment waits for the host to request the next segment with RTS.
func (h *Hardware) nextSegment(seg segment, size int) {
	h.seg = seg
	h.segRemain = size
	h.setCTS(false)
}

func (h *Hardware) complete() {
	frame := h.frame
	h.frames = append(h.frames, frame)
	if h.Echo {
		h.uplink = append(h.uplink, append([]byte(nil), frame...))
	}
	h.resetReceiver()
	h.setCTS(false)
}

// startUplink must be called with h.mu held and the queue empty.
func (h *Hardware) startUplink() {
	if h.uplinkBusy {
		h.uplinkBusy = false
		// a request that came in while sending is served now
		if h.rts && !h.Silent && !h.reset {
			h.setCTS(true)
			return
		}
	}
	if len(h.uplink) == 0 || !h.hrdy || !h.rxInt || h.cts || h.reset || h.seg != segHeader || len(h.frame) != 0 {
		return
	}
	frame := h.uplink[0]
	h.uplink = h.uplink[1:]
	h.uplinkBusy = true
	for _, b := range frame {
		h.queue(event{kind: evRx, b: b})
	}
}
