// Package serialhw runs an SCI driver over a serial port.
//
// The UART maps to the port data lines, RTS to the port RTS, HRDY to DTR
// and CTS to the CTS modem status bit. Port drivers do not report modem
// status changes, so CTS is polled by Run and edges are delivered as
// CtsInterrupt. RESET has no standard line and is optional.
package serialhw

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/connectex/ftclick.go/pkg/sci"
)

// Options configures a Platform.
type Options struct {
	PortName string
	BaudRate int

	// Invert* flip the electrical level of a line.
	InvertRTS  bool
	InvertHRDY bool
	InvertCTS  bool

	// ResetLine drives the RESET line, nil when the board has none.
	ResetLine func(asserted bool) error

	// ReadTimeout bounds a single read so the reader notices shutdown.
	ReadTimeout time.Duration
	// RxQueue is the number of received bytes buffered for Run.
	RxQueue int
}

// DefaultOptions returns options for a port.
func DefaultOptions(portName string) Options {
	return Options{
		PortName:    portName,
		BaudRate:    38400,
		ReadTimeout: 100 * time.Millisecond,
		RxQueue:     1024,
	}
}

// Platform implements sci.Hardware on a serial port.
type Platform struct {
	opts Options
	port serial.Port
	drv  *sci.Driver

	rxCh    chan byte
	txEmpty chan struct{}
	kick    chan struct{}

	cts     int32
	rxInt   int32
	overrun uint32

	resetWarn sync.Once
}

// Open opens the serial port.
func Open(opts Options) (*Platform, error) {
	port, err := serial.Open(opts.PortName, &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %v", opts.PortName, err)
	}
	p, err := New(port, opts)
	if err != nil {
		port.Close()
		return nil, err
	}
	return p, nil
}

// New creates a Platform on an opened port.
func New(port serial.Port, opts Options) (*Platform, error) {
	if opts.RxQueue <= 0 {
		opts.RxQueue = 1024
	}
	if opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
			return nil, fmt.Errorf("set read timeout: %v", err)
		}
	}
	p := &Platform{
		opts:    opts,
		port:    port,
		rxCh:    make(chan byte, opts.RxQueue),
		txEmpty: make(chan struct{}, 1),
		kick:    make(chan struct{}, 1),
	}
	p.SetRTS(false)
	p.SetHRDY(false)
	return p, nil
}

// Attach sets the driver receiving the events.
func (p *Platform) Attach(drv *sci.Driver) {
	p.drv = drv
}

// Close closes the port.
func (p *Platform) Close() error {
	return p.port.Close()
}

// Transmit implements sci.UART.
func (p *Platform) Transmit(b []byte) error {
	if _, err := p.port.Write(b); err != nil {
		return err
	}
	signal(p.txEmpty)
	return nil
}

// SetTxInterrupt implements sci.UART. The port has no transmit register
// to wait for, so enabling reports it empty right away.
func (p *Platform) SetTxInterrupt(enable bool) {
	if enable {
		signal(p.txEmpty)
	}
}

// SetRxInterrupt implements sci.UART.
func (p *Platform) SetRxInterrupt(enable bool) {
	var v int32
	if enable {
		v = 1
	}
	atomic.StoreInt32(&p.rxInt, v)
}

// SetRTS implements sci.Lines.
func (p *Platform) SetRTS(asserted bool) {
	if err := p.port.SetRTS(asserted != p.opts.InvertRTS); err != nil {
		glog.Errorf("serialhw: set RTS: %v", err)
	}
	// the Micro Server answers quickly, look at CTS again
	signal(p.kick)
}

// SetHRDY implements sci.Lines.
func (p *Platform) SetHRDY(asserted bool) {
	if err := p.port.SetDTR(asserted != p.opts.InvertHRDY); err != nil {
		glog.Errorf("serialhw: set HRDY: %v", err)
	}
}

// SetReset implements sci.Lines.
func (p *Platform) SetReset(asserted bool) {
	if p.opts.ResetLine == nil {
		p.resetWarn.Do(func() {
			glog.Warning("serialhw: no RESET line, Micro Server is not reset")
		})
		return
	}
	if err := p.opts.ResetLine(asserted); err != nil {
		glog.Errorf("serialhw: set RESET: %v", err)
	}
}

// CTS implements sci.Lines with the last polled level.
func (p *Platform) CTS() bool {
	return atomic.LoadInt32(&p.cts) != 0
}

// Run is the single consumer of port events. It owns the driver tick.
func (p *Platform) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go p.readLoop(ctx, errCh)

	ticker := time.NewTicker(p.drv.Config().TickInterval)
	defer ticker.Stop()
	for {
		if err := p.pollCTS(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case b := <-p.rxCh:
			p.drv.RxInterrupt(b)
		case <-p.txEmpty:
			p.drv.TxInterrupt()
		case <-p.kick:
		case <-ticker.C:
			for n := atomic.SwapUint32(&p.overrun, 0); n > 0; n-- {
				p.drv.RxError()
			}
			p.drv.Tick()
		}
	}
}

func (p *Platform) pollCTS() error {
	bits, err := p.port.GetModemStatusBits()
	if err != nil {
		return fmt.Errorf("modem status: %v", err)
	}
	var v int32
	if bits.CTS != p.opts.InvertCTS {
		v = 1
	}
	if atomic.SwapInt32(&p.cts, v) != v {
		p.drv.CtsInterrupt()
	}
	return nil
}

func (p *Platform) readLoop(ctx context.Context, errCh chan<- error) {
	buf := make([]byte, 64)
	for {
		n, err := p.port.Read(buf)
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err != nil {
			errCh <- fmt.Errorf("read: %v", err)
			return
		}
		// a read timeout returns no bytes and no error
		if atomic.LoadInt32(&p.rxInt) == 0 {
			continue
		}
		for _, b := range buf[:n] {
			select {
			case p.rxCh <- b:
			default:
				atomic.AddUint32(&p.overrun, 1)
			}
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
