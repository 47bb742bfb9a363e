package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/connectex/ftclick.go/pkg/framework"
	"github.com/connectex/ftclick.go/pkg/sci"
)

// ErrNotRunning indicates the endpoint was not added to a loop.
var ErrNotRunning = errors.New("endpoint not in a loop")

// FrameHandler is called in the loop for each uplink frame.
type FrameHandler interface {
	HandleFrame(context.Context, *FrameMsg)
}

// HandleFrameFunc is func type of FrameHandler.
type HandleFrameFunc func(context.Context, *FrameMsg)

// HandleFrame implements FrameHandler.
func (f HandleFrameFunc) HandleFrame(ctx context.Context, msg *FrameMsg) {
	f(ctx, msg)
}

// Observer sees frames in both directions. It must not block.
type Observer interface {
	ObserveFrame(*FrameMsg)
}

// Endpoint runs a driver inside a framework loop: the platform is the
// single consumer of hardware events, the loop is the idle loop calling
// FlushMsgs and draining received frames.
type Endpoint struct {
	Driver   *sci.Driver
	Platform framework.Runnable

	lock      sync.RWMutex
	handlers  []FrameHandler
	observers []Observer
	loop      framework.LoopControl
}

// NewEndpoint creates an Endpoint.
func NewEndpoint(drv *sci.Driver, platform framework.Runnable) *Endpoint {
	return &Endpoint{Driver: drv, Platform: platform}
}

// HandleFrames registers uplink frame handlers.
func (e *Endpoint) HandleFrames(handlers ...FrameHandler) *Endpoint {
	e.lock.Lock()
	e.handlers = append(e.handlers, handlers...)
	e.lock.Unlock()
	return e
}

// Observe registers frame observers.
func (e *Endpoint) Observe(observers ...Observer) *Endpoint {
	e.lock.Lock()
	e.observers = append(e.observers, observers...)
	e.lock.Unlock()
	return e
}

// AddToLoop implements LoopAdder.
func (e *Endpoint) AddToLoop(l *framework.Loop) {
	e.lock.Lock()
	e.loop = l
	e.lock.Unlock()
	l.AddRunnable(framework.NamedRun("sci", e.Platform))
	l.AddController(framework.PrLvSense, framework.ControlFunc(e.receive))
	l.AddController(framework.PrLvControl, framework.ControlFunc(e.dispatch))
	l.AddController(framework.PrLvActuate, framework.ControlFunc(e.transmit))
	l.AddController(framework.PrLvPostProc, framework.ControlFunc(e.sweep))
}

// Close closes the platform if it holds resources.
func (e *Endpoint) Close() error {
	if closer, ok := e.Platform.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Send queues a downlink frame through the loop. It returns once the
// frame is in a transmit buffer, retrying while the buffers are full.
func (e *Endpoint) Send(ctx context.Context, cmd byte, payload []byte) error {
	if len(payload) > sci.MaxPayload {
		return sci.ErrFrameTooLarge
	}
	e.lock.RLock()
	loop := e.loop
	e.lock.RUnlock()
	if loop == nil {
		return ErrNotRunning
	}
	req := &txRequest{
		cmd:     cmd,
		payload: append([]byte(nil), payload...),
		done:    make(chan error, 1),
	}
	loop.PostMessage(req)
	loop.TriggerNext()
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendBlocking sends a frame and waits until it left the host.
func (e *Endpoint) SendBlocking(ctx context.Context, cmd byte, payload []byte, timeout time.Duration) error {
	m, err := sci.NewMsg(cmd, payload)
	if err != nil {
		return err
	}
	if err := e.Driver.PutMsgBlocking(ctx, m, timeout); err != nil {
		return err
	}
	e.observe(&FrameMsg{Dir: Downlink, Time: time.Now(), Frame: m.Bytes()})
	return nil
}

func (e *Endpoint) receive(cc framework.ControlContext) error {
	e.Driver.FlushMsgs()
	for {
		m, err := e.Driver.GetMsg()
		if err == sci.ErrRxMsgNotAvailable {
			return nil
		}
		if err != nil {
			return err
		}
		msg := &FrameMsg{
			Dir:   Uplink,
			Time:  cc.Time(),
			Frame: append([]byte(nil), m.Bytes()...),
		}
		if err := e.Driver.ReleaseMsg(m); err != nil {
			return err
		}
		e.observe(msg)
		cc.Messages().AddMessages(msg)
	}
}

func (e *Endpoint) dispatch(cc framework.ControlContext) error {
	e.lock.RLock()
	handlers := e.handlers
	e.lock.RUnlock()
	if len(handlers) == 0 {
		return nil
	}
	cc.Messages().ProcessMessages(framework.ProcessMessageFunc(func(mc framework.MessageProcessingContext) {
		if msg, ok := mc.CurrentMessage().(*FrameMsg); ok && msg.Dir == Uplink {
			mc.MessageTaken()
			for _, h := range handlers {
				h.HandleFrame(cc.Context(), msg)
			}
		}
	}))
	return nil
}

func (e *Endpoint) transmit(cc framework.ControlContext) error {
	var full, queued bool
	cc.Messages().ProcessMessages(framework.ProcessMessageFunc(func(mc framework.MessageProcessingContext) {
		req, ok := mc.CurrentMessage().(*txRequest)
		if !ok {
			return
		}
		mc.MessageTaken()
		// keep the order of requests once the buffers are full
		if !full {
			err := e.queue(req)
			if err != sci.ErrTxBufIsFull {
				req.done <- err
				queued = queued || err == nil
				return
			}
			full = true
		}
		cc.PostMessage(req)
	}))
	if queued {
		e.Driver.FlushMsgs()
	}
	return nil
}

func (e *Endpoint) queue(req *txRequest) error {
	m, err := e.Driver.AllocateMsg()
	if err != nil {
		return err
	}
	if err = m.Set(req.cmd, req.payload); err != nil {
		if derr := e.Driver.DiscardMsg(m); derr != nil {
			glog.Errorf("discard %02X: %v", req.cmd, derr)
		}
		return err
	}
	msg := &FrameMsg{Dir: Downlink, Time: time.Now(), Frame: append([]byte(nil), m.Bytes()...)}
	if err = e.Driver.PutMsg(m); err != nil {
		return err
	}
	e.observe(msg)
	return nil
}

func (e *Endpoint) sweep(cc framework.ControlContext) error {
	cc.Messages().ProcessMessages(framework.ProcessMessageFunc(func(mc framework.MessageProcessingContext) {
		if msg, ok := mc.CurrentMessage().(*FrameMsg); ok {
			mc.MessageTaken()
			glog.V(2).Infof("unhandled frame %s", msg)
		}
	}))
	return nil
}

func (e *Endpoint) observe(msg *FrameMsg) {
	e.lock.RLock()
	observers := e.observers
	e.lock.RUnlock()
	for _, o := range observers {
		o.ObserveFrame(msg)
	}
}
