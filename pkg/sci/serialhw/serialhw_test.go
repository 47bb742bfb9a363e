package serialhw

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/connectex/ftclick.go/pkg/sci"
)

type fakePort struct {
	lock    sync.Mutex
	rts     bool
	dtr     bool
	cts     bool
	written []byte
	closed  bool
	readCh  chan []byte
	timeout time.Duration
}

func newFakePort() *fakePort {
	return &fakePort{readCh: make(chan []byte, 16)}
}

func (p *fakePort) SetMode(*serial.Mode) error  { return nil }
func (p *fakePort) Drain() error                 { return nil }
func (p *fakePort) ResetInputBuffer() error      { return nil }
func (p *fakePort) ResetOutputBuffer() error     { return nil }
func (p *fakePort) Break(time.Duration) error    { return nil }
func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case data := <-p.readCh:
		return copy(b, data), nil
	case <-time.After(p.timeout):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return 0, errors.New("closed")
	}
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) SetDTR(v bool) error {
	p.lock.Lock()
	p.dtr = v
	p.lock.Unlock()
	return nil
}

func (p *fakePort) SetRTS(v bool) error {
	p.lock.Lock()
	p.rts = v
	p.lock.Unlock()
	return nil
}

func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return &serial.ModemStatusBits{CTS: p.cts}, nil
}

func (p *fakePort) Close() error {
	p.lock.Lock()
	p.closed = true
	p.lock.Unlock()
	return nil
}

func (p *fakePort) lines() (rts, dtr bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.rts, p.dtr
}

func (p *fakePort) setCTS(v bool) {
	p.lock.Lock()
	p.cts = v
	p.lock.Unlock()
}

func testOptions() Options {
	opts := DefaultOptions("fake")
	opts.ReadTimeout = 5 * time.Millisecond
	return opts
}

func TestLinePolarity(t *testing.T) {
	port := newFakePort()
	opts := testOptions()
	opts.InvertRTS = true
	p, err := New(port, opts)
	require.NoError(t, err)
	rts, dtr := port.lines()
	require.True(t, rts)
	require.False(t, dtr)

	p.SetRTS(true)
	p.SetHRDY(true)
	rts, dtr = port.lines()
	require.False(t, rts)
	require.True(t, dtr)
	require.Equal(t, 5*time.Millisecond, port.timeout)
}

func TestResetLine(t *testing.T) {
	p, err := New(newFakePort(), testOptions())
	require.NoError(t, err)
	p.SetReset(true)
	p.SetReset(false)

	var levels []bool
	opts := testOptions()
	opts.ResetLine = func(v bool) error {
		levels = append(levels, v)
		return nil
	}
	p, err = New(newFakePort(), opts)
	require.NoError(t, err)
	p.SetReset(true)
	p.SetReset(false)
	require.Equal(t, []bool{true, false}, levels)
}

func TestRunDeliversEvents(t *testing.T) {
	port := newFakePort()
	p, err := New(port, testOptions())
	require.NoError(t, err)
	conf := sci.NewConfig()
	conf.WakeupTime = 2
	drv := sci.New(p, conf)
	drv.Delay = func(time.Duration) {}
	p.Attach(drv)
	drv.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	waitFor(t, func() bool {
		_, dtr := port.lines()
		return dtr
	})

	port.readCh <- []byte{2, 0x42, 1, 2}
	var frame []byte
	waitFor(t, func() bool {
		m, err := drv.GetMsg()
		if err != nil {
			return false
		}
		frame = append([]byte(nil), m.Bytes()...)
		require.NoError(t, drv.ReleaseMsg(m))
		return true
	})
	require.Equal(t, []byte{2, 0x42, 1, 2}, frame)

	port.setCTS(true)
	waitFor(t, p.CTS)

	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "condition not met in time")
		time.Sleep(time.Millisecond)
	}
}
