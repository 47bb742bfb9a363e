package sci_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/connectex/ftclick.go/pkg/sci"
)

// lineHardware drives the lines by hand.
type lineHardware struct {
	cts    bool
	rts    bool
	hrdy   bool
	resets int
	wire   []byte
}

func (h *lineHardware) Transmit(p []byte) error {
	h.wire = append(h.wire, p...)
	return nil
}

func (h *lineHardware) SetTxInterrupt(bool) {}
func (h *lineHardware) SetRxInterrupt(bool) {}
func (h *lineHardware) SetRTS(v bool)       { h.rts = v }
func (h *lineHardware) SetHRDY(v bool)      { h.hrdy = v }
func (h *lineHardware) CTS() bool           { return h.cts }

func (h *lineHardware) SetReset(v bool) {
	if v {
		h.resets++
	}
}

func newLineDriver(t *testing.T) (*sci.Driver, *lineHardware, *[]time.Duration) {
	hw := &lineHardware{}
	var delays []time.Duration
	drv := sci.New(hw, testConfig())
	drv.Delay = func(d time.Duration) { delays = append(delays, d) }
	drv.Init()
	for i := 0; i < testWakeup; i++ {
		drv.Tick()
	}
	require.Equal(t, sci.DriverNormal, drv.Status().Driver)
	return drv, hw, &delays
}

func TestDesyncOnCTSLoss(t *testing.T) {
	drv, hw, delays := newLineDriver(t)
	queueMsg(t, drv, 0x22, 1, 2, 3)

	drv.FlushMsgs()
	require.True(t, hw.rts)
	hw.cts = true
	drv.CtsInterrupt()
	require.False(t, hw.rts)
	drv.TxInterrupt()
	require.Equal(t, sci.TxHandShake, drv.Status().Tx)
	require.Equal(t, sci.TxBufferTransmitting, drv.Status().TxBuffers[0])

	hw.cts = false
	drv.CtsInterrupt()
	require.True(t, hw.rts)
	require.Equal(t, sci.TxPayload, drv.Status().Tx)
	hw.cts = true
	drv.CtsInterrupt()
	drv.TxInterrupt()
	require.Equal(t, []byte{3, 0x22, 1}, hw.wire)

	// the Micro Server restarted on its own
	hw.cts = false
	drv.TxInterrupt()
	require.Equal(t, 1, hw.resets)
	require.Equal(t, []time.Duration{50 * time.Millisecond, 200 * time.Millisecond}, *delays)
	st := drv.Status()
	require.Equal(t, sci.DriverSleep, st.Driver)
	require.False(t, st.RTS)
	require.False(t, st.HRDY)
	require.EqualValues(t, 1, drv.Stats().RemoteResets)

	// later events are ignored until the driver wakes up
	drv.TxInterrupt()
	drv.CtsInterrupt()
	require.Equal(t, 1, hw.resets)

	for i := 0; i < testWakeup; i++ {
		drv.Tick()
	}
	st = drv.Status()
	require.Equal(t, sci.DriverNormal, st.Driver)
	require.Equal(t, sci.TxIdle, st.Tx)
	require.True(t, st.HRDY)
	// the interrupted frame is sent again from the start
	require.Equal(t, sci.TxBufferReady, st.TxBuffers[0])
	require.True(t, st.TxPending)
	drv.FlushMsgs()
	require.True(t, hw.rts)
	hw.cts = true
	drv.CtsInterrupt()
	drv.TxInterrupt()
	require.Equal(t, []byte{3, 0x22, 1, 3, 0x22}, hw.wire)
}

func TestCompletionIgnoresCTS(t *testing.T) {
	drv, hw, _ := newLineDriver(t)
	queueMsg(t, drv, 0x11)
	drv.FlushMsgs()
	hw.cts = true
	drv.CtsInterrupt()
	drv.TxInterrupt()
	require.Equal(t, sci.TxDone, drv.Status().Tx)

	hw.cts = false
	drv.TxInterrupt()
	require.Zero(t, hw.resets)
	st := drv.Status()
	require.Equal(t, sci.TxIdle, st.Tx)
	require.Equal(t, sci.TxBufferEmpty, st.TxBuffers[0])
}
