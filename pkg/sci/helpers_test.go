package sci_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/connectex/ftclick.go/pkg/sci"
	"github.com/connectex/ftclick.go/pkg/sci/simhw"
)

const testWakeup = 4

func testConfig() *sci.Config {
	conf := sci.NewConfig()
	conf.WakeupTime = testWakeup
	return conf
}

// newAwakeDriver returns a driver past its wakeup time.
func newAwakeDriver(t *testing.T, conf *sci.Config) (*sci.Driver, *simhw.Hardware) {
	if conf == nil {
		conf = testConfig()
	}
	drv, hw := simhw.NewDriver(conf)
	drv.Idle = hw.Step
	require.Equal(t, sci.DriverSleep, drv.Status().Driver)
	hw.Advance(int(conf.WakeupTime))
	st := drv.Status()
	require.Equal(t, sci.DriverNormal, st.Driver)
	require.True(t, st.HRDY)
	return drv, hw
}

type stateRecorder struct {
	tx []sci.TxState
	rx []sci.RxState
}

func (r *stateRecorder) TxStateChanged(s sci.TxState) { r.tx = append(r.tx, s) }
func (r *stateRecorder) RxStateChanged(s sci.RxState) { r.rx = append(r.rx, s) }

func queueMsg(t *testing.T, drv *sci.Driver, cmd byte, payload ...byte) *sci.Msg {
	m, err := drv.AllocateMsg()
	require.NoError(t, err)
	require.NoError(t, m.Set(cmd, payload))
	require.NoError(t, drv.PutMsg(m))
	return m
}

func getFrame(t *testing.T, drv *sci.Driver) []byte {
	m, err := drv.GetMsg()
	require.NoError(t, err)
	frame := append([]byte(nil), m.Bytes()...)
	require.NoError(t, drv.ReleaseMsg(m))
	return frame
}
