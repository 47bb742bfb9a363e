package link

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/connectex/ftclick.go/pkg/framework"
	"github.com/connectex/ftclick.go/pkg/sci"
	"github.com/connectex/ftclick.go/pkg/sci/simhw"
)

type frameRecorder struct {
	lock   sync.Mutex
	frames []*FrameMsg
}

func (r *frameRecorder) ObserveFrame(msg *FrameMsg) {
	r.lock.Lock()
	r.frames = append(r.frames, msg)
	r.lock.Unlock()
}

func (r *frameRecorder) HandleFrame(_ context.Context, msg *FrameMsg) {
	r.ObserveFrame(msg)
}

func (r *frameRecorder) snapshot() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]string, len(r.frames))
	for i, f := range r.frames {
		out[i] = f.String()
	}
	return out
}

type endpointTestEnv struct {
	ep     *Endpoint
	hw     *simhw.Hardware
	cancel func()
	errCh  chan error
}

func newEndpointTestEnv(t *testing.T, sciConf *sci.Config, echo bool) *endpointTestEnv {
	if sciConf == nil {
		sciConf = sci.NewConfig()
	}
	sciConf.WakeupTime = 2
	drv, hw := simhw.NewDriver(sciConf)
	hw.Echo = echo
	env := &endpointTestEnv{ep: NewEndpoint(drv, hw), hw: hw, errCh: make(chan error, 1)}
	loop := framework.NewLoop().Add(env.ep)
	ctx, cancel := context.WithCancel(context.Background())
	env.cancel = cancel
	go func() { env.errCh <- loop.Run(ctx) }()
	waitFor(t, func() bool {
		return drv.Status().Driver == sci.DriverNormal
	})
	return env
}

func (e *endpointTestEnv) stop(t *testing.T) {
	e.cancel()
	require.Equal(t, context.Canceled, <-e.errCh)
}

func TestEndpointEcho(t *testing.T) {
	env := newEndpointTestEnv(t, nil, true)
	defer env.stop(t)
	handled, observed := &frameRecorder{}, &frameRecorder{}
	env.ep.HandleFrames(handled).Observe(observed)

	ctx := context.Background()
	require.NoError(t, env.ep.Send(ctx, 0x22, []byte{1, 2, 3}))
	require.NoError(t, env.ep.Send(ctx, sci.CmdNvEscape, []byte{7}))
	waitFor(t, func() bool {
		return len(handled.snapshot()) == 2
	})
	require.Equal(t, []string{"rx 03 22 01 02 03", "rx 01 BF 07"}, handled.snapshot())
	require.ElementsMatch(t, []string{
		"tx 03 22 01 02 03", "tx 01 BF 07",
		"rx 03 22 01 02 03", "rx 01 BF 07",
	}, observed.snapshot())
	require.Equal(t, [][]byte{{3, 0x22, 1, 2, 3}, {1, 0xbf, 7}}, env.hw.Frames())
}

func TestEndpointSendWhileFull(t *testing.T) {
	conf := sci.NewConfig()
	conf.TxBufCount = 1
	env := newEndpointTestEnv(t, conf, false)
	defer env.stop(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func(i int) {
			errs <- env.ep.Send(ctx, 0x30, []byte{byte(i)})
		}(i)
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-errs)
	}
	waitFor(t, func() bool {
		return len(env.hw.Frames()) == 4
	})
}

func TestEndpointSendErrors(t *testing.T) {
	ep := NewEndpoint(nil, nil)
	require.Equal(t, ErrNotRunning, ep.Send(context.Background(), 1, nil))
	require.Equal(t, sci.ErrFrameTooLarge, ep.Send(context.Background(), 1, make([]byte, sci.MaxPayload+1)))

	env := newEndpointTestEnv(t, nil, true)
	defer env.stop(t)
	require.Equal(t, sci.ErrFrameTooLarge, env.ep.Send(context.Background(), 1, make([]byte, sci.DefaultBufSize)))
	require.Equal(t, sci.TxBufferEmpty, env.ep.Driver.Status().TxBuffers[0])
}

func TestEndpointSendBlocking(t *testing.T) {
	env := newEndpointTestEnv(t, nil, true)
	defer env.stop(t)
	observed := &frameRecorder{}
	env.ep.Observe(observed)
	require.NoError(t, env.ep.SendBlocking(context.Background(), 0x11, []byte{5}, time.Second))
	require.Contains(t, observed.snapshot(), "tx 01 11 05")

	env.hw.Silent = true
	require.Equal(t, sci.ErrMicroServerUnresponsive,
		env.ep.SendBlocking(context.Background(), 0x11, nil, 20*time.Millisecond))
}

func TestStatsReport(t *testing.T) {
	drv, _ := simhw.NewDriver(nil)
	report, err := StatsReport(sci.Stats{RxErrors: 3, TxFrames: 7}, drv.Status(), time.Unix(0, 0).UTC())
	require.NoError(t, err)
	require.Equal(t, "1970-01-01T00:00:00Z", report.Fields["time"].GetStringValue())
	require.Equal(t, "sleep", report.Fields["driver"].GetStringValue())
	counters := report.Fields["counters"].GetStructValue()
	require.EqualValues(t, 3, counters.Fields["rx_errors"].GetNumberValue())
	require.EqualValues(t, 7, counters.Fields["tx_frames"].GetNumberValue())
	require.Len(t, report.Fields["rx_buffers"].GetListValue().Values, sci.DefaultBufCount)
	require.Equal(t, "empty", report.Fields["tx_buffers"].GetListValue().Values[0].GetStringValue())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "condition not met in time")
		time.Sleep(time.Millisecond)
	}
}
