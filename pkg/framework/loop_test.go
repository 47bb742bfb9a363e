package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testMsg string

func (m testMsg) String() string { return string(m) }

func TestIterationMessages(t *testing.T) {
	l := NewLoop()
	var seen []string
	l.AddController(PrLvSense, ControlFunc(func(cc ControlContext) error {
		cc.Messages().AddMessages(testMsg("sensed"))
		return nil
	}))
	l.AddController(PrLvControl, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			seen = append(seen, mc.CurrentMessage().String())
			if mc.CurrentMessage() == testMsg("posted") {
				mc.MessageTaken()
			}
		}))
		return nil
	}))
	var left int
	l.AddController(PrLvPostProc, ControlFunc(func(cc ControlContext) error {
		left = cc.Messages().Len()
		return errors.New("logged only")
	}))

	l.PostMessage(testMsg("posted"))
	l.RunIteration(context.Background())
	require.Equal(t, []string{"posted", "sensed"}, seen)
	require.Equal(t, 1, left)

	seen = nil
	l.RunIteration(context.Background())
	require.Equal(t, []string{"sensed"}, seen)
}

func TestStopProcessing(t *testing.T) {
	l := NewLoop()
	var seen []string
	l.AddController(PrLvControl, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			seen = append(seen, mc.CurrentMessage().String())
			mc.MessageTaken()
			mc.StopProcessing()
		}))
		return nil
	}))
	var left int
	l.AddController(PrLvIdle, ControlFunc(func(cc ControlContext) error {
		left = cc.Messages().Len()
		return nil
	}))
	l.PostMessage(testMsg("a"))
	l.PostMessage(testMsg("b"))
	l.PostMessage(testMsg("c"))
	l.RunIteration(context.Background())
	require.Equal(t, []string{"a"}, seen)
	require.Equal(t, 2, left)
}

func TestLoopRunsRunnables(t *testing.T) {
	l := NewLoop()
	l.Interval = time.Hour
	got := make(chan string, 1)
	l.AddRunnable(RunFunc(func(ctx context.Context) error {
		ctl := LoopCtlFrom(ctx)
		ctl.PostMessage(testMsg("hello"))
		ctl.TriggerNext()
		<-ctx.Done()
		return ctx.Err()
	}))
	l.AddController(PrLvControl, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			mc.MessageTaken()
			got <- mc.CurrentMessage().String()
		}))
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	select {
	case msg := <-got:
		require.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}

func TestLoopStopsOnFailure(t *testing.T) {
	l := NewLoop()
	failure := errors.New("port gone")
	l.AddRunnable(RunFunc(func(context.Context) error { return failure }))
	l.AddRunnable(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	require.Equal(t, failure, l.Run(context.Background()))
}
