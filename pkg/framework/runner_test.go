package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunnerAggregatesErrors(t *testing.T) {
	err1, err2 := errors.New("one"), errors.New("two")
	r := NewRunner().Go(
		RunFunc(func(context.Context) error { return err1 }),
		NamedRun("second", RunFunc(func(context.Context) error { return err2 })),
		RunFunc(func(context.Context) error { return context.Canceled }),
		RunFunc(func(context.Context) error { return nil }),
	)
	err := r.Wait()
	require.Error(t, err)
	agg, ok := err.(*AggregatedError)
	require.True(t, ok)
	require.ElementsMatch(t, []error{err1, err2}, agg.Errors)
	require.Contains(t, err.Error(), "multiple errors:")
}

func TestRunnerSingleError(t *testing.T) {
	failure := errors.New("only")
	r := NewRunner().Go(RunFunc(func(context.Context) error { return failure }))
	<-r.Failed()
	require.Equal(t, failure, r.Wait())
	require.NoError(t, NewRunner().Wait())
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestRunWithContextCloser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	unblock := make(chan struct{})
	closed := 0
	cancel()
	err := RunWithContextCloser(ctx, closerFunc(func() error {
		closed++
		close(unblock)
		return nil
	}), func() error {
		<-unblock
		return errors.New("closed")
	})
	require.Equal(t, context.Canceled, err)
	require.Equal(t, 1, closed)

	closed = 0
	err = RunWithContextCloser(context.Background(), closerFunc(func() error {
		closed++
		return nil
	}), func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, 1, closed)
}
