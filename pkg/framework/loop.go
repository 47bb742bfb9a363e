package framework

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the iteration interval of a Loop without one.
const DefaultInterval = time.Millisecond

// Loop runs controllers by priority level at a fixed interval.
type Loop struct {
	Interval time.Duration

	controllers [PriorityLevels][]Controller
	runners     []Runnable

	lock    sync.Mutex
	pending []Message
	wakeUp  chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopCtxKeyType struct{}

var loopCtxKey loopCtxKeyType

// LoopCtlFrom gets the LoopControl of a Runnable started by a Loop.
func LoopCtlFrom(ctx context.Context) LoopControl {
	ctl, _ := ctx.Value(loopCtxKey).(LoopControl)
	return ctl
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval, wakeUp: make(chan struct{}, 1)}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a priority level. Controllers
// also implementing Runnable are started with the loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	l.controllers[priorityLevel] = append(l.controllers[priorityLevel], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnables started with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable. It returns when ctx is done or a Runnable
// of the loop fails.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUp == nil {
		l.wakeUp = make(chan struct{}, 1)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runner := NewRunnerWith(context.WithValue(ctx, loopCtxKey, LoopControl(l)))
	runner.Go(l.runners...)
	failed := runner.Failed()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cancel()
			if err := runner.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		case <-failed:
			cancel()
			return runner.Wait()
		case <-ticker.C:
			l.RunIteration(ctx)
		case <-l.wakeUp:
			l.RunIteration(ctx)
		}
	}
}

// RunOrFail runs the loop and exits the process on failure.
func (l *Loop) RunOrFail() {
	if err := l.Run(context.TODO()); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.pending = append(l.pending, msg)
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUp <- struct{}{}:
	default:
	}
}

// RunIteration runs all controllers once with the messages posted so far.
func (l *Loop) RunIteration(ctx context.Context) {
	iter := &iteration{Loop: l, time: time.Now()}
	l.lock.Lock()
	iter.messages, l.pending = l.pending, nil
	l.lock.Unlock()
	iter.ctx = ctx
	for lv := 0; lv < PriorityLevels; lv++ {
		iter.priorityLevel = lv
		for _, ctl := range l.controllers[lv] {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error at level %d: %v", lv, err)
			}
		}
	}
	if n := len(iter.messages); n > 0 {
		glog.V(3).Infof("%d messages dropped at end of iteration", n)
	}
}

type iteration struct {
	*Loop
	ctx           context.Context
	time          time.Time
	priorityLevel int
	messages      []Message
}

func (t *iteration) Context() context.Context { return t.ctx }
func (t *iteration) Time() time.Time          { return t.time }
func (t *iteration) PriorityLevel() int       { return t.priorityLevel }
func (t *iteration) Messages() MessageStore   { return t }
func (t *iteration) Len() int                 { return len(t.messages) }

func (t *iteration) AddMessages(msgs ...Message) {
	t.messages = append(t.messages, msgs...)
}

type messageCursor struct {
	msg   Message
	taken bool
	stop  bool
}

func (c *messageCursor) CurrentMessage() Message { return c.msg }
func (c *messageCursor) MessageTaken()           { c.taken = true }
func (c *messageCursor) StopProcessing()         { c.stop = true }

func (t *iteration) ProcessMessages(proc MessageProcessor) {
	msgs := t.messages
	t.messages = nil
	remains := make([]Message, 0, len(msgs))
	for i, msg := range msgs {
		cur := &messageCursor{msg: msg}
		proc.ProcessMessage(cur)
		if !cur.taken {
			remains = append(remains, msg)
		}
		if cur.stop {
			remains = append(remains, msgs[i+1:]...)
			break
		}
	}
	// messages added while processing go after the remaining ones
	t.messages = append(remains, t.messages...)
}
