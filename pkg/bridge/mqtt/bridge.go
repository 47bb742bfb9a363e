package mqtt

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/connectex/ftclick.go/pkg/framework"
	"github.com/connectex/ftclick.go/pkg/link"
)

// Topics relative to the queue prefix.
const (
	// TopicRx is the prefix of uplink frames, followed by the command
	// byte in hex. The payload is the frame payload.
	TopicRx = "rx/"
	// TopicTx takes downlink frames: the command byte followed by the
	// payload.
	TopicTx = "tx"
	// TopicStats carries a google.protobuf.Struct of driver statistics.
	TopicStats = "stats"
)

// Defaults of a Bridge.
const (
	DefaultStatsInterval = 5 * time.Second
	DefaultBacklog       = 64
)

// Bridge forwards frames between an endpoint and a Queue.
type Bridge struct {
	Queue         *Queue
	Endpoint      *link.Endpoint
	StatsInterval time.Duration

	uplink   chan *link.FrameMsg
	downlink chan []byte
	dropped  uint32
}

// NewBridge creates a Bridge observing the endpoint.
func NewBridge(q *Queue, ep *link.Endpoint) *Bridge {
	b := &Bridge{
		Queue:         q,
		Endpoint:      ep,
		StatsInterval: DefaultStatsInterval,
		uplink:        make(chan *link.FrameMsg, DefaultBacklog),
		downlink:      make(chan []byte, DefaultBacklog),
	}
	ep.Observe(b)
	return b
}

// RxTopic is the topic of uplink frames with the command.
func RxTopic(cmd byte) string {
	return TopicRx + fmt.Sprintf("%02x", cmd)
}

// Dropped is the number of frames dropped because the broker side fell
// behind.
func (b *Bridge) Dropped() uint32 {
	return atomic.LoadUint32(&b.dropped)
}

// ObserveFrame implements link.Observer.
func (b *Bridge) ObserveFrame(msg *link.FrameMsg) {
	if msg.Dir != link.Uplink {
		return
	}
	select {
	case b.uplink <- msg:
	default:
		atomic.AddUint32(&b.dropped, 1)
		glog.V(2).Infof("mqtt: uplink backlog full, dropped %s", msg)
	}
}

// Run implements framework.Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.Queue.Sub(TopicTx, b.receive)
	defer sub.Close()
	return framework.NewRunnerWith(ctx).
		Go(framework.NamedRun("mqtt-publish", framework.RunFunc(b.publish)),
			framework.NamedRun("mqtt-send", framework.RunFunc(b.send))).
		Wait()
}

func (b *Bridge) receive(topic string, payload []byte) {
	if len(payload) == 0 {
		glog.Warningf("mqtt: empty frame on %q", topic)
		return
	}
	select {
	case b.downlink <- append([]byte(nil), payload...):
	default:
		atomic.AddUint32(&b.dropped, 1)
		glog.Warningf("mqtt: downlink backlog full, dropped frame % X", payload)
	}
}

func (b *Bridge) publish(ctx context.Context) error {
	interval := b.StatsInterval
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.uplink:
			b.Queue.Pub(RxTopic(msg.Command()), msg.Payload())
		case <-ticker.C:
			if err := b.PublishStats(); err != nil {
				glog.Errorf("mqtt: stats: %v", err)
			}
		}
	}
}

// PublishStats publishes the current driver statistics.
func (b *Bridge) PublishStats() error {
	report, err := b.Endpoint.StatsReport()
	if err != nil {
		return err
	}
	encoded, err := proto.Marshal(report)
	if err != nil {
		return err
	}
	b.Queue.PubWith(TopicStats, encoded, 0, true)
	return nil
}

func (b *Bridge) send(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-b.downlink:
			if err := b.Endpoint.Send(ctx, frame[0], frame[1:]); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				glog.Errorf("mqtt: send % X: %v", frame, err)
			}
		}
	}
}
