// Package monitor streams link events to websocket clients as JSON.
package monitor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/connectex/ftclick.go/pkg/framework"
	"github.com/connectex/ftclick.go/pkg/link"
	"github.com/connectex/ftclick.go/pkg/sci"
)

// Event actions.
const (
	// ActionReset is the first event of a connection with the current
	// status.
	ActionReset  = "reset"
	ActionFrame  = "frame"
	ActionStatus = "status"
)

// Event is a JSON message sent to clients.
type Event struct {
	Action string      `json:"action"`
	Time   string      `json:"time"`
	Frame  *FrameView  `json:"frame,omitempty"`
	Status *StatusView `json:"status,omitempty"`
}

// FrameView describes a frame.
type FrameView struct {
	Dir     string `json:"dir"`
	Cmd     byte   `json:"cmd"`
	Payload string `json:"payload"`
}

// StatusView describes driver state and counters.
type StatusView struct {
	Driver    string    `json:"driver"`
	Rx        string    `json:"rx"`
	Tx        string    `json:"tx"`
	RTS       bool      `json:"rts"`
	HRDY      bool      `json:"hrdy"`
	CTS       bool      `json:"cts"`
	TxPending bool      `json:"tx_pending"`
	RxBuffers []string  `json:"rx_buffers"`
	TxBuffers []string  `json:"tx_buffers"`
	Stats     sci.Stats `json:"stats"`
}

// StatusSource provides the status of a driver.
type StatusSource interface {
	Status() sci.Status
	Stats() sci.Stats
}

type client struct {
	events chan []byte
	closed bool
}

// Hub fans out link events to websocket clients. Clients falling behind
// are dropped.
type Hub struct {
	Config *Config
	Source StatusSource

	lock    sync.Mutex
	clients map[*client]struct{}
	last    sci.Status
	started bool
}

// NewHub creates a Hub.
func NewHub(conf *Config, src StatusSource) *Hub {
	return &Hub{Config: conf, Source: src, clients: make(map[*client]struct{})}
}

// ObserveFrame implements link.Observer.
func (h *Hub) ObserveFrame(msg *link.FrameMsg) {
	h.broadcast(&Event{
		Action: ActionFrame,
		Time:   msg.Time.UTC().Format(time.RFC3339Nano),
		Frame: &FrameView{
			Dir:     msg.Dir.String(),
			Cmd:     msg.Command(),
			Payload: hex.EncodeToString(msg.Payload()),
		},
	})
}

// AddToLoop implements LoopAdder.
func (h *Hub) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvPostProc, framework.ControlFunc(h.ReportChanges))
	if h.Config.Addr != "" {
		l.AddRunnable(framework.NamedRun("monitor", h))
	}
}

// ReportChanges is a controller sending the status when it changed.
func (h *Hub) ReportChanges(cc framework.ControlContext) error {
	status := h.Source.Status()
	h.lock.Lock()
	changed := !h.started || !reflect.DeepEqual(status, h.last)
	h.last, h.started = status, true
	h.lock.Unlock()
	if changed {
		h.broadcast(h.statusEvent(ActionStatus, status, cc.Time()))
	}
	return nil
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Run implements framework.Runnable.
func (h *Hub) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.Config.Addr)
	if err != nil {
		return err
	}
	glog.Infof("monitor: serving on %s", ln.Addr())
	srv := &http.Server{Handler: h}
	return framework.RunWithContextCloser(ctx, srv, func() error {
		if err := srv.Serve(ln); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
}

// ServeHTTP implements http.Handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(h.serveConn).ServeHTTP(w, r)
}

func (h *Hub) serveConn(conn *websocket.Conn) {
	backlog := h.Config.Backlog
	if backlog <= 0 {
		backlog = 1
	}
	c := &client{events: make(chan []byte, backlog)}
	reset := h.statusEvent(ActionReset, h.Source.Status(), time.Now())
	if encoded, err := json.Marshal(reset); err == nil {
		c.events <- encoded
	}
	h.add(c)
	defer h.remove(c)
	glog.V(1).Infof("monitor: client %s connected", conn.Request().RemoteAddr)

	done := make(chan struct{})
	go func() {
		// clients only listen, reading detects the close
		var discard []byte
		for websocket.Message.Receive(conn, &discard) == nil {
		}
		close(done)
	}()
	for {
		select {
		case encoded, ok := <-c.events:
			if !ok {
				glog.Warningf("monitor: client %s too slow, dropped", conn.Request().RemoteAddr)
				conn.Close()
				return
			}
			if err := websocket.Message.Send(conn, string(encoded)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Hub) statusEvent(action string, status sci.Status, at time.Time) *Event {
	view := &StatusView{
		Driver:    status.Driver.String(),
		Rx:        status.Rx.String(),
		Tx:        status.Tx.String(),
		RTS:       status.RTS,
		HRDY:      status.HRDY,
		CTS:       status.CTS,
		TxPending: status.TxPending,
		Stats:     h.Source.Stats(),
	}
	for _, s := range status.RxBuffers {
		view.RxBuffers = append(view.RxBuffers, s.String())
	}
	for _, s := range status.TxBuffers {
		view.TxBuffers = append(view.TxBuffers, s.String())
	}
	return &Event{Action: action, Time: at.UTC().Format(time.RFC3339Nano), Status: view}
}

func (h *Hub) add(c *client) {
	h.lock.Lock()
	h.clients[c] = struct{}{}
	h.lock.Unlock()
}

func (h *Hub) remove(c *client) {
	h.lock.Lock()
	h.drop(c)
	h.lock.Unlock()
}

// must be called with h.lock held
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

func (h *Hub) broadcast(ev *Event) {
	encoded, err := json.Marshal(ev)
	if err != nil {
		glog.Errorf("monitor: encode %s: %v", ev.Action, err)
		return
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		select {
		case c.events <- encoded:
		default:
			h.drop(c)
		}
	}
}
