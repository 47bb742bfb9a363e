package monitor

import (
	"flag"

	"github.com/connectex/ftclick.go/pkg/link"
)

// Config represents configuration of a Hub.
type Config struct {
	// Addr is the listen address, empty disables serving.
	Addr string
	// Backlog is the number of events queued per client before the
	// client is dropped.
	Backlog int
}

var defaultConfig = Config{
	Backlog: 256,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Addr, "ws", defaultConfig.Addr, "Serve link events over websocket on this address, e.g. :8080.")
	flag.IntVar(&defaultConfig.Backlog, "ws-backlog", defaultConfig.Backlog, "Events queued per websocket client.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a default config.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewHub creates a Hub observing the endpoint.
func (c *Config) NewHub(ep *link.Endpoint) *Hub {
	h := NewHub(c, ep.Driver)
	ep.Observe(h)
	return h
}
