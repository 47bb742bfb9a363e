package sci

import (
	"flag"
	"time"
)

// Config defines buffer geometry and timer values of a Driver.
// Timer values are counted in ticks of TickInterval.
type Config struct {
	RxBufCount int
	TxBufCount int
	// RxBufSize should be no less than the largest uplink frame,
	// header included.
	RxBufSize int
	// TxBufSize should be no less than the largest downlink frame and
	// no more than the Micro Server's input buffer.
	TxBufSize int

	// RxTimeout aborts a half received frame, roughly 16 byte times.
	RxTimeout uint32
	// WakeupTime is how long the driver sleeps after a reset.
	WakeupTime uint32
	// KeepAliveTimeout pulses HRDY after this long without line activity.
	KeepAliveTimeout uint32
	// PutMsgTimeout is the default bound of a blocking send.
	PutMsgTimeout uint32

	TickInterval time.Duration

	// ResetHold is how long RESET stays asserted, ResetRecovery how long
	// to wait after releasing it.
	ResetHold      time.Duration
	ResetRecovery  time.Duration
	KeepAlivePulse time.Duration
	// SuspendDrain covers a frame header already in flight when HRDY drops.
	SuspendDrain time.Duration
}

// Default buffer geometry.
const (
	DefaultBufCount = 5
	DefaultBufSize  = 64
)

var defaultConfig = Config{
	RxBufCount:       DefaultBufCount,
	TxBufCount:       DefaultBufCount,
	RxBufSize:        DefaultBufSize,
	TxBufSize:        DefaultBufSize,
	RxTimeout:        3,
	WakeupTime:       255,
	KeepAliveTimeout: 20000,
	PutMsgTimeout:    60000,
	TickInterval:     time.Millisecond,
	ResetHold:        50 * time.Millisecond,
	ResetRecovery:    200 * time.Millisecond,
	KeepAlivePulse:   time.Millisecond,
	SuspendDrain:     2 * time.Millisecond,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.IntVar(&defaultConfig.RxBufCount, "sci-rx-bufs", defaultConfig.RxBufCount, "Number of receive buffers.")
	flag.IntVar(&defaultConfig.TxBufCount, "sci-tx-bufs", defaultConfig.TxBufCount, "Number of transmit buffers.")
	flag.IntVar(&defaultConfig.RxBufSize, "sci-rx-bufsize", defaultConfig.RxBufSize, "Receive buffer size in bytes.")
	flag.IntVar(&defaultConfig.TxBufSize, "sci-tx-bufsize", defaultConfig.TxBufSize, "Transmit buffer size in bytes.")
	flag.DurationVar(&defaultConfig.TickInterval, "sci-tick", defaultConfig.TickInterval, "Driver timer tick.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Ticks converts a duration to timer ticks, rounding down.
func (c *Config) Ticks(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	interval := c.TickInterval
	if interval <= 0 {
		interval = time.Millisecond
	}
	return uint32(d / interval)
}

func (c *Config) normalize() {
	clampCount := func(n *int) {
		if *n < 1 {
			*n = 1
		} else if *n > 255 {
			*n = 255
		}
	}
	clampSize := func(n *int) {
		// the length byte can describe at most 255 payload bytes
		if *n < HeaderSize+1 {
			*n = HeaderSize + 1
		} else if *n > HeaderSize+255+1 {
			*n = HeaderSize + 255 + 1
		}
	}
	clampCount(&c.RxBufCount)
	clampCount(&c.TxBufCount)
	clampSize(&c.RxBufSize)
	clampSize(&c.TxBufSize)
	if c.TickInterval <= 0 {
		c.TickInterval = time.Millisecond
	}
}
