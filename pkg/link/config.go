package link

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/connectex/ftclick.go/pkg/framework"
	"github.com/connectex/ftclick.go/pkg/sci"
	"github.com/connectex/ftclick.go/pkg/sci/serialhw"
	"github.com/connectex/ftclick.go/pkg/sci/simhw"
)

// Config selects and configures the platform below the driver.
type Config struct {
	PortName string
	BaudRate int

	// Sim runs against a simulated Micro Server instead of a port.
	Sim bool
	// SimEcho makes the simulated Micro Server echo downlink frames.
	SimEcho bool

	InvertRTS  bool
	InvertHRDY bool
	InvertCTS  bool

	// Interval is the loop interval, FlushMsgs runs once per iteration.
	Interval time.Duration
}

var defaultConfig = Config{
	PortName: "/dev/ttyUSB0",
	BaudRate: 38400,
	SimEcho:  true,
	Interval: time.Millisecond,
}

func init() {
	if val := os.Getenv("FTCLICK_PORT"); val != "" {
		defaultConfig.PortName = val
	}
	if val := os.Getenv("FTCLICK_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			defaultConfig.BaudRate = baud
		}
	}
	if val := os.Getenv("FTCLICK_SIM"); val != "" {
		if sim, err := strconv.ParseBool(val); err == nil {
			defaultConfig.Sim = sim
		}
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.PortName, "port", defaultConfig.PortName, "Serial port of the Micro Server.")
	flag.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Baud rate.")
	flag.BoolVar(&defaultConfig.Sim, "sim", defaultConfig.Sim, "Use a simulated Micro Server.")
	flag.BoolVar(&defaultConfig.SimEcho, "sim-echo", defaultConfig.SimEcho, "Simulated Micro Server echoes downlink frames.")
	flag.BoolVar(&defaultConfig.InvertRTS, "invert-rts", defaultConfig.InvertRTS, "RTS is active high.")
	flag.BoolVar(&defaultConfig.InvertHRDY, "invert-hrdy", defaultConfig.InvertHRDY, "HRDY (DTR) is active high.")
	flag.BoolVar(&defaultConfig.InvertCTS, "invert-cts", defaultConfig.InvertCTS, "CTS is active high.")
	flag.DurationVar(&defaultConfig.Interval, "loop-interval", defaultConfig.Interval, "Interval of the link loop.")
	sci.SetupFlags()
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

// NewEndpoint creates an initialized driver on the configured platform.
// sciConf may be nil for the sci defaults.
func (c *Config) NewEndpoint(sciConf *sci.Config) (*Endpoint, error) {
	if sciConf == nil {
		sciConf = sci.NewConfig()
	}
	if c.Sim {
		drv, hw := simhw.NewDriver(sciConf)
		hw.Echo = c.SimEcho
		return NewEndpoint(drv, hw), nil
	}

	opts := serialhw.DefaultOptions(c.PortName)
	opts.BaudRate = c.BaudRate
	opts.InvertRTS = c.InvertRTS
	opts.InvertHRDY = c.InvertHRDY
	opts.InvertCTS = c.InvertCTS
	plat, err := serialhw.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial platform: %v", err)
	}
	drv := sci.New(plat, sciConf)
	plat.Attach(drv)
	drv.Init()
	return NewEndpoint(drv, plat), nil
}

// MustNewEndpoint creates an Endpoint and fails on error.
func (c *Config) MustNewEndpoint(sciConf *sci.Config) *Endpoint {
	ep, err := c.NewEndpoint(sciConf)
	if err != nil {
		log.Fatalln(err)
	}
	return ep
}

// NewLoop creates a loop running at the configured interval.
func (c *Config) NewLoop() *framework.Loop {
	l := framework.NewLoop()
	l.Interval = c.Interval
	return l
}
