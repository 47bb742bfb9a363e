// Package driver exposes SCI driver operations as shell commands.
package driver

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/protobuf/jsonpb"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/connectex/ftclick.go/pkg/cli/sh"
	"github.com/connectex/ftclick.go/pkg/link"
	"github.com/connectex/ftclick.go/pkg/sci"
)

// Timeouts of commands.
const (
	SendTimeout    = time.Second
	DefaultRecvFor = time.Second
)

// ParseFrame parses CMD [HEX...] arguments into a command byte and
// payload. Hex arguments may carry several bytes and a 0x prefix.
func ParseFrame(args []string) (byte, []byte, error) {
	if len(args) < 1 {
		return 0, nil, fmt.Errorf("CMD required")
	}
	cmd, err := parseHex(args[0])
	if err != nil {
		return 0, nil, fmt.Errorf("Invalid CMD: %v", err)
	}
	if len(cmd) != 1 {
		return 0, nil, fmt.Errorf("Invalid CMD: %q is not a single byte", args[0])
	}
	var payload []byte
	for _, arg := range args[1:] {
		val, err := parseHex(arg)
		if err != nil {
			return 0, nil, fmt.Errorf("Invalid payload %q: %v", arg, err)
		}
		payload = append(payload, val...)
	}
	if len(payload) > sci.MaxPayload {
		return 0, nil, sci.ErrFrameTooLarge
	}
	return cmd[0], payload, nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// FormatStatus prints the driver status for display.
func FormatStatus(st sci.Status) string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "driver %s rx %s tx %s\n", st.Driver, st.Rx, st.Tx)
	fmt.Fprintf(&w, "RTS %s HRDY %s CTS %s pending %v\n",
		onOff(st.RTS), onOff(st.HRDY), onOff(st.CTS), st.TxPending)
	fmt.Fprintf(&w, "rx buffers:")
	for _, s := range st.RxBuffers {
		fmt.Fprintf(&w, " %s", s)
	}
	fmt.Fprintf(&w, "\ntx buffers:")
	for _, s := range st.TxBuffers {
		fmt.Fprintf(&w, " %s", s)
	}
	return w.String()
}

// FormatCounters prints counters of a stats report, sorted by name.
func FormatCounters(report *structpb.Struct) string {
	counters := report.Fields["counters"].GetStructValue()
	if counters == nil {
		return ""
	}
	names := make([]string, 0, len(counters.Fields))
	for name := range counters.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	var w bytes.Buffer
	for _, name := range names {
		fmt.Fprintf(&w, "%-20s %d\n", name, int64(counters.Fields[name].GetNumberValue()))
	}
	return strings.TrimSuffix(w.String(), "\n")
}

func onOff(asserted bool) string {
	if asserted {
		return "on"
	}
	return "off"
}

func endpointOf(c *ishell.Context) *link.Endpoint {
	return sh.ShellFrom(c).Link.Endpoint
}

var (
	// StatusCmd prints driver state.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			c.Println(FormatStatus(endpointOf(c).Driver.Status()))
		}),
	}

	// StatsCmd prints driver counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			report, err := endpointOf(c).StatsReport()
			if err != nil {
				c.Err(err)
				return
			}
			if sh.ShellFrom(c).OutputJSON {
				out, err := (&jsonpb.Marshaler{}).MarshalToString(report)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(out)
				return
			}
			c.Println(FormatCounters(report))
		}),
	}

	// SendCmd queues a frame.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "CMD [HEX...]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			cmd, payload, err := ParseFrame(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), SendTimeout)
			defer cancel()
			if err := endpointOf(c).Send(ctx, cmd, payload); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// SendBlockingCmd sends a frame and waits until it is on the wire.
	SendBlockingCmd = ishell.Cmd{
		Name:    "sendb",
		Aliases: []string{"sb"},
		Help:    "CMD [HEX...]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			cmd, payload, err := ParseFrame(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			ep := endpointOf(c)
			conf := ep.Driver.Config()
			timeout := time.Duration(conf.PutMsgTimeout) * conf.TickInterval
			if err := ep.SendBlocking(context.Background(), cmd, payload, timeout); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// RecvCmd prints the next uplink frame.
	RecvCmd = ishell.Cmd{
		Name:    "recv",
		Aliases: []string{"r"},
		Help:    "[TIMEOUT]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			timeout := DefaultRecvFor
			if len(c.Args) > 0 {
				d, err := time.ParseDuration(c.Args[0])
				if err != nil {
					c.Err(fmt.Errorf("Invalid TIMEOUT: %v", err))
					return
				}
				timeout = d
			}
			msg, err := sh.ShellFrom(c).Link.Receive(timeout)
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("%s %02X % X\n", msg.Time.Format(time.StampMicro), msg.Command(), msg.Payload())
		}),
	}

	// ResetCmd drops pending transfers and restarts the link.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			endpointOf(c).Driver.Reset()
		}),
	}

	// SuspendCmd parks the link.
	SuspendCmd = ishell.Cmd{
		Name: "suspend",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if !endpointOf(c).Driver.Suspend() {
				c.Err(fmt.Errorf("transfer in progress"))
				return
			}
			c.Println("OK")
		}),
	}

	// ResumeCmd wakes a suspended link.
	ResumeCmd = ishell.Cmd{
		Name: "resume",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			endpointOf(c).Driver.Resume()
		}),
	}
)

func init() {
	sh.AddCmds(
		&StatusCmd,
		&StatsCmd,
		&SendCmd,
		&SendBlockingCmd,
		&RecvCmd,
		&ResetCmd,
		&SuspendCmd,
		&ResumeCmd,
	)
}
