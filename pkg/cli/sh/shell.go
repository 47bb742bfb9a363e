package sh

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	fx "github.com/connectex/ftclick.go/pkg/framework"
	"github.com/connectex/ftclick.go/pkg/link"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool

	Shell  *ishell.Shell
	Config *link.Config
	Link   *LinkLoop
}

// LinkLoop is a running loop with an open endpoint.
type LinkLoop struct {
	Ctx      context.Context
	Cancel   func()
	Name     string
	Loop     *fx.Loop
	Endpoint *link.Endpoint

	received chan *link.FrameMsg
}

const (
	shellKey     = "$shell"
	closedPrompt = "[closed] > "

	// receivedBacklog is the number of uplink frames kept for recv.
	receivedBacklog = 64
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *link.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requiring an open link.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Link == nil {
			c.Err(fmt.Errorf("link not open"))
			return
		}
		fn(c)
	}
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// Open opens the configured link and starts its loop.
func (s *Shell) Open() error {
	s.Close()
	ep, err := s.Config.NewEndpoint(nil)
	if err != nil {
		return err
	}
	ll := &LinkLoop{
		Name:     s.Config.PortName,
		Endpoint: ep,
		received: make(chan *link.FrameMsg, receivedBacklog),
	}
	if s.Config.Sim {
		ll.Name = "sim"
	}
	ep.HandleFrames(link.HandleFrameFunc(ll.receive))
	ll.Ctx, ll.Cancel = context.WithCancel(context.Background())
	ll.Loop = s.Config.NewLoop().Add(ep)
	s.Link = ll
	go ll.run()
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", ll.Name))
	return nil
}

// Close stops the loop and closes the endpoint.
func (s *Shell) Close() {
	if s.Link != nil {
		s.Link.Cancel()
		s.Link.Endpoint.Close()
		s.Link = nil
		s.Shell.SetPrompt(closedPrompt)
	}
}

// Receive waits for the next uplink frame.
func (l *LinkLoop) Receive(timeout time.Duration) (*link.FrameMsg, error) {
	select {
	case msg := <-l.received:
		return msg, nil
	case <-time.After(timeout):
		return nil, context.DeadlineExceeded
	case <-l.Ctx.Done():
		return nil, l.Ctx.Err()
	}
}

func (l *LinkLoop) run() {
	if err := l.Loop.Run(l.Ctx); err != nil && err != context.Canceled {
		log.Printf("link %s stopped: %v", l.Name, err)
	}
}

func (l *LinkLoop) receive(_ context.Context, msg *link.FrameMsg) {
	for {
		select {
		case l.received <- msg:
			return
		default:
		}
		// keep the latest frames
		select {
		case <-l.received:
		default:
		}
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", s.Config.PortName)
		}
		if err := s.Open(); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.PortName, err)
		}
		defer s.Close()
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// OpenCmd opens the link.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[PORT|sim]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				if c.Args[0] == "sim" {
					s.Config.Sim = true
				} else {
					s.Config.Sim, s.Config.PortName = false, c.Args[0]
				}
			}
			if err := s.Open(); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the link.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(link.NewConfig()).WithAutoOpen(true).Run(flag.Args()...)
}
