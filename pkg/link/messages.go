package link

import (
	"fmt"
	"time"

	"github.com/connectex/ftclick.go/pkg/sci"
)

// Direction of a frame on the link.
type Direction int

// Directions.
const (
	// Uplink frames come from the Micro Server.
	Uplink Direction = iota
	// Downlink frames go to the Micro Server.
	Downlink
)

func (d Direction) String() string {
	if d == Downlink {
		return "tx"
	}
	return "rx"
}

// FrameMsg is a frame copied out of the driver.
type FrameMsg struct {
	Dir   Direction
	Time  time.Time
	Frame []byte
}

// Command returns the command byte.
func (m *FrameMsg) Command() byte {
	if len(m.Frame) < sci.HeaderSize {
		return 0
	}
	return m.Frame[1]
}

// Payload returns the payload bytes.
func (m *FrameMsg) Payload() []byte {
	if len(m.Frame) < sci.HeaderSize {
		return nil
	}
	return m.Frame[sci.HeaderSize:]
}

func (m *FrameMsg) String() string {
	return fmt.Sprintf("%s % X", m.Dir, m.Frame)
}

// txRequest asks the loop to queue a downlink frame.
type txRequest struct {
	cmd     byte
	payload []byte
	done    chan error
}

func (r *txRequest) String() string {
	return fmt.Sprintf("send %02X % X", r.cmd, r.payload)
}
