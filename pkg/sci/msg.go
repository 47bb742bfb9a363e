package sci

import "fmt"

const (
	// HeaderSize is the size of the length and command bytes.
	HeaderSize = 2
	// MaxPayload is the largest payload a length byte can describe.
	MaxPayload = 255

	// CmdNv is the network variable command class.
	CmdNv byte = 0x80
	// NvEscape is the network variable index reserved for escapes.
	NvEscape byte = 0x3f
	// CmdNvEscape is the command followed by two info bytes on the wire.
	CmdNvEscape = CmdNv | NvEscape
)

// Msg is a frame: a length byte, a command byte and the payload.
// The length byte counts payload bytes only.
//
// Messages handed out by a Driver refer to its buffers and stay valid
// until returned with PutMsg or ReleaseMsg.
type Msg struct {
	owner *Driver
	slot  int
	rx    bool
	data  []byte
}

// NewMsg creates a standalone message, not backed by a Driver buffer.
// Standalone messages are sent with PutMsgBlocking.
func NewMsg(cmd byte, payload []byte) (*Msg, error) {
	if len(payload) > MaxPayload {
		return nil, ErrFrameTooLarge
	}
	m := &Msg{slot: -1, data: make([]byte, HeaderSize+len(payload))}
	m.fill(cmd, payload)
	return m, nil
}

func newBufferMsg(owner *Driver, slot int, rx bool, size int) Msg {
	return Msg{owner: owner, slot: slot, rx: rx, data: make([]byte, size)}
}

// Set writes command and payload into the message.
func (m *Msg) Set(cmd byte, payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrFrameTooLarge
	}
	size := HeaderSize + len(payload)
	if size > cap(m.data) {
		if m.slot >= 0 {
			return ErrFrameTooLarge
		}
		m.data = make([]byte, size)
	}
	m.data = m.data[:cap(m.data)]
	m.fill(cmd, payload)
	return nil
}

func (m *Msg) fill(cmd byte, payload []byte) {
	m.data[0] = byte(len(payload))
	m.data[1] = cmd
	copy(m.data[HeaderSize:], payload)
}

// Len is the number of frame bytes, header included.
func (m *Msg) Len() int {
	n := HeaderSize + int(m.data[0])
	if n > len(m.data) {
		n = len(m.data)
	}
	return n
}

// Command returns the command byte.
func (m *Msg) Command() byte {
	return m.data[1]
}

// Payload returns the payload bytes.
func (m *Msg) Payload() []byte {
	return m.data[HeaderSize:m.Len()]
}

// Bytes returns the frame as it is stored, header included.
func (m *Msg) Bytes() []byte {
	return m.data[:m.Len()]
}

// IsEscape tells if info bytes follow the command on the wire.
func (m *Msg) IsEscape() bool {
	return m.Command() == CmdNvEscape
}

// info1 is the network variable index, the first payload byte.
func (m *Msg) info1() byte {
	if m.data[0] == 0 {
		return 0
	}
	return m.data[HeaderSize]
}

// fits tells if the length byte stays within the message storage.
func (m *Msg) fits() bool {
	return HeaderSize+int(m.data[0]) <= len(m.data)
}

// Copy returns a standalone copy of the frame.
func (m *Msg) Copy() *Msg {
	c := &Msg{slot: -1, data: make([]byte, m.Len())}
	copy(c.data, m.data)
	return c
}

func (m *Msg) String() string {
	return fmt.Sprintf("% X", m.Bytes())
}
