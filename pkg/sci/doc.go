// Package sci implements the host side of the ShortStack serial
// communication interface (SCI) link layer.
//
// The link runs half-duplex over one UART plus four handshake lines:
// RTS and HRDY driven by the host, CTS driven by the Micro Server, and a
// RESET line used to force the Micro Server to restart. Frames are a
// length byte, a command byte and up to Length payload bytes. Escape
// commands carry two additional info bytes between the command and the
// payload.
//
// A Driver owns fixed pools of receive and transmit buffers and two state
// machines advanced by interrupt entry points (RxInterrupt, TxInterrupt,
// CtsInterrupt and the 1 ms Tick). The platform beneath the driver is
// responsible for calling these entry points from a single consumer task,
// never from inside a Hardware method.
//
// Layer above: AllocateMsg/PutMsg/PutMsgBlocking for downlink frames,
// GetMsg/ReleaseMsg for uplink frames, FlushMsgs from the idle loop.
package sci
