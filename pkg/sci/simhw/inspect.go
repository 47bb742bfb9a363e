package simhw

import "time"

// Frame builds the wire bytes of a frame.
func Frame(cmd byte, payload ...byte) []byte {
	return append([]byte{byte(len(payload)), cmd}, payload...)
}

// Wire returns every byte the host transmitted.
func (h *Hardware) Wire() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.wire...)
}

// Frames returns the downlink frames the Micro Server received, without
// info bytes.
func (h *Hardware) Frames() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.frames...)
}

// Infos returns the info byte pairs of received escape frames.
func (h *Hardware) Infos() [][2]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][2]byte(nil), h.infos...)
}

// ResetPulses is the number of RESET assertions seen.
func (h *Hardware) ResetPulses() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resetPulses
}

// Violations counts bytes the host sent without CTS.
func (h *Hardware) Violations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.violations
}

// Delays returns the recorded delays.
func (h *Hardware) Delays() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.delays...)
}

// RTS tells if the host asserts RTS.
func (h *Hardware) RTS() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rts
}

// HRDY tells if the host asserts HRDY.
func (h *Hardware) HRDY() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hrdy
}

// PendingUplink is the number of uplink frames not sent yet.
func (h *Hardware) PendingUplink() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.uplink)
}
