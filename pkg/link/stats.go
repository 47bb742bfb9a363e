package link

import (
	"time"

	"github.com/golang/protobuf/ptypes"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/connectex/ftclick.go/pkg/sci"
)

// StatsReport encodes driver counters and state as a protobuf Struct.
func StatsReport(stats sci.Stats, status sci.Status, at time.Time) (*structpb.Struct, error) {
	ts, err := ptypes.TimestampProto(at)
	if err != nil {
		return nil, err
	}
	counters := map[string]uint32{
		"rx_errors":          stats.RxErrors,
		"rx_timeouts":        stats.RxTimeouts,
		"tx_buf_unavailable": stats.TxBufUnavailable,
		"remote_resets":      stats.RemoteResets,
		"keep_alives":        stats.KeepAlives,
		"rx_frames":          stats.RxFrames,
		"rx_ignored":         stats.RxIgnored,
		"tx_frames":          stats.TxFrames,
		"tx_errors":          stats.TxErrors,
	}
	counterFields := make(map[string]*structpb.Value, len(counters))
	for name, val := range counters {
		counterFields[name] = numberValue(float64(val))
	}

	rxBufs := make([]*structpb.Value, len(status.RxBuffers))
	for i, s := range status.RxBuffers {
		rxBufs[i] = stringValue(s.String())
	}
	txBufs := make([]*structpb.Value, len(status.TxBuffers))
	for i, s := range status.TxBuffers {
		txBufs[i] = stringValue(s.String())
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"time":       stringValue(ptypes.TimestampString(ts)),
		"driver":     stringValue(status.Driver.String()),
		"rx":         stringValue(status.Rx.String()),
		"tx":         stringValue(status.Tx.String()),
		"rts":        boolValue(status.RTS),
		"hrdy":       boolValue(status.HRDY),
		"cts":        boolValue(status.CTS),
		"tx_pending": boolValue(status.TxPending),
		"counters":   {Kind: &structpb.Value_StructValue{StructValue: &structpb.Struct{Fields: counterFields}}},
		"rx_buffers": listValue(rxBufs),
		"tx_buffers": listValue(txBufs),
	}}, nil
}

// StatsReport reports the endpoint driver.
func (e *Endpoint) StatsReport() (*structpb.Struct, error) {
	return StatsReport(e.Driver.Stats(), e.Driver.Status(), time.Now())
}

func stringValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

func numberValue(n float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: n}}
}

func boolValue(b bool) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: b}}
}

func listValue(vals []*structpb.Value) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_ListValue{ListValue: &structpb.ListValue{Values: vals}}}
}
