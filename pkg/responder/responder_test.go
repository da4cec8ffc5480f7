package responder

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenCHAMI/senselink/pkg/codec"
	"github.com/OpenCHAMI/senselink/pkg/outlet"
)

func staticProvider(t *testing.T, params ...outlet.Params) outlet.Provider {
	t.Helper()
	outlets := make([]outlet.Outlet, 0, len(params))
	for _, p := range params {
		o, err := outlet.New(p)
		require.NoError(t, err)
		outlets = append(outlets, o)
	}
	return func() []outlet.Outlet { return outlets }
}

func decodeReply(t *testing.T, r Reply) map[string]map[string]map[string]any {
	t.Helper()
	var doc map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(codec.Decode(r.Payload), &doc))
	return doc
}

func TestHandleDiscovery(t *testing.T) {
	h := NewHandler(staticProvider(t, outlet.Params{ID: "p1", Voltage: 120, Current: 2}))

	replies, err := h.Handle(codec.EncodeDatagram(DiscoveryRequest))
	require.NoError(t, err)
	require.Len(t, replies, 1)

	doc := decodeReply(t, replies[0])
	assert.Equal(t, 240.0, doc["emeter"]["get_realtime"]["power"])
	assert.Equal(t, "p1", doc["system"]["get_sysinfo"]["alias"])
	assert.Equal(t, replies[0].Document, codec.Decode(replies[0].Payload))
}

func TestHandleMultipleOutlets(t *testing.T) {
	h := NewHandler(staticProvider(t,
		outlet.Params{ID: "a", Power: 10},
		outlet.Params{ID: "b", Power: 20},
		outlet.Params{ID: "c", Power: 30},
	))
	replies, err := h.Handle(codec.EncodeDatagram(DiscoveryRequest))
	require.NoError(t, err)
	require.Len(t, replies, 3)
	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, replies[i].Outlet.ID)
	}
}

func TestHandleDropsUnwanted(t *testing.T) {
	tests := []struct {
		name   string
		packet []byte
		err    error
	}{
		{name: "empty datagram", packet: nil, err: ErrDecodeGarbage},
		{name: "not json", packet: codec.EncodeDatagram([]byte("not json {")), err: ErrDecodeGarbage},
		{name: "raw garbage", packet: []byte{0x00, 0xff, 0x13, 0x37, 0x42}, err: ErrDecodeGarbage},
		{name: "sysinfo only", packet: codec.EncodeDatagram([]byte(`{"system":{"get_sysinfo":{}}}`)), err: ErrShapeMismatch},
		{name: "emeter only", packet: codec.EncodeDatagram([]byte(`{"emeter":{"get_realtime":{}}}`)), err: ErrShapeMismatch},
		{name: "json array", packet: codec.EncodeDatagram([]byte(`[1,2,3]`)), err: ErrShapeMismatch},
		{name: "realtime is a string", packet: codec.EncodeDatagram([]byte(`{"emeter":{"get_realtime":"x"},"system":{"get_sysinfo":{}}}`)), err: ErrEchoDetected},
		{name: "realtime is a list", packet: codec.EncodeDatagram([]byte(`{"emeter":{"get_realtime":[1]},"system":{"get_sysinfo":{}}}`)), err: ErrEchoDetected},
		{name: "realtime is true", packet: codec.EncodeDatagram([]byte(`{"emeter":{"get_realtime":true},"system":{"get_sysinfo":{}}}`)), err: ErrEchoDetected},
		{name: "realtime is a number", packet: codec.EncodeDatagram([]byte(`{"emeter":{"get_realtime":240},"system":{"get_sysinfo":{}}}`)), err: ErrEchoDetected},
		{name: "self echo", packet: codec.EncodeDatagram([]byte(`{"emeter":{"get_realtime":{"power":240}},"system":{"get_sysinfo":{}}}`)), err: ErrEchoDetected},
	}

	called := 0
	h := NewHandler(func() []outlet.Outlet {
		called++
		return nil
	})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies, err := h.Handle(tt.packet)
			assert.True(t, errors.Is(err, tt.err), "expected %v, got %v", tt.err, err)
			assert.Empty(t, replies)
		})
	}
	assert.Zero(t, called, "provider must not be consulted for dropped datagrams")
}

func TestHandleOwnReplyIsEcho(t *testing.T) {
	h := NewHandler(staticProvider(t, outlet.Params{ID: "p1", Power: 100}))
	replies, err := h.Handle(codec.EncodeDatagram(DiscoveryRequest))
	require.NoError(t, err)
	require.Len(t, replies, 1)

	// feed our own reply back in, as happens without broadcast isolation
	again, err := h.Handle(replies[0].Payload)
	assert.ErrorIs(t, err, ErrEchoDetected)
	assert.Empty(t, again)
}

func TestHandleNullRealtimeIsPoll(t *testing.T) {
	h := NewHandler(staticProvider(t, outlet.Params{ID: "p1"}))
	replies, err := h.Handle(codec.EncodeDatagram([]byte(`{"emeter":{"get_realtime":null},"system":{"get_sysinfo":null}}`)))
	require.NoError(t, err)
	assert.Len(t, replies, 1)
}

func TestHandleEmptyRealtimeIsPoll(t *testing.T) {
	h := NewHandler(staticProvider(t, outlet.Params{ID: "p1"}))
	for _, query := range []string{`{}`, `[]`, `""`, `0`, `0.0`, `false`, `null`} {
		t.Run(query, func(t *testing.T) {
			doc := `{"emeter":{"get_realtime":` + query + `},"system":{"get_sysinfo":{}}}`
			replies, err := h.Handle(codec.EncodeDatagram([]byte(doc)))
			require.NoError(t, err)
			assert.Len(t, replies, 1)
		})
	}
}

func TestHandleRecoversAfterGarbage(t *testing.T) {
	h := NewHandler(staticProvider(t, outlet.Params{ID: "p1", Current: 2}))

	_, err := h.Handle([]byte("\x8f\x01\xfe random bytes"))
	require.Error(t, err)

	replies, err := h.Handle(codec.EncodeDatagram(DiscoveryRequest))
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, 240.0, decodeReply(t, replies[0])["emeter"]["get_realtime"]["power"])
}

func TestHandleSkipsBrokenOutlet(t *testing.T) {
	good, err := outlet.New(outlet.Params{ID: "good", Power: 50})
	require.NoError(t, err)
	bad := good
	bad.ID = "bad"
	bad.Power = math.NaN()

	h := NewHandler(func() []outlet.Outlet { return []outlet.Outlet{bad, good} })
	replies, err := h.Handle(codec.EncodeDatagram(DiscoveryRequest))
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "good", replies[0].Outlet.ID)
}

func TestHandleUsesClock(t *testing.T) {
	start := time.Unix(1700000000, 0)
	h := NewHandler(
		staticProvider(t, outlet.Params{ID: "p1", StartTime: start}),
		WithClock(func() time.Time { return start.Add(time.Minute) }),
	)
	replies, err := h.Handle(codec.EncodeDatagram(DiscoveryRequest))
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, 60.0, replies[0].Response.System.GetSysinfo.OnTime)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "garbage", Reason(Classify([]byte("{"))))
	assert.Equal(t, "shape", Reason(Classify([]byte(`{}`))))
	assert.Equal(t, "echo", Reason(Classify([]byte(`{"emeter":{"get_realtime":{"a":1}},"system":{"get_sysinfo":{}}}`))))
	assert.Equal(t, "other", Reason(errors.New("boom")))
}
