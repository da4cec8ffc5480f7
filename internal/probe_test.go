package senselink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenCHAMI/senselink/pkg/codec"
	"github.com/OpenCHAMI/senselink/pkg/outlet"
	"github.com/OpenCHAMI/senselink/pkg/server"
)

func TestProbeLiveServer(t *testing.T) {
	o, err := outlet.New(outlet.Params{ID: "p1", Alias: "Lamp", Current: 2})
	require.NoError(t, err)
	registry := outlet.NewRegistry(o)

	s := server.New(server.Config{BindAddress: "127.0.0.1", Port: 0}, registry.Snapshot)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })

	results, err := ProbeForOutlets(context.Background(), ProbeParams{
		Targets: []string{s.Addr().String()},
		Timeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "Lamp", r.Alias)
	assert.Equal(t, outlet.Model, r.Model)
	assert.Equal(t, "B78F576611EC06F96AF3CA654C22172A5D746C40", r.DeviceID)
	assert.Equal(t, "35:4B:1F:B7:8F:57", r.MAC)
	assert.Equal(t, 240.0, r.Power)
	assert.Equal(t, s.Addr().String(), r.From)
}

func TestProbeNoAnswer(t *testing.T) {
	start := time.Now()
	results, err := ProbeForOutlets(context.Background(), ProbeParams{
		Targets: []string{"127.0.0.1:1"},
		Timeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestProbeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := ProbeForOutlets(ctx, ProbeParams{
		Targets: []string{"127.0.0.1:1"},
		Timeout: 10 * time.Second,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProbeBadTarget(t *testing.T) {
	_, err := ProbeForOutlets(context.Background(), ProbeParams{Targets: []string{"no such host!:x"}})
	assert.Error(t, err)
}

func TestParseReply(t *testing.T) {
	_, err := ParseReply(codec.EncodeDatagram([]byte("not json")))
	assert.Error(t, err)

	_, err = ParseReply(codec.EncodeDatagram([]byte(`{"emeter":{"get_realtime":{}},"system":{"get_sysinfo":{}}}`)))
	assert.Error(t, err, "a poll is not a reply")
}
