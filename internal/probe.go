package senselink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/OpenCHAMI/senselink/pkg/codec"
	"github.com/OpenCHAMI/senselink/pkg/outlet"
	"github.com/OpenCHAMI/senselink/pkg/responder"
	"github.com/OpenCHAMI/senselink/pkg/server"
)

// ProbeParams controls a discovery probe.
type ProbeParams struct {
	Targets []string // host or host:port; defaults to the broadcast address
	Port    int      // used for targets without a port
	Timeout time.Duration
}

// ProbeResult is one decoded answer to a discovery poll.
type ProbeResult struct {
	From     string          `json:"from" yaml:"from"`
	Alias    string          `json:"alias" yaml:"alias"`
	Model    string          `json:"model" yaml:"model"`
	DeviceID string          `json:"device_id" yaml:"device_id"`
	MAC      string          `json:"mac" yaml:"mac"`
	Power    float64         `json:"power" yaml:"power"`
	Current  float64         `json:"current" yaml:"current"`
	Voltage  float64         `json:"voltage" yaml:"voltage"`
	OnTime   float64         `json:"on_time" yaml:"on_time"`
	Raw      json.RawMessage `json:"-" yaml:"-"`
}

// ProbeForOutlets sends one discovery poll to each target and collects
// every reply that arrives before the timeout or ctx is done. Malformed
// replies are logged and skipped.
func ProbeForOutlets(ctx context.Context, params ProbeParams) ([]ProbeResult, error) {
	if params.Port == 0 {
		params.Port = server.DefaultPort
	}
	if params.Timeout <= 0 {
		params.Timeout = 2 * time.Second
	}
	if len(params.Targets) == 0 {
		params.Targets = []string{net.IPv4bcast.String()}
	}

	addrs := make([]*net.UDPAddr, 0, len(params.Targets))
	for _, target := range params.Targets {
		addr, err := resolveTarget(target, params.Port)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, fmt.Errorf("failed to open probe socket: %w", err)
	}
	defer conn.Close()

	request := codec.EncodeDatagram(responder.DiscoveryRequest)
	for _, addr := range addrs {
		if _, err := conn.WriteToUDP(request, addr); err != nil {
			log.Warn().Err(err).Str("target", addr.String()).Msg("failed to send discovery poll")
		}
	}

	deadline := time.Now().Add(params.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	results := []ProbeResult{}
	buf := make([]byte, server.DefaultBufferSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return results, nil
			}
			return results, fmt.Errorf("failed to read reply: %w", err)
		}
		result, err := ParseReply(buf[:n])
		if err != nil {
			log.Debug().Err(err).Str("from", from.String()).Msg("ignoring reply")
			continue
		}
		result.From = from.String()
		results = append(results, result)
	}
}

// ParseReply decodes one reply datagram.
func ParseReply(datagram []byte) (ProbeResult, error) {
	plain := codec.Decode(datagram)
	var resp outlet.Response
	if err := json.Unmarshal(plain, &resp); err != nil {
		return ProbeResult{}, fmt.Errorf("failed to decode reply: %w", err)
	}
	info := resp.System.GetSysinfo
	if info.DeviceID == "" {
		return ProbeResult{}, fmt.Errorf("reply has no device ID")
	}
	rt := resp.Emeter.GetRealtime
	return ProbeResult{
		Alias:    info.Alias,
		Model:    info.Model,
		DeviceID: info.DeviceID,
		MAC:      info.MAC,
		Power:    rt.Power,
		Current:  rt.Current,
		Voltage:  rt.Voltage,
		OnTime:   info.OnTime,
		Raw:      plain,
	}, nil
}

func resolveTarget(target string, defaultPort int) (*net.UDPAddr, error) {
	host, port, err := net.SplitHostPort(target)
	if err != nil {
		host, port = target, strconv.Itoa(defaultPort)
	}
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", target, err)
	}
	return addr, nil
}
