// Package responder implements the socket-free half of the plug emulator:
// it turns one received datagram into zero or more encoded replies.
//
// A datagram is answered only when it deciphers to a JSON document asking
// for both emeter.get_realtime and system.get_sysinfo with an empty
// realtime query (null, {}, [], "", 0 or false). Anything else is dropped with one of the sentinel errors
// below; none of them are fatal to the caller.
package responder

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Jeffail/gabs/v2"
	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/OpenCHAMI/senselink/pkg/codec"
	"github.com/OpenCHAMI/senselink/pkg/outlet"
)

const (
	KeyEmeter      = "emeter"
	KeyGetRealtime = "get_realtime"
	KeySystem      = "system"
	KeyGetSysinfo  = "get_sysinfo"
)

var (
	// ErrDecodeGarbage means the deciphered bytes are not a JSON document.
	ErrDecodeGarbage = errors.New("datagram does not decode to a JSON document")
	// ErrShapeMismatch means the document is valid JSON but not a discovery poll.
	ErrShapeMismatch = errors.New("document is not an emeter/sysinfo poll")
	// ErrEchoDetected means the document carries readings, which is what our
	// own replies look like when they loop back.
	ErrEchoDetected = errors.New("document carries realtime readings (self-echo)")
)

// Reason returns a short label for one of the sentinel errors, suitable
// for metrics and log fields.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecodeGarbage):
		return "garbage"
	case errors.Is(err, ErrShapeMismatch):
		return "shape"
	case errors.Is(err, ErrEchoDetected):
		return "echo"
	default:
		return "other"
	}
}

// Reply is one encoded answer for one outlet.
type Reply struct {
	Outlet   outlet.Outlet
	Response outlet.Response
	Document []byte // plaintext JSON
	Payload  []byte // ciphertext as sent on the wire
}

type Handler struct {
	provider outlet.Provider
	now      func() time.Time
	logger   zerolog.Logger
}

type Option func(*Handler)

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

func NewHandler(provider outlet.Provider, opts ...Option) *Handler {
	h := &Handler{
		provider: provider,
		now:      time.Now,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle deciphers and validates one datagram and, if it is a genuine poll,
// builds one reply per outlet currently returned by the provider. Outlets
// whose reply cannot be built are logged and skipped.
func (h *Handler) Handle(packet []byte) ([]Reply, error) {
	if err := Classify(codec.Decode(packet)); err != nil {
		return nil, err
	}

	var outlets []outlet.Outlet
	if h.provider != nil {
		outlets = h.provider()
	}
	now := h.now()
	replies := make([]Reply, 0, len(outlets))
	for _, o := range outlets {
		r, err := h.build(o, now)
		if err != nil {
			h.logger.Warn().Err(err).Str("outlet", o.ID).Msg("skipping outlet reply")
			continue
		}
		replies = append(replies, r)
	}
	return replies, nil
}

// Classify checks a deciphered document and returns nil when it is a
// discovery poll that should be answered.
func Classify(document []byte) error {
	doc, err := gabs.ParseJSON(document)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeGarbage, err)
	}
	if !doc.Exists(KeyEmeter, KeyGetRealtime) || !doc.Exists(KeySystem, KeyGetSysinfo) {
		return ErrShapeMismatch
	}
	if query := doc.Search(KeyEmeter, KeyGetRealtime).Data(); !isEmptyQuery(query) {
		return fmt.Errorf("%w: %s is %v", ErrEchoDetected, KeyGetRealtime, query)
	}
	return nil
}

// isEmptyQuery reports whether a realtime query carries nothing: null, an
// empty object or list, an empty string, zero or false.
func isEmptyQuery(v interface{}) bool {
	switch q := v.(type) {
	case nil:
		return true
	case map[string]interface{}:
		return len(q) == 0
	case []interface{}:
		return len(q) == 0
	case string:
		return q == ""
	case bool:
		return !q
	case json.Number:
		f, err := q.Float64()
		return err == nil && f == 0
	case float64:
		return q == 0
	default:
		return false
	}
}

func (h *Handler) build(o outlet.Outlet, now time.Time) (r Reply, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while building reply: %v", p)
		}
	}()
	resp := outlet.BuildResponse(o, now)
	doc, err := gojson.Marshal(resp)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to marshal reply: %w", err)
	}
	return Reply{
		Outlet:   o,
		Response: resp,
		Document: doc,
		Payload:  codec.EncodeDatagram(doc),
	}, nil
}

// DiscoveryRequest is the plaintext poll the energy monitor broadcasts.
var DiscoveryRequest = []byte(`{"emeter":{"get_realtime":{}},"system":{"get_sysinfo":{}}}`)
