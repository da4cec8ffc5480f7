package outlet

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

var ErrEmptyReading = errors.New("reading has no power, current or voltage")

// Reading is a partial update from a live power source. Nil fields are left
// untouched. When both Power and Current are set, Power wins.
type Reading struct {
	Power   *float64 `json:"power,omitempty"`
	Current *float64 `json:"current,omitempty"`
	Voltage *float64 `json:"voltage,omitempty"`
}

// ParseReading accepts either a bare number, taken as watts, or a JSON
// object with any of power, current and voltage.
func ParseReading(b []byte) (Reading, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return Reading{}, ErrEmptyReading
	}
	if b[0] != '{' {
		w, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return Reading{}, fmt.Errorf("failed to parse power %q: %w", b, err)
		}
		r := Reading{Power: &w}
		return r, r.Validate()
	}
	var r Reading
	if err := json.Unmarshal(b, &r); err != nil {
		return Reading{}, fmt.Errorf("failed to parse reading: %w", err)
	}
	return r, r.Validate()
}

func (r Reading) Validate() error {
	if r.Power == nil && r.Current == nil && r.Voltage == nil {
		return ErrEmptyReading
	}
	for name, v := range map[string]*float64{"power": r.Power, "current": r.Current, "voltage": r.Voltage} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s must be a finite number", name)
		}
	}
	if r.Voltage != nil && *r.Voltage <= 0 {
		return fmt.Errorf("voltage must be positive, got %v", *r.Voltage)
	}
	return nil
}

// Apply updates o in place.
func (r Reading) Apply(o *Outlet) {
	if r.Voltage != nil {
		o.SetVoltage(*r.Voltage)
	}
	switch {
	case r.Power != nil:
		o.SetPower(*r.Power)
	case r.Current != nil:
		o.SetCurrent(*r.Current)
	}
}
