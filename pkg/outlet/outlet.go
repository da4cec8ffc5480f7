// Package outlet models the virtual smart plugs reported to the energy
// monitor: their stable identity, their electrical readings and the
// document a genuine plug would answer a discovery poll with.
package outlet

import (
	"fmt"
	"strings"
	"time"
)

const DefaultVoltage = 120.0

// Outlet is one emulated metering device. Values are copied freely; the
// Registry hands out copies so readers never observe a half-applied update.
type Outlet struct {
	ID        string    `json:"id" yaml:"id"`
	Alias     string    `json:"alias" yaml:"alias"`
	StartTime time.Time `json:"start_time" yaml:"start_time"`
	Voltage   float64   `json:"voltage" yaml:"voltage"`
	Current   float64   `json:"current" yaml:"current"`
	Power     float64   `json:"power" yaml:"power"`
	DeviceID  string    `json:"device_id" yaml:"device_id"`
	MAC       string    `json:"mac" yaml:"mac"`
}

// Params holds the caller-supplied inputs for a new outlet. Only ID is
// required; zero values fall back to defaults or derived values.
type Params struct {
	ID        string    `json:"id" yaml:"id"`
	Alias     string    `json:"alias,omitempty" yaml:"alias,omitempty"`
	StartTime time.Time `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	Voltage   float64   `json:"voltage,omitempty" yaml:"voltage,omitempty"`
	Current   float64   `json:"current,omitempty" yaml:"current,omitempty"`
	Power     float64   `json:"power,omitempty" yaml:"power,omitempty"`
	DeviceID  string    `json:"device_id,omitempty" yaml:"device_id,omitempty"`
	MAC       string    `json:"mac,omitempty" yaml:"mac,omitempty"`
}

// New builds an outlet from p, deriving whatever the caller left out.
func New(p Params) (Outlet, error) {
	if p.ID == "" {
		return Outlet{}, fmt.Errorf("outlet ID cannot be empty")
	}
	o := Outlet{
		ID:        p.ID,
		Alias:     p.Alias,
		StartTime: p.StartTime,
		Voltage:   p.Voltage,
		Current:   p.Current,
		Power:     p.Power,
	}
	if o.Alias == "" {
		o.Alias = o.ID
	}
	if o.StartTime.IsZero() {
		o.StartTime = time.Now().Add(-time.Second)
	}
	if o.Voltage == 0 {
		o.Voltage = DefaultVoltage
	}
	o.derive()

	if p.DeviceID != "" {
		o.DeviceID = strings.ToUpper(p.DeviceID)
	} else {
		o.DeviceID = DeriveDeviceID(o.ID)
	}
	if p.MAC != "" {
		o.MAC = strings.ToUpper(p.MAC)
	} else {
		mac, err := DeriveMAC(o.DeviceID)
		if err != nil {
			return Outlet{}, fmt.Errorf("failed to derive MAC for outlet %s: %w", o.ID, err)
		}
		o.MAC = mac
	}
	return o, nil
}

// derive fills in whichever of power or current is zero from the other.
func (o *Outlet) derive() {
	if o.Power == 0 {
		o.Power = o.Voltage * o.Current
	}
	if o.Current == 0 {
		if o.Voltage != 0 {
			o.Current = o.Power / o.Voltage
		}
	}
}

// SetPower makes power authoritative and re-derives the current.
func (o *Outlet) SetPower(watts float64) {
	o.Power = watts
	o.Current = 0
	o.derive()
}

// SetCurrent makes current authoritative and re-derives the power.
func (o *Outlet) SetCurrent(amps float64) {
	o.Current = amps
	o.Power = 0
	o.derive()
}

// SetVoltage changes the voltage while keeping power authoritative.
func (o *Outlet) SetVoltage(volts float64) {
	o.Voltage = volts
	o.SetPower(o.Power)
}

// Uptime returns how long the outlet has been "on" at now.
func (o Outlet) Uptime(now time.Time) time.Duration {
	if now.Before(o.StartTime) {
		return 0
	}
	return now.Sub(o.StartTime)
}
