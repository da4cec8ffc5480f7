package senselink

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"

	"github.com/OpenCHAMI/senselink/internal/format"
	"github.com/OpenCHAMI/senselink/internal/util"
	"github.com/OpenCHAMI/senselink/pkg/outlet"
)

// LoadConfig() reads the config file at path into the global viper
// instance. No search paths are used, and flags or SENSELINK_ environment
// variables still win over values from the file.
func LoadConfig(path string) error {
	dir, filename, ext := util.SplitPathForViper(path)
	viper.AddConfigPath(dir)
	viper.SetConfigName(filename)
	viper.SetConfigType(ext)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return fmt.Errorf("config file not found: %w", err)
		}
		return fmt.Errorf("failed to load config file: %w", err)
	}

	return nil
}

// OutletConfig is how an outlet is written in the config file or an
// outlets file. StartTime is in Unix seconds; zero means "now".
type OutletConfig struct {
	ID        string  `mapstructure:"id" json:"id" yaml:"id"`
	Alias     string  `mapstructure:"alias" json:"alias,omitempty" yaml:"alias,omitempty"`
	StartTime float64 `mapstructure:"start_time" json:"start_time,omitempty" yaml:"start_time,omitempty"`
	Voltage   float64 `mapstructure:"voltage" json:"voltage,omitempty" yaml:"voltage,omitempty"`
	Current   float64 `mapstructure:"current" json:"current,omitempty" yaml:"current,omitempty"`
	Power     float64 `mapstructure:"power" json:"power,omitempty" yaml:"power,omitempty"`
	DeviceID  string  `mapstructure:"device_id" json:"device_id,omitempty" yaml:"device_id,omitempty"`
	MAC       string  `mapstructure:"mac" json:"mac,omitempty" yaml:"mac,omitempty"`
}

func (c OutletConfig) Params() outlet.Params {
	p := outlet.Params{
		ID:       c.ID,
		Alias:    c.Alias,
		Voltage:  c.Voltage,
		Current:  c.Current,
		Power:    c.Power,
		DeviceID: c.DeviceID,
		MAC:      c.MAC,
	}
	if c.StartTime > 0 {
		sec, frac := math.Modf(c.StartTime)
		p.StartTime = time.Unix(int64(sec), int64(frac*float64(time.Second)))
	}
	return p
}

// OutletsFromViper reads the "outlets" list from v.
func OutletsFromViper(v *viper.Viper) ([]OutletConfig, error) {
	var cfgs []OutletConfig
	if err := v.UnmarshalKey("outlets", &cfgs); err != nil {
		return nil, fmt.Errorf("failed to decode outlets: %w", err)
	}
	return cfgs, nil
}

// LoadOutletsFile reads a JSON or YAML list of outlets.
func LoadOutletsFile(path string) ([]OutletConfig, error) {
	var cfgs []OutletConfig
	if err := format.UnmarshalFile(path, &cfgs); err != nil {
		return nil, fmt.Errorf("failed to load outlets: %w", err)
	}
	return cfgs, nil
}

// BuildRegistry creates every configured outlet and collects them in a
// registry. All invalid entries are reported together.
func BuildRegistry(cfgs []OutletConfig) (*outlet.Registry, error) {
	var (
		registry = outlet.NewRegistry()
		errList  []error
	)
	for i, c := range cfgs {
		o, err := outlet.New(c.Params())
		if err != nil {
			errList = append(errList, fmt.Errorf("outlet %d: %w", i, err))
			continue
		}
		if _, exists := registry.Get(o.ID); exists {
			errList = append(errList, fmt.Errorf("outlet %d: duplicate ID %q", i, o.ID))
			continue
		}
		registry.Put(o)
	}
	if util.HasErrors(errList) {
		return nil, fmt.Errorf("invalid outlet configuration:\n%w", util.FormatErrorList(errList))
	}
	return registry, nil
}
