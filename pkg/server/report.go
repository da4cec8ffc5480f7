package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/OpenCHAMI/senselink/pkg/outlet"
)

// LogWattages writes one line per outlet with its current power draw.
func LogWattages(logger zerolog.Logger, provider outlet.Provider) {
	for _, o := range provider() {
		logger.Info().
			Str("outlet", o.ID).
			Str("alias", o.Alias).
			Float64("power", o.Power).
			Float64("current", o.Current).
			Msg("outlet power")
	}
}

// ReportWattages calls LogWattages every interval until ctx is done.
func ReportWattages(ctx context.Context, logger zerolog.Logger, interval time.Duration, provider outlet.Provider) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			LogWattages(logger, provider)
		}
	}
}
