package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestLogLevelSet(t *testing.T) {
	var ll LogLevel
	for _, v := range Levels {
		if err := ll.Set(string(v)); err != nil {
			t.Errorf("Set(%q) returned %v", v, err)
		}
		if ll != v {
			t.Errorf("Set(%q) stored %q", v, ll)
		}
	}
	if err := ll.Set("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestZerologLevel(t *testing.T) {
	tests := map[LogLevel]zerolog.Level{
		DEBUG:    zerolog.DebugLevel,
		INFO:     zerolog.InfoLevel,
		WARN:     zerolog.WarnLevel,
		ERROR:    zerolog.ErrorLevel,
		DISABLED: zerolog.Disabled,
		TRACE:    zerolog.TraceLevel,
	}
	for in, want := range tests {
		got, err := in.ZerologLevel()
		if err != nil || got != want {
			t.Errorf("%s: got %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := LogLevel("loud").ZerologLevel(); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestInitWritesToFile(t *testing.T) {
	saved := log.Logger
	savedLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = saved
		zerolog.SetGlobalLevel(savedLevel)
		if LogFile != nil {
			LogFile.Close()
			LogFile = nil
		}
	})

	path := filepath.Join(t.TempDir(), "senselink.log")
	var stderr bytes.Buffer
	if err := initWithWriter(WARN, path, &stderr); err != nil {
		t.Fatalf("init: %v", err)
	}
	log.Info().Msg("hidden")
	log.Warn().Msg("visible")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(b), "hidden") || !strings.Contains(string(b), "visible") {
		t.Fatalf("unexpected log file contents: %s", b)
	}
	if !strings.Contains(stderr.String(), "visible") {
		t.Fatalf("stderr missing warning: %s", stderr.String())
	}
}

func TestInitRejectsBadLevel(t *testing.T) {
	if err := InitWithLogLevel("nope", ""); err == nil {
		t.Fatal("expected error")
	}
}
