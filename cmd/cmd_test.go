package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenCHAMI/senselink/pkg/codec"
	"github.com/OpenCHAMI/senselink/pkg/daemon"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--log-level", "disabled"}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestIdentityCommand(t *testing.T) {
	out, err := run(t, "", "identity", "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1\tB78F576611EC06F96AF3CA654C22172A5D746C40\t35:4B:1F:B7:8F:57\n", out)
}

func TestCodecCommands(t *testing.T) {
	plain := `{"system":{"get_sysinfo":{}}}`
	out, err := run(t, plain, "codec", "encode")
	require.NoError(t, err)
	hexed := strings.TrimSpace(out)
	assert.NotEmpty(t, hexed)

	out, err = run(t, hexed, "codec", "decode")
	require.NoError(t, err)
	assert.Equal(t, plain+"\n", out)

	// framed form
	out, err = run(t, plain, "codec", "encode", "--prefix")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "0000001d"), out)
	out, err = run(t, out, "codec", "decode", "--prefix")
	require.NoError(t, err)
	assert.Equal(t, plain+"\n", out)
	codecPrefix = false

	_, err = run(t, "zz", "codec", "decode")
	assert.Error(t, err)
}

func TestCodecDecodeRaw(t *testing.T) {
	_, err := run(t, string(codec.EncodeDatagram([]byte("hello"))), "codec", "decode", "--raw")
	require.NoError(t, err)
	codecRaw = false
}

func TestParseRequester(t *testing.T) {
	r, err := parseRequester("192.168.1.20:9999")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", r.Host)
	assert.Equal(t, 9999, r.Port)

	r, err = parseRequester("192.168.1.20")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", r.Host)
	assert.Zero(t, r.Port)

	_, err = parseRequester("host:notaport")
	assert.Error(t, err)
	_, err = parseRequester("")
	assert.Error(t, err)
}

func TestLoadRegistry(t *testing.T) {
	t.Cleanup(func() {
		viper.Set("outlets", nil)
		viper.Set("serve.outlets", "")
	})
	path := filepath.Join(t.TempDir(), "outlets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- id: fridge\n  current: 1\n"), 0o644))

	viper.Set("outlets", []map[string]any{{"id": "dryer", "power": 4800}})
	viper.Set("serve.outlets", path)
	registry, err := loadRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"dryer", "fridge"}, registry.IDs())

	viper.Set("outlets", nil)
	viper.Set("serve.outlets", "")
	_, err = loadRegistry()
	assert.Error(t, err)
}

func TestListMissingCache(t *testing.T) {
	_, err := run(t, "", "list", "--cache", filepath.Join(t.TempDir(), "none.db"))
	assert.Error(t, err)
}

func TestInitializeConfigExplicitPath(t *testing.T) {
	t.Cleanup(func() { viper.Set("config", "") })
	path := filepath.Join(t.TempDir(), "senselink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  endpoint: 127.0.0.1:19998\n"), 0o644))

	viper.Set("config", path)
	InitializeConfig()
	assert.Equal(t, "127.0.0.1:19998", viper.GetString("http.endpoint"))
	assert.Equal(t, filepath.Clean(path), filepath.Clean(viper.ConfigFileUsed()))
}

func TestServeHTTPFlag(t *testing.T) {
	flag := serveCmd.Flags().Lookup("http")
	require.NotNil(t, flag)
	assert.Empty(t, flag.DefValue)
	assert.Contains(t, flag.Usage, daemon.DefaultEndpoint)
}
