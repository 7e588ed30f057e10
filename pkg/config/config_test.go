package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
listen: ":9090"
engine:
  fixed_notional: 5000
  open_threshold: 10
  close_threshold: -3
directory:
  path: instruments.json
stream:
  feed_url: wss://feed.example.com/ws
  feed_symbols: [USDINR, EURINR]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, ":9090", cfg.Listen)
	require.Equal(t, float64(5000), cfg.Engine.FixedNotional)
	require.Equal(t, float64(-3), cfg.Engine.CloseThreshold)
	require.Equal(t, []string{"USDINR", "EURINR"}, cfg.Stream.FeedSymbols)
	// 未指定的字段拿默认值
	require.Equal(t, 20, cfg.Engine.ClosedTradeWindow)
}

func TestLoad_EnvFallback(t *testing.T) {
	t.Setenv("FIXED_NOTIONAL", "2500")
	t.Setenv("DIRECTORY_URL", "https://example.com/instruments")
	t.Setenv("FEED_SYMBOLS", "USDINR, GBPINR")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, float64(2500), cfg.Engine.FixedNotional)
	require.Equal(t, "https://example.com/instruments", cfg.Directory.URL)
	require.Equal(t, []string{"USDINR", "GBPINR"}, cfg.Stream.FeedSymbols)
}

func TestLoad_FileBeatsEnv(t *testing.T) {
	t.Setenv("FIXED_NOTIONAL", "2500")
	path := writeConfig(t, `
engine:
  fixed_notional: 7000
directory:
  path: instruments.json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, float64(7000), cfg.Engine.FixedNotional)
}

func TestLoad_ValidationErrors(t *testing.T) {
	// 目录来源缺失
	_, err := Load("")
	require.Error(t, err)

	// 保护阈值必须为负
	path := writeConfig(t, `
engine:
  close_threshold: 2
directory:
  path: instruments.json
`)
	_, err = Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}
