package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "memory", cfg.History.Backend)
	assert.Equal(t, "Mao", cfg.Character.Name)
}

func TestLoad_FromYAML(t *testing.T) {
	path := writeConfigFile(t, `
server:
  addr: ":9000"
  shutdown_timeout: 5s
llm:
  api_key: sk-test
  model: gpt-4o
character:
  name: Aria
  persona: You are Aria.
tts:
  engine: gpt-sovits
  sovits:
    api_url: http://localhost:9880/
    ref_audio_path: /refs/aria.wav
history:
  backend: sqlite
  sqlite_path: /data/chat.db
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, "Aria", cfg.Character.Name)
	assert.Equal(t, "gpt-sovits", cfg.TTS.Engine)
	assert.Equal(t, "/refs/aria.wav", cfg.TTS.SoVITS.RefAudioPath)
	assert.Equal(t, "sqlite", cfg.History.Backend)
	assert.Equal(t, "/data/chat.db", cfg.History.SQLitePath)

	// 文件没写的字段保持默认值
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "whisper-1", cfg.STT.OpenAI.Model)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/no/such/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a map")
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VOXFLOW_SERVER_ADDR", ":7070")
	t.Setenv("VOXFLOW_LLM_API_KEY", "sk-env")
	t.Setenv("VOXFLOW_LLM_TEMPERATURE", "1.2")
	t.Setenv("VOXFLOW_SERVER_SHUTDOWN_TIMEOUT", "45s")
	t.Setenv("VOXFLOW_HISTORY_REDIS_ADDR", "redis:6379")
	t.Setenv("VOXFLOW_TELEMETRY_ENABLED", "true")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, 1.2, cfg.LLM.Temperature)
	assert.Equal(t, 45*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "redis:6379", cfg.History.Redis.Addr)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfigFile(t, "server:\n  addr: \":9000\"\n")
	t.Setenv("VOXFLOW_SERVER_ADDR", ":7070")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr, "env must win over YAML")
}

func TestLoad_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_ADDR", ":6060")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Addr)
}

func TestLoad_Validators(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			return assert.AnError
		}).
		Load()
	assert.Error(t, err)
}

func TestLoad_StringSliceFromEnv(t *testing.T) {
	t.Setenv("VOXFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/voxflow.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"stdout", "/var/log/voxflow.log"}, cfg.Log.OutputPaths)
}

func TestValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("empty addr rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Addr = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("temperature out of range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.LLM.Temperature = 3.0
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown tts engine", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TTS.Engine = "espeak"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown history backend", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.History.Backend = "mongo"
		assert.Error(t, cfg.Validate())
	})
}

func TestMustLoad_PanicsOnBadFile(t *testing.T) {
	path := writeConfigFile(t, "server: [broken")
	assert.Panics(t, func() { MustLoad(path) })
}
