package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// clearEnv neutralizes ambient overrides so default-oriented tests are stable.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PIXELNERD_LLM_PROVIDER", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY",
		"PIXELNERD_LLM_API_KEY", "PIXELNERD_LLM_MODEL", "PIXELNERD_EXECUTOR_URL",
		"PIXELNERD_DB", "PIXELNERD_RETENTION", "PIXELNERD_DEBUG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".pixelnerd", "config.yaml")

	want := DefaultConfig()
	want.LLM.Provider = "openai"
	want.LLM.Model = "gpt-4o"
	want.Store.RetentionCeiling = 50
	require.NoError(t, want.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: gemini\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "gemini", cfg.LLM.Provider)
	// Untouched sections keep their defaults.
	require.Equal(t, 200, cfg.Store.RetentionCeiling)
	require.Equal(t, 67108864, cfg.Limits.MaxUpscalePixels)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PIXELNERD_LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PIXELNERD_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("PIXELNERD_EXECUTOR_URL", "http://imgsvc:9000")
	t.Setenv("PIXELNERD_RETENTION", "33")
	t.Setenv("PIXELNERD_DEBUG", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	require.Equal(t, "openai", cfg.LLM.Provider)
	require.Equal(t, "sk-test", cfg.LLM.APIKey)
	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	require.Equal(t, "http://imgsvc:9000", cfg.Executor.BaseURL)
	require.Equal(t, 33, cfg.Store.RetentionCeiling)
	require.True(t, cfg.Logging.DebugMode)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestProviderKeyDoesNotLeakAcrossProviders(t *testing.T) {
	// An Anthropic key must not become the OpenAI key just because it is set.
	t.Setenv("PIXELNERD_LLM_PROVIDER", "openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Empty(t, cfg.LLM.APIKey)
}

func TestTimeoutParsing(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 120*time.Second, cfg.LLMTimeout())
	require.Equal(t, 60*time.Second, cfg.ExecutorTimeout())

	cfg.LLM.Timeout = "5m"
	require.Equal(t, 5*time.Minute, cfg.LLMTimeout())

	cfg.LLM.Timeout = "garbage"
	require.Equal(t, 120*time.Second, cfg.LLMTimeout())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "carrier-pigeon"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Store.RetentionCeiling = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Limits.MaxUpscalePixels = -1
	require.Error(t, cfg.Validate())
}
