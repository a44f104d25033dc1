package core_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mnemo "github.com/mnemo-labs/mnemo-go/pkg/core"
	"github.com/mnemo-labs/mnemo-go/pkg/storage/dualwrite"
)

func TestLoadConfigFromEnv(t *testing.T) {
	envVars := map[string]string{
		"DATABASE_PROVIDER":  "sqlite",
		"SQLITE_PATH":        "./test.db",
		"LLM_PROVIDER":       "openai",
		"LLM_API_KEY":        "test-key",
		"LLM_MODEL":          "gpt-4",
		"EMBEDDING_PROVIDER": "openai",
		"EMBEDDING_API_KEY":  "test-key",
		"EMBEDDING_MODEL":    "text-embedding-3-small",
	}
	for k, v := range envVars {
		_ = os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			_ = os.Unsetenv(k)
		}
	}()

	config, err := mnemo.LoadConfigFromEnv()
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, "openai", config.LLM.Provider)
	assert.Equal(t, "gpt-4", config.LLM.Model)
	assert.Equal(t, "sqlite", config.VectorStore.Provider)
	assert.Equal(t, "./test.db", config.VectorStore.Config["db_path"])
	assert.Equal(t, 1536, config.Embedder.Dimensions)
	assert.NoError(t, config.Validate())

	// History defaults are always populated.
	require.NotNil(t, config.History)
	assert.Equal(t, "sqlite", config.History.Provider)

	// Optional sections stay unset without their trigger variables.
	assert.Nil(t, config.GraphStore)
	assert.Nil(t, config.Cache)
	assert.Nil(t, config.DualWrite)
}

func TestLoadConfigFromEnvModelDefaults(t *testing.T) {
	tests := []struct {
		provider  string
		wantModel string
	}{
		{provider: "deepseek", wantModel: "deepseek-chat"},
		{provider: "anthropic", wantModel: "claude-3-5-sonnet-20240620"},
		{provider: "openai", wantModel: "gpt-4"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			_ = os.Setenv("LLM_PROVIDER", tt.provider)
			_ = os.Setenv("LLM_API_KEY", "test-key")
			defer func() {
				_ = os.Unsetenv("LLM_PROVIDER")
				_ = os.Unsetenv("LLM_API_KEY")
				_ = os.Unsetenv("LLM_MODEL")
			}()

			config, err := mnemo.LoadConfigFromEnv()
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, config.LLM.Model)
		})
	}
}

func TestLoadConfigFromEnvOptionalSections(t *testing.T) {
	envVars := map[string]string{
		"LLM_API_KEY":                   "test-key",
		"EMBEDDING_API_KEY":             "test-key",
		"GRAPH_PROVIDER":                "sqlite",
		"GRAPH_SQLITE_PATH":             "./graph.db",
		"REDIS_ADDR":                    "localhost:6379",
		"REDIS_DB":                      "2",
		"DUAL_WRITE_MODE":               "dual_write",
		"DUAL_WRITE_SECONDARY_PROVIDER": "sqlite",
	}
	for k, v := range envVars {
		_ = os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			_ = os.Unsetenv(k)
		}
	}()

	config, err := mnemo.LoadConfigFromEnv()
	require.NoError(t, err)

	require.NotNil(t, config.GraphStore)
	assert.Equal(t, "sqlite", config.GraphStore.Provider)
	assert.Equal(t, "./graph.db", config.GraphStore.DBPath)
	assert.Equal(t, 0.7, config.GraphStore.Threshold)

	require.NotNil(t, config.Cache)
	assert.Equal(t, "localhost:6379", config.Cache.Addr)
	assert.Equal(t, 2, config.Cache.DB)

	require.NotNil(t, config.DualWrite)
	assert.Equal(t, dualwrite.ModeDualWrite, config.DualWrite.Mode)
	assert.Equal(t, "sqlite", config.DualWrite.Secondary.Provider)
}

func TestLoadConfigFromJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	data := `{
		"llm": {"provider": "openai", "api_key": "test-key", "model": "gpt-4"},
		"embedder": {"provider": "openai", "api_key": "test-key", "model": "text-embedding-3-small", "dimensions": 1536},
		"vector_store": {"provider": "sqlite", "config": {"db_path": "./mnemo.db"}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	config, err := mnemo.LoadConfigFromJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", config.LLM.Provider)
	assert.Equal(t, "sqlite", config.VectorStore.Provider)
	assert.NoError(t, config.Validate())
}

func TestLoadConfigFromJSONMissingFile(t *testing.T) {
	_, err := mnemo.LoadConfigFromJSON("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *mnemo.Config
		wantErr bool
	}{
		{
			name: "complete",
			config: &mnemo.Config{
				LLM:         mnemo.LLMConfig{Provider: "openai"},
				Embedder:    mnemo.EmbedderConfig{Provider: "openai"},
				VectorStore: mnemo.VectorStoreConfig{Provider: "sqlite"},
			},
			wantErr: false,
		},
		{
			name: "missing LLM provider",
			config: &mnemo.Config{
				Embedder:    mnemo.EmbedderConfig{Provider: "openai"},
				VectorStore: mnemo.VectorStoreConfig{Provider: "sqlite"},
			},
			wantErr: true,
		},
		{
			name: "missing embedder provider",
			config: &mnemo.Config{
				LLM:         mnemo.LLMConfig{Provider: "openai"},
				VectorStore: mnemo.VectorStoreConfig{Provider: "sqlite"},
			},
			wantErr: true,
		},
		{
			name: "missing vector store provider",
			config: &mnemo.Config{
				LLM:      mnemo.LLMConfig{Provider: "openai"},
				Embedder: mnemo.EmbedderConfig{Provider: "openai"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, mnemo.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
