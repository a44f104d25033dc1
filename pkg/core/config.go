// Package core provides the main mnemo client and memory management functionality.
package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/mnemo-labs/mnemo-go/pkg/intelligence"
	"github.com/mnemo-labs/mnemo-go/pkg/storage/dualwrite"
)

// Config contains the complete configuration for a mnemo client.
//
// It includes settings for:
//   - LLM provider (merge decisions, fact and entity extraction)
//   - Embedding provider (vector generation)
//   - Vector store (memory persistence)
//   - Graph store (entity/relationship memory, optional)
//   - Cache (read-through TTL cache, optional)
//   - History sink (append-only audit log)
//   - Dual-write migration (optional)
//   - Ingest gate and retention thresholds
//
// Example:
//
//	config := &core.Config{
//	    LLM: core.LLMConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	        Model:    "gpt-4",
//	    },
//	    Embedder: core.EmbedderConfig{
//	        Provider:   "openai",
//	        APIKey:     "sk-...",
//	        Model:      "text-embedding-3-small",
//	        Dimensions: 1536,
//	    },
//	    VectorStore: core.VectorStoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./memories.db",
//	        },
//	    },
//	}
type Config struct {
	// LLM contains LLM provider configuration.
	LLM LLMConfig `json:"llm"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder"`

	// VectorStore contains vector store configuration.
	VectorStore VectorStoreConfig `json:"vector_store"`

	// GraphStore contains graph store configuration (optional).
	GraphStore *GraphStoreConfig `json:"graph_store,omitempty"`

	// Cache contains cache layer configuration (optional).
	Cache *CacheConfig `json:"cache,omitempty"`

	// History contains history sink configuration (optional; defaults to
	// a SQLite sink next to the vector store when omitted).
	History *HistoryConfig `json:"history,omitempty"`

	// DualWrite contains storage migration configuration (optional).
	DualWrite *DualWriteConfig `json:"dual_write,omitempty"`

	// Ingest contains ingest gate thresholds (optional; defaults apply).
	Ingest *IngestConfig `json:"ingest,omitempty"`

	// Retention contains retention scoring configuration (optional).
	Retention *RetentionConfig `json:"retention,omitempty"`
}

// LLMConfig contains configuration for the LLM provider.
//
// Supported providers: openai, deepseek, anthropic
type LLMConfig struct {
	// Provider is the LLM provider name (openai, deepseek, anthropic).
	Provider string `json:"provider"`

	// APIKey is the API key for the LLM provider.
	APIKey string `json:"api_key"`

	// Model is the model name to use (e.g., "gpt-4", "deepseek-chat").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai
type EmbedderConfig struct {
	// Provider is the embedding provider name.
	Provider string `json:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key"`

	// Model is the embedding model name (e.g., "text-embedding-3-small").
	Model string `json:"model"`

	// BaseURL is the base URL for the API (optional).
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors (e.g., 1536).
	Dimensions int `json:"dimensions,omitempty"`
}

// VectorStoreConfig contains configuration for the vector store.
//
// Supported providers: sqlite, postgres, oceanbase
type VectorStoreConfig struct {
	// Provider is the vector store provider name (sqlite, postgres, oceanbase).
	Provider string `json:"provider"`

	// Config contains provider-specific configuration.
	// For SQLite: db_path, collection_name, embedding_model_dims
	// For PostgreSQL: host, port, user, password, db_name, collection_name, embedding_model_dims, ssl_mode
	// For OceanBase: host, port, user, password, db_name, collection_name, embedding_model_dims
	Config map[string]interface{} `json:"config"`
}

// GraphStoreConfig contains configuration for the graph memory store.
//
// Supported providers: neo4j, sqlite. Leaving Provider empty disables
// graph memory entirely; the client then serves vector results only.
type GraphStoreConfig struct {
	// Provider is the graph store provider name (neo4j, sqlite).
	Provider string `json:"provider"`

	// URI is the bolt address for neo4j (e.g. "neo4j://localhost:7687").
	URI string `json:"uri,omitempty"`

	// Username and Password authenticate against neo4j.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Database selects the neo4j database (optional).
	Database string `json:"database,omitempty"`

	// DBPath is the SQLite database path for the embedded backend.
	DBPath string `json:"db_path,omitempty"`

	// Threshold is the minimum cosine similarity for node identity.
	// Defaults to 0.7.
	Threshold float64 `json:"threshold,omitempty"`

	// CustomPrompt adds a domain-specific guideline to relationship extraction.
	CustomPrompt string `json:"custom_prompt,omitempty"`
}

// CacheConfig contains configuration for the Redis-backed cache layer.
type CacheConfig struct {
	// Addr is the Redis address (host:port). Empty disables caching.
	Addr string `json:"addr"`

	// Password authenticates against Redis (optional).
	Password string `json:"password,omitempty"`

	// DB selects the Redis database (optional).
	DB int `json:"db,omitempty"`

	// EmbeddingTTLHours overrides the 24h embedding TTL (optional).
	EmbeddingTTLHours int `json:"embedding_ttl_hours,omitempty"`

	// SearchTTLMinutes overrides the 5m search-result TTL (optional).
	SearchTTLMinutes int `json:"search_ttl_minutes,omitempty"`

	// SnapshotTTLMinutes overrides the 10m snapshot TTL (optional).
	SnapshotTTLMinutes int `json:"snapshot_ttl_minutes,omitempty"`
}

// HistoryConfig contains configuration for the history sink.
//
// Supported providers: sqlite, postgres
type HistoryConfig struct {
	// Provider is the history provider name (sqlite, postgres).
	Provider string `json:"provider"`

	// DBPath is the SQLite database path.
	DBPath string `json:"db_path,omitempty"`

	// Host, Port, User, Password, DBName configure the postgres sink.
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	DBName   string `json:"db_name,omitempty"`
	SSLMode  string `json:"ssl_mode,omitempty"`

	// NodeID is the snowflake node id for history row ids. Defaults to 1.
	NodeID int64 `json:"node_id,omitempty"`
}

// DualWriteConfig contains configuration for staged storage migration.
type DualWriteConfig struct {
	// Mode is the initial routing mode: primary_only, dual_write,
	// dual_read, or secondary_only.
	Mode dualwrite.Mode `json:"mode"`

	// Secondary is the store being migrated to.
	Secondary VectorStoreConfig `json:"secondary"`
}

// IngestConfig mirrors the ingest gate thresholds. See
// intelligence.IngestConfig for field semantics.
type IngestConfig = intelligence.IngestConfig

// RetentionConfig contains retention scoring configuration.
type RetentionConfig struct {
	// DecayRate is the Ebbinghaus decay rate. Default: 0.1.
	DecayRate float64 `json:"decay_rate"`

	// ReinforcementFactor is the strengthening applied on recall. Default: 0.3.
	ReinforcementFactor float64 `json:"reinforcement_factor"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - DATABASE_PROVIDER (sqlite, postgres, oceanbase)
//   - SQLITE_PATH, POSTGRES_HOST/PORT/USER/PASSWORD/DATABASE, OCEANBASE_*
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_DIMS
//   - GRAPH_PROVIDER (neo4j, sqlite), NEO4J_URI/USERNAME/PASSWORD/DATABASE,
//     GRAPH_SQLITE_PATH, GRAPH_SIMILARITY_THRESHOLD
//   - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB
//   - HISTORY_PROVIDER, HISTORY_SQLITE_PATH, HISTORY_NODE_ID
//   - DUAL_WRITE_MODE, DUAL_WRITE_SECONDARY_PROVIDER
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	config := &Config{
		LLM: LLMConfig{
			Provider: getEnvOrDefault("LLM_PROVIDER", "openai"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    os.Getenv("LLM_MODEL"),
			BaseURL:  os.Getenv("LLM_BASE_URL"),
		},
		Embedder: EmbedderConfig{
			Provider:   getEnvOrDefault("EMBEDDING_PROVIDER", "openai"),
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: getEnvInt("EMBEDDING_DIMS", 1536),
		},
		VectorStore: VectorStoreConfig{
			Provider: provider,
			Config:   vectorStoreConfigFromEnv(provider),
		},
	}

	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case "deepseek":
			config.LLM.Model = "deepseek-chat"
		case "anthropic":
			config.LLM.Model = "claude-3-5-sonnet-20240620"
		default:
			config.LLM.Model = "gpt-4"
		}
	}

	if graphProvider := os.Getenv("GRAPH_PROVIDER"); graphProvider != "" {
		config.GraphStore = &GraphStoreConfig{
			Provider:  graphProvider,
			URI:       getEnvOrDefault("NEO4J_URI", "neo4j://localhost:7687"),
			Username:  getEnvOrDefault("NEO4J_USERNAME", "neo4j"),
			Password:  os.Getenv("NEO4J_PASSWORD"),
			Database:  os.Getenv("NEO4J_DATABASE"),
			DBPath:    getEnvOrDefault("GRAPH_SQLITE_PATH", "./mnemo_graph.db"),
			Threshold: getEnvFloat("GRAPH_SIMILARITY_THRESHOLD", 0.7),
		}
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		config.Cache = &CacheConfig{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		}
	}

	config.History = &HistoryConfig{
		Provider: getEnvOrDefault("HISTORY_PROVIDER", "sqlite"),
		DBPath:   getEnvOrDefault("HISTORY_SQLITE_PATH", "./mnemo_history.db"),
		Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
		Port:     getEnvInt("POSTGRES_PORT", 5432),
		User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		DBName:   getEnvOrDefault("POSTGRES_DATABASE", "mnemo"),
		SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		NodeID:   int64(getEnvInt("HISTORY_NODE_ID", 1)),
	}

	if mode := os.Getenv("DUAL_WRITE_MODE"); mode != "" && mode != string(dualwrite.ModePrimaryOnly) {
		secondaryProvider := getEnvOrDefault("DUAL_WRITE_SECONDARY_PROVIDER", "sqlite")
		config.DualWrite = &DualWriteConfig{
			Mode: dualwrite.Mode(mode),
			Secondary: VectorStoreConfig{
				Provider: secondaryProvider,
				Config:   vectorStoreConfigFromEnv(secondaryProvider),
			},
		}
	}

	return config, nil
}

// vectorStoreConfigFromEnv builds the provider-specific config map.
func vectorStoreConfigFromEnv(provider string) map[string]interface{} {
	switch provider {
	case "postgres":
		return map[string]interface{}{
			"host":                 getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":                 getEnvInt("POSTGRES_PORT", 5432),
			"user":                 getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password":             os.Getenv("POSTGRES_PASSWORD"),
			"db_name":              getEnvOrDefault("POSTGRES_DATABASE", "mnemo"),
			"collection_name":      getEnvOrDefault("POSTGRES_COLLECTION", "memories"),
			"embedding_model_dims": getEnvInt("EMBEDDING_DIMS", 1536),
			"ssl_mode":             getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "oceanbase":
		return map[string]interface{}{
			"host":                 getEnvOrDefault("OCEANBASE_HOST", "127.0.0.1"),
			"port":                 getEnvInt("OCEANBASE_PORT", 2881),
			"user":                 getEnvOrDefault("OCEANBASE_USER", "root@sys"),
			"password":             os.Getenv("OCEANBASE_PASSWORD"),
			"db_name":              getEnvOrDefault("OCEANBASE_DATABASE", "mnemo"),
			"collection_name":      getEnvOrDefault("OCEANBASE_COLLECTION", "memories"),
			"embedding_model_dims": getEnvInt("EMBEDDING_DIMS", 1536),
		}
	default:
		return map[string]interface{}{
			"db_path":              getEnvOrDefault("SQLITE_PATH", "./mnemo.db"),
			"collection_name":      getEnvOrDefault("SQLITE_COLLECTION", "memories"),
			"embedding_model_dims": getEnvInt("EMBEDDING_DIMS", 1536),
		}
	}
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	return &config, nil
}

// Validate validates the configuration.
//
// Checks that all required fields are set:
//   - LLM provider must be specified
//   - Embedder provider must be specified
//   - Vector store provider must be specified
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.LLM.Provider == "" {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.Embedder.Provider == "" {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	if c.VectorStore.Provider == "" {
		return NewMemoryError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses an integer environment variable with a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvFloat parses a float environment variable with a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
