// Package config loads runtime configuration from a YAML file, a .env file
// and environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend configures one chat-completion backend.
type Backend struct {
	// Model is the model identifier sent to the provider.
	Model string `yaml:"model"`

	// BaseURL overrides the provider endpoint. Empty means the provider
	// default.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// MaxCompletionTokens caps the completion length per call.
	MaxCompletionTokens int `yaml:"max_completion_tokens"`
}

// Retry configures backoff for transient backend failures.
type Retry struct {
	// Attempts is the total number of tries, including the first.
	Attempts int `yaml:"attempts"`

	// BaseDelay is the initial backoff delay.
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration `yaml:"max_delay"`
}

// Agent configures the planner/executor loop.
type Agent struct {
	// MaxCycles bounds meta-planner iterations per query.
	MaxCycles int `yaml:"max_cycles"`

	// MaxContextTokens is the context budget enforced by trimming.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// MaxToolRounds bounds tool-call rounds within one executor task.
	// Zero means no explicit bound beyond the context budget.
	MaxToolRounds int `yaml:"max_tool_rounds"`
}

// Memory configures the case bank and the relevance retriever.
type Memory struct {
	// Dir holds memory.jsonl and training.jsonl.
	Dir string `yaml:"dir"`

	// HeadPath is the relevance-head checkpoint (JSON). Empty disables
	// learned retrieval.
	HeadPath string `yaml:"head_path"`

	// TopK is how many retrieved cases feed the planner prompt.
	TopK int `yaml:"top_k"`

	// MaxPositive and MaxNegative cap examples rendered into the prompt.
	MaxPositive int `yaml:"max_positive"`
	MaxNegative int `yaml:"max_negative"`

	// Embeddings selects the provider: "voyage" or "local".
	Embeddings string `yaml:"embeddings"`

	// EmbeddingsURL is the endpoint for the local provider.
	EmbeddingsURL string `yaml:"embeddings_url"`
}

// ToolServer describes one MCP tool server to launch over stdio.
type ToolServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
}

// Logging configures file logging.
type Logging struct {
	// File is the rotating log destination. Empty logs to stderr only.
	File string `yaml:"file"`

	// MaxSizeMB rotates the file after this size.
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups keeps this many rotated files.
	MaxBackups int `yaml:"max_backups"`

	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
}

// Trace configures the optional SQLite execution audit store.
type Trace struct {
	// Path is the SQLite database file. Empty disables tracing.
	Path string `yaml:"path"`
}

// Config is the full runtime configuration.
type Config struct {
	Meta     Backend      `yaml:"meta"`
	Exec     Backend      `yaml:"exec"`
	Judge    Backend      `yaml:"judge"`
	Retry    Retry        `yaml:"retry"`
	Agent    Agent        `yaml:"agent"`
	Memory   Memory       `yaml:"memory"`
	Tools    []ToolServer `yaml:"tools"`
	Logging  Logging      `yaml:"logging"`
	Trace    Trace        `yaml:"trace"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Meta: Backend{
			Model:               "gpt-4.1",
			APIKeyEnv:           "OPENAI_API_KEY",
			MaxCompletionTokens: 15000,
		},
		Exec: Backend{
			Model:               "o4-mini",
			APIKeyEnv:           "OPENAI_API_KEY",
			MaxCompletionTokens: 15000,
		},
		Judge: Backend{
			Model:               "gpt-4o-mini",
			APIKeyEnv:           "OPENAI_API_KEY",
			MaxCompletionTokens: 300,
		},
		Retry: Retry{
			Attempts:  3,
			BaseDelay: 2 * time.Second,
			MaxDelay:  10 * time.Second,
		},
		Agent: Agent{
			MaxCycles:        3,
			MaxContextTokens: 175000,
		},
		Memory: Memory{
			Dir:         "memory",
			TopK:        8,
			MaxPositive: 8,
			MaxNegative: 8,
			Embeddings:  "local",
		},
		Logging: Logging{
			MaxSizeMB:  20,
			MaxBackups: 3,
			Level:      "info",
		},
	}
}

// Load reads path (optional), merges environment overrides and returns the
// resulting configuration. A missing file is not an error; a malformed file
// is.
func Load(path string) (Config, error) {
	// Best effort; a missing .env is fine.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults + env only.
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MEMENTO_META_MODEL"); v != "" {
		c.Meta.Model = v
	}
	if v := os.Getenv("MEMENTO_EXEC_MODEL"); v != "" {
		c.Exec.Model = v
	}
	if v := os.Getenv("MEMENTO_JUDGE_MODEL"); v != "" {
		c.Judge.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Meta.BaseURL = v
		c.Exec.BaseURL = v
		c.Judge.BaseURL = v
	}
	if v := os.Getenv("MEMENTO_MEMORY_DIR"); v != "" {
		c.Memory.Dir = v
	}
	if v := os.Getenv("MEMENTO_HEAD_PATH"); v != "" {
		c.Memory.HeadPath = v
	}
	if v, ok := intEnv("MEMENTO_TOP_K"); ok {
		c.Memory.TopK = v
	}
	if v, ok := intEnv("MEMENTO_MAX_CYCLES"); ok {
		c.Agent.MaxCycles = v
	}
	if v, ok := intEnv("MEMENTO_MAX_CONTEXT_TOKENS"); ok {
		c.Agent.MaxContextTokens = v
	}
}

func intEnv(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *Config) validate() error {
	if c.Agent.MaxCycles <= 0 {
		return fmt.Errorf("agent.max_cycles must be positive, got %d", c.Agent.MaxCycles)
	}
	if c.Agent.MaxContextTokens <= 0 {
		return fmt.Errorf("agent.max_context_tokens must be positive, got %d", c.Agent.MaxContextTokens)
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be positive, got %d", c.Retry.Attempts)
	}
	if c.Memory.TopK <= 0 {
		return fmt.Errorf("memory.top_k must be positive, got %d", c.Memory.TopK)
	}
	seen := make(map[string]struct{}, len(c.Tools))
	for _, t := range c.Tools {
		if t.Command == "" {
			return fmt.Errorf("tool server %q has no command", t.Name)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("duplicate tool server name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}

// APIKey resolves the backend's API key from the environment.
func (b Backend) APIKey() string {
	if b.APIKeyEnv == "" {
		return os.Getenv("OPENAI_API_KEY")
	}
	return os.Getenv(b.APIKeyEnv)
}
