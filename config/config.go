package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"research-agent/service"
	"research-agent/shared"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMCP    = "mcp"
)

type Config struct {
	Oracle      OracleChannelConfig `mapstructure:"oracle"`
	Recovery    RecoveryConfig      `mapstructure:"recovery"`
	Executor    ExecutorConfig      `mapstructure:"executor"`
	Specialists []SpecialistConfig  `mapstructure:"specialists"`
	MCPServers  []MCPServerConfig   `mapstructure:"mcp_servers"`
	Log         LogConfig           `mapstructure:"log"`
}

type OracleChannelConfig struct {
	Primary   ModelConfig `mapstructure:"primary"`
	Secondary ModelConfig `mapstructure:"secondary"`
}

// ModelConfig selects one chat model behind one provider.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKeyEnv   string  `mapstructure:"api_key_env"`
	Temperature float32 `mapstructure:"temperature"`
	JSONMode    bool    `mapstructure:"json_mode"`
}

func (m ModelConfig) Enabled() bool {
	return m.Provider != "" && m.Model != ""
}

type RecoveryConfig struct {
	RepromptAttempts   int  `mapstructure:"reprompt_attempts"`
	CacheSize          int  `mapstructure:"cache_size"`
	DisableHeuristic   bool `mapstructure:"disable_heuristic"`
	StrictDependencies bool `mapstructure:"strict_dependencies"`
}

type ExecutorConfig struct {
	MaxParallel  int           `mapstructure:"max_parallel"`
	TaskTimeout  time.Duration `mapstructure:"task_timeout"`
	DefaultAgent string        `mapstructure:"default_agent"`
}

// SpecialistConfig describes one agent. Chat providers use the model fields,
// the mcp provider forwards the task to MCPTool on MCPServer.
type SpecialistConfig struct {
	Agent        string      `mapstructure:"agent"`
	Model        ModelConfig `mapstructure:",squash"`
	SystemPrompt string      `mapstructure:"system_prompt"`
	Tools        []string    `mapstructure:"tools"`
	MaxTurns     int         `mapstructure:"max_turns"`
	MCPServer    string      `mapstructure:"mcp_server"`
	MCPTool      string      `mapstructure:"mcp_tool"`
}

// MCPServerConfig is a stdio MCP server; Command is a shell-style command line.
type MCPServerConfig struct {
	Name    string   `mapstructure:"name"`
	Command string   `mapstructure:"command"`
	Env     []string `mapstructure:"env"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads path (when set) and RESEARCH_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set defaults
	if len(cfg.Specialists) == 0 {
		cfg.Specialists = defaultSpecialists(cfg.Oracle.Primary)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("oracle.primary.provider", ProviderOpenAI)
	v.SetDefault("oracle.primary.model", "gpt-4o-mini")
	v.SetDefault("oracle.primary.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("oracle.primary.temperature", 0.2)
	v.SetDefault("oracle.secondary.provider", ProviderGemini)
	v.SetDefault("oracle.secondary.model", "gemini-2.0-flash")
	v.SetDefault("oracle.secondary.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("oracle.secondary.temperature", 0.2)

	v.SetDefault("recovery.reprompt_attempts", service.DefaultRepromptAttempts)
	v.SetDefault("recovery.cache_size", 128)

	v.SetDefault("executor.max_parallel", 4)
	v.SetDefault("executor.task_timeout", 2*time.Minute)

	v.SetDefault("log.level", "info")
}

func defaultSpecialists(model ModelConfig) []SpecialistConfig {
	agents := []string{shared.AgentWebSearch, shared.AgentMarketData, shared.AgentDocumentSearch, shared.AgentSynthesis}
	out := make([]SpecialistConfig, len(agents))
	for i, agent := range agents {
		out[i] = SpecialistConfig{Agent: agent, Model: model}
	}
	return out
}

func (c *Config) Validate() error {
	var errList []error
	if !c.Oracle.Primary.Enabled() && !c.Oracle.Secondary.Enabled() {
		errList = append(errList, fmt.Errorf("oracle: at least one of primary or secondary is required"))
	}
	for _, m := range []ModelConfig{c.Oracle.Primary, c.Oracle.Secondary} {
		if m.Enabled() && m.Provider != ProviderOpenAI && m.Provider != ProviderGemini {
			errList = append(errList, fmt.Errorf("oracle: unknown provider %q", m.Provider))
		}
	}
	if c.Recovery.RepromptAttempts < 0 {
		errList = append(errList, fmt.Errorf("recovery: reprompt_attempts must not be negative"))
	}
	if c.Executor.MaxParallel < 0 {
		errList = append(errList, fmt.Errorf("executor: max_parallel must not be negative"))
	}

	servers := map[string]bool{}
	for _, s := range c.MCPServers {
		if s.Name == "" || s.Command == "" {
			errList = append(errList, fmt.Errorf("mcp_servers: name and command are required"))
			continue
		}
		servers[s.Name] = true
	}

	synthesis := false
	seen := map[string]bool{}
	for _, s := range c.Specialists {
		key := strings.ToLower(s.Agent)
		if key == "" {
			errList = append(errList, fmt.Errorf("specialists: agent is required"))
			continue
		}
		if seen[key] {
			errList = append(errList, fmt.Errorf("specialists: agent %s configured twice", s.Agent))
		}
		seen[key] = true
		if strings.EqualFold(s.Agent, shared.AgentSynthesis) {
			synthesis = true
		}
		switch s.Model.Provider {
		case ProviderOpenAI, ProviderGemini:
			if s.Model.Model == "" {
				errList = append(errList, fmt.Errorf("specialists: agent %s has no model", s.Agent))
			}
		case ProviderMCP:
			if s.MCPTool == "" || !servers[s.MCPServer] {
				errList = append(errList, fmt.Errorf("specialists: agent %s needs mcp_tool and a configured mcp_server", s.Agent))
			}
		default:
			errList = append(errList, fmt.Errorf("specialists: agent %s has unknown provider %q", s.Agent, s.Model.Provider))
		}
	}
	if !synthesis {
		errList = append(errList, fmt.Errorf("specialists: a %s specialist is required", shared.AgentSynthesis))
	}
	return errors.Join(errList...)
}

// CompilerOptions maps the recovery and executor sections onto the compiler.
func (c *Config) CompilerOptions() []service.CompilerOption {
	validator := []service.ValidatorOption{service.WithStrictDependencies(c.Recovery.StrictDependencies)}
	if c.Executor.DefaultAgent != "" {
		validator = append(validator, service.WithDefaultAgent(c.Executor.DefaultAgent))
	}
	return []service.CompilerOption{
		service.WithRecoveryConfig(service.RecoveryConfig{
			RepromptAttempts: c.Recovery.RepromptAttempts,
			DisableHeuristic: c.Recovery.DisableHeuristic,
			CacheSize:        c.Recovery.CacheSize,
		}),
		service.WithExecutorConfig(service.ExecutorConfig{
			MaxParallel: c.Executor.MaxParallel,
			TaskTimeout: c.Executor.TaskTimeout,
		}),
		service.WithValidatorOptions(validator...),
	}
}
