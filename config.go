package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`

	ClassifyTimeoutSecs   int `yaml:"classify_timeout_secs"`
	SynthesizeTimeoutSecs int `yaml:"synthesize_timeout_secs"`
	InsightWindowSize     int `yaml:"insight_window_size"`

	SlackBotToken   string   `yaml:"slack_bot_token"`
	DigestChannelID string   `yaml:"digest_channel_id"`
	DigestSchedule  string   `yaml:"digest_schedule"`
	DigestOwners    []string `yaml:"digest_owners"`
	Timezone        string   `yaml:"timezone"`

	Location *time.Location `yaml:"-"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	envOverrideInt(&cfg.ClassifyTimeoutSecs, "CLASSIFY_TIMEOUT_SECS")
	envOverrideInt(&cfg.SynthesizeTimeoutSecs, "SYNTHESIZE_TIMEOUT_SECS")
	envOverrideInt(&cfg.InsightWindowSize, "INSIGHT_WINDOW_SIZE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.DigestChannelID, "DIGEST_CHANNEL_ID")
	envOverride(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if owners := os.Getenv("DIGEST_OWNERS"); owners != "" {
		cfg.DigestOwners = nil
		for _, owner := range strings.Split(owners, ",") {
			owner = strings.TrimSpace(owner)
			if owner != "" {
				cfg.DigestOwners = append(cfg.DigestOwners, owner)
			}
		}
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./feedbacklens.db"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.ClassifyTimeoutSecs == 0 {
		cfg.ClassifyTimeoutSecs = 30
	}
	if cfg.SynthesizeTimeoutSecs == 0 {
		cfg.SynthesizeTimeoutSecs = 60
	}
	if cfg.InsightWindowSize == 0 {
		cfg.InsightWindowSize = 100
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	// Validate required fields
	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	default:
		log.Fatalf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}

	if cfg.ClassifyTimeoutSecs < 1 || cfg.ClassifyTimeoutSecs > 30 {
		log.Fatalf("invalid classify_timeout_secs '%d': must be between 1 and 30", cfg.ClassifyTimeoutSecs)
	}
	if cfg.SynthesizeTimeoutSecs < 1 || cfg.SynthesizeTimeoutSecs > 60 {
		log.Fatalf("invalid synthesize_timeout_secs '%d': must be between 1 and 60", cfg.SynthesizeTimeoutSecs)
	}
	if cfg.InsightWindowSize < 1 || cfg.InsightWindowSize > 100 {
		log.Fatalf("invalid insight_window_size '%d': must be between 1 and 100", cfg.InsightWindowSize)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func (c Config) ClassifyTimeout() time.Duration {
	return time.Duration(c.ClassifyTimeoutSecs) * time.Second
}

func (c Config) SynthesizeTimeout() time.Duration {
	return time.Duration(c.SynthesizeTimeoutSecs) * time.Second
}

// DigestConfigured reports whether the scheduled Slack digest has
// everything it needs to run.
func (c Config) DigestConfigured() bool {
	return c.DigestSchedule != "" && c.SlackBotToken != "" && c.DigestChannelID != "" && len(c.DigestOwners) > 0
}
