package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PROMPTFABRIC_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "provider.kind", typ: kString, env: "PROMPTFABRIC_PROVIDER_KIND",
		apply:   func(cfg *Config, v any) { cfg.Provider.Kind = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.Kind },
	},
	{
		key: "provider.ollama_base_url", typ: kString, env: "PROMPTFABRIC_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Provider.OllamaBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.OllamaBaseURL },
	},
	{
		key: "provider.lm_studio_base_url", typ: kString, env: "PROMPTFABRIC_LM_STUDIO_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Provider.LMStudioBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.LMStudioBaseURL },
	},
	{
		key: "provider.timeout_seconds", typ: kInt, env: "PROMPTFABRIC_PROVIDER_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Provider.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Provider.TimeoutSeconds },
	},
	{
		key: "provider.max_retries", typ: kInt, env: "PROMPTFABRIC_PROVIDER_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Provider.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Provider.MaxRetries },
	},
	{
		key: "models.generator", typ: kString, env: "PROMPTFABRIC_MODELS_GENERATOR",
		apply:   func(cfg *Config, v any) { cfg.Models.Generator = v.(string) },
		extract: func(cfg Config) any { return cfg.Models.Generator },
	},
	{
		key: "models.refiner", typ: kString, env: "PROMPTFABRIC_MODELS_REFINER",
		apply:   func(cfg *Config, v any) { cfg.Models.Refiner = v.(string) },
		extract: func(cfg Config) any { return cfg.Models.Refiner },
	},
	{
		key: "models.validator", typ: kString, env: "PROMPTFABRIC_MODELS_VALIDATOR",
		apply:   func(cfg *Config, v any) { cfg.Models.Validator = v.(string) },
		extract: func(cfg Config) any { return cfg.Models.Validator },
	},
	{
		key: "models.embed", typ: kString, env: "PROMPTFABRIC_MODELS_EMBED",
		apply:   func(cfg *Config, v any) { cfg.Models.Embed = v.(string) },
		extract: func(cfg Config) any { return cfg.Models.Embed },
	},
	{
		key: "generation.temperature", typ: kFloat, env: "PROMPTFABRIC_GENERATION_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Generation.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Generation.Temperature },
	},
	{
		key: "generation.max_tokens", typ: kInt, env: "PROMPTFABRIC_GENERATION_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Generation.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.MaxTokens },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "PROMPTFABRIC_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "prompt.max_chars", typ: kInt, env: "PROMPTFABRIC_PROMPT_MAX_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Prompt.MaxChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Prompt.MaxChars },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PROMPTFABRIC_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "PROMPTFABRIC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
