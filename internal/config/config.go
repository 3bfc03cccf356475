package config

type Config struct {
	Server     ServerConfig
	Provider   ProviderConfig
	Models     ModelsConfig
	Generation GenerationConfig
	Retrieval  RetrievalConfig
	Prompt     PromptConfig
	Storage    StorageConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

// ProviderConfig selects and tunes the inference backend. Kind is "ollama"
// or "lm_studio"; both base URLs stay configured so the status endpoint can
// probe the inactive backend too.
type ProviderConfig struct {
	Kind            string
	OllamaBaseURL   string
	LMStudioBaseURL string
	TimeoutSeconds  int
	MaxRetries      int
}

// ModelsConfig names the model for each pipeline role plus the embedding
// model used by retrieval.
type ModelsConfig struct {
	Generator string
	Refiner   string
	Validator string
	Embed     string
}

type GenerationConfig struct {
	Temperature float64
	MaxTokens   int
}

type RetrievalConfig struct {
	TopK int
}

type PromptConfig struct {
	MaxChars int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Provider: ProviderConfig{
			Kind:            "ollama",
			OllamaBaseURL:   "http://localhost:11434",
			LMStudioBaseURL: "http://localhost:1234",
			TimeoutSeconds:  120,
			MaxRetries:      3,
		},
		Models: ModelsConfig{
			Generator: "llama3.2:3b",
			Refiner:   "gemma:2b",
			Validator: "phi3:3.8b",
			Embed:     "nomic-embed-text",
		},
		Generation: GenerationConfig{
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Prompt: PromptConfig{
			MaxChars: 8000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend with
// environment variable overrides.
//
// On macOS the backend is UserDefaults (domain: com.promptfabric.app).
// On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/promptfabric/config.json.
//
// Environment variables (PROMPTFABRIC_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}
