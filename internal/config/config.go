package config

import "fmt"

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type StorageConfig struct {
	// DataDir holds the SQLite database and the vector index file.
	DataDir string
	// ReportsDir is the default directory scanned on ingest. Empty means
	// a directory must be supplied per request or on the command line.
	ReportsDir string
}

type RetrievalConfig struct {
	TopK      int
	Threshold float64
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4400,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:      10,
			Threshold: 0.3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, then applies
// environment variable overrides.
//
// On macOS the backend is UserDefaults (domain: com.basisfind.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/basisfind/config.json.
//
// Environment variables (BASISFIND_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("invalid retrieval.top_k %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.Threshold < 0 || cfg.Retrieval.Threshold > 1 {
		return fmt.Errorf("invalid retrieval.threshold %v, want a value in [0,1]", cfg.Retrieval.Threshold)
	}
	if cfg.Ollama.BaseURL == "" {
		return fmt.Errorf("ollama.base_url must not be empty")
	}
	if cfg.Ollama.EmbedModel == "" {
		return fmt.Errorf("ollama.embed_model must not be empty")
	}
	return nil
}
