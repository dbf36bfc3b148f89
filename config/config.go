package config

import (
	"flag"
	"os"
	"sync"
)

const (
	defaultServerAddress  = ":8080"
	defaultDataDir        = "./photoflow-data"
	defaultCommerceAddr   = "https://api.kite.ly"
	defaultImageStoreAddr = "https://image.kite.ly"
	defaultArtifactAddr   = "https://photobook-builder.herokuapp.com"
	defaultCommerceAPIKey = ""
	defaultLogLevel       = "debug"
)

type Config struct {
	ServerAddr     string
	DataDir        string
	CommerceAddr   string
	ImageStoreAddr string
	ArtifactAddr   string
	CommerceAPIKey string
	LogLevel       string
}

var (
	once      sync.Once
	singleton *Config
)

// New returns new Config. It parses command line and environment variables only once.
func New() (*Config, error) {
	once.Do(func() {
		cfg := Config{}

		// initialize flags
		flag.StringVar(&cfg.ServerAddr, "a", defaultServerAddress, "photoflow server address")
		flag.StringVar(&cfg.DataDir, "d", defaultDataDir, "directory for persisted orders and upload tasks")
		flag.StringVar(&cfg.CommerceAddr, "c", defaultCommerceAddr, "commerce backend address")
		flag.StringVar(&cfg.ImageStoreAddr, "i", defaultImageStoreAddr, "image store address")
		flag.StringVar(&cfg.ArtifactAddr, "p", defaultArtifactAddr, "artifact builder address")
		flag.StringVar(&cfg.CommerceAPIKey, "k", defaultCommerceAPIKey, "commerce backend API key")
		flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")

		flag.Parse()

		// if environment variable is set, then using it
		if runAddrEnv := os.Getenv("RUN_ADDRESS"); runAddrEnv != "" {
			cfg.ServerAddr = runAddrEnv
		}
		if dataDirEnv := os.Getenv("DATA_DIR"); dataDirEnv != "" {
			cfg.DataDir = dataDirEnv
		}
		if commerceAddrEnv := os.Getenv("COMMERCE_API_ADDRESS"); commerceAddrEnv != "" {
			cfg.CommerceAddr = commerceAddrEnv
		}
		if imageStoreAddrEnv := os.Getenv("IMAGE_STORE_ADDRESS"); imageStoreAddrEnv != "" {
			cfg.ImageStoreAddr = imageStoreAddrEnv
		}
		if artifactAddrEnv := os.Getenv("ARTIFACT_API_ADDRESS"); artifactAddrEnv != "" {
			cfg.ArtifactAddr = artifactAddrEnv
		}
		if apiKeyEnv := os.Getenv("COMMERCE_API_KEY"); apiKeyEnv != "" {
			cfg.CommerceAPIKey = apiKeyEnv
		}
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			cfg.LogLevel = logLevelEnv
		}

		singleton = &cfg
	})

	return singleton, nil
}
