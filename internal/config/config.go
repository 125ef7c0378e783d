package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               string
	DBConnectionString string
	ScaffoldsFile      string
	LogLevel           string
	GitHub             *GitHubConfig
	Provision          *ProvisionConfig
}

func Load() (*Config, error) {
	gh := DefaultGitHubConfig()
	gh.Token = getEnv("GITHUB_TOKEN", "")
	gh.Org = getEnv("GITHUB_ORG", "")
	gh.APIBaseURL = getEnv("GITHUB_API_URL", gh.APIBaseURL)
	gh.APIVersion = getEnv("GITHUB_API_VERSION", gh.APIVersion)

	var err error
	if gh.RequestTimeout, err = getSeconds("GITHUB_REQUEST_TIMEOUT_SECONDS", gh.RequestTimeout); err != nil {
		return nil, err
	}
	if gh.RateLimit.MaxRetries, err = getInt("GITHUB_MAX_RETRIES", gh.RateLimit.MaxRetries); err != nil {
		return nil, err
	}

	prov := DefaultProvisionConfig()
	if prov.BlobWorkers, err = getInt("PROVISION_BLOB_WORKERS", prov.BlobWorkers); err != nil {
		return nil, err
	}
	if prov.SettleTimeout, err = getSeconds("PROVISION_SETTLE_TIMEOUT_SECONDS", prov.SettleTimeout); err != nil {
		return nil, err
	}
	if prov.FallbackDelay, err = getSeconds("PROVISION_FALLBACK_DELAY_SECONDS", prov.FallbackDelay); err != nil {
		return nil, err
	}
	if prov.MaxGenerationAttempts, err = getInt("PROVISION_MAX_GENERATION_ATTEMPTS", prov.MaxGenerationAttempts); err != nil {
		return nil, err
	}
	pollMillis, err := getInt("PROVISION_POLL_INTERVAL_MS", int(prov.PollInterval/time.Millisecond))
	if err != nil {
		return nil, err
	}
	prov.PollInterval = time.Duration(pollMillis) * time.Millisecond
	delayMillis, err := getInt("PROVISION_BLOB_DELAY_MS", int(prov.BlobDelay/time.Millisecond))
	if err != nil {
		return nil, err
	}
	prov.BlobDelay = time.Duration(delayMillis) * time.Millisecond

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DBConnectionString: getEnv("DB_CONNECTION_STRING", ""),
		ScaffoldsFile:      getEnv("SCAFFOLDS_FILE", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		GitHub:             gh,
		Provision:          prov,
	}, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

func getSeconds(key string, defaultValue time.Duration) (time.Duration, error) {
	seconds, err := getInt(key, int(defaultValue/time.Second))
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}
