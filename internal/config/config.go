package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/sykelle/myanimelist-bot/internal/domain"
)

// Load loads configuration from multiple sources:
// 1. Config file (config.yaml, optional)
// 2. Environment variables (MALBOT_*)
func Load() (*domain.Config, error) {
	viper.SetDefault("listen_addr", ":5000")
	viper.SetDefault("data_dir", ".")
	viper.SetDefault("state_file", "state.json")
	viper.SetDefault("temp_dir", "temp")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("rate_limit_backoff", 5*time.Minute)
	viper.SetDefault("cycle_timeout", 10*time.Minute)

	cfg := &domain.Config{
		MalUsername: viper.GetString("mal_username"),
		MalClientID: viper.GetString("mal_client_id"),

		TwitterConsumerKey:       viper.GetString("twitter_consumer_key"),
		TwitterConsumerSecret:    viper.GetString("twitter_consumer_secret"),
		TwitterAccessToken:       viper.GetString("twitter_access_token"),
		TwitterAccessTokenSecret: viper.GetString("twitter_access_token_secret"),

		ListenAddr: viper.GetString("listen_addr"),
		DataDir:    viper.GetString("data_dir"),
		StateFile:  viper.GetString("state_file"),
		TempDir:    viper.GetString("temp_dir"),
		LogLevel:   viper.GetString("log_level"),

		RateLimitBackoff: viper.GetDuration("rate_limit_backoff"),
		CycleTimeout:     viper.GetDuration("cycle_timeout"),
	}

	if cfg.MalUsername == "" {
		return nil, fmt.Errorf("mal_username is required (set via config.yaml or MALBOT_MAL_USERNAME environment variable)")
	}
	if cfg.MalClientID == "" {
		return nil, fmt.Errorf("mal_client_id is required (set via config.yaml or MALBOT_MAL_CLIENT_ID environment variable)")
	}

	twitterCreds := map[string]string{
		"twitter_consumer_key":        cfg.TwitterConsumerKey,
		"twitter_consumer_secret":     cfg.TwitterConsumerSecret,
		"twitter_access_token":        cfg.TwitterAccessToken,
		"twitter_access_token_secret": cfg.TwitterAccessTokenSecret,
	}
	for name, v := range twitterCreds {
		if v == "" {
			return nil, fmt.Errorf("%s is required (set via config.yaml or MALBOT_%s environment variable)", name, envName(name))
		}
	}

	return cfg, nil
}

func envName(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
