package domain

import "time"

// Config holds all runtime settings. Values come from environment
// variables (MALBOT_*) or an optional config file via viper.
type Config struct {
	MalUsername string `mapstructure:"mal_username"`
	MalClientID string `mapstructure:"mal_client_id"`

	TwitterConsumerKey       string `mapstructure:"twitter_consumer_key"`
	TwitterConsumerSecret    string `mapstructure:"twitter_consumer_secret"`
	TwitterAccessToken       string `mapstructure:"twitter_access_token"`
	TwitterAccessTokenSecret string `mapstructure:"twitter_access_token_secret"`

	ListenAddr string `mapstructure:"listen_addr"`
	DataDir    string `mapstructure:"data_dir"`
	StateFile  string `mapstructure:"state_file"`
	TempDir    string `mapstructure:"temp_dir"`
	LogLevel   string `mapstructure:"log_level"`

	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
	CycleTimeout     time.Duration `mapstructure:"cycle_timeout"`
}
