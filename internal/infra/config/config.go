package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`

	Telegram struct {
		APIID   int    `envconfig:"TG_API_ID"`
		APIHash string `envconfig:"TG_API_HASH"`
	} `envconfig:""`

	MTProto struct {
		Pool       string   `envconfig:"MTPROTO_POOL" default:"default"`
		SessionDir string   `envconfig:"MTPROTO_SESSION_DIR" default:"sessions"`
		Accounts   []string `envconfig:"MTPROTO_ACCOUNTS"`
	} `envconfig:""`

	Posting struct {
		GroupsOnly      bool     `envconfig:"GROUPS_ONLY" default:"false"`
		Messages        []string `envconfig:"MESSAGES"`
		RefreshPeersMin int      `envconfig:"REFRESH_PEERS_INTERVAL_MIN" default:"30"`
		PostIntervalMin int      `envconfig:"POST_INTERVAL_MIN" default:"60"`
	} `envconfig:""`

	Comments struct {
		Source            string  `envconfig:"COMMENTS_SOURCE"`
		RefreshMin        int     `envconfig:"COMMENTS_REFRESH_MIN" default:"30"`
		IgnoreProbability float64 `envconfig:"IGNORE_PROBABILITY" default:"0"`
		MaxHistory        int     `envconfig:"MAX_COMMENT_HISTORY" default:"100"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
