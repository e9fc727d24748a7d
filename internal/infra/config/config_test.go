package config

import (
	"testing"

	"github.com/kelseyhightower/envconfig"
)

func TestDefaults(t *testing.T) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if cfg.MTProto.Pool != "default" {
		t.Fatalf("ожидали пул default, получили %q", cfg.MTProto.Pool)
	}
	if cfg.MTProto.SessionDir != "sessions" {
		t.Fatalf("ожидали каталог sessions, получили %q", cfg.MTProto.SessionDir)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Fatalf("ожидали адрес :9090, получили %q", cfg.MetricsAddr)
	}
}

func TestPoolFromEnv(t *testing.T) {
	t.Setenv("MTPROTO_POOL", "farm1")
	t.Setenv("MTPROTO_SESSION_DIR", "/var/lib/sessions")

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if cfg.MTProto.Pool != "farm1" {
		t.Fatalf("MTPROTO_POOL должен выбирать пул учёток, получили %q", cfg.MTProto.Pool)
	}
	if cfg.MTProto.SessionDir != "/var/lib/sessions" {
		t.Fatalf("каталог сессий задаётся отдельно, получили %q", cfg.MTProto.SessionDir)
	}
}
