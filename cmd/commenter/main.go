package main

import (
	"context"
	"math/rand"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gotd/td/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mdl/shill-utilities/internal/adapters/mtproto"
	"github.com/mdl/shill-utilities/internal/adapters/repo"
	"github.com/mdl/shill-utilities/internal/domain"
	"github.com/mdl/shill-utilities/internal/infra/cache"
	"github.com/mdl/shill-utilities/internal/infra/config"
	"github.com/mdl/shill-utilities/internal/infra/db"
	applog "github.com/mdl/shill-utilities/internal/infra/log"
	"github.com/mdl/shill-utilities/internal/infra/metrics"
	"github.com/mdl/shill-utilities/internal/usecase/coordinate"
	"github.com/mdl/shill-utilities/internal/usecase/dispatch"
	"github.com/mdl/shill-utilities/internal/usecase/flood"
	"github.com/mdl/shill-utilities/internal/usecase/peers"
	"github.com/mdl/shill-utilities/internal/usecase/templates"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "commenter")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	if cfg.Comments.Source == "" {
		logger.Fatal().Msg("commenter: не задан источник шаблонов (COMMENTS_SOURCE)")
	}
	if cfg.Comments.IgnoreProbability < 0 || cfg.Comments.IgnoreProbability > 1 {
		logger.Fatal().Float64("value", cfg.Comments.IgnoreProbability).
			Msg("commenter: IGNORE_PROBABILITY вне диапазона [0, 1]")
	}

	specs := buildAccountSpecs(ctx, cfg, logger)
	connected, err := mtproto.ConnectAll(ctx, specs, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("commenter: не удалось подключить учётки")
	}
	if len(connected) == 0 {
		logger.Fatal().Msg("commenter: нет подключённых учёток")
	}

	gate := flood.NewGate(logger.With().Str("component", "flood").Logger())
	peersSvc := peers.NewService(
		logger.With().Str("component", "peers").Logger(),
		peers.Policy{GroupsOnly: cfg.Posting.GroupsOnly},
	)

	accounts := make([]*domain.Account, 0, len(connected))
	for _, acc := range connected {
		account := &domain.Account{Name: acc.Name(), Transport: acc, Pool: domain.NewPeerPool()}
		// Стартовое построение пулов: без него снимок общих пиров пуст
		// и координатору нечего обслуживать.
		if err := peersSvc.Refresh(ctx, account); err != nil {
			logger.Fatal().Err(err).Str("account", account.Name).
				Msg("commenter: не удалось построить стартовый пул")
		}
		accounts = append(accounts, account)
	}

	watcher := accounts[0]
	tmplSvc := templates.NewService(
		logger.With().Str("component", "templates").Logger(),
		watcher.Transport,
		templates.NewCache(),
		cfg.Comments.Source,
		cfg.Comments.MaxHistory,
	)
	if err := tmplSvc.Refresh(ctx); err != nil {
		logger.Error().Err(err).Msg("commenter: стартовое обновление шаблонов")
	}

	var dedup domain.Cache
	if cfg.RedisAddr != "" {
		dedup = cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	} else {
		dedup = cache.NewMemory()
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	coordinator := coordinate.NewCoordinator(
		logger.With().Str("component", "coordinate").Logger(),
		accounts, gate, tmplSvc, dedup, cfg.Comments.IgnoreProbability, rng,
	)
	if err := coordinator.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("commenter: не удалось запустить координатор")
	}

	// Периодика уходит планировщикам: refresh-peers у каждой учётки,
	// refresh-templates у наблюдателя. Сообщений для автопостинга нет,
	// поэтому post-message таймеры не заводятся.
	dispatchCfg := dispatch.Config{
		RefreshPeersEvery:     time.Duration(cfg.Posting.RefreshPeersMin) * time.Minute,
		RefreshTemplatesEvery: time.Duration(cfg.Comments.RefreshMin) * time.Minute,
	}
	var wg sync.WaitGroup
	for i, account := range accounts {
		var accTemplates *templates.Service
		if account == watcher {
			accTemplates = tmplSvc
		}
		sched := dispatch.NewScheduler(
			logger.With().Str("component", "dispatch").Str("account", account.Name).Logger(),
			account, gate, peersSvc, accTemplates, dispatchCfg,
			rand.New(rand.NewSource(time.Now().UnixNano()+int64(i))),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	}

	logger.Info().Int("accounts", len(accounts)).Msg("commenter: запущен")
	wg.Wait()
	logger.Info().Msg("commenter: остановлен")
}

// buildAccountSpecs собирает параметры учёток: из Postgres-пула при заданном
// PG_DSN, иначе из окружения с файловыми сессиями.
func buildAccountSpecs(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) []mtproto.Options {
	if cfg.Telegram.APIID == 0 || cfg.Telegram.APIHash == "" {
		logger.Fatal().Msg("commenter: не заданы TG_API_ID/TG_API_HASH")
	}

	if cfg.PGDSN != "" {
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("commenter: нет подключения к БД")
		}
		repoAdapter := repo.NewPostgres(pool)
		if err := repoAdapter.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("commenter: не удалось подготовить схему")
		}
		metas, err := repoAdapter.ListMTProtoAccounts(ctx, cfg.MTProto.Pool)
		if err != nil {
			logger.Fatal().Err(err).Msg("commenter: не удалось загрузить пул учёток")
		}
		if len(metas) == 0 {
			logger.Fatal().Str("pool", cfg.MTProto.Pool).Msg("commenter: пул учёток пуст")
		}
		specs := make([]mtproto.Options, 0, len(metas))
		for _, meta := range metas {
			apiID, apiHash := meta.APIID, meta.APIHash
			if apiID == 0 {
				apiID = cfg.Telegram.APIID
			}
			if apiHash == "" {
				apiHash = cfg.Telegram.APIHash
			}
			specs = append(specs, mtproto.Options{
				Name:    meta.Name,
				APIID:   apiID,
				APIHash: apiHash,
				Storage: mtproto.NewSessionDB(repoAdapter, meta.Name),
			})
		}
		return specs
	}

	if len(cfg.MTProto.Accounts) == 0 {
		logger.Fatal().Msg("commenter: не задан список учёток (MTPROTO_ACCOUNTS)")
	}
	specs := make([]mtproto.Options, 0, len(cfg.MTProto.Accounts))
	for _, name := range cfg.MTProto.Accounts {
		specs = append(specs, mtproto.Options{
			Name:    name,
			APIID:   cfg.Telegram.APIID,
			APIHash: cfg.Telegram.APIHash,
			Storage: &session.FileStorage{Path: filepath.Join(cfg.MTProto.SessionDir, name+".session")},
		})
	}
	return specs
}
