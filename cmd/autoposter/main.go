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
	"github.com/rs/zerolog"

	"github.com/mdl/shill-utilities/internal/adapters/mtproto"
	"github.com/mdl/shill-utilities/internal/adapters/repo"
	"github.com/mdl/shill-utilities/internal/domain"
	"github.com/mdl/shill-utilities/internal/infra/config"
	"github.com/mdl/shill-utilities/internal/infra/db"
	applog "github.com/mdl/shill-utilities/internal/infra/log"
	"github.com/mdl/shill-utilities/internal/infra/metrics"
	"github.com/mdl/shill-utilities/internal/usecase/dispatch"
	"github.com/mdl/shill-utilities/internal/usecase/flood"
	"github.com/mdl/shill-utilities/internal/usecase/peers"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "autoposter")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	if len(cfg.Posting.Messages) == 0 {
		logger.Fatal().Msg("autoposter: не задан список сообщений (MESSAGES)")
	}

	specs := buildAccountSpecs(ctx, cfg, logger)
	accounts, err := mtproto.ConnectAll(ctx, specs, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("autoposter: не удалось подключить учётки")
	}
	if len(accounts) == 0 {
		logger.Fatal().Msg("autoposter: нет подключённых учёток")
	}

	gate := flood.NewGate(logger.With().Str("component", "flood").Logger())
	peersSvc := peers.NewService(
		logger.With().Str("component", "peers").Logger(),
		peers.Policy{GroupsOnly: cfg.Posting.GroupsOnly},
	)
	dispatchCfg := dispatch.Config{
		Messages:          cfg.Posting.Messages,
		RefreshPeersEvery: time.Duration(cfg.Posting.RefreshPeersMin) * time.Minute,
		PostEvery:         time.Duration(cfg.Posting.PostIntervalMin) * time.Minute,
	}

	var wg sync.WaitGroup
	for i, acc := range accounts {
		account := &domain.Account{Name: acc.Name(), Transport: acc, Pool: domain.NewPeerPool()}
		rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(i)))
		sched := dispatch.NewScheduler(
			logger.With().Str("component", "dispatch").Str("account", account.Name).Logger(),
			account, gate, peersSvc, nil, dispatchCfg, rng,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	}

	logger.Info().Int("accounts", len(accounts)).Msg("autoposter: запущен")
	wg.Wait()
	logger.Info().Msg("autoposter: остановлен")
}

// buildAccountSpecs собирает параметры учёток: из Postgres-пула при заданном
// PG_DSN, иначе из окружения с файловыми сессиями.
func buildAccountSpecs(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) []mtproto.Options {
	if cfg.Telegram.APIID == 0 || cfg.Telegram.APIHash == "" {
		logger.Fatal().Msg("autoposter: не заданы TG_API_ID/TG_API_HASH")
	}

	if cfg.PGDSN != "" {
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("autoposter: нет подключения к БД")
		}
		repoAdapter := repo.NewPostgres(pool)
		if err := repoAdapter.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("autoposter: не удалось подготовить схему")
		}
		metas, err := repoAdapter.ListMTProtoAccounts(ctx, cfg.MTProto.Pool)
		if err != nil {
			logger.Fatal().Err(err).Msg("autoposter: не удалось загрузить пул учёток")
		}
		if len(metas) == 0 {
			logger.Fatal().Str("pool", cfg.MTProto.Pool).Msg("autoposter: пул учёток пуст")
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
		logger.Fatal().Msg("autoposter: не задан список учёток (MTPROTO_ACCOUNTS)")
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
