package dispatch

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/mdl/shill-utilities/internal/domain"
	"github.com/mdl/shill-utilities/internal/infra/metrics"
	"github.com/mdl/shill-utilities/internal/usecase/flood"
	"github.com/mdl/shill-utilities/internal/usecase/peers"
	"github.com/mdl/shill-utilities/internal/usecase/templates"
)

// MinActivityPeriod — нижняя граница периода любой активности.
const MinActivityPeriod = time.Minute

// newTicker выдаёт канал тиков и функцию остановки; подменяется в тестах
// для детерминированного времени.
var newTicker = func(period time.Duration) (<-chan time.Time, func()) {
	ticker := time.NewTicker(period)
	return ticker.C, ticker.Stop
}

// Schedule запускает задачу с фиксированным периодом и возвращает функцию
// остановки. Задача выполняется в цикле тикера, поэтому очередной логический
// тик рассматривается только после завершения предыдущего вызова.
func Schedule(ctx context.Context, period time.Duration, task func(ctx context.Context)) func() {
	if period < MinActivityPeriod {
		period = MinActivityPeriod
	}
	ticks, stop := newTicker(period)
	tctx, cancel := context.WithCancel(ctx)
	go func() {
		defer stop()
		for {
			select {
			case <-tctx.Done():
				return
			case <-ticks:
				task(tctx)
			}
		}
	}()
	return cancel
}

// Config задаёт периоды активностей и набор сообщений для автопостинга.
type Config struct {
	Messages              []string
	RefreshPeersEvery     time.Duration
	PostEvery             time.Duration
	RefreshTemplatesEvery time.Duration
}

// Scheduler владеет таймерами активностей одной учётки: refresh-peers,
// post-message и refresh-templates. Сбой активности логируется и не отменяет
// её будущие срабатывания.
type Scheduler struct {
	log       zerolog.Logger
	acc       *domain.Account
	gate      *flood.Gate
	peers     *peers.Service
	templates *templates.Service // nil, если шаблоны учётке не нужны
	cfg       Config
	rng       *rand.Rand
}

// NewScheduler создаёт планировщик активностей учётки.
func NewScheduler(log zerolog.Logger, acc *domain.Account, gate *flood.Gate, peersSvc *peers.Service, templatesSvc *templates.Service, cfg Config, rng *rand.Rand) *Scheduler {
	return &Scheduler{log: log, acc: acc, gate: gate, peers: peersSvc, templates: templatesSvc, cfg: cfg, rng: rng}
}

// Run выполняет первичный refresh-peers и крутит таймеры до отмены контекста.
// Таймер заводится только для настроенных активностей: без сообщений нет
// post-message, без сервиса шаблонов нет refresh-templates.
func (s *Scheduler) Run(ctx context.Context) {
	s.RefreshPeers(ctx)

	stops := []func(){
		Schedule(ctx, s.cfg.RefreshPeersEvery, s.RefreshPeers),
	}
	if len(s.cfg.Messages) > 0 {
		stops = append(stops, Schedule(ctx, s.cfg.PostEvery, s.PostMessage))
	}
	if s.templates != nil {
		stops = append(stops, Schedule(ctx, s.cfg.RefreshTemplatesEvery, s.RefreshTemplates))
	}
	<-ctx.Done()
	for _, stop := range stops {
		stop()
	}
}

// RefreshPeers перестраивает пул пиров учётки.
func (s *Scheduler) RefreshPeers(ctx context.Context) {
	if err := s.peers.Refresh(ctx, s.acc); err != nil {
		s.log.Error().Err(err).
			Str("account", s.acc.Name).
			Msg("dispatch: не удалось перестроить пул")
	}
}

// PostMessage отправляет случайное сообщение в случайный пир пула. При
// исходах Skipped/Rejected/Failed подозревается устаревший пул и запускается
// внеочередной refresh-peers.
func (s *Scheduler) PostMessage(ctx context.Context) {
	if len(s.cfg.Messages) == 0 {
		s.log.Warn().
			Str("account", s.acc.Name).
			Msg("dispatch: список сообщений пуст, отправка пропущена")
		return
	}
	peer, ok := s.acc.Pool.Random(s.rng)
	if !ok {
		s.log.Warn().
			Str("account", s.acc.Name).
			Msg("dispatch: пул пуст, отправка пропущена")
		s.RefreshPeers(ctx)
		return
	}
	text := s.cfg.Messages[s.rng.Intn(len(s.cfg.Messages))]

	res := s.gate.AttemptSend(ctx, s.acc.Name, func() error {
		return s.acc.Transport.SendMessage(ctx, peer.Handle, text, 0)
	})
	metrics.SendAttemptsTotal.WithLabelValues(s.acc.Name, res.Outcome.String()).Inc()

	switch res.Outcome {
	case domain.SendSent, domain.SendRetried:
		s.log.Info().
			Str("account", s.acc.Name).
			Str("peer", peer.ID).
			Str("outcome", res.Outcome.String()).
			Msg("dispatch: сообщение отправлено")
	case domain.SendRejected:
		s.acc.Pool.Remove(peer.ID)
		s.log.Warn().
			Str("account", s.acc.Name).
			Str("peer", peer.ID).
			Str("kind", string(res.Reject)).
			Msg("dispatch: пир отклонён и исключён из пула")
		s.RefreshPeers(ctx)
	case domain.SendSkipped:
		s.log.Debug().
			Str("account", s.acc.Name).
			Str("peer", peer.ID).
			Msg("dispatch: учётка под флуд-паузой, цикл пропущен")
		s.RefreshPeers(ctx)
	case domain.SendFailed:
		s.log.Error().Err(res.Err).
			Str("account", s.acc.Name).
			Str("peer", peer.ID).
			Msg("dispatch: ошибка отправки, пир сохранён")
		s.RefreshPeers(ctx)
	}
}

// RefreshTemplates обновляет кэш шаблонов.
func (s *Scheduler) RefreshTemplates(ctx context.Context) {
	if s.templates == nil {
		return
	}
	if err := s.templates.Refresh(ctx); err != nil {
		s.log.Error().Err(err).
			Str("account", s.acc.Name).
			Msg("dispatch: не удалось обновить шаблоны")
	}
}
