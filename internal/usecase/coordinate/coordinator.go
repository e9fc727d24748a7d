package coordinate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mdl/shill-utilities/internal/domain"
	"github.com/mdl/shill-utilities/internal/infra/metrics"
	"github.com/mdl/shill-utilities/internal/usecase/flood"
	"github.com/mdl/shill-utilities/internal/usecase/templates"
)

// ErrNoAccounts возвращается при запуске координатора без учёток.
var ErrNoAccounts = errors.New("нет подключённых учёток")

// dedupTTL ограничивает время жизни замка «ответ на сообщение уже выдан».
const dedupTTL = 24 * time.Hour

// CommonPeerIDs возвращает пересечение идентификаторов пиров всех пулов.
// Пустой пул любой учётки делает пересечение пустым.
func CommonPeerIDs(accounts []*domain.Account) map[string]struct{} {
	common := map[string]struct{}{}
	if len(accounts) == 0 {
		return common
	}
	for _, id := range accounts[0].Pool.IDs() {
		common[id] = struct{}{}
	}
	for _, acc := range accounts[1:] {
		next := map[string]struct{}{}
		for _, id := range acc.Pool.IDs() {
			if _, ok := common[id]; ok {
				next[id] = struct{}{}
			}
		}
		common = next
	}
	return common
}

// Coordinator ведёт совместное реактивное комментирование нескольких учёток:
// слушает события через одну наблюдающую учётку и отвечает в общие пиры от
// имени случайной учётки.
type Coordinator struct {
	log       zerolog.Logger
	accounts  []*domain.Account
	gate      *flood.Gate
	templates *templates.Service
	dedup     domain.Cache

	common  map[string]struct{}
	selves  map[string]struct{}
	ignore  float64
	rng     *rand.Rand
}

// NewCoordinator создаёт координатор. ignoreProbability в [0, 1] — доля
// подходящих событий, отбрасываемых для прореживания реакции.
func NewCoordinator(log zerolog.Logger, accounts []*domain.Account, gate *flood.Gate, templatesSvc *templates.Service, dedup domain.Cache, ignoreProbability float64, rng *rand.Rand) *Coordinator {
	selves := make(map[string]struct{}, len(accounts))
	for _, acc := range accounts {
		selves[acc.Identity()] = struct{}{}
	}
	return &Coordinator{
		log:       log,
		accounts:  accounts,
		gate:      gate,
		templates: templatesSvc,
		dedup:     dedup,
		common:    map[string]struct{}{},
		selves:    selves,
		ignore:    ignoreProbability,
		rng:       rng,
	}
}

// SnapshotCommonPeers фиксирует пересечение пулов. Снимок делается один раз
// после стартового построения пулов и дальше не пересчитывается: последующие
// индивидуальные refresh-ы пулов на него не влияют.
func (c *Coordinator) SnapshotCommonPeers() {
	c.common = CommonPeerIDs(c.accounts)
	metrics.CommonPeerSetSize.Set(float64(len(c.common)))
	c.log.Info().
		Int("accounts", len(c.accounts)).
		Int("common", len(c.common)).
		Msg("coordinate: снимок общих пиров зафиксирован")
}

// Start фиксирует снимок общих пиров и подписывает наблюдающую учётку
// (первую в списке) на входящие сообщения.
func (c *Coordinator) Start(ctx context.Context) error {
	if len(c.accounts) == 0 {
		return ErrNoAccounts
	}
	c.SnapshotCommonPeers()
	watcher := c.accounts[0]
	watcher.Transport.SubscribeNewMessages(c.HandleMessage)
	c.log.Info().
		Str("watcher", watcher.Name).
		Msg("coordinate: подписка на события оформлена")
	return nil
}

// HandleMessage обрабатывает одно входящее событие. Любая ошибка или паника
// гасится: подписка наблюдателя должна пережить каждое событие.
func (c *Coordinator) HandleMessage(ctx context.Context, msg domain.IncomingMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().
				Interface("panic", r).
				Str("conversation", msg.ConversationID).
				Msg("coordinate: сбой обработчика события")
		}
	}()

	if _, ok := c.common[msg.ConversationID]; !ok {
		return
	}
	if _, ok := c.selves[msg.AuthorID]; ok {
		// Защита от петли: управляемая учётка не отвечает ни себе, ни
		// другой учётке того же пула.
		metrics.CommentEventsTotal.WithLabelValues("self").Inc()
		return
	}
	if c.rng.Float64() < c.ignore {
		metrics.CommentEventsTotal.WithLabelValues("throttled").Inc()
		return
	}

	evLog := c.log.With().
		Str("event_id", uuid.NewString()).
		Str("conversation", msg.ConversationID).
		Int("message", msg.MessageID).
		Logger()

	text, ok := c.templates.Cache().Pick(c.rng)
	if !ok {
		if err := c.templates.Refresh(ctx); err != nil {
			evLog.Error().Err(err).Msg("coordinate: внеплановое обновление шаблонов")
		}
		text, ok = c.templates.Cache().Pick(c.rng)
		if !ok {
			metrics.CommentEventsTotal.WithLabelValues("no_template").Inc()
			evLog.Warn().Msg("coordinate: шаблонов нет, событие отброшено")
			return
		}
	}

	acc := c.accounts[c.rng.Intn(len(c.accounts))]
	peer, ok := acc.Pool.Get(msg.ConversationID)
	if !ok {
		// Пул устарел относительно снимка пересечения.
		metrics.CommentEventsTotal.WithLabelValues("stale_pool").Inc()
		evLog.Warn().Str("account", acc.Name).Msg("coordinate: пир выпал из пула, событие отброшено")
		return
	}

	key := fmt.Sprintf("reply:%s:%d", msg.ConversationID, msg.MessageID)
	err := c.dedup.Once(key, dedupTTL, func() error {
		c.reply(ctx, evLog, acc, peer, text, msg.MessageID)
		return nil
	})
	if err != nil {
		evLog.Error().Err(err).Msg("coordinate: дедупликация ответа")
	}
}

func (c *Coordinator) reply(ctx context.Context, evLog zerolog.Logger, acc *domain.Account, peer domain.Peer, text string, replyTo int) {
	res := c.gate.TrySend(ctx, acc.Name, func() error {
		return acc.Transport.SendMessage(ctx, peer.Handle, text, replyTo)
	})
	metrics.SendAttemptsTotal.WithLabelValues(acc.Name, res.Outcome.String()).Inc()

	switch res.Outcome {
	case domain.SendSent:
		metrics.CommentEventsTotal.WithLabelValues("replied").Inc()
		evLog.Info().Str("account", acc.Name).Msg("coordinate: ответ отправлен")
	case domain.SendSkipped:
		metrics.CommentEventsTotal.WithLabelValues("flood").Inc()
		evLog.Debug().Str("account", acc.Name).Msg("coordinate: флуд-пауза, событие отброшено")
	case domain.SendRejected:
		acc.Pool.Remove(peer.ID)
		metrics.CommentEventsTotal.WithLabelValues("rejected").Inc()
		evLog.Warn().
			Str("account", acc.Name).
			Str("kind", string(res.Reject)).
			Msg("coordinate: пир отклонён и исключён из пула")
	case domain.SendFailed:
		metrics.CommentEventsTotal.WithLabelValues("failed").Inc()
		evLog.Error().Err(res.Err).Str("account", acc.Name).Msg("coordinate: ошибка отправки ответа")
	}
}
