package peers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mdl/shill-utilities/internal/domain"
	"github.com/mdl/shill-utilities/internal/infra/metrics"
)

// Service перестраивает пулы пиров по результатам классификации.
type Service struct {
	log    zerolog.Logger
	policy Policy
}

// NewService создаёт сервис классификации.
func NewService(log zerolog.Logger, policy Policy) *Service {
	return &Service{log: log, policy: policy}
}

// Refresh перечитывает диалоги учётки и атомарно заменяет её пул. Ошибка
// разбора одного диалога не прерывает проход — диалог пропускается.
func (s *Service) Refresh(ctx context.Context, acc *domain.Account) error {
	convs, err := acc.Transport.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("список диалогов: %w", err)
	}

	eligible := make([]domain.Peer, 0, len(convs))
	for _, conv := range convs {
		verdict := s.classifyOne(conv)
		if !verdict.Eligible() {
			s.log.Debug().
				Str("account", acc.Name).
				Str("peer", domain.PeerID(conv.Kind, conv.ID)).
				Str("reason", string(verdict.Reason)).
				Msg("peers: диалог непригоден")
			continue
		}
		peer := verdict.Peer
		peer.AccountOwner = acc.Name
		eligible = append(eligible, peer)
	}

	acc.Pool.Replace(eligible)
	metrics.PeerPoolSize.WithLabelValues(acc.Name).Set(float64(acc.Pool.Len()))
	s.log.Info().
		Str("account", acc.Name).
		Int("total", len(convs)).
		Int("eligible", len(eligible)).
		Msg("peers: пул перестроен")
	return nil
}

// classifyOne оборачивает Classify: сбой разбора одного диалога гасится и
// превращается в вердикт parse-error, остальная пачка не страдает.
func (s *Service) classifyOne(conv domain.Conversation) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Int64("conversation", conv.ID).
				Msg("peers: сбой классификации диалога")
			verdict = Verdict{Reason: domain.ReasonParseError}
		}
	}()
	return Classify(conv, s.policy)
}
