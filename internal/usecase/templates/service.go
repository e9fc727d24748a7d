package templates

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mdl/shill-utilities/internal/domain"
	"github.com/mdl/shill-utilities/internal/infra/metrics"
)

// Границы количества выгружаемых сообщений источника.
const (
	minHistory = 1
	maxHistory = 500
)

// Service обновляет кэш шаблонов из назначенного диалога-источника.
type Service struct {
	log       zerolog.Logger
	transport domain.Transport
	cache     *Cache
	source    string
	limit     int
}

// NewService создаёт сервис обновления шаблонов; limit приводится
// к диапазону [1, 500].
func NewService(log zerolog.Logger, transport domain.Transport, cache *Cache, source string, limit int) *Service {
	if limit < minHistory {
		limit = minHistory
	}
	if limit > maxHistory {
		limit = maxHistory
	}
	return &Service{log: log, transport: transport, cache: cache, source: source, limit: limit}
}

// Cache возвращает обслуживаемый кэш.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Refresh выгружает последние сообщения источника и заменяет кэш целиком.
// Пустая выборка отбрасывается: прежний набор лучше деградации в пустоту.
func (s *Service) Refresh(ctx context.Context) error {
	texts, err := s.transport.RecentMessages(ctx, s.source, s.limit)
	if err != nil {
		return fmt.Errorf("история источника %s: %w", s.source, err)
	}

	fresh := make([]string, 0, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text != "" {
			fresh = append(fresh, text)
		}
	}
	if len(fresh) == 0 {
		s.log.Warn().
			Str("source", s.source).
			Msg("templates: пустая выборка, прежний кэш сохранён")
		return nil
	}

	s.cache.Replace(fresh)
	metrics.TemplateCacheSize.Set(float64(len(fresh)))
	s.log.Info().
		Str("source", s.source).
		Int("count", len(fresh)).
		Msg("templates: кэш шаблонов обновлён")
	return nil
}
