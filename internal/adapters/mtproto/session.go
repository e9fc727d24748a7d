package mtproto

import (
	"context"

	"github.com/gotd/td/telegram"

	"github.com/mdl/shill-utilities/internal/domain"
)

// SessionDB хранит сессию учётки через domain.SessionRepo.
type SessionDB struct {
	repo domain.SessionRepo
	name string
}

var _ telegram.SessionStorage = (*SessionDB)(nil)

// NewSessionDB создаёт хранилище сессии для указанной учётки.
func NewSessionDB(repo domain.SessionRepo, name string) *SessionDB {
	return &SessionDB{repo: repo, name: name}
}

// LoadSession загружает сессию.
func (s *SessionDB) LoadSession(ctx context.Context) ([]byte, error) {
	return s.repo.LoadMTProtoSession(ctx, s.name)
}

// StoreSession сохраняет сессию.
func (s *SessionDB) StoreSession(ctx context.Context, data []byte) error {
	return s.repo.StoreMTProtoSession(ctx, s.name, data)
}
