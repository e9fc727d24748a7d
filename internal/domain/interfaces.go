package domain

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss возвращается кэшем, если ключ не найден.
var ErrCacheMiss = errors.New("кэш: ключ не найден")

// IncomingMessage — событие нового входящего сообщения от транспорта.
// Идентификаторы диалога и автора записаны в той же форме, что и Peer.ID.
type IncomingMessage struct {
	ConversationID string
	MessageID      int
	AuthorID       string
}

// MessageHandler обрабатывает одно входящее сообщение. Паника обработчика
// не должна снимать подписку — транспорт её перехватывает.
type MessageHandler func(ctx context.Context, msg IncomingMessage)

// Transport — то, что ядру нужно от авторизованной сессии платформы.
type Transport interface {
	// ListConversations возвращает полный список диалогов учётки.
	ListConversations(ctx context.Context) ([]Conversation, error)
	// SendMessage отправляет текст в пир; replyTo > 0 делает отправку
	// ответом на указанное сообщение. Ошибки приведены к таксономии ядра:
	// *FloodWaitError, *PeerRejectedError либо прочая ошибка.
	SendMessage(ctx context.Context, handle SendHandle, text string, replyTo int) error
	// RecentMessages возвращает тексты последних сообщений источника.
	RecentMessages(ctx context.Context, source string, limit int) ([]string, error)
	// SubscribeNewMessages регистрирует обработчик входящих сообщений.
	SubscribeNewMessages(handler MessageHandler)
	// SelfIdentity возвращает собственную идентичность учётки ("user_<n>").
	SelfIdentity() string
}

// Account объединяет транспорт, идентичность и пул пиров одной учётки.
type Account struct {
	Name      string
	Transport Transport
	Pool      *PeerPool
}

// Identity возвращает собственную идентичность учётки.
func (a *Account) Identity() string {
	return a.Transport.SelfIdentity()
}

// Cache — простое TTL-хранилище для одноразовых замков.
type Cache interface {
	// Once выполняет функцию, если ключ ещё не занят; при ошибке функции
	// замок снимается.
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}

// MTProtoAccount — учётка MTProto из пула в хранилище.
type MTProtoAccount struct {
	Name    string
	Pool    string
	APIID   int
	APIHash string
}

// SessionRepo хранит MTProto-сессии и состав пула учёток.
type SessionRepo interface {
	LoadMTProtoSession(ctx context.Context, name string) ([]byte, error)
	StoreMTProtoSession(ctx context.Context, name string, data []byte) error
	ListMTProtoAccounts(ctx context.Context, pool string) ([]MTProtoAccount, error)
}
