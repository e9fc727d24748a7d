package mtproto

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/mdl/shill-utilities/internal/domain"
)

// Options описывает параметры одной MTProto-учётки.
type Options struct {
	Name    string
	APIID   int
	APIHash string
	Storage telegram.SessionStorage
}

// Account реализует domain.Transport поверх авторизованной gotd-сессии.
type Account struct {
	name       string
	client     *telegram.Client
	api        *tg.Client
	log        zerolog.Logger
	dispatcher tg.UpdateDispatcher

	mu       sync.RWMutex
	self     *tg.User
	handlers []domain.MessageHandler
}

var _ domain.Transport = (*Account)(nil)

// NewAccount создаёт клиента учётки. Сессия должна быть авторизована
// заранее; логин-процедура сюда не входит.
func NewAccount(opts Options, log zerolog.Logger) *Account {
	dispatcher := tg.NewUpdateDispatcher()
	client := telegram.NewClient(opts.APIID, opts.APIHash, telegram.Options{
		SessionStorage: opts.Storage,
		UpdateHandler:  dispatcher,
	})
	a := &Account{
		name:       opts.Name,
		client:     client,
		api:        client.API(),
		log:        log,
		dispatcher: dispatcher,
	}
	a.dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		a.deliver(ctx, u.Message)
		return nil
	})
	a.dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		a.deliver(ctx, u.Message)
		return nil
	})
	return a
}

// Name возвращает имя учётки.
func (a *Account) Name() string {
	return a.name
}

// Connect запускает клиента в фоне и дожидается авторизации. Ошибка
// авторизации фатальна для запуска: сессия обязана быть валидной.
func (a *Account) Connect(ctx context.Context) error {
	ready := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		errCh <- a.client.Run(ctx, func(ctx context.Context) error {
			status, err := a.client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("статус авторизации: %w", err)
			}
			if !status.Authorized {
				return fmt.Errorf("учётка %s: сессия не авторизована", a.name)
			}
			a.mu.Lock()
			a.self = status.User
			a.mu.Unlock()
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		a.log.Info().
			Str("account", a.name).
			Str("identity", a.SelfIdentity()).
			Msg("mtproto: учётка подключена")
		return nil
	case err := <-errCh:
		if err == nil {
			err = errors.New("клиент завершился до авторизации")
		}
		return fmt.Errorf("подключение %s: %w", a.name, err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SelfIdentity возвращает собственную идентичность учётки в форме Peer.ID.
func (a *Account) SelfIdentity() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.self == nil {
		return ""
	}
	return domain.UserPeerID(a.self.ID)
}

// SubscribeNewMessages регистрирует обработчик входящих сообщений.
func (a *Account) SubscribeNewMessages(handler domain.MessageHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, handler)
}

// deliver переводит обновление в событие ядра и раздаёт его обработчикам.
// Паника обработчика гасится, подписка остаётся живой.
func (a *Account) deliver(ctx context.Context, msg tg.MessageClass) {
	m, ok := msg.(*tg.Message)
	if !ok || m.Out {
		return
	}

	convID := peerStringID(m.PeerID)
	if convID == "" {
		return
	}
	author := convID
	if from, ok := m.GetFromID(); ok {
		author = peerStringID(from)
	}
	event := domain.IncomingMessage{
		ConversationID: convID,
		MessageID:      m.ID,
		AuthorID:       author,
	}

	a.mu.RLock()
	handlers := make([]domain.MessageHandler, len(a.handlers))
	copy(handlers, a.handlers)
	a.mu.RUnlock()

	for _, handler := range handlers {
		a.invoke(ctx, handler, event)
	}
}

func (a *Account) invoke(ctx context.Context, handler domain.MessageHandler, event domain.IncomingMessage) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().
				Interface("panic", r).
				Str("account", a.name).
				Str("conversation", event.ConversationID).
				Msg("mtproto: паника обработчика события")
		}
	}()
	handler(ctx, event)
}

// ConnectAll последовательно подключает все учётки; первая же ошибка
// прерывает запуск.
func ConnectAll(ctx context.Context, specs []Options, log zerolog.Logger) ([]*Account, error) {
	accounts := make([]*Account, 0, len(specs))
	for _, spec := range specs {
		acc := NewAccount(spec, log)
		if err := acc.Connect(ctx); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}
