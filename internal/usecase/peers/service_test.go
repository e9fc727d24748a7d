package peers

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mdl/shill-utilities/internal/domain"
)

type fakeTransport struct {
	convs   []domain.Conversation
	listErr error
}

func (f *fakeTransport) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	return f.convs, f.listErr
}

func (f *fakeTransport) SendMessage(ctx context.Context, handle domain.SendHandle, text string, replyTo int) error {
	return nil
}

func (f *fakeTransport) RecentMessages(ctx context.Context, source string, limit int) ([]string, error) {
	return nil, nil
}

func (f *fakeTransport) SubscribeNewMessages(handler domain.MessageHandler) {}

func (f *fakeTransport) SelfIdentity() string { return "user_1" }

func TestRefreshReplacesPool(t *testing.T) {
	transport := &fakeTransport{convs: []domain.Conversation{
		{Kind: domain.KindMegagroup, ID: 10, Handle: stubHandle{}},
		{Kind: domain.KindBroadcast, ID: 20, Handle: stubHandle{}},
		{Kind: domain.KindBasicGroup, ID: 30, Left: true, Handle: stubHandle{}},
	}}
	acc := &domain.Account{Name: "a1", Transport: transport, Pool: domain.NewPeerPool()}
	acc.Pool.Replace([]domain.Peer{{ID: "chat_999"}})

	svc := NewService(zerolog.Nop(), Policy{GroupsOnly: true})
	if err := svc.Refresh(context.Background(), acc); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if acc.Pool.Len() != 1 {
		t.Fatalf("ожидали один пригодный пир, получили %d", acc.Pool.Len())
	}
	peer, ok := acc.Pool.Get("channel_10")
	if !ok {
		t.Fatal("супергруппа должна попасть в пул")
	}
	if peer.AccountOwner != "a1" {
		t.Fatalf("пир должен нести имя учётки, получили %q", peer.AccountOwner)
	}
	if _, ok := acc.Pool.Get("chat_999"); ok {
		t.Fatal("прежнее содержимое пула должно быть вытеснено целиком")
	}
}

func TestRefreshKeepsPoolOnListError(t *testing.T) {
	transport := &fakeTransport{listErr: errors.New("сеть недоступна")}
	acc := &domain.Account{Name: "a1", Transport: transport, Pool: domain.NewPeerPool()}
	acc.Pool.Replace([]domain.Peer{{ID: "chat_1"}})

	svc := NewService(zerolog.Nop(), Policy{GroupsOnly: true})
	if err := svc.Refresh(context.Background(), acc); err == nil {
		t.Fatal("ожидали ошибку списка диалогов")
	}
	if acc.Pool.Len() != 1 {
		t.Fatal("при ошибке обновления пул должен остаться прежним")
	}
}
