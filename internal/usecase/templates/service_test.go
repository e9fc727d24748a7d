package templates

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mdl/shill-utilities/internal/domain"
)

type fakeTransport struct {
	texts     []string
	recentErr error
	lastLimit int
}

func (f *fakeTransport) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	return nil, nil
}

func (f *fakeTransport) SendMessage(ctx context.Context, handle domain.SendHandle, text string, replyTo int) error {
	return nil
}

func (f *fakeTransport) RecentMessages(ctx context.Context, source string, limit int) ([]string, error) {
	f.lastLimit = limit
	return f.texts, f.recentErr
}

func (f *fakeTransport) SubscribeNewMessages(handler domain.MessageHandler) {}

func (f *fakeTransport) SelfIdentity() string { return "user_1" }

func TestRefreshReplacesCache(t *testing.T) {
	transport := &fakeTransport{texts: []string{"  ", "привет", "", "как дела"}}
	cache := NewCache()
	cache.Replace([]string{"старый"})

	svc := NewService(zerolog.Nop(), transport, cache, "@src", 100)
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cache.Len() != 2 {
		t.Fatalf("ожидали два шаблона после очистки пустых, получили %d", cache.Len())
	}
	rng := rand.New(rand.NewSource(1))
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		text, ok := cache.Pick(rng)
		if !ok {
			t.Fatal("непустой кэш обязан выдать шаблон")
		}
		seen[text] = true
	}
	if len(seen) != 2 || !seen["привет"] || !seen["как дела"] {
		t.Fatalf("неожиданное содержимое кэша: %v", seen)
	}
}

func TestRefreshEmptyFetchKeepsCache(t *testing.T) {
	transport := &fakeTransport{texts: []string{"", "   "}}
	cache := NewCache()
	cache.Replace([]string{"прежний"})

	svc := NewService(zerolog.Nop(), transport, cache, "@src", 100)
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("пустая выборка не ошибка: %v", err)
	}
	if cache.Len() != 1 {
		t.Fatal("пустая выборка должна сохранить прежний кэш")
	}
}

func TestRefreshErrorKeepsCache(t *testing.T) {
	transport := &fakeTransport{recentErr: errors.New("источник недоступен")}
	cache := NewCache()
	cache.Replace([]string{"прежний"})

	svc := NewService(zerolog.Nop(), transport, cache, "@src", 100)
	if err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("ожидали ошибку источника")
	}
	if cache.Len() != 1 {
		t.Fatal("при ошибке выгрузки кэш должен остаться прежним")
	}
}

func TestLimitClamped(t *testing.T) {
	transport := &fakeTransport{texts: []string{"т"}}
	for limit, want := range map[int]int{-5: 1, 0: 1, 100: 100, 10_000: 500} {
		svc := NewService(zerolog.Nop(), transport, NewCache(), "@src", limit)
		if err := svc.Refresh(context.Background()); err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
		if transport.lastLimit != want {
			t.Fatalf("limit=%d: ожидали запрос %d сообщений, получили %d", limit, want, transport.lastLimit)
		}
	}
}

func TestCachePick(t *testing.T) {
	cache := NewCache()
	rng := rand.New(rand.NewSource(1))
	if _, ok := cache.Pick(rng); ok {
		t.Fatal("пустой кэш не должен выдавать шаблон")
	}

	cache.Replace([]string{"один", "два"})
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		text, ok := cache.Pick(rng)
		if !ok {
			t.Fatal("непустой кэш обязан выдать шаблон")
		}
		seen[text] = true
	}
	if !seen["один"] || !seen["два"] {
		t.Fatalf("выбор должен покрывать все шаблоны, видели %v", seen)
	}
}
