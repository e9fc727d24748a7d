package coordinate

import (
	"context"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mdl/shill-utilities/internal/domain"
	"github.com/mdl/shill-utilities/internal/infra/cache"
	"github.com/mdl/shill-utilities/internal/usecase/flood"
	"github.com/mdl/shill-utilities/internal/usecase/templates"
)

type sentCall struct {
	text    string
	replyTo int
}

type fakeTransport struct {
	identity string
	texts    []string
	sent     []sentCall
	sendErr  error
	handlers []domain.MessageHandler
}

func (f *fakeTransport) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	return nil, nil
}

func (f *fakeTransport) SendMessage(ctx context.Context, handle domain.SendHandle, text string, replyTo int) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentCall{text: text, replyTo: replyTo})
	return nil
}

func (f *fakeTransport) RecentMessages(ctx context.Context, source string, limit int) ([]string, error) {
	return f.texts, nil
}

func (f *fakeTransport) SubscribeNewMessages(handler domain.MessageHandler) {
	f.handlers = append(f.handlers, handler)
}

func (f *fakeTransport) SelfIdentity() string { return f.identity }

type stubHandle struct{}

func newAccount(name, identity string, peerIDs ...string) (*domain.Account, *fakeTransport) {
	transport := &fakeTransport{identity: identity}
	acc := &domain.Account{Name: name, Transport: transport, Pool: domain.NewPeerPool()}
	peers := make([]domain.Peer, 0, len(peerIDs))
	for _, id := range peerIDs {
		peers = append(peers, domain.Peer{ID: id, Handle: stubHandle{}, AccountOwner: name})
	}
	acc.Pool.Replace(peers)
	return acc, transport
}

func newTestCoordinator(t *testing.T, accounts []*domain.Account, ignore float64) *Coordinator {
	t.Helper()
	watcher := accounts[0].Transport
	tmpl := templates.NewService(zerolog.Nop(), watcher, templates.NewCache(), "@src", 10)
	tmpl.Cache().Replace([]string{"отлично"})
	c := NewCoordinator(
		zerolog.Nop(),
		accounts,
		flood.NewGate(zerolog.Nop()),
		tmpl,
		cache.NewMemory(),
		ignore,
		rand.New(rand.NewSource(3)),
	)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("не удалось запустить координатор: %v", err)
	}
	return c
}

func totalSent(transports ...*fakeTransport) int {
	n := 0
	for _, tr := range transports {
		n += len(tr.sent)
	}
	return n
}

func TestCommonPeerIDs(t *testing.T) {
	a, _ := newAccount("a1", "user_1", "chat_1", "chat_2", "channel_3")
	b, _ := newAccount("a2", "user_2", "chat_2", "channel_3", "chat_9")

	common := CommonPeerIDs([]*domain.Account{a, b})
	if len(common) != 2 {
		t.Fatalf("ожидали пересечение из двух пиров, получили %d", len(common))
	}
	for _, id := range []string{"chat_2", "channel_3"} {
		if _, ok := common[id]; !ok {
			t.Fatalf("пир %s должен быть в пересечении", id)
		}
	}

	b.Pool.Replace(nil)
	if got := CommonPeerIDs([]*domain.Account{a, b}); len(got) != 0 {
		t.Fatal("пустой пул любой учётки делает пересечение пустым")
	}
	if got := CommonPeerIDs(nil); len(got) != 0 {
		t.Fatal("без учёток пересечение пусто")
	}
}

func TestHandleMessageReplies(t *testing.T) {
	a, ta := newAccount("a1", "user_1", "chat_1")
	b, tb := newAccount("a2", "user_2", "chat_1")
	c := newTestCoordinator(t, []*domain.Account{a, b}, 0)

	c.HandleMessage(context.Background(), domain.IncomingMessage{
		ConversationID: "chat_1", MessageID: 77, AuthorID: "user_555",
	})

	if totalSent(ta, tb) != 1 {
		t.Fatalf("ожидали ровно один ответ, получили %d", totalSent(ta, tb))
	}
	var call sentCall
	if len(ta.sent) == 1 {
		call = ta.sent[0]
	} else {
		call = tb.sent[0]
	}
	if call.replyTo != 77 {
		t.Fatalf("ответ должен ссылаться на сообщение 77, получили %d", call.replyTo)
	}
	if call.text != "отлично" {
		t.Fatalf("ответ должен браться из кэша шаблонов, получили %q", call.text)
	}
}

func TestHandleMessageIgnoresOwnAccounts(t *testing.T) {
	a, ta := newAccount("a1", "user_1", "chat_1")
	b, tb := newAccount("a2", "user_2", "chat_1")
	c := newTestCoordinator(t, []*domain.Account{a, b}, 0)

	// Ни одна управляемая учётка не должна вызывать ответ, включая наблюдателя.
	for _, author := range []string{"user_1", "user_2"} {
		c.HandleMessage(context.Background(), domain.IncomingMessage{
			ConversationID: "chat_1", MessageID: 1, AuthorID: author,
		})
	}
	if totalSent(ta, tb) != 0 {
		t.Fatal("сообщения собственных учёток должны игнорироваться")
	}
}

func TestHandleMessageOutsideCommonSet(t *testing.T) {
	a, ta := newAccount("a1", "user_1", "chat_1")
	b, tb := newAccount("a2", "user_2", "chat_1")
	c := newTestCoordinator(t, []*domain.Account{a, b}, 0)

	c.HandleMessage(context.Background(), domain.IncomingMessage{
		ConversationID: "chat_42", MessageID: 1, AuthorID: "user_555",
	})
	if totalSent(ta, tb) != 0 {
		t.Fatal("события вне пересечения пулов должны отбрасываться")
	}
}

func TestHandleMessageThrottledAtFullProbability(t *testing.T) {
	a, ta := newAccount("a1", "user_1", "chat_1")
	c := newTestCoordinator(t, []*domain.Account{a}, 1)

	for i := 0; i < 50; i++ {
		c.HandleMessage(context.Background(), domain.IncomingMessage{
			ConversationID: "chat_1", MessageID: i + 1, AuthorID: "user_555",
		})
	}
	if totalSent(ta) != 0 {
		t.Fatal("при вероятности игнорирования 1 ответов быть не должно")
	}
}

func TestHandleMessageDeduplicates(t *testing.T) {
	a, ta := newAccount("a1", "user_1", "chat_1")
	c := newTestCoordinator(t, []*domain.Account{a}, 0)

	msg := domain.IncomingMessage{ConversationID: "chat_1", MessageID: 5, AuthorID: "user_555"}
	c.HandleMessage(context.Background(), msg)
	c.HandleMessage(context.Background(), msg)

	if totalSent(ta) != 1 {
		t.Fatalf("на одно сообщение полагается один ответ, получили %d", totalSent(ta))
	}
}

func TestHandleMessageStalePoolDrops(t *testing.T) {
	a, ta := newAccount("a1", "user_1", "chat_1")
	c := newTestCoordinator(t, []*domain.Account{a}, 0)

	// Снимок пересечения сделан, после чего пул учётки опустел.
	a.Pool.Replace(nil)
	c.HandleMessage(context.Background(), domain.IncomingMessage{
		ConversationID: "chat_1", MessageID: 1, AuthorID: "user_555",
	})
	if totalSent(ta) != 0 {
		t.Fatal("выпавший из пула пир не должен получать ответ")
	}
}

func TestHandleMessageRefreshesEmptyTemplates(t *testing.T) {
	a, ta := newAccount("a1", "user_1", "chat_1")
	ta.texts = []string{"свежий шаблон"}

	tmpl := templates.NewService(zerolog.Nop(), ta, templates.NewCache(), "@src", 10)
	c := NewCoordinator(
		zerolog.Nop(),
		[]*domain.Account{a},
		flood.NewGate(zerolog.Nop()),
		tmpl,
		cache.NewMemory(),
		0,
		rand.New(rand.NewSource(3)),
	)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("не удалось запустить координатор: %v", err)
	}

	c.HandleMessage(context.Background(), domain.IncomingMessage{
		ConversationID: "chat_1", MessageID: 9, AuthorID: "user_555",
	})

	if totalSent(ta) != 1 {
		t.Fatalf("после внепланового обновления ответ должен уйти, отправок: %d", totalSent(ta))
	}
	if ta.sent[0].text != "свежий шаблон" {
		t.Fatalf("ответ должен использовать обновлённый кэш, получили %q", ta.sent[0].text)
	}
}

func TestHandleMessageRejectedRemovesPeer(t *testing.T) {
	a, ta := newAccount("a1", "user_1", "chat_1")
	ta.sendErr = &domain.PeerRejectedError{Kind: domain.RejectBanned}
	c := newTestCoordinator(t, []*domain.Account{a}, 0)

	c.HandleMessage(context.Background(), domain.IncomingMessage{
		ConversationID: "chat_1", MessageID: 1, AuthorID: "user_555",
	})
	if _, ok := a.Pool.Get("chat_1"); ok {
		t.Fatal("отклонённый пир должен быть исключён из пула учётки")
	}
}

func TestStartWithoutAccounts(t *testing.T) {
	c := NewCoordinator(
		zerolog.Nop(), nil, flood.NewGate(zerolog.Nop()), nil, cache.NewMemory(), 0,
		rand.New(rand.NewSource(1)),
	)
	if err := c.Start(context.Background()); err != ErrNoAccounts {
		t.Fatalf("ожидали ErrNoAccounts, получили %v", err)
	}
}

func TestStartSubscribesWatcher(t *testing.T) {
	a, ta := newAccount("a1", "user_1", "chat_1")
	b, tb := newAccount("a2", "user_2", "chat_1")
	newTestCoordinator(t, []*domain.Account{a, b}, 0)

	if len(ta.handlers) != 1 {
		t.Fatalf("наблюдатель должен получить одну подписку, получил %d", len(ta.handlers))
	}
	if len(tb.handlers) != 0 {
		t.Fatal("подписывается только наблюдающая учётка")
	}
}
