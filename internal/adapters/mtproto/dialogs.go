package mtproto

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"

	"github.com/mdl/shill-utilities/internal/domain"
	"github.com/mdl/shill-utilities/internal/infra/metrics"
)

const dialogsPageSize = 100

// ListConversations выгружает полный список диалогов учётки. Классификатору
// нужна вся пачка целиком, поэтому страницы дочитываются до конца.
func (a *Account) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var (
		out        []domain.Conversation
		offsetDate int
		offsetID   int
		offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}
	)

	for {
		start := time.Now()
		res, err := a.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      dialogsPageSize,
		})
		metrics.ObserveNetworkRequest("mtproto", "messages_get_dialogs", a.name, start, err)
		if err != nil {
			return nil, fmt.Errorf("messages.getDialogs: %w", err)
		}

		var (
			dialogs  []tg.DialogClass
			messages []tg.MessageClass
			chats    []tg.ChatClass
			users    []tg.UserClass
		)
		switch page := res.(type) {
		case *tg.MessagesDialogs:
			dialogs, messages, chats, users = page.Dialogs, page.Messages, page.Chats, page.Users
		case *tg.MessagesDialogsSlice:
			dialogs, messages, chats, users = page.Dialogs, page.Messages, page.Chats, page.Users
		case *tg.MessagesDialogsNotModified:
			return out, nil
		default:
			return nil, fmt.Errorf("messages.getDialogs: неожиданный ответ %T", res)
		}
		if len(dialogs) == 0 {
			return out, nil
		}

		ents := newEntitySet(chats, users)
		for _, d := range dialogs {
			conv, ok := ents.conversation(d)
			if !ok {
				continue
			}
			out = append(out, conv)
		}

		if len(dialogs) < dialogsPageSize {
			return out, nil
		}
		var ok bool
		offsetDate, offsetID, offsetPeer, ok = nextDialogsOffset(dialogs, messages, ents)
		if !ok {
			return out, nil
		}
	}
}

// nextDialogsOffset вычисляет смещение следующей страницы из верхнего
// сообщения последнего диалога.
func nextDialogsOffset(dialogs []tg.DialogClass, messages []tg.MessageClass, ents *entitySet) (int, int, tg.InputPeerClass, bool) {
	last, ok := dialogs[len(dialogs)-1].(*tg.Dialog)
	if !ok {
		return 0, 0, nil, false
	}
	peer, ok := ents.inputPeer(last.Peer)
	if !ok {
		return 0, 0, nil, false
	}
	for _, mc := range messages {
		if mc.GetID() != last.TopMessage {
			continue
		}
		switch m := mc.(type) {
		case *tg.Message:
			if peerStringID(m.PeerID) == peerStringID(last.Peer) {
				return m.Date, m.ID, peer, true
			}
		case *tg.MessageService:
			if peerStringID(m.PeerID) == peerStringID(last.Peer) {
				return m.Date, m.ID, peer, true
			}
		}
	}
	return 0, 0, nil, false
}
