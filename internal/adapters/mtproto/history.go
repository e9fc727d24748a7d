package mtproto

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gotd/td/tg"

	"github.com/mdl/shill-utilities/internal/infra/metrics"
)

// ErrAliasInvalid возвращается для неразборчивого алиаса источника.
var ErrAliasInvalid = errors.New("некорректный алиас")

const historyPageSize = 100

var aliasRegex = regexp.MustCompile(`(?i)^(?:@|https?://t\.me/|t\.me/)?([a-z0-9_]{5,})$`)

// parseAlias приводит ссылку или @-упоминание к каноничному алиасу.
func parseAlias(input string) (string, error) {
	trim := strings.TrimSpace(input)
	matches := aliasRegex.FindStringSubmatch(trim)
	if len(matches) < 2 {
		return "", ErrAliasInvalid
	}
	return strings.ToLower(matches[1]), nil
}

// RecentMessages возвращает тексты последних limit сообщений источника,
// от новых к старым. Сервисные сообщения пропускаются.
func (a *Account) RecentMessages(ctx context.Context, source string, limit int) ([]string, error) {
	if limit < 1 {
		limit = 1
	}
	peer, err := a.resolveSource(ctx, source)
	if err != nil {
		return nil, err
	}

	var (
		out      []string
		offsetID int
	)
	for len(out) < limit {
		page := historyPageSize
		if rest := limit - len(out); rest < page {
			page = rest
		}
		start := time.Now()
		res, err := a.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    page,
		})
		metrics.ObserveNetworkRequest("mtproto", "messages_get_history", a.name, start, err)
		if err != nil {
			return nil, fmt.Errorf("messages.getHistory: %w", err)
		}

		var messages []tg.MessageClass
		switch h := res.(type) {
		case *tg.MessagesMessages:
			messages = h.Messages
		case *tg.MessagesMessagesSlice:
			messages = h.Messages
		case *tg.MessagesChannelMessages:
			messages = h.Messages
		case *tg.MessagesMessagesNotModified:
			return out, nil
		default:
			return nil, fmt.Errorf("messages.getHistory: неожиданный ответ %T", res)
		}
		if len(messages) == 0 {
			return out, nil
		}

		for _, mc := range messages {
			offsetID = mc.GetID()
			if m, ok := mc.(*tg.Message); ok {
				out = append(out, m.Message)
			}
		}
		if len(messages) < page {
			return out, nil
		}
	}
	return out, nil
}

// resolveSource находит InputPeer диалога-источника по алиасу.
func (a *Account) resolveSource(ctx context.Context, source string) (tg.InputPeerClass, error) {
	alias, err := parseAlias(source)
	if err != nil {
		return nil, fmt.Errorf("источник %q: %w", source, err)
	}

	start := time.Now()
	resolved, err := a.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: alias,
	})
	metrics.ObserveNetworkRequest("mtproto", "contacts_resolve_username", a.name, start, err)
	if err != nil {
		return nil, fmt.Errorf("contacts.resolveUsername %s: %w", alias, err)
	}

	ents := newEntitySet(resolved.Chats, resolved.Users)
	peer, ok := ents.inputPeer(resolved.Peer)
	if !ok {
		return nil, fmt.Errorf("источник %s: сущность не разрешена", alias)
	}
	return peer, nil
}
