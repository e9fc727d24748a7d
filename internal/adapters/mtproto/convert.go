package mtproto

import (
	"strings"

	"github.com/gotd/td/tg"

	"github.com/mdl/shill-utilities/internal/domain"
)

// entitySet индексирует сущности одной страницы ответа API. Запрещённые и
// пустые варианты (ChatForbidden, ChannelForbidden, UserEmpty) намеренно не
// индексируются: диалог без сущности неразрешим.
type entitySet struct {
	users    map[int64]*tg.User
	chats    map[int64]*tg.Chat
	channels map[int64]*tg.Channel
}

func newEntitySet(chats []tg.ChatClass, users []tg.UserClass) *entitySet {
	e := &entitySet{
		users:    map[int64]*tg.User{},
		chats:    map[int64]*tg.Chat{},
		channels: map[int64]*tg.Channel{},
	}
	for _, c := range chats {
		switch chat := c.(type) {
		case *tg.Chat:
			e.chats[chat.ID] = chat
		case *tg.Channel:
			e.channels[chat.ID] = chat
		}
	}
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			e.users[user.ID] = user
		}
	}
	return e
}

// conversation приводит диалог к закрытому варианту ядра. Второе значение
// false — элемент вовсе не диалог (папка) и пропускается.
func (e *entitySet) conversation(d tg.DialogClass) (domain.Conversation, bool) {
	dlg, ok := d.(*tg.Dialog)
	if !ok {
		return domain.Conversation{}, false
	}

	switch peer := dlg.Peer.(type) {
	case *tg.PeerUser:
		user, ok := e.users[peer.UserID]
		if !ok {
			return domain.Conversation{ID: peer.UserID}, true
		}
		return domain.Conversation{
			Kind:           domain.KindDirectUser,
			ID:             user.ID,
			Title:          displayName(user),
			CounterpartBot: user.Bot,
			Handle:         &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash},
		}, true
	case *tg.PeerChat:
		chat, ok := e.chats[peer.ChatID]
		if !ok {
			return domain.Conversation{ID: peer.ChatID}, true
		}
		rights, _ := chat.GetDefaultBannedRights()
		return domain.Conversation{
			Kind:           domain.KindBasicGroup,
			ID:             chat.ID,
			Title:          chat.Title,
			Left:           chat.Left,
			Deactivated:    chat.Deactivated,
			SendRestricted: rights.SendMessages,
			Handle:         &tg.InputPeerChat{ChatID: chat.ID},
		}, true
	case *tg.PeerChannel:
		channel, ok := e.channels[peer.ChannelID]
		if !ok {
			return domain.Conversation{ID: peer.ChannelID}, true
		}
		// Всё канального вида, что не помечено супергруппой, вещательное.
		kind := domain.KindBroadcast
		if channel.Megagroup {
			kind = domain.KindMegagroup
		}
		restricted := false
		if rights, ok := channel.GetDefaultBannedRights(); ok && rights.SendMessages {
			restricted = true
		}
		if rights, ok := channel.GetBannedRights(); ok && rights.SendMessages {
			restricted = true
		}
		return domain.Conversation{
			Kind:           kind,
			ID:             channel.ID,
			Title:          channel.Title,
			Left:           channel.Left,
			SendRestricted: restricted,
			Handle:         &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash},
		}, true
	}
	return domain.Conversation{}, false
}

// inputPeer строит InputPeer для сырого peer по сущностям набора.
func (e *entitySet) inputPeer(p tg.PeerClass) (tg.InputPeerClass, bool) {
	switch peer := p.(type) {
	case *tg.PeerUser:
		if user, ok := e.users[peer.UserID]; ok {
			return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, true
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: peer.ChatID}, true
	case *tg.PeerChannel:
		if channel, ok := e.channels[peer.ChannelID]; ok {
			return &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}, true
		}
	}
	return nil, false
}

// peerStringID переводит сырой peer в идентификатор формы Peer.ID.
func peerStringID(p tg.PeerClass) string {
	switch peer := p.(type) {
	case *tg.PeerUser:
		return domain.PeerID(domain.KindDirectUser, peer.UserID)
	case *tg.PeerChat:
		return domain.PeerID(domain.KindBasicGroup, peer.ChatID)
	case *tg.PeerChannel:
		return domain.PeerID(domain.KindMegagroup, peer.ChannelID)
	}
	return ""
}

func displayName(user *tg.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name != "" {
		return name
	}
	return user.Username
}
