package mtproto

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/mdl/shill-utilities/internal/domain"
	"github.com/mdl/shill-utilities/internal/infra/metrics"
)

// SendMessage отправляет текст в пир; replyTo > 0 оформляет отправку как
// ответ. Ошибки платформы приводятся к таксономии ядра.
func (a *Account) SendMessage(ctx context.Context, handle domain.SendHandle, text string, replyTo int) error {
	peer, ok := handle.(tg.InputPeerClass)
	if !ok {
		return &domain.PeerRejectedError{Kind: domain.RejectInvalidPeer}
	}

	randomID, err := randomID()
	if err != nil {
		return fmt.Errorf("random_id: %w", err)
	}
	req := &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: randomID,
	}
	if replyTo > 0 {
		req.SetReplyTo(&tg.InputReplyToMessage{ReplyToMsgID: replyTo})
	}

	start := time.Now()
	_, err = a.api.MessagesSendMessage(ctx, req)
	metrics.ObserveNetworkRequest("mtproto", "messages_send_message", a.name, start, err)
	return mapSendErr(err)
}

// mapSendErr переводит ошибку RPC в таксономию ядра: флуд-пауза, перманентный
// отказ уровня пира либо прочая ошибка как есть.
func mapSendErr(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &domain.FloodWaitError{Wait: wait}
	}
	switch {
	case tgerr.Is(err, "CHAT_WRITE_FORBIDDEN"):
		return &domain.PeerRejectedError{Kind: domain.RejectWriteForbidden}
	case tgerr.Is(err, "CHAT_ADMIN_REQUIRED"):
		return &domain.PeerRejectedError{Kind: domain.RejectAdminRequired}
	case tgerr.Is(err, "USER_BANNED_IN_CHANNEL", "CHANNEL_PRIVATE", "CHAT_RESTRICTED"):
		return &domain.PeerRejectedError{Kind: domain.RejectBanned}
	case tgerr.Is(err, "PEER_ID_INVALID", "CHAT_ID_INVALID", "MSG_ID_INVALID"):
		return &domain.PeerRejectedError{Kind: domain.RejectInvalidPeer}
	case tgerr.Is(err, "USER_IS_BLOCKED", "YOU_BLOCKED_USER"):
		return &domain.PeerRejectedError{Kind: domain.RejectBlockedByUser}
	}
	return err
}

func randomID() (int64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}
