package domain

import "fmt"

// ConversationKind задаёт закрытый набор видов диалогов. Транспорт приводит
// сырые сущности Telegram к этому набору на своей границе, ядро не видит
// типов MTProto.
type ConversationKind int

const (
	// KindUnresolved помечает диалог без валидной сущности или права отправки.
	KindUnresolved ConversationKind = iota
	// KindDirectUser — личный диалог один-на-один.
	KindDirectUser
	// KindBasicGroup — обычная (малая) группа.
	KindBasicGroup
	// KindMegagroup — обсуждаемый вариант канала (супергруппа).
	KindMegagroup
	// KindBroadcast — вещательный канал, неразговорный.
	KindBroadcast
)

// SendHandle — непрозрачный токен права отправки. Выдаётся транспортом и
// понятен только ему.
type SendHandle interface{}

// Conversation — сырые метаданные диалога, прочитанные у платформы.
// Ядро их только читает, владеет ими транспорт.
type Conversation struct {
	Kind           ConversationKind
	ID             int64
	Title          string
	Left           bool
	Deactivated    bool
	SendRestricted bool
	CounterpartBot bool
	Handle         SendHandle
}

// Peer — классифицированный диалог, в который можно писать.
type Peer struct {
	ID           string
	Title        string
	Handle       SendHandle
	AccountOwner string
}

// PeerID детерминированно выводит строковый идентификатор пира из вида и
// числового идентификатора диалога. Одинаковый диалог даёт одинаковый
// идентификатор у всех учёток, иначе пересечение пулов теряет смысл.
func PeerID(kind ConversationKind, id int64) string {
	switch kind {
	case KindMegagroup, KindBroadcast:
		return fmt.Sprintf("channel_%d", id)
	case KindBasicGroup:
		return fmt.Sprintf("chat_%d", id)
	case KindDirectUser:
		return fmt.Sprintf("user_%d", id)
	}
	return ""
}

// UserPeerID возвращает идентификатор личного диалога с пользователем.
// Той же формой записывается собственная идентичность учётки.
func UserPeerID(id int64) string {
	return PeerID(KindDirectUser, id)
}

// IneligibleReason объясняет, почему диалог не прошёл классификацию.
type IneligibleReason string

const (
	ReasonUnresolvable     IneligibleReason = "unresolvable"
	ReasonNotAGroup        IneligibleReason = "not-a-group"
	ReasonUnsupportedKind  IneligibleReason = "unsupported-kind"
	ReasonBroadcastOnly    IneligibleReason = "broadcast-readonly"
	ReasonNotAMember       IneligibleReason = "not-a-member"
	ReasonSendRestricted   IneligibleReason = "send-restricted"
	ReasonCounterpartIsBot IneligibleReason = "counterpart-is-bot"
	ReasonParseError       IneligibleReason = "parse-error"
)
