package peers

import (
	"github.com/mdl/shill-utilities/internal/domain"
)

// Policy задаёт политику классификации диалогов.
type Policy struct {
	// GroupsOnly ограничивает пригодные пиры группами и супергруппами.
	GroupsOnly bool
}

// Verdict — результат классификации одного диалога.
type Verdict struct {
	Peer   domain.Peer
	Reason domain.IneligibleReason // пусто для пригодного диалога
}

// Eligible сообщает, пригоден ли диалог для записи.
func (v Verdict) Eligible() bool {
	return v.Reason == ""
}

// Classify решает, можно ли писать в диалог. Таблица правил проверяется по
// порядку, срабатывает первое подходящее. Функция чистая: без побочных
// эффектов и обращений к транспорту.
func Classify(conv domain.Conversation, policy Policy) Verdict {
	if conv.Kind == domain.KindUnresolved || conv.Handle == nil {
		return Verdict{Reason: domain.ReasonUnresolvable}
	}
	group := conv.Kind == domain.KindBasicGroup ||
		conv.Kind == domain.KindMegagroup ||
		conv.Kind == domain.KindBroadcast
	if policy.GroupsOnly && !group {
		return Verdict{Reason: domain.ReasonNotAGroup}
	}
	if !policy.GroupsOnly && !group && conv.Kind != domain.KindDirectUser {
		return Verdict{Reason: domain.ReasonUnsupportedKind}
	}
	// Вещательные каналы исключаются при любой политике: публикация туда —
	// анонс, а не разговор.
	if conv.Kind == domain.KindBroadcast {
		return Verdict{Reason: domain.ReasonBroadcastOnly}
	}
	if conv.Left || conv.Deactivated {
		return Verdict{Reason: domain.ReasonNotAMember}
	}
	if conv.SendRestricted {
		return Verdict{Reason: domain.ReasonSendRestricted}
	}
	if !policy.GroupsOnly && conv.Kind == domain.KindDirectUser && conv.CounterpartBot {
		return Verdict{Reason: domain.ReasonCounterpartIsBot}
	}
	return Verdict{Peer: domain.Peer{
		ID:     domain.PeerID(conv.Kind, conv.ID),
		Title:  conv.Title,
		Handle: conv.Handle,
	}}
}
