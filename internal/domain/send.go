package domain

import (
	"fmt"
	"time"
)

// SendOutcome — результат попытки отправки через шлюз флуд-контроля.
type SendOutcome int

const (
	// SendSent — сообщение ушло с первой попытки.
	SendSent SendOutcome = iota
	// SendRetried — платформа выдала флуд-паузу, единственный повтор после
	// ожидания прошёл успешно.
	SendRetried
	// SendSkipped — отправка не выполнялась: учётка под флуд-паузой либо
	// повтор снова упёрся во флуд.
	SendSkipped
	// SendRejected — перманентный отказ уровня пира, пир нужно исключить
	// из пула.
	SendRejected
	// SendFailed — прочая ошибка, пир сохраняется.
	SendFailed
)

// String возвращает метку исхода для логов и метрик.
func (o SendOutcome) String() string {
	switch o {
	case SendSent:
		return "sent"
	case SendRetried:
		return "retried"
	case SendSkipped:
		return "skipped"
	case SendRejected:
		return "rejected"
	case SendFailed:
		return "failed"
	}
	return "unknown"
}

// RejectKind уточняет перманентный отказ платформы.
type RejectKind string

const (
	RejectWriteForbidden RejectKind = "write-forbidden"
	RejectAdminRequired  RejectKind = "admin-required"
	RejectBanned         RejectKind = "banned"
	RejectInvalidPeer    RejectKind = "invalid-peer"
	RejectBlockedByUser  RejectKind = "blocked-by-user"
)

// SendResult описывает исход AttemptSend/TrySend.
type SendResult struct {
	Outcome SendOutcome
	Reject  RejectKind // заполнен для SendRejected
	Err     error      // заполнен для SendFailed
}

// FloodWaitError — транзиентный сигнал бэкоффа платформы: пауза на Wait.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("флуд-пауза %s", e.Wait)
}

// PeerRejectedError — перманентный отказ, привязанный к конкретному пиру.
type PeerRejectedError struct {
	Kind RejectKind
}

func (e *PeerRejectedError) Error() string {
	return fmt.Sprintf("пир отклонён: %s", e.Kind)
}
