package flood

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mdl/shill-utilities/internal/domain"
	"github.com/mdl/shill-utilities/internal/infra/metrics"
)

// maxFloodWait — верхняя граница честного ожидания. Паузы от часа и выше
// трактуются как прочая ошибка, процесс не блокируется на неограниченный срок.
const maxFloodWait = time.Hour

// Gate поглощает флуд-паузы платформы. Любая отправка идёт через него:
// пока учётка под паузой, действия не вызываются вовсе.
type Gate struct {
	log zerolog.Logger

	mu           sync.Mutex
	blockedUntil map[string]time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGate создаёт шлюз флуд-контроля.
func NewGate(log zerolog.Logger) *Gate {
	return &Gate{
		log:          log,
		blockedUntil: map[string]time.Time{},
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Blocked сообщает, находится ли учётка под действующей флуд-паузой.
func (g *Gate) Blocked(account string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.blockedUntil[account]
	return ok && until.After(g.now())
}

func (g *Gate) block(account string, wait time.Duration) {
	g.mu.Lock()
	g.blockedUntil[account] = g.now().Add(wait)
	g.mu.Unlock()
	metrics.FloodWaitsTotal.WithLabelValues(account).Inc()
	g.log.Warn().
		Str("account", account).
		Dur("wait", wait).
		Msg("flood: учётка поставлена на паузу")
}

func (g *Gate) clear(account string) {
	g.mu.Lock()
	delete(g.blockedUntil, account)
	g.mu.Unlock()
}

// AttemptSend выполняет действие с политикой «одно ожидание на флуд-сигнал».
// Первая флуд-пауза выжидается (wait + 1с) и действие повторяется ровно один
// раз; вторая подряд — фиксируется и исход Skipped, новых ожиданий нет.
func (g *Gate) AttemptSend(ctx context.Context, account string, action func() error) domain.SendResult {
	if g.Blocked(account) {
		return domain.SendResult{Outcome: domain.SendSkipped}
	}

	err := action()
	if err == nil {
		g.clear(account)
		return domain.SendResult{Outcome: domain.SendSent}
	}

	var fw *domain.FloodWaitError
	if !errors.As(err, &fw) {
		return resultOf(err)
	}
	if fw.Wait >= maxFloodWait {
		g.log.Error().
			Str("account", account).
			Dur("wait", fw.Wait).
			Msg("flood: пауза превышает предел, считаем ошибкой")
		return domain.SendResult{Outcome: domain.SendFailed, Err: err}
	}
	if fw.Wait >= time.Second {
		g.block(account, fw.Wait)
		if serr := g.sleep(ctx, fw.Wait+time.Second); serr != nil {
			return domain.SendResult{Outcome: domain.SendSkipped}
		}
	}

	// Единственный повтор после паузы.
	err = action()
	if err == nil {
		g.clear(account)
		return domain.SendResult{Outcome: domain.SendRetried}
	}
	if errors.As(err, &fw) {
		g.block(account, fw.Wait)
		return domain.SendResult{Outcome: domain.SendSkipped}
	}
	return resultOf(err)
}

// TrySend выполняет действие без ожиданий: флуд-пауза фиксируется, а исход
// сразу Skipped. Используется для реактивных ответов, где ожидание лишает
// ответ смысла.
func (g *Gate) TrySend(ctx context.Context, account string, action func() error) domain.SendResult {
	if err := ctx.Err(); err != nil {
		return domain.SendResult{Outcome: domain.SendSkipped}
	}
	if g.Blocked(account) {
		return domain.SendResult{Outcome: domain.SendSkipped}
	}

	err := action()
	if err == nil {
		g.clear(account)
		return domain.SendResult{Outcome: domain.SendSent}
	}

	var fw *domain.FloodWaitError
	if errors.As(err, &fw) {
		g.block(account, fw.Wait)
		return domain.SendResult{Outcome: domain.SendSkipped}
	}
	return resultOf(err)
}

func resultOf(err error) domain.SendResult {
	var rej *domain.PeerRejectedError
	if errors.As(err, &rej) {
		return domain.SendResult{Outcome: domain.SendRejected, Reject: rej.Kind}
	}
	return domain.SendResult{Outcome: domain.SendFailed, Err: err}
}
