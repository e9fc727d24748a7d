package repo

import (
	"context"
	"errors"
	"time"

	"github.com/gotd/td/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mdl/shill-utilities/internal/domain"
	"github.com/mdl/shill-utilities/internal/infra/metrics"
)

// Postgres реализует хранение MTProto-сессий и пулов учёток на pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.SessionRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицы сессий и учёток, если их ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS mtproto_accounts (
    name       text PRIMARY KEY,
    pool       text NOT NULL DEFAULT 'default',
    api_id     integer NOT NULL,
    api_hash   text NOT NULL,
    created_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS mtproto_sessions (
    name       text PRIMARY KEY,
    data       bytea NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now()
)`)
	return err
}

// LoadMTProtoSession загружает сохранённую MTProto-сессию.
func (p *Postgres) LoadMTProtoSession(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if name == "" {
		name = "default"
	}

	var data []byte
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT data FROM mtproto_sessions WHERE name = $1`, name).Scan(&data)
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_load", "mtproto_sessions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	clone := make([]byte, len(data))
	copy(clone, data)
	return clone, nil
}

// StoreMTProtoSession сохраняет MTProto-сессию.
func (p *Postgres) StoreMTProtoSession(ctx context.Context, name string, data []byte) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if name == "" {
		name = "default"
	}

	tmp := make([]byte, len(data))
	copy(tmp, data)

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO mtproto_sessions (name, data, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
`, name, tmp)
	metrics.ObserveNetworkRequest("postgres", "mtproto_sessions_store", "mtproto_sessions", start, err)
	return err
}

// ListMTProtoAccounts возвращает список MTProto-учёток в указанном пуле.
func (p *Postgres) ListMTProtoAccounts(ctx context.Context, pool string) ([]domain.MTProtoAccount, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if pool == "" {
		pool = "default"
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT name, pool, api_id, api_hash
FROM mtproto_accounts
WHERE pool = $1
ORDER BY name
`, pool)
	metrics.ObserveNetworkRequest("postgres", "mtproto_accounts_list", "mtproto_accounts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.MTProtoAccount
	for rows.Next() {
		var account domain.MTProtoAccount
		if scanErr := rows.Scan(&account.Name, &account.Pool, &account.APIID, &account.APIHash); scanErr != nil {
			return nil, scanErr
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}
