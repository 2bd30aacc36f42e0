package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/movra/payout-service/internal/model"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// PoolConfig holds connection pool limits for Postgres
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPostgresPool opens a pgx pool and verifies connectivity.
func NewPostgresPool(ctx context.Context, databaseURL string, pool PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresPool: parse: %w", err)
	}
	if pool.MaxConns > 0 {
		cfg.MaxConns = pool.MaxConns
	}
	cfg.MinConns = pool.MinConns
	if pool.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pool.MaxConnLifetime
	}
	if pool.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pool.MaxConnIdleTime
	}

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresPool: open: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("NewPostgresPool: ping: %w", err)
	}
	return p, nil
}

// Migrate applies the embedded schema migrations in name order. Every
// migration is idempotent, so re-running is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrate: list: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrationFiles.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return nil, fmt.Errorf("migrate: apply %s: %w", name, err)
		}
	}
	return names, nil
}

const payoutColumns = `id::text, amount::text, currency, recipient_details, status, comment, created_at, updated_at`

var columnNames = map[Field]string{
	FieldAmount:           "amount",
	FieldCurrency:         "currency",
	FieldRecipientDetails: "recipient_details",
	FieldStatus:           "status",
	FieldComment:          "comment",
}

// PostgresRepository implements PayoutRepository on a payouts table
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository over an open pool
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreatePayout(ctx context.Context, payout *model.Payout) error {
	details, err := json.Marshal(payout.RecipientDetails)
	if err != nil {
		return fmt.Errorf("create payout: marshal recipient details: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO payouts (id, amount, currency, recipient_details, status, comment, created_at, updated_at)
		 VALUES ($1::uuid, $2::numeric, $3, $4, $5, $6, $7, $8)`,
		payout.ID,
		payout.Amount.StringFixed(model.AmountDecimalPlaces),
		string(payout.Currency),
		details,
		string(payout.Status),
		payout.Comment,
		payout.CreatedAt,
		payout.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create payout: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetPayout(ctx context.Context, id string) (*model.Payout, error) {
	key, ok := canonicalID(id)
	if !ok {
		return nil, fmt.Errorf("get payout %s: %w", id, ErrNotFound)
	}

	row := r.pool.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1::uuid`, key)
	p, err := scanPayout(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get payout %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payout: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) ListPayouts(ctx context.Context, filter PayoutFilter) ([]*model.Payout, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Currency != "" {
		args = append(args, string(filter.Currency))
		where = append(where, fmt.Sprintf("currency = $%d", len(args)))
	}

	query := `SELECT ` + payoutColumns + ` FROM payouts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	payouts := []*model.Payout{}
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("list payouts: scan: %w", err)
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	return payouts, nil
}

func (r *PostgresRepository) UpdatePayout(ctx context.Context, payout *model.Payout, fields ...Field) error {
	if err := validateFields(fields); err != nil {
		return err
	}
	key, ok := canonicalID(payout.ID)
	if !ok {
		return fmt.Errorf("update payout %s: %w", payout.ID, ErrNotFound)
	}

	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	for _, f := range fields {
		value, err := columnValue(payout, f)
		if err != nil {
			return fmt.Errorf("update payout: %w", err)
		}
		args = append(args, value)
		cast := ""
		if f == FieldAmount {
			cast = "::numeric"
		}
		sets = append(sets, fmt.Sprintf("%s = $%d%s", columnNames[f], len(args), cast))
	}

	now := time.Now().UTC()
	args = append(args, now)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, key)

	tag, err := r.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE payouts SET %s WHERE id = $%d::uuid`, strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update payout %s: %w", payout.ID, ErrNotFound)
	}
	payout.UpdatedAt = now
	return nil
}

func (r *PostgresRepository) DeletePayout(ctx context.Context, id string) error {
	key, ok := canonicalID(id)
	if !ok {
		return fmt.Errorf("delete payout %s: %w", id, ErrNotFound)
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM payouts WHERE id = $1::uuid`, key)
	if err != nil {
		return fmt.Errorf("delete payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete payout %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func columnValue(p *model.Payout, f Field) (any, error) {
	switch f {
	case FieldAmount:
		return p.Amount.StringFixed(model.AmountDecimalPlaces), nil
	case FieldCurrency:
		return string(p.Currency), nil
	case FieldRecipientDetails:
		data, err := json.Marshal(p.RecipientDetails)
		if err != nil {
			return nil, fmt.Errorf("marshal recipient details: %w", err)
		}
		return data, nil
	case FieldStatus:
		return string(p.Status), nil
	case FieldComment:
		return p.Comment, nil
	}
	return nil, fmt.Errorf("unknown field %s", f)
}

func scanPayout(row pgx.Row) (*model.Payout, error) {
	var (
		p        model.Payout
		amount   string
		currency string
		status   string
		details  []byte
	)
	if err := row.Scan(&p.ID, &amount, &currency, &details, &status, &p.Comment, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("decode amount: %w", err)
	}
	p.Amount = d
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	p.Currency = model.Currency(currency)
	p.Status = model.PayoutStatus(status)
	if p.RecipientDetails, err = decodeRecipientDetails(details); err != nil {
		return nil, fmt.Errorf("decode recipient details: %w", err)
	}
	return &p, nil
}

// canonicalID returns the canonical uuid form of id. Ids that are not
// uuids cannot exist in the table.
func canonicalID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}
