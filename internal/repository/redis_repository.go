package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/movra/payout-service/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	payoutKeyPrefix = "payout:"
	createdIndexKey = "payouts:by_created"
)

// updateScript writes hash fields only when the payout still exists, so a
// concurrent delete cannot resurrect a partial record.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// RedisRepository implements PayoutRepository using one Redis hash per
// payout plus a sorted set ordered by creation time.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a new Redis repository
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func payoutKey(id string) string {
	return payoutKeyPrefix + id
}

func (r *RedisRepository) CreatePayout(ctx context.Context, payout *model.Payout) error {
	values, err := encodeFields(payout, FieldAmount, FieldCurrency, FieldRecipientDetails, FieldStatus, FieldComment)
	if err != nil {
		return fmt.Errorf("create payout: %w", err)
	}
	values = append(values,
		"id", payout.ID,
		"created_at", payout.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at", payout.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, payoutKey(payout.ID), values...)
		pipe.ZAdd(ctx, createdIndexKey, redis.Z{
			Score:  float64(payout.CreatedAt.UnixNano()),
			Member: payout.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("create payout: %w", err)
	}
	return nil
}

func (r *RedisRepository) GetPayout(ctx context.Context, id string) (*model.Payout, error) {
	values, err := r.client.HGetAll(ctx, payoutKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get payout: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("get payout %s: %w", id, ErrNotFound)
	}
	return decodePayout(values)
}

func (r *RedisRepository) ListPayouts(ctx context.Context, filter PayoutFilter) ([]*model.Payout, error) {
	ids, err := r.client.ZRevRange(ctx, createdIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	if len(ids) == 0 {
		return []*model.Payout{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, payoutKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}

	payouts := make([]*model.Payout, 0, len(ids))
	for _, cmd := range cmds {
		values := cmd.Val()
		if len(values) == 0 {
			// deleted between the index read and the fetch
			continue
		}
		p, err := decodePayout(values)
		if err != nil {
			return nil, fmt.Errorf("list payouts: %w", err)
		}
		if filter.Match(p) {
			payouts = append(payouts, p)
		}
	}
	return filter.page(payouts), nil
}

func (r *RedisRepository) UpdatePayout(ctx context.Context, payout *model.Payout, fields ...Field) error {
	if err := validateFields(fields); err != nil {
		return err
	}

	values, err := encodeFields(payout, fields...)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	now := time.Now().UTC()
	values = append(values, "updated_at", now.Format(time.RFC3339Nano))

	updated, err := updateScript.Run(ctx, r.client, []string{payoutKey(payout.ID)}, values...).Int()
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if updated == 0 {
		return fmt.Errorf("update payout %s: %w", payout.ID, ErrNotFound)
	}
	payout.UpdatedAt = now
	return nil
}

func (r *RedisRepository) DeletePayout(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, payoutKey(id))
		pipe.ZRem(ctx, createdIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete payout: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("delete payout %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func encodeFields(p *model.Payout, fields ...Field) ([]any, error) {
	values := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		switch f {
		case FieldAmount:
			values = append(values, string(f), p.Amount.StringFixed(model.AmountDecimalPlaces))
		case FieldCurrency:
			values = append(values, string(f), string(p.Currency))
		case FieldRecipientDetails:
			data, err := json.Marshal(p.RecipientDetails)
			if err != nil {
				return nil, fmt.Errorf("marshal recipient details: %w", err)
			}
			values = append(values, string(f), string(data))
		case FieldStatus:
			values = append(values, string(f), string(p.Status))
		case FieldComment:
			values = append(values, string(f), p.Comment)
		}
	}
	return values, nil
}

func decodePayout(values map[string]string) (*model.Payout, error) {
	amount, err := decimal.NewFromString(values["amount"])
	if err != nil {
		return nil, fmt.Errorf("decode amount: %w", err)
	}

	var details model.RecipientDetails
	if raw := values["recipient_details"]; raw != "" {
		if details, err = decodeRecipientDetails([]byte(raw)); err != nil {
			return nil, fmt.Errorf("decode recipient details: %w", err)
		}
	}

	createdAt, err := time.Parse(time.RFC3339Nano, values["created_at"])
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, values["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}

	id, ok := values["id"]
	if !ok {
		return nil, errors.New("decode payout: missing id")
	}

	return &model.Payout{
		ID:               id,
		Amount:           amount,
		Currency:         model.Currency(values["currency"]),
		RecipientDetails: details,
		Status:           model.PayoutStatus(values["status"]),
		Comment:          values["comment"],
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}
