package cart

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps authenticated carts as a hash of product quantities plus a
// set of selected product IDs. Every multi-key write runs in MULTI/EXEC.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Add(ctx context.Context, userID, productID int64, quantity int, selected bool) error {
	field := strconv.FormatInt(productID, 10)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, quantityKey(userID), field, int64(quantity))
		if selected {
			pipe.SAdd(ctx, selectedKey(userID), field)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis add cart line failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Replace(ctx context.Context, userID, productID int64, quantity int, selected bool) error {
	field := strconv.FormatInt(productID, 10)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, quantityKey(userID), field, quantity)
		if selected {
			pipe.SAdd(ctx, selectedKey(userID), field)
		} else {
			pipe.SRem(ctx, selectedKey(userID), field)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis replace cart line failed: %w", err)
	}
	return nil
}

// Remove deletes the given products from both the quantity hash and the selected set.
func (r *RedisStore) Remove(ctx context.Context, userID int64, productIDs ...int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	fields := make([]string, len(productIDs))
	members := make([]interface{}, len(productIDs))
	for i, id := range productIDs {
		fields[i] = strconv.FormatInt(id, 10)
		members[i] = fields[i]
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, quantityKey(userID), fields...)
		pipe.SRem(ctx, selectedKey(userID), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis remove cart lines failed: %w", err)
	}
	return nil
}

// setAllSelectedScript applies SADD or SREM (ARGV[1]) for every field of the
// quantity hash (KEYS[1]) to the selected set (KEYS[2]) in one atomic step, so a
// concurrent Remove cannot leave an orphan member behind.
var setAllSelectedScript = redis.NewScript(`
local ids = redis.call('HKEYS', KEYS[1])
for _, id in ipairs(ids) do
	redis.call(ARGV[1], KEYS[2], id)
end
return #ids
`)

func (r *RedisStore) SetAllSelected(ctx context.Context, userID int64, selected bool) error {
	op := "SREM"
	if selected {
		op = "SADD"
	}
	keys := []string{quantityKey(userID), selectedKey(userID)}
	if err := setAllSelectedScript.Run(ctx, r.client, keys, op).Err(); err != nil {
		return fmt.Errorf("redis set selection failed: %w", err)
	}
	return nil
}

// List returns every line of the cart ordered by product ID.
func (r *RedisStore) List(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	var (
		quantities *redis.MapStringStringCmd
		selected   *redis.StringSliceCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		quantities = pipe.HGetAll(ctx, quantityKey(userID))
		selected = pipe.SMembers(ctx, selectedKey(userID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis read cart failed: %w", err)
	}

	isSelected := make(map[string]struct{}, len(selected.Val()))
	for _, m := range selected.Val() {
		isSelected[m] = struct{}{}
	}

	lines := make([]domain.CartLine, 0, len(quantities.Val()))
	for field, count := range quantities.Val() {
		productID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt cart field %q: %w", field, err)
		}
		quantity, err := strconv.Atoi(count)
		if err != nil {
			return nil, fmt.Errorf("corrupt cart quantity for %d: %w", productID, err)
		}
		_, sel := isSelected[field]
		lines = append(lines, domain.CartLine{ProductID: productID, Quantity: quantity, Selected: sel})
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

// Selected returns only the selected lines. IDs in the selected set without a
// quantity are ignored.
func (r *RedisStore) Selected(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	lines, err := r.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := lines[:0]
	for _, l := range lines {
		if l.Selected {
			out = append(out, l)
		}
	}
	return out, nil
}

// Overwrite sets quantity and selection for each given line, leaving other
// products untouched.
func (r *RedisStore) Overwrite(ctx context.Context, userID int64, lines []domain.CartLine) error {
	if len(lines) == 0 {
		return nil
	}

	counts := make(map[string]interface{}, len(lines))
	var sel, unsel []interface{}
	for _, l := range lines {
		field := strconv.FormatInt(l.ProductID, 10)
		counts[field] = l.Quantity
		if l.Selected {
			sel = append(sel, field)
		} else {
			unsel = append(unsel, field)
		}
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, quantityKey(userID), counts)
		if len(sel) > 0 {
			pipe.SAdd(ctx, selectedKey(userID), sel...)
		}
		if len(unsel) > 0 {
			pipe.SRem(ctx, selectedKey(userID), unsel...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis overwrite cart failed: %w", err)
	}
	return nil
}

func quantityKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

func selectedKey(userID int64) string {
	return fmt.Sprintf("cart:%d:selected", userID)
}
