package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/ai-text-analyzer-go/internal/config"
	"github.com/go-redis/redis/v8"
)

// admitScript performs check-and-increment in one round trip so concurrent
// callers on separate replicas cannot both pass the limit.
// KEYS[1] quota key, ARGV[1] limit, ARGV[2] ttl seconds.
var admitScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
	return {0, count}
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return {1, count}
`)

// expiryGrace keeps a day's keys readable for a while after midnight.
const expiryGrace = time.Hour

// RedisLedger stores counts in Redis so several service replicas share one
// quota. Keys expire on their own after the day ends.
type RedisLedger struct {
	client *redis.Client
	prefix string
	limit  int
	loc    *time.Location
}

func NewRedisLedger(cfg config.RedisConfig, limit int, loc *time.Location) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisLedgerWithClient(client, cfg.KeyPrefix, limit, loc), nil
}

func NewRedisLedgerWithClient(client *redis.Client, prefix string, limit int, loc *time.Location) *RedisLedger {
	if loc == nil {
		loc = time.Local
	}
	if prefix == "" {
		prefix = "analyzer"
	}
	return &RedisLedger{
		client: client,
		prefix: prefix,
		limit:  limit,
		loc:    loc,
	}
}

func (r *RedisLedger) key(callerID, date string) string {
	return fmt.Sprintf("%s:quota:%s:%s", r.prefix, date, callerID)
}

// ttl lasts until the end of now's day plus expiryGrace.
func (r *RedisLedger) ttl(now time.Time) time.Duration {
	local := now.In(r.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, r.loc)
	return midnight.Sub(local) + expiryGrace
}

func (r *RedisLedger) Admit(ctx context.Context, callerID string, now time.Time) (Admission, error) {
	date := DateKey(now, r.loc)
	ttlSeconds := int64(r.ttl(now) / time.Second)

	res, err := admitScript.Run(ctx, r.client, []string{r.key(callerID, date)}, r.limit, ttlSeconds).Result()
	if err != nil {
		return Admission{}, fmt.Errorf("quota admit failed: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return Admission{}, fmt.Errorf("unexpected quota script reply: %v", res)
	}
	allowed, _ := values[0].(int64)
	count, _ := values[1].(int64)

	return Admission{
		Allowed: allowed == 1,
		Count:   int(count),
		Limit:   r.limit,
		Date:    date,
	}, nil
}

func (r *RedisLedger) Usage(ctx context.Context, callerID string, now time.Time) (int, error) {
	count, err := r.client.Get(ctx, r.key(callerID, DateKey(now, r.loc))).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Evict is a no-op: Redis expires keys itself.
func (r *RedisLedger) Evict(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (r *RedisLedger) ActiveCallers(ctx context.Context, now time.Time) (int, error) {
	match := fmt.Sprintf("%s:quota:%s:*", r.prefix, DateKey(now, r.loc))

	var (
		cursor uint64
		active int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return 0, err
		}
		active += len(keys)
		cursor = next
		if cursor == 0 {
			return active, nil
		}
	}
}

func (r *RedisLedger) Limit() int {
	return r.limit
}

func (r *RedisLedger) Location() *time.Location {
	return r.loc
}

func (r *RedisLedger) Close() error {
	return r.client.Close()
}
