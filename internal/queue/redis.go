package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// popScript atomically removes and returns the first due envelope. The
// remove must happen in the same script as the read, otherwise two workers
// could run the same envelope on every poll.
var popScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])

local items = redis.call('ZRANGEBYSCORE', key, '-inf', now, 'LIMIT', 0, 1)
if #items == 0 then
    return false
end

redis.call('ZREM', key, items[1])
return items[1]
`)

// RedisQueue is a delayed task queue on a Redis sorted set scored by due
// time in unix milliseconds.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task Task, delay time.Duration) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.key, redis.Z{Score: due, Member: string(body)}).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// Pop removes and returns the next due task, or nil when nothing is due.
func (q *RedisQueue) Pop(ctx context.Context) (*Task, error) {
	now := time.Now().UnixMilli()
	result, err := popScript.Run(ctx, q.client, []string{q.key}, now).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop task: %w", err)
	}
	raw, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("pop task: unexpected result %T", result)
	}
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

// Len returns the number of pending envelopes, due or not.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}
