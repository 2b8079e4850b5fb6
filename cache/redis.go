package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"insulink/questionnaire"
)

// BankKey is the hash holding the bank: HSET insulink:bank {category} {json prompts}
const BankKey = "insulink:bank"

// Redis shares the bank across machines or restarts.
type Redis struct {
	client *redis.Client
	ttl    time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewRedisClient builds a client for addr and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (r *Redis) Get(ctx context.Context) (questionnaire.Bank, bool, error) {
	fields, err := r.client.HGetAll(ctx, BankKey).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	bank := make(questionnaire.Bank, len(fields))
	for field, raw := range fields {
		var prompts []string
		if err := json.Unmarshal([]byte(raw), &prompts); err != nil {
			return nil, false, fmt.Errorf("decode cached %s prompts: %w", field, err)
		}
		bank[questionnaire.Category(field)] = prompts
	}
	return bank, true, nil
}

func (r *Redis) Set(ctx context.Context, bank questionnaire.Bank) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, BankKey)
	for c, prompts := range bank {
		raw, err := json.Marshal(prompts)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, BankKey, string(c), raw)
	}
	if ttl := r.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, BankKey, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
