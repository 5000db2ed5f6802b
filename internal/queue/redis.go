package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps packets in two lists: <key> holds pending JSON payloads and
// <key>:processing holds claimed ones.  Claim moves a payload atomically
// with LMOVE, and Ack removes it from the processing list by value.  A
// crashed worker's payloads stay in the processing list until Recover.
type Redis struct {
	client     *redis.Client
	pending    string
	processing string
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, o RedisOptions) (*Redis, error) {
	if o.Key == "" {
		o.Key = "pdb:recompute"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
		PoolSize: 10,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("queue redis ping %s: %w", o.Addr, err)
	}
	return NewRedisClient(client, o.Key), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client *redis.Client, key string) *Redis {
	return &Redis{client: client, pending: key, processing: key + ":processing"}
}

// Close releases the client.
func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) Push(ctx context.Context, ps []Packet) error {
	if len(ps) == 0 {
		return nil
	}
	vals := make([]any, 0, len(ps))
	for _, p := range ps {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal packet: %w", err)
		}
		vals = append(vals, b)
	}
	return r.client.RPush(ctx, r.pending, vals...).Err()
}

func (r *Redis) Claim(ctx context.Context, n int) ([]Delivery, error) {
	var out []Delivery
	for i := 0; i < n; i++ {
		raw, err := r.client.LMove(ctx, r.pending, r.processing, "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("claim packet: %w", err)
		}
		var p Packet
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			// Unreadable payloads are dropped so they cannot wedge the list.
			_ = r.client.LRem(ctx, r.processing, 1, raw).Err()
			continue
		}
		out = append(out, Delivery{Packet: p, Token: raw})
	}
	return out, nil
}

func (r *Redis) Ack(ctx context.Context, d Delivery) error {
	return r.client.LRem(ctx, r.processing, 1, d.Token).Err()
}

func (r *Redis) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		_, err := r.client.LMove(ctx, r.processing, r.pending, "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover packets: %w", err)
		}
		n++
	}
}

func (r *Redis) Len(ctx context.Context) (int64, error) {
	pipe := r.client.Pipeline()
	a := pipe.LLen(ctx, r.pending)
	b := pipe.LLen(ctx, r.processing)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return a.Val() + b.Val(), nil
}
