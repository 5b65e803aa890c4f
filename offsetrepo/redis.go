package offsetrepo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/redis/go-redis/v9"
)

var _ Repository = (*Redis)(nil)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces the hash holding the positions, typically the
	// consumer group id.
	KeyPrefix string

	DialTimeout time.Duration
}

// Redis stores positions in one hash per prefix. Fields are "topic/partition",
// values "offset:leaderEpoch".
type Redis struct {
	cfg    RedisConfig
	logger logger.Logger

	mu  sync.RWMutex
	rdb *redis.Client
}

func NewRedis(cfg RedisConfig, l logger.Logger) *Redis {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "go-consumer"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if l == nil {
		l = logger.NewNoopLogger()
	}

	return &Redis{
		cfg:    cfg,
		logger: l.With("component", "offsetrepo", "backend", "redis"),
	}
}

func (r *Redis) key() string {
	return r.cfg.KeyPrefix + ":offsets"
}

func (r *Redis) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rdb != nil {
		return nil
	}

	rdb := redis.NewClient(
		&redis.Options{
			Addr:        r.cfg.Addr,
			Password:    r.cfg.Password,
			DB:          r.cfg.DB,
			DialTimeout: r.cfg.DialTimeout,
		},
	)

	pingCtx, cancel := context.WithTimeout(ctx, r.cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis: ping failed: %w", err)
	}

	r.rdb = rdb
	r.logger.Info("Offset repository started", "addr", r.cfg.Addr, "key", r.key())
	return nil
}

func (r *Redis) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rdb == nil {
		return nil
	}

	err := r.rdb.Close()
	r.rdb = nil
	r.logger.Info("Offset repository stopped")
	return err
}

func (r *Redis) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.rdb != nil
}

func (r *Redis) client() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.rdb == nil {
		return nil, ErrNotRunning
	}
	return r.rdb, nil
}

func (r *Redis) Store(ctx context.Context, offsets kafka.Offsets) error {
	if len(offsets) == 0 {
		return nil
	}

	rdb, err := r.client()
	if err != nil {
		return err
	}

	values := make(map[string]any, len(offsets))
	for tp, o := range offsets {
		values[field(tp)] = encodeOffset(o)
	}

	if err := rdb.HSet(ctx, r.key(), values).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, tp kafka.TopicPartition) (kafka.Offset, bool, error) {
	rdb, err := r.client()
	if err != nil {
		return kafka.Offset{}, false, err
	}

	val, err := rdb.HGet(ctx, r.key(), field(tp)).Result()
	if errors.Is(err, redis.Nil) {
		return kafka.Offset{}, false, nil
	} else if err != nil {
		return kafka.Offset{}, false, fmt.Errorf("redis hget failed: %w", err)
	}

	o, err := decodeOffset(val)
	if err != nil {
		return kafka.Offset{}, false, fmt.Errorf("decode %s: %w", tp, err)
	}
	return o, true, nil
}

func (r *Redis) All(ctx context.Context) (kafka.Offsets, error) {
	rdb, err := r.client()
	if err != nil {
		return nil, err
	}

	raw, err := rdb.HGetAll(ctx, r.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	out := make(kafka.Offsets, len(raw))
	for f, v := range raw {
		tp, err := parseField(f)
		if err != nil {
			r.logger.Warn("Skipping malformed offset field", "field", f, "error", err)
			continue
		}

		o, err := decodeOffset(v)
		if err != nil {
			r.logger.Warn("Skipping malformed offset value", "field", f, "error", err)
			continue
		}
		out[tp] = o
	}

	return out, nil
}

func field(tp kafka.TopicPartition) string {
	return tp.Topic + "/" + strconv.FormatInt(int64(tp.Partition), 10)
}

func parseField(f string) (kafka.TopicPartition, error) {
	i := strings.LastIndexByte(f, '/')
	if i <= 0 {
		return kafka.TopicPartition{}, fmt.Errorf("invalid field %q", f)
	}

	p, err := strconv.ParseInt(f[i+1:], 10, 32)
	if err != nil {
		return kafka.TopicPartition{}, fmt.Errorf("invalid partition in %q: %w", f, err)
	}
	return kafka.TopicPartition{Topic: f[:i], Partition: int32(p)}, nil
}

func encodeOffset(o kafka.Offset) string {
	return strconv.FormatInt(o.Offset, 10) + ":" + strconv.FormatInt(int64(o.LeaderEpoch), 10)
}

func decodeOffset(s string) (kafka.Offset, error) {
	off, epoch, found := strings.Cut(s, ":")
	if !found {
		return kafka.Offset{}, fmt.Errorf("invalid offset %q", s)
	}

	o, err := strconv.ParseInt(off, 10, 64)
	if err != nil {
		return kafka.Offset{}, err
	}
	e, err := strconv.ParseInt(epoch, 10, 32)
	if err != nil {
		return kafka.Offset{}, err
	}

	return kafka.Offset{Offset: o, LeaderEpoch: int32(e)}, nil
}
