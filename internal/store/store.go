package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dreaming-Codes/wifi-manager/internal/config"

	"github.com/redis/go-redis/v9"
)

func New(cfg config.Redis, password string) *Store {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       cfg.DB,
	})
	return NewWithClient(rdb, cfg.Prefix, cfg.VisitTTL)
}

func NewWithClient(rdb *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *Store) key(ip string) string { return s.RawKey("visit", ip) }

func (s *Store) RawKey(parts ...string) string {
	return s.prefix + strings.Join(parts, ":")
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }

// RecordVisit upserts the visit for v.IP. FirstSeen is only written once,
// the redirect counter is incremented and the TTL refreshed.
func (s *Store) RecordVisit(ctx context.Context, v Visit) error {
	now := time.Now().Unix()
	k := s.key(v.IP)

	pipe := s.rdb.TxPipeline()
	pipe.HSetNX(ctx, k, "first_seen", now)
	pipe.HSet(ctx, k,
		"ip", v.IP,
		"host", v.Host,
		"path", v.Path,
		"user_agent", v.UserAgent,
		"last_seen", now,
	)
	pipe.HIncrBy(ctx, k, "redirects", 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetVisit returns nil, nil when ip has no recorded visit.
func (s *Store) GetVisit(ctx context.Context, ip string) (*Visit, error) {
	m, err := s.rdb.HGetAll(ctx, s.key(ip)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	v := &Visit{
		IP:        m["ip"],
		Host:      m["host"],
		Path:      m["path"],
		UserAgent: m["user_agent"],
	}
	v.FirstSeen, _ = strconv.ParseInt(m["first_seen"], 10, 64)
	v.LastSeen, _ = strconv.ParseInt(m["last_seen"], 10, 64)
	v.Redirects, _ = strconv.ParseInt(m["redirects"], 10, 64)
	return v, nil
}

func (s *Store) DeleteVisit(ctx context.Context, ip string) (bool, error) {
	n, err := s.rdb.Del(ctx, s.key(ip)).Result()
	return n > 0, err
}
