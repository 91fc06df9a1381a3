package store

import (
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// Visit is a client the portal bounced back to itself.
type Visit struct {
	IP        string `json:"ip"`
	Host      string `json:"host"`
	Path      string `json:"path"`
	UserAgent string `json:"user_agent"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
	Redirects int64  `json:"redirects"`
}
