package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inkwellhq/inkwell/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keySendLock = "messaging:send:lock:%s"

// SendLocker serializes concurrent send attempts from the same sender so
// the window reservation behaves as a single authorize-then-commit step
// even across processes. When redis is not configured it degrades to a
// no-op and the database compare-and-set carries the guarantee alone.
type SendLocker struct {
	enabled bool
	locker  *Locker
	ttl     time.Duration
}

func NewSendLocker(cfg config.Config) *SendLocker {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return &SendLocker{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &SendLocker{
		enabled: true,
		locker:  NewLocker(client),
		ttl:     5 * time.Second,
	}
}

func (l *SendLocker) Enabled() bool {
	return l != nil && l.enabled
}

func (l *SendLocker) TryLockSender(ctx context.Context, senderID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keySendLock, strings.TrimSpace(senderID)), l.ttl)
}

func (l *SendLocker) ReleaseSender(ctx context.Context, senderID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keySendLock, strings.TrimSpace(senderID)), token)
}
