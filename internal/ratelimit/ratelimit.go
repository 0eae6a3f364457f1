// Package ratelimit counts attempts per key in fixed windows. State lives in a bounded,
// expiring LRU and is lost on restart.
package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Rule limits Name to Limit attempts per Window.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

var (
	Register = Rule{Name: "register", Limit: 3, Window: 15 * time.Minute}
	Login    = Rule{Name: "login", Limit: 5, Window: 15 * time.Minute}
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter tracks windows for up to capacity keys; the least recently used key is evicted
// when full and every window expires after ttl.
type Limiter struct {
	mu      sync.Mutex
	windows *expirable.LRU[string, *window]
	now     func() time.Time
}

func New(capacity int, ttl time.Duration) *Limiter {
	return &Limiter{
		windows: expirable.NewLRU[string, *window](capacity, nil, ttl),
		now:     time.Now,
	}
}

// Allow counts one attempt by client against rule and reports whether it is within the limit.
func (l *Limiter) Allow(rule Rule, client string) bool {
	key := rule.Name + ":" + client
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows.Get(key)
	if !ok || !now.Before(w.resetAt) {
		l.windows.Add(key, &window{count: 1, resetAt: now.Add(rule.Window)})
		return true
	}
	if w.count >= rule.Limit {
		return false
	}
	w.count++
	return true
}

// Len reports how many keys are currently tracked.
func (l *Limiter) Len() int {
	return l.windows.Len()
}
