// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter provides per-IP rate limiting using a sliding window kept in
// Valkey: one sorted set per client, scored by request time.
type RateLimiter struct {
	client *redis.Client
	name   string        // key namespace, e.g. "login"
	limit  int           // max requests per window
	window time.Duration // sliding window duration
	now    func() time.Time
	seq    atomic.Uint64

	trusted []netip.Prefix
}

// NewRateLimiter creates a rate limiter that allows limit requests per
// window for each client IP, under the Valkey namespace name.
func NewRateLimiter(client *redis.Client, name string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		name:   name,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// TrustProxies makes the limiter read X-Forwarded-For when the peer is one
// of the given proxies. It returns rl for chaining.
func (rl *RateLimiter) TrustProxies(prefixes []netip.Prefix) *RateLimiter {
	rl.trusted = prefixes
	return rl
}

func (rl *RateLimiter) key(ip string) string {
	return "ratelimit:" + rl.name + ":" + ip
}

// allow records a request for ip and reports whether it is within the limit.
func (rl *RateLimiter) allow(ctx context.Context, ip string) (bool, error) {
	now := rl.now()
	key := rl.key(ip)
	cutoff := strconv.FormatInt(now.Add(-rl.window).UnixNano(), 10)

	var card *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		card = p.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("rate limit count: %w", err)
	}
	if card.Val() >= int64(rl.limit) {
		return false, nil
	}

	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(rl.seq.Add(1), 10)
	_, err = rl.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: member})
		p.PExpire(ctx, key, rl.window)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("rate limit record: %w", err)
	}
	return true, nil
}

// Middleware returns an HTTP middleware that rate-limits by client IP.
// When Valkey is unreachable requests are let through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := rl.allow(r.Context(), rl.clientIP(r))
		if err != nil {
			slog.Warn("rate limiter unavailable", "limiter", rl.name, "error", err)
		}
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the address requests are counted against: the peer
// address, unless the peer is a trusted proxy. Then X-Forwarded-For is
// walked from the right and the first hop that is not a trusted proxy wins.
// Entries left of that hop are client supplied and ignored.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !rl.isTrusted(peer) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			break
		}
		if !rl.isTrusted(hop) {
			return addr.Unmap().String()
		}
	}
	return peer
}

func (rl *RateLimiter) isTrusted(ip string) bool {
	if len(rl.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// remoteHost strips the port from a RemoteAddr.
func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
