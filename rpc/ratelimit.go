package rpc

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// PeerLimiter keeps a token bucket per remote host. Buckets idle for
// longer than the configured TTL are dropped.
type PeerLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	peers map[string]*peerBucket
}

type peerBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewPeerLimiter allows rps requests per second per peer with the given burst.
func NewPeerLimiter(rps float64, burst int) *PeerLimiter {
	if burst < 1 {
		burst = 1
	}
	return &PeerLimiter{
		limit: rate.Limit(rps),
		burst: burst,
		ttl:   10 * time.Minute,
		now:   time.Now,
		peers: map[string]*peerBucket{},
	}
}

// Allow reports whether key may make a request now.
func (l *PeerLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.peers[key]
	if !ok {
		l.sweep(now)
		b = &peerBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.peers[key] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1)
}

func (l *PeerLimiter) sweep(now time.Time) {
	for k, b := range l.peers {
		if now.Sub(b.seen) > l.ttl {
			delete(l.peers, k)
		}
	}
}

// peerKey is the caller's host, so reconnecting from a new source port
// shares the same bucket.
func peerKey(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// UnaryInterceptor rejects calls over the peer's budget with ResourceExhausted.
func (l *PeerLimiter) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !l.Allow(peerKey(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}
