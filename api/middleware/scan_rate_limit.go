package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/volna-retail/loyalty-backend/api/responses"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// ScanRateLimitPolicy defines the throttling parameters for scan ingestion.
type ScanRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	storeLimit int
}

// NewScanRateLimitPolicy builds a policy with the supplied window and limits.
func NewScanRateLimitPolicy(name string, window time.Duration, ipLimit, storeLimit int) ScanRateLimitPolicy {
	return ScanRateLimitPolicy{
		name:       strings.ToLower(strings.TrimSpace(name)),
		window:     window,
		ipLimit:    ipLimit,
		storeLimit: storeLimit,
	}
}

func (p ScanRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.storeLimit > 0)
}

func (p ScanRateLimitPolicy) normalizedName() string {
	if p.name == "" {
		return "scans"
	}
	return p.name
}

func (p ScanRateLimitPolicy) ipKey(ip string) string {
	if ip == "" {
		return ""
	}
	return fmt.Sprintf("rl:ip:%s:%s", p.normalizedName(), ip)
}

func (p ScanRateLimitPolicy) storeKey(storeID string) string {
	if storeID == "" {
		return ""
	}
	return fmt.Sprintf("rl:store:%s:%s", p.normalizedName(), storeID)
}

// ScanRateLimit enforces per-IP and per-store counters for offline scan
// ingestion. Offline queues flushing after an outage can flood the endpoint,
// so bursts are capped per window rather than rejected outright.
func ScanRateLimit(policy ScanRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := clientIP(r)
			if policy.ipLimit > 0 {
				if key := policy.ipKey(ip); key != "" {
					if allowed, count, err := allow(ctx, store, key, policy.window, int64(policy.ipLimit)); err != nil {
						responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					} else if !allowed {
						respondRateLimited(ctx, logg, w, policy, "ip", ip, "", count, policy.ipLimit)
						return
					}
				}
			}

			if policy.storeLimit > 0 {
				storeID := StoreIDFromContext(ctx)
				if storeID == "" {
					body, err := io.ReadAll(r.Body)
					if err != nil {
						responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
						return
					}
					r.Body = io.NopCloser(bytes.NewReader(body))
					storeID = extractStoreID(body)
				}
				if storeID != "" {
					if key := policy.storeKey(storeID); key != "" {
						if allowed, count, err := allow(ctx, store, key, policy.window, int64(policy.storeLimit)); err != nil {
							responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
							return
						} else if !allowed {
							respondRateLimited(ctx, logg, w, policy, "store", "", storeID, count, policy.storeLimit)
							return
						}
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allow(ctx context.Context, store rateLimiterStore, key string, window time.Duration, limit int64) (bool, int64, error) {
	count, err := store.IncrWithTTL(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy ScanRateLimitPolicy, scope, ip, storeID string, count int64, limit int) {
	if logg != nil {
		fields := map[string]any{
			"scope":          scope,
			"policy":         policy.normalizedName(),
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(policy.window.Seconds()),
		}
		if ip != "" {
			fields["ip"] = ip
		}
		if storeID != "" {
			fields["store_id"] = storeID
		}
		logCtx := logg.WithFields(ctx, fields)
		logg.Warn(logCtx, "scans.rate_limit.blocked")
	}
	err := pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded")
	responses.WriteError(ctx, nil, w, err)
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractStoreID(payload []byte) string {
	var body struct {
		StoreID string `json:"store_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.StoreID)
}
