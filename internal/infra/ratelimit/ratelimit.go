// Package ratelimit keeps one token bucket per client.
package ratelimit

import (
	"golang.org/x/time/rate"

	"github.com/yndnr/stablemem/pkg/cmap"
)

// Registry manages rate limiters keyed by client (an IP address or a
// connection's remote host). A Registry with a non-positive rate allows
// everything.
type Registry struct {
	limiters *cmap.Map[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewRegistry creates a registry allowing perSecond requests per client
// with the given burst. A burst below 1 is raised to 1.
func NewRegistry(perSecond float64, burst int) *Registry {
	if burst < 1 {
		burst = 1
	}
	return &Registry{
		limiters: cmap.New[string, *rate.Limiter](),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Enabled reports whether the registry limits anything.
func (r *Registry) Enabled() bool {
	return r != nil && r.limit > 0
}

// Allow reports whether client may make one more request now.
func (r *Registry) Allow(client string) bool {
	if !r.Enabled() {
		return true
	}
	return r.GetOrCreate(client).Allow()
}

// GetOrCreate returns the limiter of client, creating it on first use.
func (r *Registry) GetOrCreate(client string) *rate.Limiter {
	limiter, _ := r.limiters.GetOrCompute(client, func() *rate.Limiter {
		return rate.NewLimiter(r.limit, r.burst)
	})
	return limiter
}

// Delete removes the limiter of one client.
func (r *Registry) Delete(client string) {
	r.limiters.Delete(client)
}

// Clear removes all rate limiters.
func (r *Registry) Clear() {
	r.limiters.Clear()
}

// Len returns the number of tracked clients.
func (r *Registry) Len() int {
	return r.limiters.Count()
}
