package provider

import (
	"fmt"
	"time"

	"github.com/malbeclabs/blockprop/internal/metrics"
)

func (p *Provider) getCached(key string, forceRefresh bool) (any, bool) {
	if forceRefresh {
		metrics.ReportCacheLookups.WithLabelValues(metrics.LookupBypass).Inc()
		return nil, false
	}
	p.cacheMu.RLock()
	defer p.cacheMu.RUnlock()
	cached := p.cache.Get(key)
	if cached == nil {
		metrics.ReportCacheLookups.WithLabelValues(metrics.LookupMiss).Inc()
		return nil, false
	}
	metrics.ReportCacheLookups.WithLabelValues(metrics.LookupHit).Inc()
	return cached.Value(), true
}

func (p *Provider) setCached(key string, value any) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	p.cache.Set(key, value, p.cfg.RefreshTime)
}

func blockArrivalCacheKey(network string, date time.Time) string {
	return fmt.Sprintf("block-arrival:%s:%s", network, date.Format(time.DateOnly))
}

func nodeCacheKey(network, nodeID string, start, end time.Time) string {
	return fmt.Sprintf("node:%s:%s:%s:%s", network, nodeID, start.Format(time.DateOnly), end.Format(time.DateOnly))
}

func usersCacheKey(network string, start, end time.Time) string {
	return fmt.Sprintf("users:%s:%s:%s", network, start.Format(time.DateOnly), end.Format(time.DateOnly))
}

func userCacheKey(network, username string, start, end time.Time) string {
	return fmt.Sprintf("user:%s:%s:%s:%s", network, username, start.Format(time.DateOnly), end.Format(time.DateOnly))
}
