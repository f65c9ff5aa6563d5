package pool

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Hits returns the number of requests satisfied by an entry already
// present in the table.
func (p *Pool) Hits() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits
}

// Requests returns the total number of Request/RequestXML/RequestDefinition
// calls made against the pool, including ones that failed.
func (p *Pool) Requests() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// MaxUsedCapacity returns the largest table size observed since
// construction; it is monotone non-decreasing.
func (p *Pool) MaxUsedCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxUsedCapacity
}

// Efficiency returns hits/requests rounded to three decimal places, with
// the convention that requests == 0 means efficiency is 1.0.
func (p *Pool) Efficiency() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return efficiency(p.hits, p.requests)
}

func efficiency(hits, requests uint64) float64 {
	if requests == 0 {
		return 1.0
	}
	ratio := float64(hits) / float64(requests)
	return math.Round(ratio*1000) / 1000
}

// CachedPaths returns a snapshot of the canonical paths currently held in
// the table.
func (p *Pool) CachedPaths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	paths := make([]string, 0, len(p.table))
	for path := range p.table {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Dump produces a human-readable multi-line snapshot with counters and,
// when includeFiles is true, one "canonical_path [usage_count]" line per
// entry.
func (p *Pool) Dump(includeFiles bool) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "pool %s\n", p.id)
	fmt.Fprintf(&b, "  capacity=%d limited=%t\n", p.capacity, p.limitedCapacity)
	fmt.Fprintf(&b, "  size=%d idle=%d max_used_capacity=%d\n", len(p.table), p.idle.len(), p.maxUsedCapacity)
	fmt.Fprintf(&b, "  requests=%d hits=%d efficiency=%.3f\n", p.requests, p.hits, efficiency(p.hits, p.requests))

	if includeFiles {
		paths := make([]string, 0, len(p.table))
		for path := range p.table {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			fmt.Fprintf(&b, "  %s [%d]\n", path, p.table[path].usage)
		}
	}

	return b.String()
}

// descSize, descHits, ... are the prometheus metric descriptors for
// Collector. They are package-level because prometheus.Desc values are
// immutable and safe to share across Collect calls.
var (
	descSize = prometheus.NewDesc(
		"jrobin_pool_size", "Number of handles currently held open in the pool.",
		[]string{"pool_id"}, nil,
	)
	descIdle = prometheus.NewDesc(
		"jrobin_pool_idle", "Number of held handles with zero active leases.",
		[]string{"pool_id"}, nil,
	)
	descMaxUsedCapacity = prometheus.NewDesc(
		"jrobin_pool_max_used_capacity", "Largest table size observed since construction.",
		[]string{"pool_id"}, nil,
	)
	descHits = prometheus.NewDesc(
		"jrobin_pool_hits_total", "Total requests satisfied by an already-open handle.",
		[]string{"pool_id"}, nil,
	)
	descRequests = prometheus.NewDesc(
		"jrobin_pool_requests_total", "Total request calls made against the pool.",
		[]string{"pool_id"}, nil,
	)
	descEfficiency = prometheus.NewDesc(
		"jrobin_pool_efficiency", "hits/requests, rounded to three decimals; 1.0 when requests is zero.",
		[]string{"pool_id"}, nil,
	)
)

// Collector adapts a *Pool to prometheus.Collector, so it can be registered
// with a prometheus.Registry without the core pool importing one itself —
// every gauge is computed from a single locked snapshot at Collect time.
type Collector struct {
	pool *Pool
}

// NewCollector wraps pool for Prometheus scraping.
func NewCollector(pool *Pool) *Collector { return &Collector{pool: pool} }

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descSize
	ch <- descIdle
	ch <- descMaxUsedCapacity
	ch <- descHits
	ch <- descRequests
	ch <- descEfficiency
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	p := c.pool
	p.mu.Lock()
	size := len(p.table)
	idleLen := p.idle.len()
	maxUsed := p.maxUsedCapacity
	hits := p.hits
	requests := p.requests
	eff := efficiency(hits, requests)
	id := p.id.String()
	p.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(descSize, prometheus.GaugeValue, float64(size), id)
	ch <- prometheus.MustNewConstMetric(descIdle, prometheus.GaugeValue, float64(idleLen), id)
	ch <- prometheus.MustNewConstMetric(descMaxUsedCapacity, prometheus.GaugeValue, float64(maxUsed), id)
	ch <- prometheus.MustNewConstMetric(descHits, prometheus.CounterValue, float64(hits), id)
	ch <- prometheus.MustNewConstMetric(descRequests, prometheus.CounterValue, float64(requests), id)
	ch <- prometheus.MustNewConstMetric(descEfficiency, prometheus.GaugeValue, eff, id)
}
