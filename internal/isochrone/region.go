package isochrone

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"convene/internal/domain"
	"convene/internal/geo"
)

// probeBudgetSeconds is the short walk/transit budget used when probing
// which service partition covers a coordinate.
const probeBudgetSeconds = 180

// probeConcurrency bounds the fan-out of region probes (9 regions x 2
// modes per resolution).
const probeConcurrency = 8

// RegionProbe is one short isochrone fetched while resolving a region.
type RegionProbe struct {
	Region   string
	Mode     string
	Geometry geo.Geometry
	Raw      json.RawMessage
}

// RegionResolver finds which of the nine service partitions covers a
// coordinate by probing each with a short isochrone and testing coverage.
type RegionResolver struct {
	client *Client
	ttl    time.Duration
	log    *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedProbe
}

type cachedProbe struct {
	probe   RegionProbe
	expires time.Time
}

func NewRegionResolver(client *Client, ttl time.Duration, log *zap.Logger) *RegionResolver {
	return &RegionResolver{
		client: client,
		ttl:    ttl,
		log:    log,
		cache:  make(map[string]cachedProbe),
	}
}

// Probes fetches walk and transit probe isochrones for every service
// region, concurrently, reusing cached probes near the same coordinate.
// Failed probes are dropped, not fatal.
func (r *RegionResolver) Probes(ctx context.Context, lat, lng float64) []RegionProbe {
	type slot struct {
		region, mode string
	}
	slots := make([]slot, 0, len(domain.ServiceRegions)*2)
	for _, region := range domain.ServiceRegions {
		slots = append(slots, slot{region, domain.TransportWalk}, slot{region, domain.TransportTransit})
	}

	results := make([]*RegionProbe, len(slots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i, s := range slots {
		g.Go(func() error {
			if probe, ok := r.cached(s.region, s.mode, lat, lng); ok {
				results[i] = &probe
				return nil
			}
			sourceID := fmt.Sprintf("region probe %f, %f", lat, lng)
			geomArea, raw, err := r.client.FetchPolygon(gctx, s.region, lat, lng, s.mode, probeBudgetSeconds, sourceID)
			if err != nil {
				r.log.Warn("region probe failed",
					zap.String("region", s.region), zap.String("mode", s.mode), zap.Error(err))
				return nil
			}
			probe := RegionProbe{Region: s.region, Mode: s.mode, Geometry: geomArea, Raw: raw}
			r.store(s.region, s.mode, lat, lng, probe)
			results[i] = &probe
			return nil
		})
	}
	_ = g.Wait()

	probes := make([]RegionProbe, 0, len(results))
	for _, p := range results {
		if p != nil {
			probes = append(probes, *p)
		}
	}
	return probes
}

// Resolve returns exactly one region tag, or ErrRegionNotFound when no
// partition's probe covers the coordinate. Nothing is persisted here.
func (r *RegionResolver) Resolve(ctx context.Context, lat, lng float64) (string, error) {
	probes := r.Probes(ctx, lat, lng)

	type candidate struct {
		region string
		mode   string
		area   float64
	}
	var candidates []candidate
	for _, p := range probes {
		if p.Geometry.Covers(lng, lat) {
			candidates = append(candidates, candidate{p.Region, p.Mode, p.Geometry.Area()})
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no partition covers %f, %f", domain.ErrRegionNotFound, lat, lng)
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		// transit beats walk when the transit partition actually supports
		// transit and resolved a larger area
		if best.mode == domain.TransportWalk && c.mode == domain.TransportTransit &&
			domain.RegionSupportsTransit(c.region) && best.area < c.area {
			best = c
			continue
		}
		if best.mode == c.mode && c.area > best.area {
			best = c
		}
	}
	return best.region, nil
}

func (r *RegionResolver) cacheKey(region, mode string, lat, lng float64) string {
	// probes centred within ~1km of each other are interchangeable
	return fmt.Sprintf("%s|%s|%.2f|%.2f", region, mode, lat, lng)
}

func (r *RegionResolver) cached(region, mode string, lat, lng float64) (RegionProbe, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[r.cacheKey(region, mode, lat, lng)]
	if !ok || time.Now().After(entry.expires) {
		return RegionProbe{}, false
	}
	return entry.probe, true
}

func (r *RegionResolver) store(region, mode string, lat, lng float64, probe RegionProbe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[r.cacheKey(region, mode, lat, lng)] = cachedProbe{probe: probe, expires: time.Now().Add(r.ttl)}
}
