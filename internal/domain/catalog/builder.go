package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/modkeeper/internal/domain/network"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// Result is the outcome of a catalog build.
type Result struct {
	Packages []Package
	// FromCache is set when the packages came from the stored envelope.
	FromCache bool
	// Stale is set when a failed live fetch fell back to an expired
	// envelope.
	Stale bool
	// BuiltAt is when the returned packages were fetched.
	BuiltAt time.Time
}

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	// CacheDuration is how long a stored envelope short-circuits a build.
	CacheDuration time.Duration
}

// Builder merges the registry and curated passes and applies the cache
// policy around them.
type Builder struct {
	sources []Source
	cache   *Cache
	config  BuilderConfig
	logger  ports.Logger
	now     func() time.Time
}

// NewBuilder creates a builder. Sources run in order and their packages
// are concatenated without de-duplication.
func NewBuilder(config BuilderConfig, cache *Cache, logger ports.Logger, sources ...Source) *Builder {
	return &Builder{
		sources: sources,
		cache:   cache,
		config:  config,
		logger:  ports.OrNop(logger),
		now:     time.Now,
	}
}

// Build returns the catalog. A fresh, non-empty envelope is reused unless
// force is set. When the live fetch fails, a non-empty stored envelope of
// any age is returned instead with a warning; an empty or missing envelope
// turns the failure into an ErrCatalogUnavailable error. Only a successful
// live fetch replaces the stored envelope.
func (b *Builder) Build(ctx context.Context, force bool) (*Result, error) {
	now := b.now()

	stored, err := b.cache.Load()
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		b.logger.Warn(ctx, "ignoring unreadable catalog cache", ports.F("path", b.cache.Path()), ports.Err(err))
	}

	if !force && stored.Fresh(now, b.config.CacheDuration) {
		b.logger.Debug(ctx, "using cached catalog",
			ports.F("packages", len(stored.Packages)),
			ports.F("age", stored.Age(now).Round(time.Second).String()))
		return &Result{Packages: stored.Packages, FromCache: true, BuiltAt: time.Unix(stored.Timestamp, 0)}, nil
	}

	packages, fetchErr := b.fetchLive(ctx)
	if fetchErr != nil {
		if stored != nil && len(stored.Packages) > 0 {
			b.logger.Warn(ctx, "catalog fetch failed, using stored catalog",
				ports.F("rate_limited", network.IsRateLimited(fetchErr)),
				ports.F("age", stored.Age(now).Round(time.Second).String()),
				ports.Err(fetchErr))
			return &Result{Packages: stored.Packages, FromCache: true, Stale: true, BuiltAt: time.Unix(stored.Timestamp, 0)}, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, fetchErr)
	}

	env := &Envelope{Timestamp: now.Unix(), Packages: packages}
	if err := b.cache.Save(env); err != nil {
		b.logger.Warn(ctx, "could not persist catalog cache", ports.Err(err))
	}
	b.logger.Info(ctx, "catalog refreshed", ports.F("packages", len(packages)))
	return &Result{Packages: packages, BuiltAt: now}, nil
}

// fetchLive runs every source. A rate limit from any source fails the
// build. Other source failures only drop that source's packages, unless
// every package is lost that way.
func (b *Builder) fetchLive(ctx context.Context) ([]Package, error) {
	var (
		all    []Package
		failed []string
		errs   []error
	)
	for _, src := range b.sources {
		found, err := src.Fetch(ctx)
		if err != nil {
			if network.IsRateLimited(err) || ctx.Err() != nil {
				return nil, fmt.Errorf("%s pass: %w", src.Name(), err)
			}
			b.logger.Warn(ctx, "catalog source failed", ports.F("source", src.Name()), ports.Err(err))
			failed = append(failed, src.Name())
			errs = append(errs, err)
			continue
		}
		all = append(all, found...)
	}

	if len(all) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("no packages (%s failed): %w", strings.Join(failed, ", "), errors.Join(errs...))
	}
	return all, nil
}
