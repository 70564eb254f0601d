// Package region resolves a shopper's locale to a commerce region.
package region

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"storefront-checkout/internal/cache"
	"storefront-checkout/internal/model"
)

// ErrNoRegions means the backend has no regions configured. Callers treat it
// as a fatal configuration error.
var ErrNoRegions = errors.New("no regions configured")

// Lister fetches every region from the backend.
type Lister interface {
	ListRegions(ctx context.Context) ([]model.Region, error)
}

// Config holds resolver settings.
type Config struct {
	// DefaultLocale is used when a locale maps to no region and has no override.
	DefaultLocale string

	// Overrides maps an upper-cased locale code to a region ID. Consulted only
	// when no region serves the locale as a country.
	Overrides map[string]string
}

// Resolver maps locale codes to regions.
//
// Resolution order:
//  1. cached locale
//  2. region serving the locale as a country (after a fresh fetch)
//  3. configured override for the locale
//  4. region of the default locale
//  5. first region returned by the backend
//
// Resolve fails only when the backend lists no regions at all.
type Resolver struct {
	lister        Lister
	cache         *cache.RegionCache
	defaultLocale string
	overrides     map[string]string
	logger        *slog.Logger
}

// NewResolver creates a resolver backed by lister and the shared region cache.
func NewResolver(lister Lister, regions *cache.RegionCache, cfg Config, logger *slog.Logger) *Resolver {
	overrides := make(map[string]string, len(cfg.Overrides))
	for k, v := range cfg.Overrides {
		overrides[strings.ToUpper(k)] = v
	}
	return &Resolver{
		lister:        lister,
		cache:         regions,
		defaultLocale: strings.ToLower(cfg.DefaultLocale),
		overrides:     overrides,
		logger:        logger,
	}
}

// Resolve returns the region for locale.
func (r *Resolver) Resolve(ctx context.Context, locale string) (*model.Region, error) {
	locale = strings.ToLower(strings.TrimSpace(locale))

	if region, ok := r.cache.Get(locale); ok {
		return region, nil
	}

	regions, err := r.lister.ListRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing regions: %w", err)
	}
	if len(regions) == 0 {
		return nil, ErrNoRegions
	}

	byCountry := make(map[string]*model.Region)
	for i := range regions {
		region := &regions[i]
		for _, cc := range region.CountryCodes() {
			byCountry[cc] = region
		}
	}
	// The cache is bounded and may hold fewer countries than the backend
	// serves, so this lookup answers from the map, not the cache.
	for cc, region := range byCountry {
		r.cache.Set(cc, region)
	}

	if region, ok := byCountry[locale]; ok {
		r.cache.Set(locale, region)
		return region, nil
	}

	if id, ok := r.overrides[strings.ToUpper(locale)]; ok {
		if region := findByID(regions, id); region != nil {
			r.cache.Set(locale, region)
			return region, nil
		}
		r.logger.Warn("region override names unknown region",
			slog.String("locale", locale),
			slog.String("region_id", id),
		)
	}

	if r.defaultLocale != "" {
		if region, ok := byCountry[r.defaultLocale]; ok {
			return region, nil
		}
	}

	r.logger.Debug("falling back to first region", slog.String("locale", locale))
	return &regions[0], nil
}

// Purge drops every cached locale so the next resolution refetches regions.
func (r *Resolver) Purge() {
	r.cache.Purge()
}

func findByID(regions []model.Region, id string) *model.Region {
	for i := range regions {
		if regions[i].ID == id {
			return &regions[i]
		}
	}
	return nil
}
