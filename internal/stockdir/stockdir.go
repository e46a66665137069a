// Package stockdir holds the in-memory company directory: an explicit
// state object created at startup, refreshed on an interval and torn
// down with the process, replacing any notion of ambient global caches.
package stockdir

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	errsx "github.com/twmops/mops-linebot-go/internal/errors"
	"github.com/twmops/mops-linebot-go/internal/logger"
	"github.com/twmops/mops-linebot-go/internal/metrics"
	"github.com/twmops/mops-linebot-go/internal/scraper/twstock"
)

// Source provides the directory feeds and the quote fallback.
// *twstock.Client is the production implementation.
type Source interface {
	FetchAll(ctx context.Context) ([]twstock.Company, error)
	QuoteName(ctx context.Context, code string) (string, error)
}

var _ Source = (*twstock.Client)(nil)

// Cache persists the directory between restarts so lookups work before
// the first live refresh completes. *storage.DB is the production
// implementation.
type Cache interface {
	SaveCompanies(ctx context.Context, companies []twstock.Company) error
	LoadCompanies(ctx context.Context) ([]twstock.Company, error)
}

// Directory is a concurrency-safe code/name lookup over the company
// feeds, with a realtime-quote fallback for instruments the feeds do
// not carry (ETFs and the like).
type Directory struct {
	client Source
	cache  Cache // nil disables persistence
	log    *logger.Logger
	m      *metrics.Metrics

	mu          sync.RWMutex
	all         []twstock.Company
	byCode      map[string]twstock.Company
	byName      map[string]string
	lastRefresh time.Time

	sf singleflight.Group
}

// New creates an empty directory. Call Refresh before first use, or
// start Run to do so on a schedule. metrics may be nil.
func New(client Source, log *logger.Logger, m *metrics.Metrics) *Directory {
	return &Directory{
		client: client,
		log:    log,
		m:      m,
		byCode: make(map[string]twstock.Company),
		byName: make(map[string]string),
	}
}

// UseCache attaches a persistence layer. Refresh writes through to it
// and LoadCache seeds the tables from it at startup.
func (d *Directory) UseCache(c Cache) {
	d.cache = c
}

// LoadCache seeds the lookup tables from the persisted directory. An
// empty cache is not an error. The last-refresh timestamp stays zero so
// a scheduled refresh still replaces the stale tables.
func (d *Directory) LoadCache(ctx context.Context) error {
	if d.cache == nil {
		return nil
	}
	items, err := d.cache.LoadCompanies(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	d.swap(items, time.Time{})
	if d.log != nil {
		d.log.Infof("company directory seeded from cache, %d entries", len(items))
	}
	return nil
}

// swap rebuilds the lookup tables and installs them atomically.
func (d *Directory) swap(items []twstock.Company, refreshedAt time.Time) {
	byCode := make(map[string]twstock.Company, len(items))
	byName := make(map[string]string, len(items))
	for _, it := range items {
		byCode[it.Code] = it
		byName[it.Name] = it.Code
		// Short names resolve too, first listing wins on clashes.
		if it.ShortName != "" {
			if _, taken := byName[it.ShortName]; !taken {
				byName[it.ShortName] = it.Code
			}
		}
	}

	d.mu.Lock()
	d.all = items
	d.byCode = byCode
	d.byName = byName
	d.lastRefresh = refreshedAt
	d.mu.Unlock()
}

// Refresh re-fetches all feeds and swaps the lookup tables atomically.
// Concurrent calls collapse into one fetch via singleflight.
func (d *Directory) Refresh(ctx context.Context) error {
	_, err, shared := d.sf.Do("refresh", func() (interface{}, error) {
		items, err := d.client.FetchAll(ctx)
		if err != nil {
			if d.m != nil {
				d.m.RecordDirectoryRefresh("error", 0)
			}
			return nil, err
		}

		d.swap(items, time.Now())

		if d.cache != nil {
			if err := d.cache.SaveCompanies(ctx, items); err != nil && d.log != nil {
				d.log.WithError(err).Warnf("failed to persist company directory")
			}
		}

		if d.m != nil {
			d.m.RecordDirectoryRefresh("success", len(items))
		}
		if d.log != nil {
			d.log.Infof("company directory refreshed, %d entries", len(items))
		}
		return nil, nil
	})

	if shared && d.m != nil {
		d.m.RecordSingleflightDedup("directory")
	}
	return err
}

// Run refreshes immediately and then on every interval tick until the
// context is canceled. Refresh failures are logged and retried on the
// next tick; the existing tables stay in place.
func (d *Directory) Run(ctx context.Context, interval time.Duration) {
	if err := d.Refresh(ctx); err != nil && d.log != nil {
		d.log.WithError(err).Errorf("initial directory refresh failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Refresh(ctx); err != nil && d.log != nil {
				d.log.WithError(err).Errorf("directory refresh failed")
			}
		}
	}
}

// Name resolves a stock code to a display name. Codes missing from the
// feeds fall back to the realtime quote API, which costs a network
// round trip.
func (d *Directory) Name(ctx context.Context, code string) (string, error) {
	d.mu.RLock()
	it, ok := d.byCode[code]
	d.mu.RUnlock()

	if ok {
		return it.DisplayName(), nil
	}
	return d.client.QuoteName(ctx, code)
}

// Code resolves an exact full company name to its code.
func (d *Directory) Code(name string) (string, error) {
	d.mu.RLock()
	code, ok := d.byName[name]
	d.mu.RUnlock()

	if !ok {
		return "", errsx.ErrNotFound
	}
	return code, nil
}

// Search returns companies whose full or short name contains the
// query substring, in directory (code) order, up to limit entries.
// limit <= 0 means no limit.
func (d *Directory) Search(query string, limit int) []twstock.Company {
	if query == "" {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []twstock.Company
	for _, it := range d.all {
		if !strings.Contains(it.Name, query) && !strings.Contains(it.ShortName, query) {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Size returns the number of directory entries.
func (d *Directory) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.all)
}

// LastRefresh returns when the tables were last swapped, zero if never.
func (d *Directory) LastRefresh() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastRefresh
}

