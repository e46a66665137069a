package mops

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	errsx "github.com/twmops/mops-linebot-go/internal/errors"
	"github.com/twmops/mops-linebot-go/internal/logger"
	"github.com/twmops/mops-linebot-go/internal/metrics"
)

// Mode selects the retrieval contract of a historical query.
type Mode string

const (
	// ModeFast performs exactly one fetch for the whole range and
	// accepts possible truncation at the upstream cap.
	ModeFast Mode = "fast"

	// ModeFull bisects every capped window until no leaf is truncated
	// (or a leaf is a single day and cannot shrink further).
	ModeFull Mode = "full"
)

// HistoryOptions tunes the engine.
type HistoryOptions struct {
	Cap       int // upstream truncation threshold (1000 on MOPS)
	BlockDays int // top-level partition size in days
	Workers   int // concurrent top-level block fetches, 1 = sequential
}

// HistoryEngine retrieves complete announcement histories from the
// ezsearch endpoint despite its silent truncation cap. It partitions
// the range into blocks, adaptively bisects capped windows, then
// deduplicates, orders and keyword-filters the merged result.
type HistoryEngine struct {
	fetch fetcher
	opts  HistoryOptions
	log   *logger.Logger
	m     *metrics.Metrics
}

// NewHistoryEngine builds an engine on the production ezsearch client.
// metrics may be nil.
func NewHistoryEngine(client *EzSearchClient, opts HistoryOptions, log *logger.Logger, m *metrics.Metrics) *HistoryEngine {
	return newHistoryEngine(client, opts, log, m)
}

func newHistoryEngine(f fetcher, opts HistoryOptions, log *logger.Logger, m *metrics.Metrics) *HistoryEngine {
	if opts.Cap <= 0 {
		opts.Cap = 1000
	}
	if opts.BlockDays <= 0 {
		opts.BlockDays = 30
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &HistoryEngine{fetch: f, opts: opts, log: log, m: m}
}

// window is an inclusive calendar-date pair, never mutated after
// creation, only replaced by child windows on a split.
type window struct {
	start time.Time
	end   time.Time
}

// FetchHistory returns every announcement in [q.Start, q.End] matching
// the query filters, deduplicated and sorted ascending by (date, time).
//
// In ModeFull no window's contribution is truncated except single-day
// windows that themselves hit the cap; those are accepted as a
// documented undercount. Any window fetch failure aborts the whole
// query: callers never see partial results.
func (e *HistoryEngine) FetchHistory(ctx context.Context, q Query, mode Mode) ([]Announcement, error) {
	startedAt := time.Now()

	records, err := e.fetchHistory(ctx, q, mode)

	if e.m != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		e.m.RecordHistoryQuery(string(mode), status, time.Since(startedAt).Seconds())
	}
	return records, err
}

func (e *HistoryEngine) fetchHistory(ctx context.Context, q Query, mode Mode) ([]Announcement, error) {
	if mode != ModeFast && mode != ModeFull {
		return nil, errsx.NewValidationError("mode", "must be fast or full")
	}
	if q.Start.IsZero() || q.End.IsZero() {
		return nil, errsx.NewValidationError("range", "start and end are required")
	}

	start := truncateToDay(q.Start)
	end := truncateToDay(q.End)
	if end.Before(start) {
		return nil, errsx.NewValidationError("range", "end date before start date")
	}

	var records []Announcement
	if mode == ModeFast {
		recs, err := e.fetch.fetchWindow(ctx, q, start, end)
		if err != nil {
			return nil, err
		}
		records = recs
	} else {
		recs, err := e.fetchFull(ctx, q, start, end)
		if err != nil {
			return nil, err
		}
		records = recs
	}

	before := len(records)
	records = dedupe(records)
	if e.m != nil && before > len(records) {
		e.m.RecordDuplicatesRemoved(before - len(records))
	}

	sortAnnouncements(records)
	records = filterByKeyword(records, q.Subject)
	return records, nil
}

// fetchFull partitions [start, end] into top-level blocks and bisects
// each. Blocks run under an errgroup bounded by Workers; results are
// reassembled in block order only after every block has completed, and
// the first failure cancels the rest.
func (e *HistoryEngine) fetchFull(ctx context.Context, q Query, start, end time.Time) ([]Announcement, error) {
	blocks := partition(start, end, e.opts.BlockDays)
	results := make([][]Announcement, len(blocks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i, b := range blocks {
		g.Go(func() error {
			recs, err := e.bisect(gctx, q, b)
			if err != nil {
				return err
			}
			results[i] = recs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Announcement
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, nil
}

// partition slices [start, end] into consecutive blocks of at most
// blockDays days span each, ascending, last block possibly shorter.
func partition(start, end time.Time, blockDays int) []window {
	var blocks []window
	for cur := start; !cur.After(end); {
		to := cur.AddDate(0, 0, blockDays)
		if to.After(end) {
			to = end
		}
		blocks = append(blocks, window{start: cur, end: to})
		cur = to.AddDate(0, 0, 1)
	}
	return blocks
}

// bisect drains a work list of pending windows. A window returning at
// least Cap records is split at its midpoint day; a single-day window
// at the cap cannot shrink and is accepted as-is.
func (e *HistoryEngine) bisect(ctx context.Context, q Query, root window) ([]Announcement, error) {
	var out []Announcement

	pending := []window{root}
	for len(pending) > 0 {
		w := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		recs, err := e.fetch.fetchWindow(ctx, q, w.start, w.end)
		if err != nil {
			return nil, err
		}

		days := daysBetween(w.start, w.end)
		if len(recs) >= e.opts.Cap && days >= 1 {
			mid := w.start.AddDate(0, 0, days/2)
			pending = append(pending,
				window{start: mid.AddDate(0, 0, 1), end: w.end},
				window{start: w.start, end: mid},
			)
			if e.m != nil {
				e.m.RecordWindowSplit()
			}
			continue
		}

		if len(recs) >= e.opts.Cap {
			// Single day at the cap: truncated at day granularity
			if e.log != nil {
				e.log.Warnf("single-day window %s returned %d records at cap, result may undercount",
					FormatROCDate(w.start), len(recs))
			}
			if e.m != nil {
				e.m.RecordCappedDay()
			}
		}

		out = append(out, recs...)
	}

	return out, nil
}

// sortAnnouncements orders records ascending by (date, time) using
// zero-padded keys so lexicographic and chronological order coincide.
// The sort is stable: ties keep their input order.
func sortAnnouncements(records []Announcement) {
	sort.SliceStable(records, func(i, j int) bool {
		di, dj := sortKeyDate(records[i].Date), sortKeyDate(records[j].Date)
		if di != dj {
			return di < dj
		}
		return sortKeyTime(records[i].Time) < sortKeyTime(records[j].Time)
	})
}

// filterByKeyword retains records containing keyword in any of subject,
// description, item name or company name. The upstream SUBJECT filter
// is inconsistent, so this second pass is authoritative.
func filterByKeyword(records []Announcement, keyword string) []Announcement {
	if keyword == "" {
		return records
	}
	out := records[:0:0]
	for _, r := range records {
		if strings.Contains(r.Subject, keyword) ||
			strings.Contains(r.Description, keyword) ||
			strings.Contains(r.ItemName, keyword) ||
			strings.Contains(r.CompanyName, keyword) {
			out = append(out, r)
		}
	}
	return out
}
