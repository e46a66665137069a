package mops

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	errsx "github.com/twmops/mops-linebot-go/internal/errors"
)

// fakeUpstream simulates the ezsearch endpoint: it returns every stored
// record inside the requested window, silently truncated at cap, and
// ignores the subject filter the way the real endpoint sometimes does.
type fakeUpstream struct {
	mu           sync.Mutex
	records      []Announcement
	cap          int
	calls        int
	failOn       func(start, end time.Time) error
	leakBoundary bool // also return the day after end, like a sloppy upstream
}

func (f *fakeUpstream) fetchWindow(_ context.Context, _ Query, start, end time.Time) ([]Announcement, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.failOn != nil {
		if err := f.failOn(start, end); err != nil {
			return nil, err
		}
	}

	effectiveEnd := end
	if f.leakBoundary {
		effectiveEnd = end.AddDate(0, 0, 1)
	}

	var out []Announcement
	for _, r := range f.records {
		d, err := ParseROCDate(r.Date)
		if err != nil {
			continue
		}
		if d.Before(start) || d.After(effectiveEnd) {
			continue
		}
		out = append(out, r)
		if len(out) == f.cap {
			break // silent truncation
		}
	}
	return out, nil
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// genDay creates n distinct records dated the given ROC day.
func genDay(date string, n int) []Announcement {
	out := make([]Announcement, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Announcement{
			StockCode:   "2330",
			CompanyName: "台積電",
			Date:        date,
			Time:        fmt.Sprintf("%02d:%02d:00", i/60%24, i%60),
			Subject:     fmt.Sprintf("公告事項 %s #%d", date, i),
			Link:        fmt.Sprintf("https://mops.example/%s/%d", date, i),
		})
	}
	return out
}

func newTestEngine(f fetcher, opts HistoryOptions) *HistoryEngine {
	return newHistoryEngine(f, opts, nil, nil)
}

func mustDate(t *testing.T, roc string) time.Time {
	t.Helper()
	d, err := ParseROCDate(roc)
	if err != nil {
		t.Fatalf("ParseROCDate(%q): %v", roc, err)
	}
	return d
}

func TestFetchHistory_InvertedRange(t *testing.T) {
	t.Parallel()
	up := &fakeUpstream{cap: 10}
	e := newTestEngine(up, HistoryOptions{Cap: 10})

	q := Query{Start: mustDate(t, "113/02/01"), End: mustDate(t, "113/01/01")}
	_, err := e.FetchHistory(context.Background(), q, ModeFull)

	if !errsx.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if up.callCount() != 0 {
		t.Errorf("upstream called %d times before validation, want 0", up.callCount())
	}
}

func TestFetchHistory_InvalidMode(t *testing.T) {
	t.Parallel()
	up := &fakeUpstream{cap: 10}
	e := newTestEngine(up, HistoryOptions{Cap: 10})

	q := Query{Start: mustDate(t, "113/01/01"), End: mustDate(t, "113/01/02")}
	_, err := e.FetchHistory(context.Background(), q, Mode("turbo"))

	if !errsx.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if up.callCount() != 0 {
		t.Errorf("upstream called %d times, want 0", up.callCount())
	}
}

func TestFetchHistory_ModeEquivalence(t *testing.T) {
	t.Parallel()

	// True count (8) below the cap (10): both modes must agree
	var records []Announcement
	records = append(records, genDay("113/01/01", 3)...)
	records = append(records, genDay("113/01/02", 5)...)

	up := &fakeUpstream{records: records, cap: 10}
	e := newTestEngine(up, HistoryOptions{Cap: 10})
	q := Query{Start: mustDate(t, "113/01/01"), End: mustDate(t, "113/01/05")}

	fast, err := e.FetchHistory(context.Background(), q, ModeFast)
	if err != nil {
		t.Fatalf("fast mode: %v", err)
	}
	full, err := e.FetchHistory(context.Background(), q, ModeFull)
	if err != nil {
		t.Fatalf("full mode: %v", err)
	}

	if len(fast) != len(full) {
		t.Fatalf("fast returned %d, full returned %d", len(fast), len(full))
	}
	fullKeys := make(map[identityKey]struct{}, len(full))
	for _, r := range full {
		fullKeys[r.key()] = struct{}{}
	}
	for _, r := range fast {
		if _, ok := fullKeys[r.key()]; !ok {
			t.Errorf("record %v in fast but not full", r.key())
		}
	}
}

func TestFetchHistory_FullDefeatsTruncation(t *testing.T) {
	t.Parallel()

	// 4 days x 6 records = 24 total, cap 10: fast truncates, full must not
	var records []Announcement
	for day := 1; day <= 4; day++ {
		records = append(records, genDay(fmt.Sprintf("113/01/%02d", day), 6)...)
	}

	up := &fakeUpstream{records: records, cap: 10}
	e := newTestEngine(up, HistoryOptions{Cap: 10})
	q := Query{Start: mustDate(t, "113/01/01"), End: mustDate(t, "113/01/04")}

	fast, err := e.FetchHistory(context.Background(), q, ModeFast)
	if err != nil {
		t.Fatalf("fast mode: %v", err)
	}
	if len(fast) != 10 {
		t.Errorf("fast mode returned %d records, want 10 (truncated)", len(fast))
	}

	full, err := e.FetchHistory(context.Background(), q, ModeFull)
	if err != nil {
		t.Fatalf("full mode: %v", err)
	}
	if len(full) != 24 {
		t.Errorf("full mode returned %d records, want all 24", len(full))
	}
}

func TestFetchHistory_SplitsOnce(t *testing.T) {
	t.Parallel()

	// Whole window at cap, both halves below it: exactly one split,
	// so three fetches (parent + two children).
	var records []Announcement
	records = append(records, genDay("113/01/01", 7)...)
	records = append(records, genDay("113/01/20", 8)...)

	up := &fakeUpstream{records: records, cap: 10}
	e := newTestEngine(up, HistoryOptions{Cap: 10})
	q := Query{Start: mustDate(t, "113/01/01"), End: mustDate(t, "113/01/31")}

	full, err := e.FetchHistory(context.Background(), q, ModeFull)
	if err != nil {
		t.Fatalf("full mode: %v", err)
	}
	if len(full) != 15 {
		t.Errorf("got %d records, want 15", len(full))
	}
	if up.callCount() != 3 {
		t.Errorf("upstream calls = %d, want 3 (one split)", up.callCount())
	}

	for i := 1; i < len(full); i++ {
		prev := sortKeyDate(full[i-1].Date) + " " + sortKeyTime(full[i-1].Time)
		cur := sortKeyDate(full[i].Date) + " " + sortKeyTime(full[i].Time)
		if prev > cur {
			t.Fatalf("records out of order at %d: %q > %q", i, prev, cur)
		}
	}
}

func TestFetchHistory_SingleDayAtCap(t *testing.T) {
	t.Parallel()

	// A single-day window at the cap cannot subdivide: accepted as an
	// undercount, no further calls
	up := &fakeUpstream{records: genDay("113/01/01", 25), cap: 10}
	e := newTestEngine(up, HistoryOptions{Cap: 10})
	q := Query{Start: mustDate(t, "113/01/01"), End: mustDate(t, "113/01/01")}

	full, err := e.FetchHistory(context.Background(), q, ModeFull)
	if err != nil {
		t.Fatalf("full mode: %v", err)
	}
	if len(full) != 10 {
		t.Errorf("got %d records, want 10 (day-granularity truncation)", len(full))
	}
	if up.callCount() != 1 {
		t.Errorf("upstream calls = %d, want 1", up.callCount())
	}
}

func TestFetchHistory_FailFast(t *testing.T) {
	t.Parallel()

	var records []Announcement
	for day := 1; day <= 4; day++ {
		records = append(records, genDay(fmt.Sprintf("113/01/%02d", day), 6)...)
	}

	// Fail any window whose start is past the midpoint: one sibling
	// succeeds, the other fails, the whole query must fail
	boom := errors.New("connection reset")
	up := &fakeUpstream{
		records: records,
		cap:     10,
		failOn: func(start, end time.Time) error {
			if !start.Before(mustDate(t, "113/01/03")) {
				return errsx.NewWindowRetrievalError("https://mops.example", start, end, boom)
			}
			return nil
		},
	}
	e := newTestEngine(up, HistoryOptions{Cap: 10})
	q := Query{Start: mustDate(t, "113/01/01"), End: mustDate(t, "113/01/04")}

	result, err := e.FetchHistory(context.Background(), q, ModeFull)
	if !errsx.IsRetrieval(err) {
		t.Fatalf("err = %v, want RetrievalError", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err does not wrap the underlying cause")
	}
	if result != nil {
		t.Errorf("got partial result of %d records, want nil", len(result))
	}
}

func TestFetchHistory_EmptyRangeIsNotAnError(t *testing.T) {
	t.Parallel()
	up := &fakeUpstream{cap: 10}
	e := newTestEngine(up, HistoryOptions{Cap: 10})
	q := Query{Start: mustDate(t, "113/01/01"), End: mustDate(t, "113/01/31")}

	full, err := e.FetchHistory(context.Background(), q, ModeFull)
	if err != nil {
		t.Fatalf("full mode: %v", err)
	}
	if len(full) != 0 {
		t.Errorf("got %d records, want 0", len(full))
	}
}

func TestFetchHistory_KeywordFilterIsAuthoritative(t *testing.T) {
	t.Parallel()

	// The fake ignores the subject parameter, like the real endpoint on
	// a bad day. Each matching record carries the keyword in a
	// different candidate field.
	records := []Announcement{
		{Date: "113/01/01", Time: "09:00:00", Subject: "合併公告", Link: "l1"},
		{Date: "113/01/01", Time: "10:00:00", Subject: "無關", Description: "本次合併之說明", Link: "l2"},
		{Date: "113/01/01", Time: "11:00:00", Subject: "無關", ItemName: "合併", Link: "l3"},
		{Date: "113/01/01", Time: "12:00:00", Subject: "無關", CompanyName: "合併金控", Link: "l4"},
		{Date: "113/01/01", Time: "13:00:00", Subject: "除權息公告", Link: "l5"},
	}

	up := &fakeUpstream{records: records, cap: 100}
	e := newTestEngine(up, HistoryOptions{Cap: 100})
	q := Query{
		Start:   mustDate(t, "113/01/01"),
		End:     mustDate(t, "113/01/01"),
		Subject: "合併",
	}

	full, err := e.FetchHistory(context.Background(), q, ModeFull)
	if err != nil {
		t.Fatalf("full mode: %v", err)
	}
	if len(full) != 4 {
		t.Fatalf("got %d records, want 4", len(full))
	}
	for _, r := range full {
		if r.Link == "l5" {
			t.Error("record without keyword in any field survived the filter")
		}
	}
}

func TestFetchHistory_SortUsesPaddedKeys(t *testing.T) {
	t.Parallel()

	// Upstream date/time strings are not zero padded; plain string
	// comparison would put 113/10/02 before 113/9/30
	records := []Announcement{
		{Date: "113/10/02", Time: "9:05:00", Subject: "b", Link: "l2"},
		{Date: "113/9/30", Time: "14:00:00", Subject: "a", Link: "l1"},
		{Date: "113/10/02", Time: "13:00:00", Subject: "c", Link: "l3"},
	}

	up := &fakeUpstream{records: records, cap: 100}
	e := newTestEngine(up, HistoryOptions{Cap: 100})
	q := Query{Start: mustDate(t, "113/09/01"), End: mustDate(t, "113/10/31")}

	full, err := e.FetchHistory(context.Background(), q, ModeFull)
	if err != nil {
		t.Fatalf("full mode: %v", err)
	}
	if len(full) != 3 {
		t.Fatalf("got %d records, want 3", len(full))
	}

	wantOrder := []string{"l1", "l2", "l3"}
	for i, want := range wantOrder {
		if full[i].Link != want {
			t.Errorf("position %d = %s, want %s", i, full[i].Link, want)
		}
	}
}

func TestFetchHistory_CallCountBounded(t *testing.T) {
	t.Parallel()

	// Every window down to single days stays at the cap: worst case.
	// A D-day range produces at most D leaves and D-1 internal
	// windows, so no more than 2D-1 fetches per block.
	const days = 8
	var records []Announcement
	for day := 1; day <= days; day++ {
		records = append(records, genDay(fmt.Sprintf("113/01/%02d", day), 30)...)
	}

	up := &fakeUpstream{records: records, cap: 10}
	e := newTestEngine(up, HistoryOptions{Cap: 10})
	q := Query{Start: mustDate(t, "113/01/01"), End: mustDate(t, "113/01/08")}

	_, err := e.FetchHistory(context.Background(), q, ModeFull)
	if err != nil {
		t.Fatalf("full mode: %v", err)
	}
	if up.callCount() > 2*days-1 {
		t.Errorf("upstream calls = %d, want at most %d", up.callCount(), 2*days-1)
	}
}

func TestFetchHistory_ConcurrentBlocks(t *testing.T) {
	t.Parallel()

	// 90 days of data split into 30-day blocks fetched by 4 workers
	// must return the same set as the sequential run
	var records []Announcement
	for day := 1; day <= 28; day++ {
		records = append(records, genDay(fmt.Sprintf("113/01/%02d", day), 2)...)
		records = append(records, genDay(fmt.Sprintf("113/02/%02d", day), 2)...)
		records = append(records, genDay(fmt.Sprintf("113/03/%02d", day), 2)...)
	}

	q := Query{Start: mustDate(t, "113/01/01"), End: mustDate(t, "113/03/28")}

	seqUp := &fakeUpstream{records: records, cap: 50}
	seq, err := newTestEngine(seqUp, HistoryOptions{Cap: 50, BlockDays: 30, Workers: 1}).
		FetchHistory(context.Background(), q, ModeFull)
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}

	conUp := &fakeUpstream{records: records, cap: 50}
	con, err := newTestEngine(conUp, HistoryOptions{Cap: 50, BlockDays: 30, Workers: 4}).
		FetchHistory(context.Background(), q, ModeFull)
	if err != nil {
		t.Fatalf("concurrent: %v", err)
	}

	if len(seq) != len(con) {
		t.Fatalf("sequential %d records, concurrent %d", len(seq), len(con))
	}
	for i := range seq {
		if seq[i].key() != con[i].key() {
			t.Fatalf("results diverge at %d", i)
		}
	}
}

func TestFetchHistory_NoDuplicates(t *testing.T) {
	t.Parallel()

	// The upstream leaks the day after each window's end, so adjacent
	// blocks re-fetch boundary records; the final result must still be
	// duplicate free
	var records []Announcement
	for day := 1; day <= 28; day++ {
		records = append(records, genDay(fmt.Sprintf("113/01/%02d", day), 3)...)
		records = append(records, genDay(fmt.Sprintf("113/02/%02d", day), 3)...)
	}

	up := &fakeUpstream{records: records, cap: 40, leakBoundary: true}
	e := newTestEngine(up, HistoryOptions{Cap: 40, BlockDays: 10})
	q := Query{Start: mustDate(t, "113/01/01"), End: mustDate(t, "113/02/28")}

	full, err := e.FetchHistory(context.Background(), q, ModeFull)
	if err != nil {
		t.Fatalf("full mode: %v", err)
	}

	seen := make(map[identityKey]struct{}, len(full))
	for _, r := range full {
		k := r.key()
		if _, dup := seen[k]; dup {
			t.Fatalf("duplicate identity key %v in final result", k)
		}
		seen[k] = struct{}{}
	}
}

func TestPartition(t *testing.T) {
	t.Parallel()

	start := mustDate(t, "113/01/01")
	end := mustDate(t, "113/03/15")
	blocks := partition(start, end, 30)

	if len(blocks) == 0 {
		t.Fatal("no blocks")
	}
	if !blocks[0].start.Equal(start) {
		t.Errorf("first block starts %v, want %v", blocks[0].start, start)
	}
	if !blocks[len(blocks)-1].end.Equal(end) {
		t.Errorf("last block ends %v, want %v", blocks[len(blocks)-1].end, end)
	}

	for i, b := range blocks {
		if b.end.Before(b.start) {
			t.Errorf("block %d inverted", i)
		}
		if daysBetween(b.start, b.end) > 30 {
			t.Errorf("block %d spans %d days, want at most 30", i, daysBetween(b.start, b.end))
		}
		if i > 0 {
			gap := daysBetween(blocks[i-1].end, b.start)
			if gap != 1 {
				t.Errorf("gap of %d days between block %d and %d, want contiguous", gap, i-1, i)
			}
		}
	}
}

func TestPartition_SingleDay(t *testing.T) {
	t.Parallel()

	d := mustDate(t, "113/01/01")
	blocks := partition(d, d, 30)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if !blocks[0].start.Equal(d) || !blocks[0].end.Equal(d) {
		t.Errorf("block = %v, want single day", blocks[0])
	}
}

func TestDedupe_FirstOccurrenceWins(t *testing.T) {
	t.Parallel()

	records := []Announcement{
		{Date: "113/01/01", Time: "09:00:00", Subject: "s", Link: "l", StockCode: "first"},
		{Date: "113/01/01", Time: "09:00:00", Subject: "s", Link: "l", StockCode: "second"},
		{Date: "113/01/01", Time: "09:00:00", Subject: "other", Link: "l", StockCode: "third"},
	}

	out := dedupe(records)
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2", len(out))
	}
	if out[0].StockCode != "first" {
		t.Errorf("survivor = %s, want first occurrence", out[0].StockCode)
	}
}
