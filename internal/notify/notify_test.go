package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	mopscraper "github.com/twmops/mops-linebot-go/internal/scraper/mops"
	"github.com/twmops/mops-linebot-go/internal/storage"
)

type fakeSource struct {
	announcements []mopscraper.TodayAnnouncement
	err           error
}

func (f *fakeSource) FetchToday(ctx context.Context, keyword string) ([]mopscraper.TodayAnnouncement, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.announcements, nil
}

type pushCall struct {
	to       string
	messages []messaging_api.MessageInterface
}

type fakePusher struct {
	mu    sync.Mutex
	calls []pushCall
	err   error
}

func (f *fakePusher) PushMessage(req *messaging_api.PushMessageRequest, retryKey string) (*messaging_api.PushMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, pushCall{to: req.To, messages: req.Messages})
	return &messaging_api.PushMessageResponse{}, nil
}

func (f *fakePusher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestService(t *testing.T, src *fakeSource, pusher *fakePusher) (*Service, *storage.DB) {
	t.Helper()
	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	svc := NewService(ServiceConfig{
		Watchlists: db,
		SentNotice: db,
		Source:     src,
		Pusher:     pusher,
	})
	return svc, db
}

func announcement(code, subject string) mopscraper.TodayAnnouncement {
	return mopscraper.TodayAnnouncement{
		StockCode:   code,
		CompanyName: "公司" + code,
		DateSay:     "114/08/26",
		Subject:     subject,
	}
}

func TestRunOnce_PushesToWatchers(t *testing.T) {
	src := &fakeSource{announcements: []mopscraper.TodayAnnouncement{
		announcement("2330", "公告本公司董事會決議"),
	}}
	pusher := &fakePusher{}
	svc, db := newTestService(t, src, pusher)
	ctx := context.Background()

	if err := db.Add(ctx, "user:U1", "2330", "台積電"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if pusher.callCount() != 1 {
		t.Fatalf("got %d pushes, want 1", pusher.callCount())
	}
	if pusher.calls[0].to != "U1" {
		t.Errorf("push target = %q, want U1 (prefix stripped)", pusher.calls[0].to)
	}
	if len(pusher.calls[0].messages) != 1 {
		t.Errorf("got %d messages, want 1", len(pusher.calls[0].messages))
	}
}

func TestRunOnce_DoesNotRepush(t *testing.T) {
	src := &fakeSource{announcements: []mopscraper.TodayAnnouncement{
		announcement("2330", "公告本公司董事會決議"),
	}}
	pusher := &fakePusher{}
	svc, db := newTestService(t, src, pusher)
	ctx := context.Background()

	if err := db.Add(ctx, "user:U1", "2330", "台積電"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := svc.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce() #%d error = %v", i, err)
		}
	}

	if pusher.callCount() != 1 {
		t.Errorf("got %d pushes after 3 cycles, want 1", pusher.callCount())
	}
}

func TestRunOnce_OnlyWatchedCompanies(t *testing.T) {
	src := &fakeSource{announcements: []mopscraper.TodayAnnouncement{
		announcement("2330", "公告本公司董事會決議"),
		announcement("2603", "公告本公司處分資產"),
	}}
	pusher := &fakePusher{}
	svc, db := newTestService(t, src, pusher)
	ctx := context.Background()

	if err := db.Add(ctx, "user:U1", "2603", "長榮"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if pusher.callCount() != 1 {
		t.Fatalf("got %d pushes, want 1", pusher.callCount())
	}
	text := messageTexts(t, pusher.calls[0].messages)
	if !strings.Contains(text, "2603") || strings.Contains(text, "2330") {
		t.Errorf("pushed text %q should contain 2603 only", text)
	}
}

func TestRunOnce_OwnersIsolated(t *testing.T) {
	src := &fakeSource{announcements: []mopscraper.TodayAnnouncement{
		announcement("2330", "公告本公司董事會決議"),
	}}
	pusher := &fakePusher{}
	svc, db := newTestService(t, src, pusher)
	ctx := context.Background()

	if err := db.Add(ctx, "user:U1", "2330", "台積電"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := db.Add(ctx, "group:G1", "2330", "台積電"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if pusher.callCount() != 2 {
		t.Fatalf("got %d pushes, want 2 (one per owner)", pusher.callCount())
	}
	targets := map[string]bool{}
	for _, c := range pusher.calls {
		targets[c.to] = true
	}
	if !targets["U1"] || !targets["G1"] {
		t.Errorf("push targets = %v, want U1 and G1", targets)
	}
}

func TestRunOnce_OverflowCarriesToNextCycle(t *testing.T) {
	var anns []mopscraper.TodayAnnouncement
	for i := 0; i < 7; i++ {
		anns = append(anns, announcement("2330", fmt.Sprintf("公告事項第 %d 號", i)))
	}
	src := &fakeSource{announcements: anns}
	pusher := &fakePusher{}
	svc, db := newTestService(t, src, pusher)
	ctx := context.Background()

	if err := db.Add(ctx, "user:U1", "2330", "台積電"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if pusher.callCount() != 1 {
		t.Fatalf("got %d pushes, want 1", pusher.callCount())
	}
	if len(pusher.calls[0].messages) != 5 {
		t.Errorf("first push carried %d messages, want 5", len(pusher.calls[0].messages))
	}

	if err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce() error = %v", err)
	}
	if pusher.callCount() != 2 {
		t.Fatalf("got %d pushes after second cycle, want 2", pusher.callCount())
	}
	if len(pusher.calls[1].messages) != 2 {
		t.Errorf("second push carried %d messages, want 2", len(pusher.calls[1].messages))
	}
}

func TestRunOnce_PushFailureRetriesNextCycle(t *testing.T) {
	src := &fakeSource{announcements: []mopscraper.TodayAnnouncement{
		announcement("2330", "公告本公司董事會決議"),
	}}
	pusher := &fakePusher{err: errors.New("line api down")}
	svc, db := newTestService(t, src, pusher)
	ctx := context.Background()

	if err := db.Add(ctx, "user:U1", "2330", "台積電"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// Per-owner push failures are contained, the cycle itself succeeds.
	if err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	pusher.mu.Lock()
	pusher.err = nil
	pusher.mu.Unlock()

	if err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if pusher.callCount() != 1 {
		t.Errorf("got %d successful pushes, want 1 (retried after failure)", pusher.callCount())
	}
}

func TestRunOnce_FetchErrorPropagates(t *testing.T) {
	src := &fakeSource{err: errors.New("feed down")}
	pusher := &fakePusher{}
	svc, _ := newTestService(t, src, pusher)

	if err := svc.RunOnce(context.Background()); err == nil {
		t.Error("RunOnce() should fail when the feed is unreachable")
	}
	if pusher.callCount() != 0 {
		t.Errorf("got %d pushes on fetch failure, want 0", pusher.callCount())
	}
}

func TestRunOnce_NoWatchersNoPush(t *testing.T) {
	src := &fakeSource{announcements: []mopscraper.TodayAnnouncement{
		announcement("2330", "公告本公司董事會決議"),
	}}
	pusher := &fakePusher{}
	svc, _ := newTestService(t, src, pusher)

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if pusher.callCount() != 0 {
		t.Errorf("got %d pushes with no watchers, want 0", pusher.callCount())
	}
}

func messageTexts(t *testing.T, messages []messaging_api.MessageInterface) string {
	t.Helper()
	var b strings.Builder
	for _, m := range messages {
		tm, ok := m.(*messaging_api.TextMessage)
		if !ok {
			t.Fatalf("unexpected message type %T", m)
		}
		b.WriteString(tm.Text)
		b.WriteString("\n")
	}
	return b.String()
}
