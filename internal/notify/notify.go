// Package notify pushes newly published material announcements to the
// owners watching the disclosing companies. Each announcement is pushed
// at most once per owner; delivery state lives in the sent_notices
// table so restarts do not re-push.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/twmops/mops-linebot-go/internal/lineutil"
	"github.com/twmops/mops-linebot-go/internal/logger"
	"github.com/twmops/mops-linebot-go/internal/metrics"
	"github.com/twmops/mops-linebot-go/internal/ratelimit"
	mopscraper "github.com/twmops/mops-linebot-go/internal/scraper/mops"
	"github.com/twmops/mops-linebot-go/internal/storage"
)

const (
	// LINE caps push requests at five messages each.
	maxMessagesPerPush = 5

	// Sent markers older than this are pruned every cycle. Today's
	// feed only carries same-day rows, so a week is plenty.
	retentionDays = 7
)

// TodaySource provides the same-day announcement feed.
// *mopscraper.TodayClient is the production implementation.
type TodaySource interface {
	FetchToday(ctx context.Context, keyword string) ([]mopscraper.TodayAnnouncement, error)
}

var _ TodaySource = (*mopscraper.TodayClient)(nil)

// Pusher delivers push messages. *messaging_api.MessagingApiAPI is the
// production implementation.
type Pusher interface {
	PushMessage(request *messaging_api.PushMessageRequest, xLineRetryKey string) (*messaging_api.PushMessageResponse, error)
}

// Service runs the periodic watchlist notification job.
type Service struct {
	watchlists storage.WatchlistRepository
	sent       storage.SentNoticeRepository
	source     TodaySource
	pusher     Pusher
	limiter    *ratelimit.Limiter
	log        *logger.Logger
	m          *metrics.Metrics
	interval   time.Duration
}

// ServiceConfig holds dependencies for creating a Service.
type ServiceConfig struct {
	Watchlists storage.WatchlistRepository
	SentNotice storage.SentNoticeRepository
	Source     TodaySource
	Pusher     Pusher
	Limiter    *ratelimit.Limiter // global push rate limit, may be nil
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	Interval   time.Duration
}

// NewService creates the notification service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		watchlists: cfg.Watchlists,
		sent:       cfg.SentNotice,
		source:     cfg.Source,
		pusher:     cfg.Pusher,
		limiter:    cfg.Limiter,
		log:        cfg.Logger,
		m:          cfg.Metrics,
		interval:   cfg.Interval,
	}
}

// Run executes the job on every interval tick until the context is
// canceled. Failures are logged and retried on the next tick.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil && s.log != nil {
				s.log.WithError(err).Errorf("notify cycle failed")
			}
		}
	}
}

// RunOnce fetches today's announcements and pushes the unseen ones to
// every owner watching the disclosing company.
func (s *Service) RunOnce(ctx context.Context) error {
	announcements, err := s.source.FetchToday(ctx, "")
	if err != nil {
		return fmt.Errorf("fetch today's announcements: %w", err)
	}
	if len(announcements) == 0 {
		return nil
	}

	byCode := make(map[string][]mopscraper.TodayAnnouncement)
	for _, a := range announcements {
		byCode[a.StockCode] = append(byCode[a.StockCode], a)
	}

	owners, err := s.watchlists.Owners(ctx)
	if err != nil {
		return fmt.Errorf("list watchlist owners: %w", err)
	}

	for _, owner := range owners {
		if err := s.notifyOwner(ctx, owner, byCode); err != nil {
			if s.log != nil {
				s.log.WithError(err).Errorf("failed to notify %s", truncateOwner(owner))
			}
			if s.m != nil {
				s.m.RecordNotifyPush("error")
			}
		}
	}

	if pruned, err := s.sent.PruneBefore(ctx, retentionDays); err != nil {
		if s.log != nil {
			s.log.WithError(err).Warnf("failed to prune sent notices")
		}
	} else if pruned > 0 && s.log != nil {
		s.log.Infof("pruned %d stale sent notices", pruned)
	}

	return nil
}

// notifyOwner pushes the owner's unseen announcements, at most one push
// request per cycle. Overflow beyond the per-push message cap stays
// unmarked and goes out on the next cycle.
func (s *Service) notifyOwner(ctx context.Context, ownerID string, byCode map[string][]mopscraper.TodayAnnouncement) error {
	entries, err := s.watchlists.List(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("list watchlist: %w", err)
	}

	type pending struct {
		key string
		ann mopscraper.TodayAnnouncement
	}
	var fresh []pending
	for _, e := range entries {
		for _, a := range byCode[e.StockCode] {
			key := noticeKey(a)
			seen, err := s.sent.WasSent(ctx, ownerID, key)
			if err != nil {
				return fmt.Errorf("check sent notice: %w", err)
			}
			if !seen {
				fresh = append(fresh, pending{key: key, ann: a})
			}
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	if len(fresh) > maxMessagesPerPush {
		fresh = fresh[:maxMessagesPerPush]
	}

	sender := lineutil.GetSender("公告通知", lineutil.IconAnnouncement)
	messages := make([]messaging_api.MessageInterface, 0, len(fresh))
	for _, p := range fresh {
		messages = append(messages, lineutil.NewTextMessageWithSender(formatNotice(p.ann), sender))
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	chatID := chatIDFromOwner(ownerID)
	if chatID == "" {
		return fmt.Errorf("malformed owner id %q", ownerID)
	}
	_, err = s.pusher.PushMessage(&messaging_api.PushMessageRequest{
		To:       chatID,
		Messages: messages,
	}, uuid.NewString())
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}

	// Mark only after delivery so failures retry next cycle. A crash
	// between push and mark re-pushes once, which beats silent loss.
	for _, p := range fresh {
		if err := s.sent.MarkSent(ctx, ownerID, p.key); err != nil {
			return fmt.Errorf("mark sent notice: %w", err)
		}
	}

	if s.m != nil {
		s.m.RecordNotifyPush("success")
	}
	if s.log != nil {
		s.log.Infof("pushed %d announcements to %s", len(fresh), truncateOwner(ownerID))
	}
	return nil
}

// noticeKey identifies one announcement for the sent-notice table.
func noticeKey(a mopscraper.TodayAnnouncement) string {
	return a.StockCode + "|" + a.DateSay + "|" + a.Subject
}

// formatNotice renders one announcement as push message text.
func formatNotice(a mopscraper.TodayAnnouncement) string {
	var b strings.Builder
	b.WriteString("📢 ")
	b.WriteString(a.StockCode)
	b.WriteString(" ")
	b.WriteString(a.CompanyName)
	b.WriteString("\n")
	b.WriteString(a.Subject)
	if a.DateSay != "" {
		b.WriteString("\n")
		b.WriteString(a.DateSay)
	}
	return lineutil.TruncateRunes(b.String(), lineutil.MaxTextMessageLength)
}

// chatIDFromOwner strips the user:/group:/room: prefix, recovering the
// raw LINE chat ID push targets need.
func chatIDFromOwner(ownerID string) string {
	_, id, ok := strings.Cut(ownerID, ":")
	if !ok {
		return ""
	}
	return id
}

func truncateOwner(ownerID string) string {
	const max = 14
	if len(ownerID) <= max {
		return ownerID
	}
	return ownerID[:max] + "..."
}
