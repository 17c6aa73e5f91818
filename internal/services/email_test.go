package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeSender records outbound messages and fails per the error script.
type fakeSender struct {
	sent  []*outboundMessage
	errs  []error
	calls int
}

func (f *fakeSender) Send(_ context.Context, msg *outboundMessage) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", i), nil
}

func newTestEmail(t *testing.T, db *gorm.DB, sender *fakeSender) (*EmailService, *[]time.Duration) {
	t.Helper()
	var slept []time.Duration
	svc := &EmailService{
		db:          db,
		cfg:         testConfig(),
		sender:      sender,
		preferences: NewPreferencesService(db),
		sleep:       func(d time.Duration) { slept = append(slept, d) },
	}
	return svc, &slept
}

func seedSendableDraft(t *testing.T, db *gorm.DB, userID uint) *models.Draft {
	t.Helper()
	draft := &models.Draft{
		UserID: userID,
		Title:  "Weekly Pulse",
		Status: models.DraftStatusReady,
		Sections: models.DraftSections{
			{ID: "s1", Type: models.SectionTypeIntro, Content: "Welcome back."},
			{ID: "s2", Type: models.SectionTypeTopic, Title: "Reading", Content: "Worth a look: https://example.com/post"},
		},
		Metadata: models.JSONMap{},
	}
	require.NoError(t, db.Create(draft).Error)
	return draft
}

func TestSendNewsletterSuppressesUnsubscribed(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	draft := seedSendableDraft(t, db, 1)
	sender := &fakeSender{}
	svc, _ := newTestEmail(t, db, sender)

	ctx := context.Background()
	_, err := svc.AddRecipient(ctx, 1, "a@example.com", "A")
	require.NoError(t, err)
	_, err = svc.AddRecipient(ctx, 1, "b@example.com", "B")
	require.NoError(t, err)
	require.NoError(t, svc.Unsubscribe(ctx, 1, "b@example.com", "manual"))

	outcomes, err := svc.SendNewsletter(ctx, 1, draft.ID, "")
	require.NoError(t, err)
	require.Len(t, outcomes, 1, "unsubscribed addresses never appear in the send")
	assert.Equal(t, "a@example.com", outcomes[0].Email)
	assert.Equal(t, models.EmailStatusSent, outcomes[0].Status)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "Weekly Pulse - Newsletter", msg.Subject, "subject comes from the preference template")
	assert.Contains(t, msg.Headers["List-Unsubscribe"], "/unsubscribe?token=")
	assert.Contains(t, msg.TextBody, "Unsubscribe: ")

	var reloaded models.Draft
	require.NoError(t, db.First(&reloaded, draft.ID).Error)
	assert.True(t, reloaded.EmailSent)
	require.NotNil(t, reloaded.EmailSentAt)

	var logRow models.EmailDeliveryLog
	require.NoError(t, db.Where("recipient = ?", "a@example.com").First(&logRow).Error)
	assert.Equal(t, models.EmailStatusSent, logRow.Status)
	assert.Equal(t, "msg-0", logRow.MessageID)
	require.NotNil(t, logRow.SentAt)

	// The sending row is finalized in place, not left behind.
	var sendingRows int64
	require.NoError(t, db.Model(&models.EmailDeliveryLog{}).
		Where("status = ?", models.EmailStatusSending).Count(&sendingRows).Error)
	assert.EqualValues(t, 0, sendingRows)
}

func TestSendNewsletterDailyCapQueuesOverflow(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	draft := seedSendableDraft(t, db, 1)
	sender := &fakeSender{}
	svc, _ := newTestEmail(t, db, sender)

	ctx := context.Background()
	_, err := svc.AddRecipient(ctx, 1, "a@example.com", "")
	require.NoError(t, err)
	_, err = svc.AddRecipient(ctx, 1, "b@example.com", "")
	require.NoError(t, err)

	// One send left in today's window.
	require.NoError(t, db.Create(&models.EmailRateLimit{
		UserID: 1, CurrentCount: 1, LimitValue: 2,
		ResetAt: time.Now().UTC().Add(time.Hour),
	}).Error)

	outcomes, err := svc.SendNewsletter(ctx, 1, draft.ID, "")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, models.EmailStatusSent, outcomes[0].Status)
	assert.Equal(t, models.EmailStatusQueued, outcomes[1].Status)
	assert.Len(t, sender.sent, 1)

	var queued models.EmailDeliveryLog
	require.NoError(t, db.Where("recipient = ? AND status = ?", "b@example.com", models.EmailStatusQueued).
		First(&queued).Error)
}

func TestSendNewsletterCapAlreadyReached(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	draft := seedSendableDraft(t, db, 1)
	sender := &fakeSender{}
	svc, _ := newTestEmail(t, db, sender)

	ctx := context.Background()
	_, err := svc.AddRecipient(ctx, 1, "a@example.com", "")
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.EmailRateLimit{
		UserID: 1, CurrentCount: 450, LimitValue: 450,
		ResetAt: time.Now().UTC().Add(time.Hour),
	}).Error)

	outcomes, err := svc.SendNewsletter(ctx, 1, draft.ID, "")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.EmailStatusQueued, outcomes[0].Status)
	assert.Empty(t, sender.sent)

	var reloaded models.Draft
	require.NoError(t, db.First(&reloaded, draft.ID).Error)
	assert.False(t, reloaded.EmailSent, "nothing went out, so the draft is not marked emailed")
}

func TestSendWithRetryBacksOff(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	draft := seedSendableDraft(t, db, 1)

	// Two transient failures, then success.
	sender := &fakeSender{errs: []error{errors.New("throttled"), errors.New("throttled"), nil}}
	svc, slept := newTestEmail(t, db, sender)

	ctx := context.Background()
	_, err := svc.AddRecipient(ctx, 1, "a@example.com", "")
	require.NoError(t, err)

	outcomes, err := svc.SendNewsletter(ctx, 1, draft.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.EmailStatusSent, outcomes[0].Status)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)

	var logRow models.EmailDeliveryLog
	require.NoError(t, db.Where("recipient = ?", "a@example.com").First(&logRow).Error)
	assert.Equal(t, 2, logRow.RetryCount)
}

func TestSendWithRetryRecoversOnFinalRetry(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	draft := seedSendableDraft(t, db, 1)

	// The initial attempt and two retries fail; the third retry lands.
	boom := errors.New("throttled")
	sender := &fakeSender{errs: []error{boom, boom, boom, nil}}
	svc, slept := newTestEmail(t, db, sender)

	ctx := context.Background()
	_, err := svc.AddRecipient(ctx, 1, "a@example.com", "")
	require.NoError(t, err)

	outcomes, err := svc.SendNewsletter(ctx, 1, draft.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.EmailStatusSent, outcomes[0].Status)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *slept)

	var logRow models.EmailDeliveryLog
	require.NoError(t, db.Where("recipient = ?", "a@example.com").First(&logRow).Error)
	assert.Equal(t, models.EmailStatusSent, logRow.Status)
	assert.Equal(t, 3, logRow.RetryCount)
}

func TestSendWithRetryExhausted(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	draft := seedSendableDraft(t, db, 1)

	boom := errors.New("mailbox on fire")
	sender := &fakeSender{errs: []error{boom, boom, boom, boom}}
	svc, slept := newTestEmail(t, db, sender)

	ctx := context.Background()
	_, err := svc.AddRecipient(ctx, 1, "a@example.com", "")
	require.NoError(t, err)

	outcomes, err := svc.SendNewsletter(ctx, 1, draft.ID, "")
	require.NoError(t, err, "per-recipient failures do not fail the send")
	assert.Equal(t, models.EmailStatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Error, "mailbox on fire")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *slept)

	var logRow models.EmailDeliveryLog
	require.NoError(t, db.Where("recipient = ?", "a@example.com").First(&logRow).Error)
	assert.Equal(t, models.EmailStatusFailed, logRow.Status)
	assert.Equal(t, 3, logRow.RetryCount)
	assert.Nil(t, logRow.SentAt)
}

func TestTrackingRewritesFollowPreferences(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	draft := seedSendableDraft(t, db, 1)
	sender := &fakeSender{}
	svc, _ := newTestEmail(t, db, sender)

	ctx := context.Background()
	_, err := svc.AddRecipient(ctx, 1, "a@example.com", "")
	require.NoError(t, err)

	_, err = svc.SendNewsletter(ctx, 1, draft.ID, "")
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	html := sender.sent[0].HTMLBody
	assert.Contains(t, html, "/api/email/track/open?d=")
	assert.Contains(t, html, "/api/email/track/click?d=")
	assert.NotContains(t, html, `"https://example.com/post"`, "raw links are routed through the redirect")

	// Both trackers off: pixel gone, links untouched.
	_, err = svc.preferences.Patch(ctx, 1, models.JSONMap{
		"email_preferences": map[string]interface{}{"track_opens": false, "track_clicks": false},
	})
	require.NoError(t, err)

	_, err = svc.SendNewsletter(ctx, 1, draft.ID, "")
	require.NoError(t, err)
	require.Len(t, sender.sent, 2)
	html = sender.sent[1].HTMLBody
	assert.NotContains(t, html, "/api/email/track/open")
	assert.NotContains(t, html, "/api/email/track/click")
	assert.Contains(t, html, "https://example.com/post")
}

func TestUnsubscribeIdempotent(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	sender := &fakeSender{}
	svc, _ := newTestEmail(t, db, sender)

	ctx := context.Background()
	recipient, err := svc.AddRecipient(ctx, 1, "a@example.com", "")
	require.NoError(t, err)

	require.NoError(t, svc.Unsubscribe(ctx, 1, "a@example.com", "not interested"))
	require.NoError(t, svc.Unsubscribe(ctx, 1, "a@example.com", "again"))

	var entries int64
	require.NoError(t, db.Model(&models.Unsubscribe{}).
		Where("user_id = ? AND email = ?", 1, "a@example.com").Count(&entries).Error)
	assert.EqualValues(t, 1, entries)

	var reloaded models.Recipient
	require.NoError(t, db.First(&reloaded, recipient.ID).Error)
	assert.Equal(t, models.RecipientStatusUnsubscribed, reloaded.Status)

	gone, err := svc.IsUnsubscribed(ctx, 1, "a@example.com")
	require.NoError(t, err)
	assert.True(t, gone)
}

func TestUnsubscribeByToken(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	sender := &fakeSender{}
	svc, _ := newTestEmail(t, db, sender)

	ctx := context.Background()
	recipient, err := svc.AddRecipient(ctx, 1, "a@example.com", "")
	require.NoError(t, err)

	resolved, err := svc.UnsubscribeByToken(ctx, recipient.Token, "one-click")
	require.NoError(t, err)
	assert.Equal(t, recipient.Email, resolved.Email)

	_, err = svc.UnsubscribeByToken(ctx, "no-such-token", "")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAddRecipientValidation(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	sender := &fakeSender{}
	svc, _ := newTestEmail(t, db, sender)

	ctx := context.Background()
	_, err := svc.AddRecipient(ctx, 1, "not-an-address", "")
	require.Error(t, err)

	recipient, err := svc.AddRecipient(ctx, 1, "  A@Example.COM ", "A")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", recipient.Email, "addresses are normalized")
	assert.NotEmpty(t, recipient.Token)
}

func TestEmailRateLimitStatusExpiredWindow(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	sender := &fakeSender{}
	svc, _ := newTestEmail(t, db, sender)

	require.NoError(t, db.Create(&models.EmailRateLimit{
		UserID: 1, CurrentCount: 450, LimitValue: 450,
		ResetAt: time.Now().UTC().Add(-time.Hour),
	}).Error)

	status, err := svc.GetRateLimitStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, status.CurrentCount, "expired windows read as empty")
	assert.Equal(t, 450, status.Remaining)
}

func TestGetTrackingStats(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	sender := &fakeSender{}
	svc, _ := newTestEmail(t, db, sender)

	for _, ev := range []models.EmailTrackingEvent{
		{UserID: 1, DraftID: 9, Recipient: "a@example.com", EventType: models.TrackingEventOpen},
		{UserID: 1, DraftID: 9, Recipient: "a@example.com", EventType: models.TrackingEventOpen},
		{UserID: 1, DraftID: 9, Recipient: "b@example.com", EventType: models.TrackingEventClick, URL: "https://example.com"},
	} {
		require.NoError(t, db.Create(&ev).Error)
	}

	stats, err := svc.GetTrackingStats(context.Background(), 1, 9)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Opens)
	assert.EqualValues(t, 1, stats.Clicks)
	assert.EqualValues(t, 1, stats.UniqueOpens)
	assert.EqualValues(t, 1, stats.UniqueClicks)
}

func TestSendDraftReadyNotificationGated(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, 1)
	draft := seedSendableDraft(t, db, 1)
	sender := &fakeSender{}
	svc, _ := newTestEmail(t, db, sender)

	ctx := context.Background()
	require.NoError(t, svc.SendDraftReadyNotification(ctx, 1, draft.ID))
	assert.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Subject, "ready for review")

	_, err := svc.preferences.Patch(ctx, 1, models.JSONMap{
		"notification_preferences": map[string]interface{}{"email_on_draft_ready": false},
	})
	require.NoError(t, err)

	require.NoError(t, svc.SendDraftReadyNotification(ctx, 1, draft.ID))
	assert.Len(t, sender.sent, 1, "opted-out users get no notification")
}
