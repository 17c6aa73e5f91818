package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"         //nolint:staticcheck // TODO: Migrate to aws-sdk-go-v2
	"github.com/aws/aws-sdk-go/aws/session" //nolint:staticcheck
	"github.com/aws/aws-sdk-go/service/ses" //nolint:staticcheck
	"github.com/creatorpulse/creatorpulse-api/internal/config"
	"github.com/creatorpulse/creatorpulse-api/internal/logger"
	"github.com/creatorpulse/creatorpulse-api/internal/metrics"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const emailMaxRetries = 3

// retryBackoff is the per-attempt delay sequence: 1s, 2s, 4s.
var retryBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// mailSender abstracts the outbound relay so tests can swap in a fake.
type mailSender interface {
	Send(ctx context.Context, msg *outboundMessage) (messageID string, err error)
}

// outboundMessage is one fully rendered email.
type outboundMessage struct {
	From     string
	To       string
	Subject  string
	HTMLBody string
	TextBody string
	Headers  map[string]string
}

// sesSender sends through AWS SES. SendRawEmail is used so the
// List-Unsubscribe header survives.
type sesSender struct {
	client *ses.SES
}

func newSESSender(region string) *sesSender {
	sess := session.Must(session.NewSession(&aws.Config{
		Region: aws.String(region),
	}))
	return &sesSender{client: ses.New(sess)}
}

func (s *sesSender) Send(_ context.Context, msg *outboundMessage) (string, error) {
	raw := buildMIME(msg)
	out, err := s.client.SendRawEmail(&ses.SendRawEmailInput{
		Source:       aws.String(msg.From),
		Destinations: []*string{aws.String(msg.To)},
		RawMessage:   &ses.RawMessage{Data: raw},
	})
	if err != nil {
		return "", err
	}
	return aws.StringValue(out.MessageId), nil
}

// buildMIME renders a multipart/alternative message with text and HTML parts.
func buildMIME(msg *outboundMessage) []byte {
	boundary := "cp-" + uuid.NewString()
	var b bytes.Buffer

	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	for k, v := range msg.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.TextBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.HTMLBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}

// EmailService delivers newsletters and notifications, enforcing the
// per-user daily cap and the unsubscribe suppression set.
type EmailService struct {
	db          *gorm.DB
	cfg         *config.Config
	sender      mailSender
	preferences *PreferencesService
	metrics     *metrics.Client

	// sleep is swapped in tests so retry backoff doesn't slow the suite.
	sleep func(time.Duration)
}

func NewEmailService(db *gorm.DB, cfg *config.Config, preferences *PreferencesService, metricsClient *metrics.Client) *EmailService {
	return &EmailService{
		db:          db,
		cfg:         cfg,
		sender:      newSESSender(cfg.AWSRegion),
		preferences: preferences,
		metrics:     metricsClient,
		sleep:       time.Sleep,
	}
}

// RecipientOutcome is the per-recipient result of one newsletter send.
type RecipientOutcome struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SendNewsletter delivers a draft to every active, non-unsubscribed
// recipient in order. When the daily cap is reached, remaining recipients
// are logged as queued for the next window.
func (s *EmailService) SendNewsletter(ctx context.Context, userID, draftID uint, subjectOverride string) ([]RecipientOutcome, error) {
	var draft models.Draft
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", draftID, userID).
		First(&draft).Error; err != nil {
		return nil, err
	}

	prefs, err := s.preferences.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	emailPrefs := prefs.GetMap("email_preferences")

	subject := subjectOverride
	if subject == "" {
		subjectTemplate := emailPrefs.GetString("default_subject_template", "{title} - Newsletter")
		subject = strings.ReplaceAll(subjectTemplate, "{title}", draft.Title)
	}

	recipients, err := s.deliverableRecipients(ctx, userID)
	if err != nil {
		return nil, err
	}

	trackOpens := emailPrefs.GetBool("track_opens", true)
	trackClicks := emailPrefs.GetBool("track_clicks", true)

	var outcomes []RecipientOutcome
	var sent, failed, queued int
	capReached := false

	for _, recipient := range recipients {
		if !capReached {
			ok, err := s.underDailyCap(ctx, userID)
			if err != nil {
				return outcomes, err
			}
			capReached = !ok
		}
		if capReached {
			s.logDelivery(userID, draftID, recipient.Email, subject, models.EmailStatusQueued, "", 0, "")
			outcomes = append(outcomes, RecipientOutcome{Email: recipient.Email, Status: models.EmailStatusQueued})
			queued++
			continue
		}

		htmlBody, textBody := s.renderBodies(&draft, &recipient, trackOpens, trackClicks)
		msg := &outboundMessage{
			From:     s.cfg.EmailFrom,
			To:       recipient.Email,
			Subject:  subject,
			HTMLBody: htmlBody,
			TextBody: textBody,
			Headers: map[string]string{
				"List-Unsubscribe": "<" + s.unsubscribeURL(recipient.Token) + ">",
			},
		}

		entry := s.logDelivery(userID, draftID, recipient.Email, subject, models.EmailStatusSending, "", 0, "")
		messageID, retries, err := s.sendWithRetry(ctx, msg)
		if err != nil {
			s.finalizeDelivery(entry, models.EmailStatusFailed, err.Error(), retries, "")
			outcomes = append(outcomes, RecipientOutcome{Email: recipient.Email, Status: models.EmailStatusFailed, Error: err.Error()})
			failed++
			continue
		}

		s.incrementDailyCounter(ctx, userID)
		s.finalizeDelivery(entry, models.EmailStatusSent, "", retries, messageID)
		outcomes = append(outcomes, RecipientOutcome{Email: recipient.Email, Status: models.EmailStatusSent})
		sent++
	}

	if sent > 0 {
		now := time.Now().UTC()
		if err := s.db.WithContext(ctx).Model(&draft).Updates(map[string]interface{}{
			"email_sent":    true,
			"email_sent_at": now,
		}).Error; err != nil {
			logger.Error("Failed to mark draft emailed", err, logger.Fields{"draft_id": draftID})
		}
	}
	if s.metrics != nil {
		s.metrics.RecordEmailSend(sent, failed, queued)
	}
	logger.Info("Newsletter send completed", logger.Fields{
		"user_id": userID, "draft_id": draftID, "sent": sent, "failed": failed, "queued": queued,
	})
	return outcomes, nil
}

// sendWithRetry makes one attempt plus up to emailMaxRetries retries with
// exponential backoff. Returns the retry count actually consumed.
func (s *EmailService) sendWithRetry(ctx context.Context, msg *outboundMessage) (string, int, error) {
	var lastErr error
	for attempt := 0; attempt <= emailMaxRetries; attempt++ {
		if attempt > 0 {
			s.sleep(retryBackoff[attempt-1])
		}
		messageID, err := s.sender.Send(ctx, msg)
		if err == nil {
			return messageID, attempt, nil
		}
		lastErr = err
	}
	return "", emailMaxRetries, lastErr
}

// deliverableRecipients is the active list minus the unsubscribe set.
func (s *EmailService) deliverableRecipients(ctx context.Context, userID uint) ([]models.Recipient, error) {
	var recipients []models.Recipient
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.RecipientStatusActive).
		Where("email NOT IN (?)", s.db.Model(&models.Unsubscribe{}).
			Select("email").
			Where("user_id = ?", userID)).
		Order("id").
		Find(&recipients).Error
	return recipients, err
}

func (s *EmailService) dailyCap(ctx context.Context, userID uint) int {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err == nil && user.Tier == "workspace" {
		return s.cfg.EmailWorkspaceCap
	}
	return s.cfg.EmailDailyCap
}

// underDailyCap reports whether the user may send one more message today.
// The counter row is created lazily; an expired window counts as empty.
func (s *EmailService) underDailyCap(ctx context.Context, userID uint) (bool, error) {
	now := time.Now().UTC()
	var row models.EmailRateLimit
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if now.After(row.ResetAt) || now.Equal(row.ResetAt) {
		return true, nil
	}
	return row.CurrentCount < row.LimitValue, nil
}

// incrementDailyCounter bumps the daily counter after a successful send,
// resetting expired windows to the next UTC midnight.
func (s *EmailService) incrementDailyCounter(ctx context.Context, userID uint) {
	now := time.Now().UTC()
	limit := s.dailyCap(ctx, userID)

	row := models.EmailRateLimit{
		UserID:       userID,
		CurrentCount: 1,
		LimitValue:   limit,
		ResetAt:      NextReset(models.LimitTypeDay, now),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		logger.Error("Failed to upsert email counter", res.Error, logger.Fields{"user_id": userID})
		return
	}
	if res.RowsAffected == 1 {
		return
	}

	reset := s.db.WithContext(ctx).Model(&models.EmailRateLimit{}).
		Where("user_id = ? AND reset_at <= ?", userID, now).
		Updates(map[string]interface{}{
			"current_count": 1,
			"limit_value":   limit,
			"reset_at":      NextReset(models.LimitTypeDay, now),
		})
	if reset.Error != nil || reset.RowsAffected == 1 {
		return
	}

	err := s.db.WithContext(ctx).Model(&models.EmailRateLimit{}).
		Where("user_id = ?", userID).
		Update("current_count", gorm.Expr("current_count + 1")).Error
	if err != nil {
		logger.Error("Failed to increment email counter", err, logger.Fields{"user_id": userID})
	}
}

var newsletterTemplate = template.Must(template.New("newsletter").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body style="font-family: Georgia, serif; max-width: 600px; margin: 0 auto; padding: 20px; color: #222;">
  <h1 style="font-size: 24px;">{{.Title}}</h1>
  {{range .Sections}}
  <div style="margin: 24px 0;">
    {{if .Title}}<h2 style="font-size: 18px;">{{.Title}}</h2>{{end}}
    <p style="line-height: 1.6; white-space: pre-wrap;">{{.Content}}</p>
  </div>
  {{end}}
  <hr style="border: none; border-top: 1px solid #ddd; margin: 32px 0 16px;">
  <p style="font-size: 12px; color: #999;">
    <a href="{{.UnsubscribeURL}}" style="color: #999;">Unsubscribe</a>
  </p>
  {{if .PixelURL}}<img src="{{.PixelURL}}" width="1" height="1" alt="" style="display:none;">{{end}}
</body>
</html>`))

var urlPattern = regexp.MustCompile(`https?://[^\s"<>)]+`)

// renderBodies produces the HTML and plain-text message for one recipient,
// applying tracking options and the mandatory unsubscribe link.
func (s *EmailService) renderBodies(draft *models.Draft, recipient *models.Recipient, trackOpens, trackClicks bool) (string, string) {
	sections := draft.Sections
	if trackClicks {
		rewritten := make(models.DraftSections, len(sections))
		copy(rewritten, sections)
		for i := range rewritten {
			rewritten[i].Content = s.rewriteLinks(rewritten[i].Content, draft.ID, recipient.Token)
		}
		sections = rewritten
	}

	pixelURL := ""
	if trackOpens {
		pixelURL = fmt.Sprintf("%s/api/email/track/open?d=%d&r=%s", s.cfg.BaseURL, draft.ID, recipient.Token)
	}

	var htmlBuf bytes.Buffer
	err := newsletterTemplate.Execute(&htmlBuf, map[string]interface{}{
		"Title":          draft.Title,
		"Sections":       sections,
		"UnsubscribeURL": s.unsubscribeURL(recipient.Token),
		"PixelURL":       pixelURL,
	})
	if err != nil {
		logger.Error("Failed to render newsletter HTML", err, logger.Fields{"draft_id": draft.ID})
	}

	var textBuf strings.Builder
	textBuf.WriteString(draft.Title + "\n\n")
	for _, sec := range sections {
		if sec.Title != "" {
			textBuf.WriteString(sec.Title + "\n")
		}
		textBuf.WriteString(sec.Content + "\n\n")
	}
	textBuf.WriteString("---\nUnsubscribe: " + s.unsubscribeURL(recipient.Token) + "\n")

	return htmlBuf.String(), textBuf.String()
}

// rewriteLinks routes every URL in the content through the click-tracking
// redirect, carrying the draft id and recipient token.
func (s *EmailService) rewriteLinks(content string, draftID uint, token string) string {
	return urlPattern.ReplaceAllStringFunc(content, func(raw string) string {
		return fmt.Sprintf("%s/api/email/track/click?d=%d&r=%s&url=%s",
			s.cfg.BaseURL, draftID, token, url.QueryEscape(raw))
	})
}

func (s *EmailService) unsubscribeURL(token string) string {
	return s.cfg.BaseURL + "/unsubscribe?token=" + token
}

func (s *EmailService) logDelivery(userID, draftID uint, recipient, subject, status, errMsg string, retries int, messageID string) *models.EmailDeliveryLog {
	entry := models.EmailDeliveryLog{
		UserID:       userID,
		DraftID:      draftID,
		Recipient:    recipient,
		Subject:      subject,
		Status:       status,
		ErrorMessage: errMsg,
		RetryCount:   retries,
		MessageID:    messageID,
	}
	if status == models.EmailStatusSent {
		now := time.Now().UTC()
		entry.SentAt = &now
	}
	if err := s.db.Create(&entry).Error; err != nil {
		logger.Error("Failed to write delivery log", err, logger.Fields{"user_id": userID, "recipient": recipient})
		return nil
	}
	return &entry
}

// finalizeDelivery moves a sending log row to its terminal status.
func (s *EmailService) finalizeDelivery(entry *models.EmailDeliveryLog, status, errMsg string, retries int, messageID string) {
	if entry == nil {
		return
	}
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errMsg,
		"retry_count":   retries,
		"message_id":    messageID,
	}
	if status == models.EmailStatusSent {
		updates["sent_at"] = time.Now().UTC()
	}
	if err := s.db.Model(entry).Updates(updates).Error; err != nil {
		logger.Error("Failed to finalize delivery log", err, logger.Fields{"log_id": entry.ID})
	}
}

// SendDraftReadyNotification emails the creator that a draft is ready for
// review. Gated by notification_preferences.email_on_draft_ready.
func (s *EmailService) SendDraftReadyNotification(ctx context.Context, userID, draftID uint) error {
	prefs, err := s.preferences.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !prefs.GetMap("notification_preferences").GetBool("email_on_draft_ready", true) {
		return nil
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return err
	}

	reviewURL := fmt.Sprintf("%s/drafts/%d", s.cfg.BaseURL, draftID)
	msg := &outboundMessage{
		From:    s.cfg.EmailFrom,
		To:      user.Email,
		Subject: "Your newsletter draft is ready for review",
		HTMLBody: fmt.Sprintf(
			`<p>Hi %s,</p><p>Your latest newsletter draft is ready.</p><p><a href="%s">Review and publish it here</a>.</p>`,
			template.HTMLEscapeString(user.Name), reviewURL),
		TextBody: fmt.Sprintf("Hi %s,\n\nYour latest newsletter draft is ready.\n\nReview and publish: %s\n", user.Name, reviewURL),
	}
	_, _, err = s.sendWithRetry(ctx, msg)
	return err
}

// RecordTrackingEvent persists an open or click. Failures are logged and
// swallowed: the pixel and redirect endpoints must always succeed outward.
func (s *EmailService) RecordTrackingEvent(ctx context.Context, token, eventType, targetURL, userAgent string, draftID uint) {
	var recipient models.Recipient
	recipientEmail := ""
	userID := uint(0)
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&recipient).Error; err == nil {
		recipientEmail = recipient.Email
		userID = recipient.UserID
	}

	event := models.EmailTrackingEvent{
		UserID:    userID,
		DraftID:   draftID,
		Recipient: recipientEmail,
		EventType: eventType,
		URL:       targetURL,
		UserAgent: userAgent,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		logger.Error("Failed to record tracking event", err, logger.Fields{
			"event_type": eventType, "draft_id": draftID,
		})
	}
}

// Unsubscribe adds an address to the user's suppression set and flips the
// matching recipient row. Idempotent.
func (s *EmailService) Unsubscribe(ctx context.Context, userID uint, email, reason string) error {
	entry := models.Unsubscribe{UserID: userID, Email: email, Reason: reason}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "email"}},
		DoNothing: true,
	}).Create(&entry).Error
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.Recipient{}).
		Where("user_id = ? AND email = ?", userID, email).
		Update("status", models.RecipientStatusUnsubscribed).Error
}

// UnsubscribeByToken resolves a recipient token and unsubscribes the address.
func (s *EmailService) UnsubscribeByToken(ctx context.Context, token, reason string) (*models.Recipient, error) {
	var recipient models.Recipient
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&recipient).Error; err != nil {
		return nil, err
	}
	if err := s.Unsubscribe(ctx, recipient.UserID, recipient.Email, reason); err != nil {
		return nil, err
	}
	return &recipient, nil
}

// IsUnsubscribed reports whether an address is in the suppression set.
func (s *EmailService) IsUnsubscribed(ctx context.Context, userID uint, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Unsubscribe{}).
		Where("user_id = ? AND email = ?", userID, email).
		Count(&count).Error
	return count > 0, err
}

// AddRecipient creates one list entry with a fresh token.
func (s *EmailService) AddRecipient(ctx context.Context, userID uint, email, name string) (*models.Recipient, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid recipient email %q", email)
	}
	recipient := models.Recipient{
		UserID: userID,
		Email:  email,
		Name:   name,
		Status: models.RecipientStatusActive,
		Token:  uuid.NewString(),
	}
	if err := s.db.WithContext(ctx).Create(&recipient).Error; err != nil {
		return nil, err
	}
	return &recipient, nil
}

// ListRecipients returns the user's list.
func (s *EmailService) ListRecipients(ctx context.Context, userID uint) ([]models.Recipient, error) {
	var recipients []models.Recipient
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&recipients).Error
	return recipients, err
}

// DeleteRecipient removes one list entry, scoped to the owner.
func (s *EmailService) DeleteRecipient(ctx context.Context, userID, recipientID uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", recipientID, userID).
		Delete(&models.Recipient{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// EmailRateLimitStatus is the caller-visible daily counter.
type EmailRateLimitStatus struct {
	CurrentCount int       `json:"current_count"`
	LimitValue   int       `json:"limit_value"`
	Remaining    int       `json:"remaining"`
	ResetAt      time.Time `json:"reset_at"`
}

// GetRateLimitStatus returns the daily send counter. Absent or expired
// windows report zero usage.
func (s *EmailService) GetRateLimitStatus(ctx context.Context, userID uint) (*EmailRateLimitStatus, error) {
	now := time.Now().UTC()
	status := &EmailRateLimitStatus{
		LimitValue: s.dailyCap(ctx, userID),
		ResetAt:    NextReset(models.LimitTypeDay, now),
	}

	var row models.EmailRateLimit
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err == nil && now.Before(row.ResetAt) {
		status.CurrentCount = row.CurrentCount
		status.LimitValue = row.LimitValue
		status.ResetAt = row.ResetAt
	} else if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}

	status.Remaining = status.LimitValue - status.CurrentCount
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	return status, nil
}

// GetDeliveryLogs returns recent delivery log rows.
func (s *EmailService) GetDeliveryLogs(ctx context.Context, userID uint, limit int) ([]models.EmailDeliveryLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var logs []models.EmailDeliveryLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// EmailStats aggregates delivery outcomes.
type EmailStats struct {
	TotalSent   int64 `json:"total_sent"`
	TotalFailed int64 `json:"total_failed"`
	TotalQueued int64 `json:"total_queued"`
	Recipients  int64 `json:"recipients"`
}

// GetStats aggregates the user's delivery history.
func (s *EmailService) GetStats(ctx context.Context, userID uint) (*EmailStats, error) {
	stats := &EmailStats{}
	counts := []struct {
		status string
		dest   *int64
	}{
		{models.EmailStatusSent, &stats.TotalSent},
		{models.EmailStatusFailed, &stats.TotalFailed},
		{models.EmailStatusQueued, &stats.TotalQueued},
	}
	for _, c := range counts {
		err := s.db.WithContext(ctx).Model(&models.EmailDeliveryLog{}).
			Where("user_id = ? AND status = ?", userID, c.status).
			Count(c.dest).Error
		if err != nil {
			return nil, err
		}
	}
	err := s.db.WithContext(ctx).Model(&models.Recipient{}).
		Where("user_id = ? AND status = ?", userID, models.RecipientStatusActive).
		Count(&stats.Recipients).Error
	return stats, err
}

// TrackingStats aggregates opens and clicks for one draft.
type TrackingStats struct {
	Opens        int64 `json:"opens"`
	Clicks       int64 `json:"clicks"`
	UniqueOpens  int64 `json:"unique_opens"`
	UniqueClicks int64 `json:"unique_clicks"`
}

// GetTrackingStats returns per-draft tracking aggregates.
func (s *EmailService) GetTrackingStats(ctx context.Context, userID, draftID uint) (*TrackingStats, error) {
	stats := &TrackingStats{}
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.EmailTrackingEvent{}).
			Where("user_id = ? AND draft_id = ?", userID, draftID)
	}

	if err := base().Where("event_type = ?", models.TrackingEventOpen).Count(&stats.Opens).Error; err != nil {
		return nil, err
	}
	if err := base().Where("event_type = ?", models.TrackingEventClick).Count(&stats.Clicks).Error; err != nil {
		return nil, err
	}
	if err := base().Where("event_type = ?", models.TrackingEventOpen).
		Distinct("recipient").Count(&stats.UniqueOpens).Error; err != nil {
		return nil, err
	}
	if err := base().Where("event_type = ?", models.TrackingEventClick).
		Distinct("recipient").Count(&stats.UniqueClicks).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
