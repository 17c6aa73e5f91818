package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/creatorpulse/creatorpulse-api/internal/config"
	"github.com/creatorpulse/creatorpulse-api/internal/models"
	"github.com/creatorpulse/creatorpulse-api/internal/services"
	"github.com/gin-gonic/gin"
)

// 1x1 transparent GIF served by the open-tracking endpoint.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type EmailHandler struct {
	email *services.EmailService
	cfg   *config.Config
}

func NewEmailHandler(email *services.EmailService, cfg *config.Config) *EmailHandler {
	return &EmailHandler{email: email, cfg: cfg}
}

type sendNewsletterRequest struct {
	DraftID uint   `json:"draft_id"`
	Subject string `json:"subject"`
}

// Send delivers a draft to the user's recipient list.
func (h *EmailHandler) Send(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req sendNewsletterRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DraftID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "draft_id is required"})
		return
	}

	outcomes, err := h.email.SendNewsletter(c.Request.Context(), userID, req.DraftID, req.Subject)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipients": outcomes})
}

// RateLimit returns the daily send window.
func (h *EmailHandler) RateLimit(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	status, err := h.email.GetRateLimitStatus(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rate_limit": status})
}

// Logs returns recent delivery log rows.
func (h *EmailHandler) Logs(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	logs, err := h.email.GetDeliveryLogs(c.Request.Context(), userID, queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// Stats returns aggregate delivery counts.
func (h *EmailHandler) Stats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	stats, err := h.email.GetStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// TrackingStats returns per-draft open and click aggregates.
func (h *EmailHandler) TrackingStats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	draftID, ok := pathID(c, "id")
	if !ok {
		return
	}

	stats, err := h.email.GetTrackingStats(c.Request.Context(), userID, draftID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

type addRecipientRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AddRecipient adds one address to the user's list.
func (h *EmailHandler) AddRecipient(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req addRecipientRequest
	if err := c.ShouldBindJSON(&req); err != nil || !strings.Contains(req.Email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid email is required"})
		return
	}

	recipient, err := h.email.AddRecipient(c.Request.Context(), userID, req.Email, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recipient": recipient})
}

// ListRecipients returns the user's recipient list.
func (h *EmailHandler) ListRecipients(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	recipients, err := h.email.ListRecipients(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recipients": recipients, "count": len(recipients)})
}

// DeleteRecipient removes one address.
func (h *EmailHandler) DeleteRecipient(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	recipientID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.email.DeleteRecipient(c.Request.Context(), userID, recipientID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type unsubscribeRequest struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// Unsubscribe adds an address to the user's suppression set. Idempotent.
func (h *EmailHandler) Unsubscribe(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req unsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	if err := h.email.Unsubscribe(c.Request.Context(), userID, req.Email, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unsubscribed": true})
}

// CheckUnsubscribed reports whether an address is suppressed.
func (h *EmailHandler) CheckUnsubscribed(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email query parameter is required"})
		return
	}

	unsubscribed, err := h.email.IsUnsubscribed(c.Request.Context(), userID, email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email, "unsubscribed": unsubscribed})
}

// UnsubscribePage handles the one-click link embedded in newsletters. Token
// identifies the recipient; no authentication.
func (h *EmailHandler) UnsubscribePage(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8",
			[]byte("<html><body><h2>Invalid unsubscribe link</h2></body></html>"))
		return
	}

	recipient, err := h.email.UnsubscribeByToken(c.Request.Context(), token, c.Query("reason"))
	if err != nil {
		c.Data(http.StatusNotFound, "text/html; charset=utf-8",
			[]byte("<html><body><h2>This unsubscribe link is no longer valid.</h2></body></html>"))
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte("<html><body><h2>You have been unsubscribed.</h2><p>"+
			recipient.Email+" will no longer receive this newsletter.</p></body></html>"))
}

// TrackOpen records an open event and always returns the pixel, whatever
// happens internally.
func (h *EmailHandler) TrackOpen(c *gin.Context) {
	draftID, _ := strconv.ParseUint(c.Query("d"), 10, 64)
	token := c.Query("r")
	if token != "" && draftID > 0 {
		h.email.RecordTrackingEvent(c.Request.Context(), token, models.TrackingEventOpen,
			"", c.Request.UserAgent(), uint(draftID))
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/gif", trackingPixel)
}

// TrackClick records a click event and always redirects to the target URL.
func (h *EmailHandler) TrackClick(c *gin.Context) {
	target := c.Query("url")
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = h.cfg.BaseURL
	}

	draftID, _ := strconv.ParseUint(c.Query("d"), 10, 64)
	token := c.Query("r")
	if token != "" && draftID > 0 {
		h.email.RecordTrackingEvent(c.Request.Context(), token, models.TrackingEventClick,
			target, c.Request.UserAgent(), uint(draftID))
	}

	c.Redirect(http.StatusFound, target)
}
