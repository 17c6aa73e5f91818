package handlers

import (
	"io"
	"net/http"

	"github.com/creatorpulse/creatorpulse-api/internal/services"
	"github.com/gin-gonic/gin"
)

const maxSampleBytes = 1 << 20 // 1 MiB per sample file

type VoiceHandler struct {
	voice *services.VoiceService
}

func NewVoiceHandler(voice *services.VoiceService) *VoiceHandler {
	return &VoiceHandler{voice: voice}
}

type addSampleRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// AddSample stores one writing sample. Accepts either a JSON body or a
// multipart file upload under the "file" field.
func (h *VoiceHandler) AddSample(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	filename, content, err := readSample(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sample, err := h.voice.AddSample(c.Request.Context(), userID, filename, content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sample": sample})
}

func readSample(c *gin.Context) (filename, content string, err error) {
	if file, header, fileErr := c.Request.FormFile("file"); fileErr == nil {
		defer file.Close()
		data, readErr := io.ReadAll(io.LimitReader(file, maxSampleBytes))
		if readErr != nil {
			return "", "", readErr
		}
		return header.Filename, string(data), nil
	}

	var req addSampleRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		return "", "", bindErr
	}
	return req.Filename, req.Content, nil
}

// ListSamples returns the user's stored samples.
func (h *VoiceHandler) ListSamples(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	samples, err := h.voice.ListSamples(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"samples": samples, "count": len(samples)})
}

// DeleteSample removes one sample.
func (h *VoiceHandler) DeleteSample(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sampleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.voice.DeleteSample(c.Request.Context(), userID, sampleID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Analyze runs voice analysis over the stored samples and persists the
// resulting profile.
func (h *VoiceHandler) Analyze(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	profile, err := h.voice.AnalyzeVoice(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

// Profile returns the current voice profile document.
func (h *VoiceHandler) Profile(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	profile, err := h.voice.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}
