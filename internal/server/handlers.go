package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cerberodev/sapo/internal/engagement"
	"github.com/cerberodev/sapo/internal/feed"
)

type messagePayload struct {
	ID             string `json:"id"`
	Content        string `json:"content"`
	ImageURL       string `json:"image_url,omitempty"`
	CreatedAt      string `json:"created_at"`
	IsSeed         bool   `json:"is_seed"`
	IsSelected     bool   `json:"is_selected"`
	DisplayOrder   *int   `json:"display_order,omitempty"`
	BaselineVotes  int64  `json:"baseline_votes,omitempty"`
	BaselineShares int64  `json:"baseline_shares,omitempty"`
}

type feedEntryPayload struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	ImageURL   string `json:"image_url,omitempty"`
	CreatedAt  string `json:"created_at"`
	IsSeed     bool   `json:"is_seed"`
	Visible    bool   `json:"visible"`
	VoteTally  int64  `json:"vote_tally"`
	ViewerVote string `json:"viewer_vote"`
	ShareCount int64  `json:"share_count"`
}

type feedViewPayload struct {
	Mode            string             `json:"mode"`
	Entries         []feedEntryPayload `json:"entries"`
	SentCount       int64              `json:"sent_count"`
	UnblurredCount  int                `json:"unblurred_count"`
	RemainingLocked int                `json:"remaining_locked"`
	PromptCount     int                `json:"prompt_count"`
	ComposedAt      string             `json:"composed_at"`
}

func renderFeedView(view feed.View) feedViewPayload {
	entries := make([]feedEntryPayload, 0, len(view.Entries))
	for _, entry := range view.Entries {
		entries = append(entries, feedEntryPayload{
			ID:         entry.Message.ID,
			Content:    entry.Message.Content,
			ImageURL:   entry.Message.ImageURL,
			CreatedAt:  entry.Message.CreatedAt,
			IsSeed:     entry.Message.IsInitiallyUnblurred,
			Visible:    entry.Visible,
			VoteTally:  entry.VoteTally,
			ViewerVote: entry.ViewerVote,
			ShareCount: entry.ShareCount,
		})
	}
	return feedViewPayload{
		Mode:            string(view.Mode),
		Entries:         entries,
		SentCount:       view.SentCount,
		UnblurredCount:  view.UnblurredCount,
		RemainingLocked: view.RemainingLocked,
		PromptCount:     view.PromptCount,
		ComposedAt:      view.ComposedAt.Format(timeFormat),
	}
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

func (h *httpHandler) handleFeed(c *gin.Context) {
	visitorID, ok := h.visitorID(c)
	if !ok {
		return
	}
	view, err := h.composer.Compose(c.Request.Context(), visitorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, renderFeedView(view))
}

type postMessageRequest struct {
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
}

func (h *httpHandler) handlePostMessage(c *gin.Context) {
	visitorID, ok := h.visitorID(c)
	if !ok {
		return
	}
	var request postMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	message, err := h.feed.Post(c.Request.Context(), visitorID, request.Content, request.ImageURL)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         message.ID,
		"created_at": message.CreatedAt,
	})
}

type castVoteRequest struct {
	Direction string `json:"direction"`
}

func (h *httpHandler) handleCastVote(c *gin.Context) {
	visitorID, ok := h.visitorID(c)
	if !ok {
		return
	}
	messageID := c.Param("id")

	var request castVoteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	direction, err := engagement.ParseVoteType(request.Direction)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.engagement.CastVote(c.Request.Context(), visitorID, messageID, direction); err != nil {
		h.respondError(c, err)
		return
	}

	tally, err := h.engagement.VoteTally(c.Request.Context(), messageID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	viewerVote, err := h.engagement.UserVote(c.Request.Context(), visitorID, messageID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message_id":  messageID,
		"vote_tally":  tally,
		"viewer_vote": viewerVote,
	})
}

type recordShareRequest struct {
	MessageID string `json:"message_id"`
	Platform  string `json:"platform"`
}

func (h *httpHandler) handleRecordShare(c *gin.Context) {
	visitorID, ok := h.visitorID(c)
	if !ok {
		return
	}
	var request recordShareRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.engagement.RecordShare(c.Request.Context(), visitorID, request.MessageID, request.Platform); err != nil {
		h.respondError(c, err)
		return
	}

	response := gin.H{"recorded": true}
	if request.MessageID != "" {
		count, err := h.engagement.ShareCount(c.Request.Context(), request.MessageID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		response["share_count"] = count
	}
	c.JSON(http.StatusCreated, response)
}

type joinWaitlistRequest struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	Phone       string `json:"phone"`
}

func (h *httpHandler) handleJoinWaitlist(c *gin.Context) {
	visitorID, ok := h.visitorID(c)
	if !ok {
		return
	}
	var request joinWaitlistRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	entry, err := h.waitlist.Join(c.Request.Context(), visitorID, request.CountryCode, request.CountryName, request.Phone)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"phone_number": entry.PhoneNumber,
		"joined_at":    entry.CreatedAt.Format(timeFormat),
	})
}

type presignUploadRequest struct {
	ContentType string `json:"content_type"`
}

func (h *httpHandler) handlePresignUpload(c *gin.Context) {
	if h.media == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "uploads_disabled"})
		return
	}
	visitorID, ok := h.visitorID(c)
	if !ok {
		return
	}
	var request presignUploadRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	upload, err := h.media.PresignUpload(c.Request.Context(), visitorID, request.ContentType)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"upload_url": upload.UploadURL,
		"public_url": upload.PublicURL,
		"key":        upload.Key,
		"expires_in": int(upload.ExpiresIn.Seconds()),
		"max_bytes":  upload.MaxBytes,
	})
}

func (h *httpHandler) handleCurrentTheme(c *gin.Context) {
	theme, err := h.curation.CurrentTheme(c.Request.Context(), h.clock())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"day":   theme.Day,
		"theme": theme.Theme,
	})
}

func (h *httpHandler) handleMessageCount(c *gin.Context) {
	count, err := h.curation.DisplayedMessageCount(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

type adminSignInRequest struct {
	IDToken string `json:"id_token"`
}

func (h *httpHandler) handleAdminSignIn(c *gin.Context) {
	var request adminSignInRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	session, err := h.gate.SignIn(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("admin sign-in failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": session.Token,
		"expires_in":   int64(session.ExpiresIn.Seconds()),
		"token_type":   "Bearer",
	})
}
