package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cerberodev/sapo/internal/feed"
)

func (h *httpHandler) handleAdminListMessages(c *gin.Context) {
	newestFirst := c.DefaultQuery("order", "desc") != "asc"
	messages, err := h.curation.ListMessages(c.Request.Context(), newestFirst)
	if err != nil {
		h.respondError(c, err)
		return
	}

	payload := make([]messagePayload, 0, len(messages))
	for _, message := range messages {
		payload = append(payload, messagePayload{
			ID:             message.ID,
			Content:        message.Content,
			ImageURL:       message.ImageURL,
			CreatedAt:      message.CreatedAt,
			IsSeed:         message.IsInitiallyUnblurred,
			IsSelected:     message.IsSelected,
			DisplayOrder:   message.DisplayOrder,
			BaselineVotes:  message.BaselineVotes,
			BaselineShares: message.BaselineShares,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": payload})
}

func (h *httpHandler) handleAdminStats(c *gin.Context) {
	stats, err := h.curation.DashboardStats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	dayStats, err := h.curation.DayStats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	waitlistCount, err := h.waitlist.Count(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	days := make([]gin.H, 0, len(dayStats))
	for _, day := range dayStats {
		days = append(days, gin.H{"day": day.Day, "count": day.Count})
	}

	c.JSON(http.StatusOK, gin.H{
		"total_messages":        stats.TotalMessages,
		"total_visitors":        stats.TotalVisitors,
		"avg_messages_per_user": stats.AvgMessagesPerUser,
		"total_shares":          stats.TotalShares,
		"waitlist_count":        waitlistCount,
		"messages_per_day":      days,
	})
}

type setFeedModeRequest struct {
	Mode string `json:"mode"`
}

func (h *httpHandler) handleSetFeedMode(c *gin.Context) {
	var request setFeedModeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	mode, err := feed.ParseMode(request.Mode)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.curation.SetFeedMode(c.Request.Context(), mode); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": string(mode)})
}

func (h *httpHandler) handleSelectMessage(c *gin.Context) {
	if err := h.curation.Select(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": true})
}

func (h *httpHandler) handleUnselectMessage(c *gin.Context) {
	if err := h.curation.Unselect(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": false})
}

type markSeedRequest struct {
	Seeded bool `json:"seeded"`
}

func (h *httpHandler) handleMarkSeed(c *gin.Context) {
	var request markSeedRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.curation.MarkSeed(c.Request.Context(), c.Param("id"), request.Seeded); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seeded": request.Seeded})
}

type swapOrderRequest struct {
	FirstID  string `json:"first_id"`
	SecondID string `json:"second_id"`
}

func (h *httpHandler) handleSwapOrder(c *gin.Context) {
	var request swapOrderRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.FirstID == "" || request.SecondID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.curation.SwapOrder(c.Request.Context(), request.FirstID, request.SecondID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"swapped": true})
}

func (h *httpHandler) handleListThemes(c *gin.Context) {
	themes, err := h.curation.Themes(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]gin.H, 0, len(themes))
	for _, theme := range themes {
		payload = append(payload, gin.H{"day": theme.Day, "theme": theme.Theme})
	}
	c.JSON(http.StatusOK, gin.H{"themes": payload})
}

type updateThemeRequest struct {
	Theme string `json:"theme"`
}

func (h *httpHandler) handleUpdateTheme(c *gin.Context) {
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	var request updateThemeRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Theme) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.curation.UpdateTheme(c.Request.Context(), day, strings.TrimSpace(request.Theme)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "theme": strings.TrimSpace(request.Theme)})
}

type setCountOffsetRequest struct {
	Offset int64 `json:"offset"`
}

func (h *httpHandler) handleSetCountOffset(c *gin.Context) {
	var request setCountOffsetRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.curation.SetCountOffset(c.Request.Context(), request.Offset); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offset": request.Offset})
}

func (h *httpHandler) handleExportWaitlist(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="waitlist.csv"`)
	if err := h.waitlist.ExportCSV(c.Request.Context(), c.Writer); err != nil {
		h.logger.Error("waitlist export failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
	}
}

func (h *httpHandler) handlePurge(c *gin.Context) {
	email := c.GetString(adminEmailContext)
	if err := h.curation.PurgeAll(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Warn("content purge executed", zap.String("admin", email))
	c.JSON(http.StatusOK, gin.H{"purged": true})
}
