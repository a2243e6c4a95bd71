package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cerberodev/sapo/internal/auth"
	"github.com/cerberodev/sapo/internal/curation"
	"github.com/cerberodev/sapo/internal/engagement"
	"github.com/cerberodev/sapo/internal/feed"
	"github.com/cerberodev/sapo/internal/identity"
	"github.com/cerberodev/sapo/internal/media"
	"github.com/cerberodev/sapo/internal/waitlist"
)

const (
	visitorHeader       = "X-Sapo-Visitor"
	visitorIDContextKey = "sapo_visitor_id"
	adminEmailContext   = "sapo_admin_email"
)

var (
	errMissingIdentityService   = errors.New("identity service dependency required")
	errMissingFeedService       = errors.New("feed service dependency required")
	errMissingComposer          = errors.New("feed composer dependency required")
	errMissingEngagementService = errors.New("engagement service dependency required")
	errMissingCurationService   = errors.New("curation service dependency required")
	errMissingWaitlistService   = errors.New("waitlist service dependency required")
	errMissingAdminGate         = errors.New("admin gate dependency required")
	errInvalidAuthorization     = errors.New("authorization header missing or invalid")
)

// Dependencies holds everything the HTTP handler needs. Media is optional;
// when nil the presign endpoint reports the feature as unavailable.
type Dependencies struct {
	Identity       *identity.Service
	Feed           *feed.Service
	Composer       *feed.Composer
	Engagement     *engagement.Service
	Curation       *curation.Service
	Waitlist       *waitlist.Service
	Media          *media.Service
	AdminGate      *auth.AdminGate
	Logger         *zap.Logger
	Clock          func() time.Time
	AllowedOrigins []string
}

// NewHTTPHandler assembles the full route surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Identity == nil {
		return nil, errMissingIdentityService
	}
	if deps.Feed == nil {
		return nil, errMissingFeedService
	}
	if deps.Composer == nil {
		return nil, errMissingComposer
	}
	if deps.Engagement == nil {
		return nil, errMissingEngagementService
	}
	if deps.Curation == nil {
		return nil, errMissingCurationService
	}
	if deps.Waitlist == nil {
		return nil, errMissingWaitlistService
	}
	if deps.AdminGate == nil {
		return nil, errMissingAdminGate
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", visitorHeader},
		ExposeHeaders: []string{visitorHeader},
		MaxAge:        12 * time.Hour,
	}))

	handler := &httpHandler{
		identity:   deps.Identity,
		feed:       deps.Feed,
		composer:   deps.Composer,
		engagement: deps.Engagement,
		curation:   deps.Curation,
		waitlist:   deps.Waitlist,
		media:      deps.Media,
		gate:       deps.AdminGate,
		logger:     logger,
		clock:      clock,
	}

	router.GET("/", handler.handleRoot)
	router.GET("/health", handler.handleHealth)
	router.GET("/themes/current", handler.handleCurrentTheme)
	router.GET("/stats/message-count", handler.handleMessageCount)
	router.POST("/auth/admin", handler.handleAdminSignIn)

	visitorRoutes := router.Group("/")
	visitorRoutes.Use(handler.resolveVisitor)
	visitorRoutes.GET("/feed", handler.handleFeed)
	visitorRoutes.GET("/feed/stream", handler.handleFeedStream)
	visitorRoutes.POST("/messages", handler.handlePostMessage)
	visitorRoutes.POST("/messages/:id/votes", handler.handleCastVote)
	visitorRoutes.POST("/shares", handler.handleRecordShare)
	visitorRoutes.POST("/waitlist", handler.handleJoinWaitlist)
	visitorRoutes.POST("/uploads/presign", handler.handlePresignUpload)

	adminRoutes := router.Group("/admin")
	adminRoutes.Use(handler.authorizeAdmin)
	adminRoutes.GET("/messages", handler.handleAdminListMessages)
	adminRoutes.GET("/stats", handler.handleAdminStats)
	adminRoutes.PUT("/feed-mode", handler.handleSetFeedMode)
	adminRoutes.POST("/messages/:id/select", handler.handleSelectMessage)
	adminRoutes.POST("/messages/:id/unselect", handler.handleUnselectMessage)
	adminRoutes.POST("/messages/:id/seed", handler.handleMarkSeed)
	adminRoutes.POST("/selection/swap", handler.handleSwapOrder)
	adminRoutes.GET("/themes", handler.handleListThemes)
	adminRoutes.PUT("/themes/:day", handler.handleUpdateTheme)
	adminRoutes.PUT("/count-offset", handler.handleSetCountOffset)
	adminRoutes.GET("/waitlist.csv", handler.handleExportWaitlist)
	adminRoutes.DELETE("/purge", handler.handlePurge)

	return router, nil
}

type httpHandler struct {
	identity   *identity.Service
	feed       *feed.Service
	composer   *feed.Composer
	engagement *engagement.Service
	curation   *curation.Service
	waitlist   *waitlist.Service
	media      *media.Service
	gate       *auth.AdminGate
	logger     *zap.Logger
	clock      func() time.Time
}

// resolveVisitor mints or refreshes the caller's visitor identity. A missing
// or malformed token yields a fresh identity rather than a rejection; the
// assigned token is echoed back so the client can persist it.
func (h *httpHandler) resolveVisitor(c *gin.Context) {
	visitorID, err := h.identity.GetOrCreate(c.Request.Context(), c.GetHeader(visitorHeader))
	if err != nil {
		h.logger.Error("failed to resolve visitor", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity_failed"})
		return
	}
	c.Header(visitorHeader, visitorID.String())
	c.Set(visitorIDContextKey, visitorID)
	c.Next()
}

func (h *httpHandler) visitorID(c *gin.Context) (identity.VisitorID, bool) {
	value, ok := c.Get(visitorIDContextKey)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity_missing"})
		return "", false
	}
	visitorID, ok := value.(identity.VisitorID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity_missing"})
		return "", false
	}
	return visitorID, true
}

func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	email, err := h.gate.Authorize(token)
	if err != nil {
		h.logger.Warn("admin token rejected", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(adminEmailContext, email)
	c.Next()
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", false
	}
	return header[len(prefix):], true
}

// respondError maps domain errors onto the HTTP surface.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	var throttled *feed.ThrottledError
	switch {
	case errors.As(err, &throttled):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate_limited",
			"retry_after": throttled.RetryAfterSeconds,
		})
	case errors.Is(err, feed.ErrEmptyContent),
		errors.Is(err, feed.ErrContentTooLong),
		errors.Is(err, feed.ErrInvalidFeedMode),
		errors.Is(err, engagement.ErrInvalidVoteType),
		errors.Is(err, waitlist.ErrInvalidPhone),
		errors.Is(err, curation.ErrInvalidDay),
		errors.Is(err, media.ErrUnsupportedContentType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
	case errors.Is(err, waitlist.ErrDuplicatePhone):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate", "detail": err.Error()})
	case errors.Is(err, curation.ErrLimitExceeded),
		errors.Is(err, curation.ErrSeedLimitExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": "limit_exceeded", "detail": err.Error()})
	case errors.Is(err, curation.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		h.logger.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func (h *httpHandler) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"service": "sapo", "status": "ok"})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
