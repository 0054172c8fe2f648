package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/bookclub/internal/assets"
	"github.com/MarcoPoloResearchLab/bookclub/internal/auth"
	"github.com/MarcoPoloResearchLab/bookclub/internal/books"
	"github.com/MarcoPoloResearchLab/bookclub/internal/comments"
	"github.com/MarcoPoloResearchLab/bookclub/internal/notes"
	"github.com/MarcoPoloResearchLab/bookclub/internal/search"
	"github.com/MarcoPoloResearchLab/bookclub/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	identityContextKey = "bookclub_identity"
	requestIDHeader    = "X-Request-ID"

	messageTokenMissing = "Please send auth token in request header"
	messageInvalidToken = "Invalid token! Cannot authenticate at this moment"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingBooksService     = errors.New("books service dependency required")
	errMissingNotesService     = errors.New("notes service dependency required")
	errMissingCommentsService  = errors.New("comments service dependency required")
	errMissingSearchService    = errors.New("search service dependency required")
	errMissingAssetChecker     = errors.New("asset checker dependency required")
)

// SessionValidator authenticates a request into the identity it was issued for.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.Identity, error)
}

type Dependencies struct {
	Sessions       SessionValidator
	Users          *users.Service
	Books          *books.Service
	Notes          *notes.Service
	Comments       *comments.Service
	Search         *search.Service
	Assets         *assets.Checker
	Activity       *ActivityDispatcher
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errMissingSessionValidator
	case deps.Users == nil:
		return nil, errMissingUsersService
	case deps.Books == nil:
		return nil, errMissingBooksService
	case deps.Notes == nil:
		return nil, errMissingNotesService
	case deps.Comments == nil:
		return nil, errMissingCommentsService
	case deps.Search == nil:
		return nil, errMissingSearchService
	case deps.Assets == nil:
		return nil, errMissingAssetChecker
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	activity := deps.Activity
	if activity == nil {
		activity = NewActivityDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions: deps.Sessions,
		users:    deps.Users,
		books:    deps.Books,
		notes:    deps.Notes,
		comments: deps.Comments,
		search:   deps.Search,
		assets:   deps.Assets,
		activity: activity,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealth)

	api := router.Group("/api")
	api.POST("/register", handler.handleRegister)
	api.POST("/login", handler.handleLogin)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/logout", handler.handleLogout)
	protected.POST("/deactivate-user", handler.handleDeactivate)

	protected.POST("/books", handler.handleAddBooks)
	protected.GET("/books", handler.handleListBooks)
	protected.GET("/books/:id", handler.handleGetBook)
	protected.DELETE("/books", handler.handleDeleteBooks)
	protected.GET("/top-books", handler.handleTopBooks)

	protected.POST("/notes", handler.handleUpsertNote)
	protected.GET("/notes", handler.handleListNotes)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.PUT("/notes/:id/visibility/:flag", handler.handleSetVisibility)
	protected.POST("/notes/:id/save", handler.handleSaveNote)
	protected.DELETE("/notes/:id/save", handler.handleUnsaveNote)
	protected.GET("/notes/:id/save", handler.handleIsNoteSaved)
	protected.GET("/saved-notes", handler.handleListSavedNotes)

	protected.POST("/comments", handler.handleUpsertComment)
	protected.GET("/comments", handler.handleListComments)
	protected.GET("/comments/:id", handler.handleGetComment)
	protected.DELETE("/comments/:id", handler.handleDeleteComment)

	protected.GET("/search", handler.handleSearch)
	protected.GET("/activity/stream", handler.handleActivityStream)

	return router, nil
}

type httpHandler struct {
	sessions SessionValidator
	users    *users.Service
	books    *books.Service
	notes    *notes.Service
	comments *comments.Service
	search   *search.Service
	assets   *assets.Checker
	activity *ActivityDispatcher
	logger   *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: len(allowedOrigins) > 0,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

// requestLogger tags every request with an id and writes one access log line.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			if generated, err := uuid.NewV7(); err == nil {
				requestID = generated.String()
			} else {
				requestID = uuid.NewString()
			}
		}
		c.Header(requestIDHeader, requestID)

		started := time.Now()
		c.Next()

		logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)))
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	identity, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrMissingSessionToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"statusCode": http.StatusUnauthorized,
				"message":    messageTokenMissing,
			})
			return
		}
		if errors.Is(err, auth.ErrSessionLookupFailed) {
			h.logger.Error("session lookup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"statusCode": http.StatusInternalServerError,
				"message":    messageInternal,
			})
			return
		}
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"statusCode": http.StatusForbidden,
			"message":    messageInvalidToken,
		})
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

func identityFrom(c *gin.Context) (auth.Identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok && identity.UserID > 0
}
