package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/cases"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/movements"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingReader           = errors.New("movement reader dependency required")
	errMissingSynchronizer     = errors.New("synchronizer dependency required")
	errMissingCases            = errors.New("case repository dependency required")
	errMissingSyncLogs         = errors.New("sync log dependency required")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type MovementReader interface {
	ReadWithOptionalRefresh(ctx context.Context, caseID string, staleAfter time.Duration) (movements.ReadResult, error)
}

type CaseSynchronizer interface {
	SyncCase(ctx context.Context, caseID string) (*movements.Snapshot, error)
}

type CaseRepository interface {
	GetCaseByID(ctx context.Context, id string) (cases.Case, error)
	MarkSeen(ctx context.Context, id string) error
}

type SyncLogLister interface {
	ListLogs(ctx context.Context, caseID string, limit int) ([]movements.SyncLogEntry, error)
}

type Dependencies struct {
	SessionValidator  SessionValidator
	Reader            MovementReader
	Synchronizer      CaseSynchronizer
	Cases             CaseRepository
	SyncLogs          SyncLogLister
	Realtime          *RealtimeDispatcher
	Metrics           http.Handler
	StaleAfter        time.Duration
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Reader == nil {
		return nil, errMissingReader
	}
	if deps.Synchronizer == nil {
		return nil, errMissingSynchronizer
	}
	if deps.Cases == nil {
		return nil, errMissingCases
	}
	if deps.SyncLogs == nil {
		return nil, errMissingSyncLogs
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		sessions:     deps.SessionValidator,
		reader:       deps.Reader,
		synchronizer: deps.Synchronizer,
		cases:        deps.Cases,
		syncLogs:     deps.SyncLogs,
		realtime:     realtime,
		staleAfter:   deps.StaleAfter,
		heartbeat:    heartbeat,
		logger:       logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	protected := router.Group("/cases/:id/movements")
	protected.Use(handler.authorizeRequest)
	protected.GET("", handler.handleGetMovements)
	protected.POST("/sync", handler.handleSyncMovements)
	protected.POST("/seen", handler.handleMarkSeen)
	protected.GET("/logs", handler.handleListSyncLogs)
	protected.GET("/stream", handler.handleMovementStream)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

type httpHandler struct {
	sessions     SessionValidator
	reader       MovementReader
	synchronizer CaseSynchronizer
	cases        CaseRepository
	syncLogs     SyncLogLister
	realtime     *RealtimeDispatcher
	staleAfter   time.Duration
	heartbeat    time.Duration
	logger       *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Request = c.Request.WithContext(auth.ContextWithClaims(c.Request.Context(), claims))
	c.Next()
}
