package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/juris/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/cases"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/datajud"
	"github.com/MarcoPoloResearchLab/juris/backend/internal/movements"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorCodeCaseNotFound            = "case_not_found"
	errorCodeInvalidCaseID           = "invalid_case_id"
	errorCodeInvalidIdentifier       = "invalid_identifier"
	errorCodeUnsupportedJurisdiction = "unsupported_jurisdiction"
	errorCodeRemoteUnavailable       = "remote_unavailable"
	errorCodeInvalidLimit            = "invalid_limit"
	errorCodeInternal                = "internal_error"
)

type snapshotPayload struct {
	ID              string          `json:"id"`
	CaseID          string          `json:"case_id"`
	Source          string          `json:"source"`
	CanonicalNumber string          `json:"canonical_number"`
	TribunalAlias   string          `json:"tribunal_alias"`
	LastMovementAt  *time.Time      `json:"last_movement_at"`
	CreatedAt       time.Time       `json:"created_at"`
	Payload         json.RawMessage `json:"payload"`
}

type movementsResponsePayload struct {
	Data             *snapshotPayload `json:"data"`
	Movements        []any            `json:"movimentos"`
	RefreshTriggered bool             `json:"refresh_disparado"`
}

type syncLogPayload struct {
	ID              string          `json:"id"`
	CaseID          *string         `json:"case_id"`
	Status          string          `json:"status"`
	Message         *string         `json:"message"`
	CanonicalNumber *string         `json:"canonical_number"`
	TribunalAlias   *string         `json:"tribunal_alias"`
	Context         json.RawMessage `json:"context"`
	CreatedAt       time.Time       `json:"created_at"`
}

type movementEventPayload struct {
	CaseID         string    `json:"caseId"`
	SnapshotID     string    `json:"snapshotId"`
	LastMovementAt time.Time `json:"lastMovementAt"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
}

func (h *httpHandler) handleGetMovements(c *gin.Context) {
	caseID := c.Param("id")
	if _, err := h.cases.GetCaseByID(c.Request.Context(), caseID); err != nil {
		h.respondError(c, "get_movements", err)
		return
	}

	result, err := h.reader.ReadWithOptionalRefresh(c.Request.Context(), caseID, h.staleAfter)
	if err != nil {
		h.respondError(c, "get_movements", err)
		return
	}

	response := movementsResponsePayload{
		Movements:        []any{},
		RefreshTriggered: result.Refreshed,
	}
	if result.Latest != nil {
		response.Data = presentSnapshot(result.Latest)
		document, err := result.Latest.Document()
		if err != nil {
			h.logger.Warn("stored snapshot payload is not a document",
				zap.String("case_id", caseID),
				zap.String("snapshot_id", result.Latest.ID),
				zap.Error(err))
		} else {
			response.Movements = document.Movements()
		}
	}
	c.JSON(http.StatusOK, response)

	if result.Latest != nil {
		if err := h.cases.MarkSeen(context.WithoutCancel(c.Request.Context()), caseID); err != nil {
			h.logger.Warn("mark seen after read failed", zap.String("case_id", caseID), zap.Error(err))
		}
	}
}

func (h *httpHandler) handleSyncMovements(c *gin.Context) {
	caseID := c.Param("id")
	snapshot, err := h.synchronizer.SyncCase(c.Request.Context(), caseID)
	if err != nil {
		h.respondError(c, "sync_movements", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": presentSnapshot(snapshot)})
}

func (h *httpHandler) handleMarkSeen(c *gin.Context) {
	if err := h.cases.MarkSeen(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "mark_seen", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleListSyncLogs(c *gin.Context) {
	caseID := c.Param("id")
	limit := movements.DefaultLogLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidLimit})
			return
		}
		limit = parsed
	}
	if _, err := h.cases.GetCaseByID(c.Request.Context(), caseID); err != nil {
		h.respondError(c, "list_sync_logs", err)
		return
	}

	entries, err := h.syncLogs.ListLogs(c.Request.Context(), caseID, limit)
	if err != nil {
		h.respondError(c, "list_sync_logs", err)
		return
	}
	payload := make([]syncLogPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, syncLogPayload{
			ID:              entry.ID,
			CaseID:          entry.CaseID,
			Status:          string(entry.Status),
			Message:         entry.Message,
			CanonicalNumber: entry.CanonicalNumber,
			TribunalAlias:   entry.TribunalAlias,
			Context:         rawJSON(entry.Context),
			CreatedAt:       entry.CreatedAt(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": payload})
}

func (h *httpHandler) handleMovementStream(c *gin.Context) {
	caseID := c.Param("id")
	if _, err := h.cases.GetCaseByID(c.Request.Context(), caseID); err != nil {
		h.respondError(c, "movement_stream", err)
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, caseID)
	defer cleanup()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(realtimeEventReady, gin.H{"caseId": caseID, "source": realtimeSourceBackend})
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, movementEventPayload{
				CaseID:         message.CaseID,
				SnapshotID:     message.SnapshotID,
				LastMovementAt: message.LastMovementAt,
				Timestamp:      message.Timestamp,
				Source:         realtimeSourceBackend,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": tick.UTC()})
			return true
		}
	})
}

// respondError maps synchronization failures onto HTTP statuses.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	var routingErr *datajud.RoutingError
	var remoteErr *datajud.RemoteError
	var serviceErr *movements.ServiceError

	fields := []zap.Field{zap.String("operation", operation), zap.String("case_id", c.Param("id")), zap.Error(err)}
	if claims, ok := auth.ClaimsFromContext(c.Request.Context()); ok {
		fields = append(fields, zap.String("user_id", claims.UserID))
	}

	switch {
	case errors.Is(err, cases.ErrCaseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errorCodeCaseNotFound, "message": err.Error()})
	case errors.Is(err, cases.ErrInvalidCaseID):
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidCaseID, "message": err.Error()})
	case errors.Is(err, movements.ErrInvalidIdentifier):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errorCodeInvalidIdentifier, "message": err.Error()})
	case errors.As(err, &routingErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errorCodeUnsupportedJurisdiction, "message": routingErr.Error()})
	case errors.As(err, &remoteErr):
		h.logger.Warn("remote synchronization failed", fields...)
		payload := gin.H{"error": errorCodeRemoteUnavailable, "message": remoteErr.Error()}
		if remoteErr.StatusCode != 0 {
			payload["remote_status"] = remoteErr.StatusCode
		}
		c.JSON(http.StatusBadGateway, payload)
	case errors.As(err, &serviceErr):
		h.logger.Error("movement request failed", fields...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": serviceErr.Code()})
	default:
		h.logger.Error("movement request failed", fields...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errorCodeInternal})
	}
}

func presentSnapshot(snapshot *movements.Snapshot) *snapshotPayload {
	if snapshot == nil {
		return nil
	}
	return &snapshotPayload{
		ID:              snapshot.ID,
		CaseID:          snapshot.CaseID,
		Source:          snapshot.Source,
		CanonicalNumber: snapshot.CanonicalNumber,
		TribunalAlias:   snapshot.TribunalAlias,
		LastMovementAt:  snapshot.LastMovementAt(),
		CreatedAt:       snapshot.CreatedAt(),
		Payload:         rawJSON(snapshot.Payload),
	}
}

func rawJSON(value []byte) json.RawMessage {
	if len(value) == 0 {
		return nil
	}
	return json.RawMessage(value)
}
