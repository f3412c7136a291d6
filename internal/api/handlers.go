package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch-watch/internal/escalation"
	"dispatch-watch/internal/logging"
	"dispatch-watch/internal/models"
)

// Refresher runs a synchronous refresh and exposes the snapshot.
type Refresher interface {
	Refresh(ctx context.Context) ([]models.Task, error)
	Snapshot() []models.Task
}

// Performer relays operator actions to the dispatcher.
type Performer interface {
	Perform(ctx context.Context, kind models.ActionKind, ids []string) (models.ActionResult, error)
}

// Tracker exposes the escalation tracking table.
type Tracker interface {
	Tracked() []escalation.Tracking
}

// StoreStatus reports snapshot freshness.
type StoreStatus interface {
	Len() int
	Updated() time.Time
}

type Handler struct {
	refresher Refresher
	performer Performer
	tracker   Tracker
	status    StoreStatus
	logger    *logging.Logger
}

func NewHandler(refresher Refresher, performer Performer, tracker Tracker, status StoreStatus, logger *logging.Logger) *Handler {
	return &Handler{
		refresher: refresher,
		performer: performer,
		tracker:   tracker,
		status:    status,
		logger:    logger,
	}
}

type actionBody struct {
	TaskIDs []string `json:"taskIds"`
}

// Action returns the handler for one bulk action route.
func (h *Handler) Action(kind models.ActionKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body actionBody
		if err := c.ShouldBindJSON(&body); err != nil || len(body.TaskIDs) == 0 {
			h.logger.Errorf("Invalid request body for %s: %v (taskIds: %d)", kind, err, len(body.TaskIDs))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or empty taskIds array"})
			return
		}

		res, err := h.performer.Perform(c.Request.Context(), kind, body.TaskIDs)
		if err != nil {
			if errors.Is(err, models.ErrInvalidRequest) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or empty taskIds array"})
				return
			}
			status := res.Status
			var sinkErr *models.SinkError
			if errors.As(err, &sinkErr) {
				status = sinkErr.Status
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Failed to " + string(kind),
				"status":  status,
				"taskIds": body.TaskIDs,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": string(kind) + " successful",
			"data":    res.Body,
		})
	}
}

// Refresh re-fetches the dispatcher list and waits for the result.
func (h *Handler) Refresh(c *gin.Context) {
	if _, err := h.refresher.Refresh(c.Request.Context()); err != nil {
		h.logger.Errorf("Error refreshing data: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh data"})
		return
	}
	h.logger.Infof("Data refreshed successfully")
	c.JSON(http.StatusOK, gin.H{"message": "Data refreshed successfully"})
}

func (h *Handler) GetTasks(c *gin.Context) {
	c.JSON(http.StatusOK, h.refresher.Snapshot())
}

func (h *Handler) GetEscalations(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Tracked())
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "ok", "tasks": h.status.Len()}
	if updated := h.status.Updated(); !updated.IsZero() {
		body["updated_at"] = updated.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, body)
}
