package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/services"
)

type errorResponse struct {
	Error string `json:"error"`
}

type commitResponse struct {
	BatchID     string `json:"batch_id"`
	LastUpdated int64  `json:"last_updated"`
	Logs        int    `json:"logs"`
}

type ReplicaHandler struct {
	service *services.ReplicaService
}

func NewReplicaHandler(service *services.ReplicaService) *ReplicaHandler {
	return &ReplicaHandler{service: service}
}

func (h *ReplicaHandler) RegisterRoutes(router *gin.RouterGroup) {
	replica := router.Group("/replica")
	{
		replica.GET("", h.Fetch)
		replica.POST("/batch", h.Commit)
	}
}

// Fetch godoc
// @Summary      Read the remote replica
// @Description  Returns the profile document and every day log of the caller.
// @Tags         replica
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.RemoteSnapshot
// @Failure      404  {object}  errorResponse
// @Router       /replica [get]
func (h *ReplicaHandler) Fetch(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	snap, err := h.service.Fetch(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrReplicaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "replica not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// Commit godoc
// @Summary      Commit a replica batch
// @Description  Writes the profile and the changed day logs atomically. Entitlement fields are ignored.
// @Tags         replica
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      domain.ReplicaBatch  true  "Batch"
// @Success      200   {object}  commitResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /replica/batch [post]
func (h *ReplicaHandler) Commit(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var batch domain.ReplicaBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	if err := h.service.Commit(c.Request.Context(), userID, &batch); err != nil {
		switch {
		case errors.Is(err, domain.ErrReplicaOwnership):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrInvalidBatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, commitResponse{
		BatchID:     batch.ID,
		LastUpdated: batch.Profile.LastUpdated,
		Logs:        len(batch.Logs),
	})
}
