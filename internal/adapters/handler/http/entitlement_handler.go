package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/services"
)

const verificationKeyHeader = "X-Verification-Key"

type EntitlementHandler struct {
	service *services.ReplicaService
}

func NewEntitlementHandler(service *services.ReplicaService) *EntitlementHandler {
	return &EntitlementHandler{service: service}
}

type entitlementRequest struct {
	IsPremium *bool      `json:"is_premium" binding:"required"`
	Expiry    *time.Time `json:"expiry"`
}

type entitlementResponse struct {
	UserID             string             `json:"user_id"`
	Entitlement        domain.Entitlement `json:"entitlement"`
	HasEverBeenPremium bool               `json:"has_ever_been_premium"`
	Shields            int                `json:"shields"`
}

// RegisterRoutes mounts the privileged setter. It is authenticated by the
// verification key header, not by user tokens.
func (h *EntitlementHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.PUT("/entitlements/:userID", h.Set)
}

// Set godoc
// @Summary      Set a verified entitlement
// @Description  Called by the purchase verification service. The first premium grant adds one shield.
// @Tags         entitlements
// @Accept       json
// @Produce      json
// @Param        userID              path      string              true  "User ID"
// @Param        X-Verification-Key  header    string              true  "Shared verification key"
// @Param        body                body      entitlementRequest  true  "Entitlement"
// @Success      200                 {object}  entitlementResponse
// @Failure      401                 {object}  errorResponse
// @Router       /entitlements/{userID} [put]
func (h *EntitlementHandler) Set(c *gin.Context) {
	var req entitlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if *req.IsPremium && req.Expiry == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expiry is required for premium"})
		return
	}

	ent := domain.Entitlement{IsPremium: *req.IsPremium}
	if req.Expiry != nil {
		expiry := req.Expiry.UTC()
		ent.Expiry = &expiry
	}

	profile, err := h.service.SetEntitlement(c.Request.Context(), c.GetHeader(verificationKeyHeader), c.Param("userID"), ent)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidVerificationKey) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification key"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, entitlementResponse{
		UserID:             profile.UserID,
		Entitlement:        profile.Entitlement,
		HasEverBeenPremium: profile.HasEverBeenPremium,
		Shields:            profile.Resilience.Shields,
	})
}
