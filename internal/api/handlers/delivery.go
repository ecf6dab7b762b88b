package handlers

import (
	"artisan-delivery/internal/api/dto"
	"artisan-delivery/internal/services"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type DeliveryHandler struct {
	Service *services.DeliveryService
	Log     *zap.Logger
}

func (h *DeliveryHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/charge", h.Charge)
	r.POST("/summary", h.Summary)
}

// Charge prices a single seller -> buyer delivery. Routing failures are
// absorbed into a degraded fare, so only bad input gets a 4xx.
func (h *DeliveryHandler) Charge(c *gin.Context) {
	var req dto.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}

	seller, buyer, err := req.Coordinates()
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	fare, err := h.Service.CalculateDeliveryCharge(c.Request.Context(), seller, buyer)
	if err != nil {
		writeServiceError(c, h.Log, err)
		return
	}

	c.JSON(http.StatusOK, fare)
}

// Summary prices a multi-seller cart.
func (h *DeliveryHandler) Summary(c *gin.Context) {
	var req dto.SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}

	buyer, err := req.Buyer.Coordinate("buyer")
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	locations, err := req.Locations()
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.Service.ComputeDeliverySummary(c.Request.Context(), req.Items, locations, buyer)
	if err != nil {
		writeServiceError(c, h.Log, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
