package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/service"
)

type DeliveryService interface {
	AssignDelivery(ctx context.Context, in service.AssignInput) (int64, error)
	ActiveAssignmentForOrder(ctx context.Context, orderID int64) (*models.DeliveryAssignment, error)
	Accept(ctx context.Context, id int64) (*models.DeliveryAssignment, error)
	Reject(ctx context.Context, id int64, reason string) (*models.DeliveryAssignment, error)
	MarkPickedUp(ctx context.Context, id int64) (*models.DeliveryAssignment, error)
	MarkInTransit(ctx context.Context, id int64) (*models.DeliveryAssignment, error)
	MarkCompleted(ctx context.Context, id int64) (*models.DeliveryAssignment, error)
	Cancel(ctx context.Context, id int64, reason string) (*models.DeliveryAssignment, error)
}

// DeliveryHandler exposes courier assignment transitions.
type DeliveryHandler struct {
	deliveries DeliveryService
}

func NewDeliveryHandler(deliveries DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{deliveries: deliveries}
}

func (h *DeliveryHandler) Register(r gin.IRouter) {
	r.POST("/orders/:id/delivery", h.Assign)
	r.GET("/orders/:id/delivery", h.Active)
	r.POST("/deliveries/:id/:action", h.Transition)
}

type assignRequest struct {
	CourierID   int64     `json:"courier_id" binding:"required"`
	PickupETA   time.Time `json:"pickup_eta" binding:"required"`
	DeliveryETA time.Time `json:"delivery_eta" binding:"required"`
}

func (h *DeliveryHandler) Assign(c *gin.Context) {
	orderID, ok := idParam(c)
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.deliveries.AssignDelivery(c.Request.Context(), service.AssignInput{
		OrderID:     orderID,
		CourierID:   req.CourierID,
		PickupETA:   req.PickupETA,
		DeliveryETA: req.DeliveryETA,
	})
	respond(c, http.StatusCreated, gin.H{"id": id}, err)
}

func (h *DeliveryHandler) Active(c *gin.Context) {
	orderID, ok := idParam(c)
	if !ok {
		return
	}
	a, err := h.deliveries.ActiveAssignmentForOrder(c.Request.Context(), orderID)
	respond(c, http.StatusOK, a, err)
}

// Transition applies accept, reject, pickup, in-transit, complete or
// cancel to an assignment.
func (h *DeliveryHandler) Transition(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !bindOptionalJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var (
		a   *models.DeliveryAssignment
		err error
	)
	switch c.Param("action") {
	case "accept":
		a, err = h.deliveries.Accept(ctx, id)
	case "reject":
		a, err = h.deliveries.Reject(ctx, id, req.Reason)
	case "pickup":
		a, err = h.deliveries.MarkPickedUp(ctx, id)
	case "in-transit":
		a, err = h.deliveries.MarkInTransit(ctx, id)
	case "complete":
		a, err = h.deliveries.MarkCompleted(ctx, id)
	case "cancel":
		a, err = h.deliveries.Cancel(ctx, id, req.Reason)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}
	respond(c, http.StatusOK, a, err)
}
