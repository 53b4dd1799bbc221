package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"kalium.io/kalium/internal/domain"
)

type registerTypeRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name" binding:"required"`
	Category     string `json:"category"`
	Unit         string `json:"unit"`
	IsChemical   bool   `json:"is_chemical"`
	MinimumStock int    `json:"minimum_stock" binding:"gte=0"`
}

type receiveUnitsRequest struct {
	Count int `json:"count" binding:"required,gt=0"`
}

type receiveBatchRequest struct {
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
}

// RegisterType handles POST /consumable-types.
func (s *Server) RegisterType(c *gin.Context) {
	var req registerTypeRequest
	if !bindJSON(c, &req) {
		return
	}
	ct, err := s.svc.RegisterType(c.Request.Context(), domain.ConsumableType{
		ID:           req.ID,
		Name:         req.Name,
		Category:     req.Category,
		Unit:         req.Unit,
		IsChemical:   req.IsChemical,
		MinimumStock: req.MinimumStock,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, ct)
}

// ReceiveUnits handles POST /consumable-types/{id}/units.
func (s *Server) ReceiveUnits(c *gin.Context) {
	var req receiveUnitsRequest
	if !bindJSON(c, &req) {
		return
	}
	units, err := s.svc.ReceiveUnits(c.Request.Context(), c.Param("id"), req.Count)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, gin.H{"items": units})
}

// ReceiveBatch handles POST /consumable-types/{id}/batches.
func (s *Server) ReceiveBatch(c *gin.Context) {
	var req receiveBatchRequest
	if !bindJSON(c, &req) {
		return
	}
	batch, err := s.svc.ReceiveBatch(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, batch)
}
