package handlers

import (
	"github.com/gin-gonic/gin"

	"kalium.io/kalium/internal/domain"
)

type returnLineRequest struct {
	Condition domain.Condition `json:"condition"`
	Notes     string           `json:"notes"`
}

// OpenReturn handles POST /deliveries/{id}/returns.
func (s *Server) OpenReturn(c *gin.Context) {
	r, err := s.svc.OpenReturn(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	created(c, r)
}

// ListReturns handles GET /deliveries/{id}/returns.
func (s *Server) ListReturns(c *gin.Context) {
	rs, err := s.svc.ListReturns(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"items": rs})
}

// GetReturn handles GET /returns/{id}.
func (s *Server) GetReturn(c *gin.Context) {
	r, err := s.svc.GetReturn(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, r)
}

// RecordReturnLine handles PUT /returns/{id}/lines/{unitID}.
func (s *Server) RecordReturnLine(c *gin.Context) {
	var req returnLineRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := s.svc.RecordReturnLineItem(c.Request.Context(), c.Param("id"), c.Param("unitID"), req.Condition, req.Notes)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, r)
}

// ApproveReturn handles POST /returns/{id}/approve.
func (s *Server) ApproveReturn(c *gin.Context) {
	r, err := s.svc.ApproveReturn(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, r)
}

// RejectReturn handles POST /returns/{id}/reject.
func (s *Server) RejectReturn(c *gin.Context) {
	var req reasonRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	r, err := s.svc.RejectReturn(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, r)
}

// ReturnCompleteness handles GET /returns/{id}/completeness.
func (s *Server) ReturnCompleteness(c *gin.Context) {
	complete, err := s.svc.IsComplete(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"return_id": c.Param("id"), "complete": complete})
}
