package handlers

import (
	"github.com/gin-gonic/gin"
)

type assignRecipientRequest struct {
	StudentID string `json:"student_id"`
}

// GenerateDeliveries handles POST /orders/{id}/deliveries.
func (s *Server) GenerateDeliveries(c *gin.Context) {
	ds, err := s.svc.GenerateDeliveries(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	created(c, gin.H{"items": ds})
}

// ListDeliveries handles GET /orders/{id}/deliveries[?unassigned=true].
func (s *Server) ListDeliveries(c *gin.Context) {
	unassigned, err := queryBool(c, "unassigned")
	if err != nil {
		fail(c, err)
		return
	}
	ds, err := s.svc.ListDeliveries(c.Request.Context(), c.Param("id"), unassigned)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"items": ds})
}

// GetDelivery handles GET /deliveries/{id}.
func (s *Server) GetDelivery(c *gin.Context) {
	d, err := s.svc.GetDelivery(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}

// AssignRecipient handles PUT /deliveries/{id}/recipient. An empty student
// is rejected by the splitter so the error carries the domain field name.
func (s *Server) AssignRecipient(c *gin.Context) {
	var req assignRecipientRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := s.svc.AssignRecipient(c.Request.Context(), c.Param("id"), req.StudentID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}
