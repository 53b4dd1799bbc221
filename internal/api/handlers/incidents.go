package handlers

import (
	"github.com/gin-gonic/gin"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/incident"
	"kalium.io/kalium/internal/store"
)

type reportIncidentRequest struct {
	Description string `json:"description"`
	ReturnID    string `json:"return_id"`
	UnitID      string `json:"unit_id"`
	RecipientID string `json:"recipient_id"`
}

type incidentStateRequest struct {
	State domain.IncidentState `json:"state" binding:"required"`
}

// ReportIncident handles POST /incidents.
func (s *Server) ReportIncident(c *gin.Context) {
	var req reportIncidentRequest
	if !bindJSON(c, &req) {
		return
	}
	inc, err := s.svc.ReportIncident(c.Request.Context(), incident.NewIncident{
		Description: req.Description,
		ReturnID:    req.ReturnID,
		UnitID:      req.UnitID,
		RecipientID: req.RecipientID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, inc)
}

// ListIncidents handles GET /incidents?state=&return_id=.
func (s *Server) ListIncidents(c *gin.Context) {
	incs, err := s.svc.ListIncidents(c.Request.Context(), store.IncidentFilter{
		State:    domain.IncidentState(c.Query("state")),
		ReturnID: c.Query("return_id"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"items": incs})
}

// GetIncident handles GET /incidents/{id}.
func (s *Server) GetIncident(c *gin.Context) {
	inc, err := s.svc.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, inc)
}

// ChangeIncidentState handles PUT /incidents/{id}/state.
func (s *Server) ChangeIncidentState(c *gin.Context) {
	var req incidentStateRequest
	if !bindJSON(c, &req) {
		return
	}
	inc, err := s.svc.ChangeIncidentState(c.Request.Context(), c.Param("id"), req.State)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, inc)
}
