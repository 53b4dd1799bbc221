package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/reservation"
)

type defineExperimentRequest struct {
	ID    string             `json:"id"`
	Name  string             `json:"name" binding:"required"`
	Lines []orderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

type experimentOrderRequest struct {
	RequesterID string    `json:"requester_id" binding:"required"`
	CourseID    string    `json:"course_id"`
	Date        string    `json:"date"`
	StartsAt    time.Time `json:"starts_at" binding:"required"`
	GroupCount  int       `json:"group_count" binding:"required,gt=0"`
}

// DefineExperiment handles POST /experiments.
func (s *Server) DefineExperiment(c *gin.Context) {
	var req defineExperimentRequest
	if !bindJSON(c, &req) {
		return
	}
	lines := make([]domain.ExperimentLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, domain.ExperimentLine{
			ConsumableTypeID: l.ConsumableTypeID,
			QuantityPerGroup: l.QuantityPerGroup,
		})
	}
	e, err := s.svc.DefineExperiment(c.Request.Context(), domain.Experiment{
		ID:    req.ID,
		Name:  req.Name,
		Lines: lines,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, e)
}

// ListExperiments handles GET /experiments.
func (s *Server) ListExperiments(c *gin.Context) {
	experiments, err := s.svc.ListExperiments(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"items": experiments})
}

// GetExperiment handles GET /experiments/{id}.
func (s *Server) GetExperiment(c *gin.Context) {
	e, err := s.svc.GetExperiment(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, e)
}

// PlaceExperimentOrder handles POST /experiments/{id}/orders.
func (s *Server) PlaceExperimentOrder(c *gin.Context) {
	var req experimentOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	sched, err := parseSchedule(req.Date, req.StartsAt)
	if err != nil {
		fail(c, bindingError(err))
		return
	}
	o, err := s.svc.PlaceOrderFromExperiment(c.Request.Context(), reservation.ExperimentOrder{
		ExperimentID: c.Param("id"),
		RequesterID:  req.RequesterID,
		CourseID:     req.CourseID,
		Schedule:     sched,
		GroupCount:   req.GroupCount,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, o)
}
