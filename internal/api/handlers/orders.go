package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/reservation"
	"kalium.io/kalium/internal/store"
)

type placeOrderRequest struct {
	RequesterID string             `json:"requester_id" binding:"required"`
	CourseID    string             `json:"course_id"`
	Date        string             `json:"date"`
	StartsAt    time.Time          `json:"starts_at" binding:"required"`
	GroupCount  int                `json:"group_count" binding:"required,gt=0"`
	Lines       []orderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

type orderLineRequest struct {
	ConsumableTypeID string `json:"consumable_type_id" binding:"required"`
	QuantityPerGroup int    `json:"quantity_per_group" binding:"required,gt=0"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// PlaceOrder handles POST /orders.
func (s *Server) PlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	sched, err := parseSchedule(req.Date, req.StartsAt)
	if err != nil {
		fail(c, bindingError(err))
		return
	}

	lines := make([]reservation.NewLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, reservation.NewLine{
			ConsumableTypeID: l.ConsumableTypeID,
			QuantityPerGroup: l.QuantityPerGroup,
		})
	}

	o, err := s.svc.PlaceOrder(c.Request.Context(), reservation.NewOrder{
		RequesterID: req.RequesterID,
		CourseID:    req.CourseID,
		Schedule:    sched,
		GroupCount:  req.GroupCount,
		Lines:       lines,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, o)
}

// parseSchedule builds a schedule from an optional YYYY-MM-DD date. The date
// defaults to the start day.
func parseSchedule(date string, startsAt time.Time) (domain.Schedule, error) {
	sched := domain.Schedule{StartsAt: startsAt.UTC()}
	if date == "" {
		sched.Date = sched.StartsAt.Truncate(24 * time.Hour)
		return sched, nil
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return sched, err
	}
	sched.Date = d
	return sched, nil
}

// ListOrders handles GET /orders?state=.
func (s *Server) ListOrders(c *gin.Context) {
	orders, err := s.svc.ListOrders(c.Request.Context(), store.OrderFilter{
		State: domain.OrderState(c.Query("state")),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"items": orders})
}

// GetOrder handles GET /orders/{id}.
func (s *Server) GetOrder(c *gin.Context) {
	o, err := s.svc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, o)
}

// ApproveOrder handles POST /orders/{id}/approve.
func (s *Server) ApproveOrder(c *gin.Context) {
	o, err := s.svc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, o)
}

// CancelOrder handles POST /orders/{id}/cancel. The body is optional.
func (s *Server) CancelOrder(c *gin.Context) {
	var req reasonRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	o, err := s.svc.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, o)
}

// RejectOrder handles POST /orders/{id}/reject.
func (s *Server) RejectOrder(c *gin.Context) {
	var req reasonRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	o, err := s.svc.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, o)
}

// PrepareOrder handles POST /orders/{id}/prepare.
func (s *Server) PrepareOrder(c *gin.Context) {
	o, err := s.svc.MarkInPreparation(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, o)
}
