// Package handlers exposes usecase.Service over HTTP.
//
// Handlers bind and validate the request shape only; domain validation and
// every state rule stay in the engines. Failures are handed to
// middleware.ErrorHandler through c.Error.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"kalium.io/kalium/internal/notification"
	"kalium.io/kalium/internal/usecase"
)

// Inbox is the per-user notification store behind /notifications.
type Inbox interface {
	List(ctx context.Context, userID string, limit int) ([]notification.Notification, error)
	MarkRead(ctx context.Context, userID, id string) (bool, error)
}

// HealthCheck reports the health of one dependency.
type HealthCheck func(ctx context.Context) error

// Server implements all API handlers.
type Server struct {
	svc     *usecase.Service
	inbox   Inbox
	checks  map[string]HealthCheck
	poolsFn func() map[string]interface{}
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Service *usecase.Service

	// Inbox is nil unless the inbox notification sink is enabled.
	Inbox Inbox

	// Checks are run by GET /health, keyed by dependency name.
	Checks map[string]HealthCheck

	// PoolMetrics reports worker pool occupancy for GET /health.
	PoolMetrics func() map[string]interface{}
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		svc:     deps.Service,
		inbox:   deps.Inbox,
		checks:  deps.Checks,
		poolsFn: deps.PoolMetrics,
	}
}

// RegisterRoutes mounts every API route on rg.
func (s *Server) RegisterRoutes(rg gin.IRouter) {
	rg.POST("/consumable-types", s.RegisterType)
	rg.POST("/consumable-types/:id/units", s.ReceiveUnits)
	rg.POST("/consumable-types/:id/batches", s.ReceiveBatch)

	rg.POST("/experiments", s.DefineExperiment)
	rg.GET("/experiments", s.ListExperiments)
	rg.GET("/experiments/:id", s.GetExperiment)
	rg.POST("/experiments/:id/orders", s.PlaceExperimentOrder)

	rg.POST("/orders", s.PlaceOrder)
	rg.GET("/orders", s.ListOrders)
	rg.GET("/orders/:id", s.GetOrder)
	rg.POST("/orders/:id/approve", s.ApproveOrder)
	rg.POST("/orders/:id/cancel", s.CancelOrder)
	rg.POST("/orders/:id/reject", s.RejectOrder)
	rg.POST("/orders/:id/prepare", s.PrepareOrder)
	rg.POST("/orders/:id/deliveries", s.GenerateDeliveries)
	rg.GET("/orders/:id/deliveries", s.ListDeliveries)

	rg.GET("/deliveries/:id", s.GetDelivery)
	rg.PUT("/deliveries/:id/recipient", s.AssignRecipient)
	rg.POST("/deliveries/:id/returns", s.OpenReturn)
	rg.GET("/deliveries/:id/returns", s.ListReturns)

	rg.GET("/returns/:id", s.GetReturn)
	rg.PUT("/returns/:id/lines/:unitID", s.RecordReturnLine)
	rg.POST("/returns/:id/approve", s.ApproveReturn)
	rg.POST("/returns/:id/reject", s.RejectReturn)
	rg.GET("/returns/:id/completeness", s.ReturnCompleteness)

	rg.POST("/incidents", s.ReportIncident)
	rg.GET("/incidents", s.ListIncidents)
	rg.GET("/incidents/:id", s.GetIncident)
	rg.PUT("/incidents/:id/state", s.ChangeIncidentState)

	rg.GET("/stock", s.ListStock)
	rg.GET("/stock/:typeID", s.GetStock)
	rg.GET("/reports/inventory", s.InventoryReport)

	rg.GET("/notifications", s.ListNotifications)
	rg.POST("/notifications/:id/read", s.MarkNotificationRead)

	rg.GET("/health", s.GetHealth)
}

// fail hands err to the error middleware and stops the chain.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func ok(c *gin.Context, v any) {
	c.JSON(http.StatusOK, v)
}

func created(c *gin.Context, v any) {
	c.JSON(http.StatusCreated, v)
}
