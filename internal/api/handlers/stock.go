package handlers

import (
	"github.com/gin-gonic/gin"

	"kalium.io/kalium/internal/report"
)

// ListStock handles GET /stock.
func (s *Server) ListStock(c *gin.Context) {
	levels, err := s.svc.StockLevels(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"items": levels})
}

// GetStock handles GET /stock/{typeID}.
func (s *Server) GetStock(c *gin.Context) {
	level, err := s.svc.StockLevel(c.Request.Context(), c.Param("typeID"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, level)
}

// InventoryReport handles GET /reports/inventory?kind=&category=&from=&to=.
func (s *Server) InventoryReport(c *gin.Context) {
	from, err := queryDate(c, "from")
	if err != nil {
		fail(c, err)
		return
	}
	to, err := queryDate(c, "to")
	if err != nil {
		fail(c, err)
		return
	}
	inv, err := s.svc.InventoryReport(c.Request.Context(), report.Filter{
		Kind:     report.Kind(c.Query("kind")),
		Category: c.Query("category"),
		From:     from,
		To:       to,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, inv)
}
