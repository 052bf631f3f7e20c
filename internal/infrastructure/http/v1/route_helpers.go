// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
)

// GRNRouteHandler defines the endpoints of the GRN intake API.
type GRNRouteHandler interface {
	ListReferences(c *gin.Context)
	CreateDraft(c *gin.Context)
	GetDraft(c *gin.Context)
	ScanPair(c *gin.Context)
	RescanCurrent(c *gin.Context)
	RemoveCarton(c *gin.Context)
	SubmitDraft(c *gin.Context)
	Journal(c *gin.Context)
	History(c *gin.Context)
	GetReceipt(c *gin.Context)
}

// RegisterGRNRoutes registers the GRN intake routes on group.
//
// Usage:
//
//	service := grn.NewService(grn.ServiceConfig{...})
//	handler := handlers.NewGRNHandler(baseHandler, service)
//	RegisterGRNRoutes(api.Group("/grn"), handler)
func RegisterGRNRoutes(group *gin.RouterGroup, handler GRNRouteHandler) {
	group.GET("/references", handler.ListReferences)
	group.GET("/history", handler.History)

	drafts := group.Group("/drafts")
	drafts.POST("", handler.CreateDraft)
	drafts.GET("/:draftId", handler.GetDraft)
	drafts.POST("/:draftId/scan", handler.ScanPair)
	drafts.POST("/:draftId/rescan-current", handler.RescanCurrent)
	drafts.DELETE("/:draftId/cartons/:cartonBarcode", handler.RemoveCarton)
	drafts.POST("/:draftId/submit", handler.SubmitDraft)
	drafts.GET("/:draftId/journal", handler.Journal)

	// Registered last: static siblings above take precedence over the wildcard.
	group.GET("/:grnId", handler.GetReceipt)
}
