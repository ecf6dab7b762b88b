package api

import (
	"artisan-delivery/internal/api/handlers"
	"artisan-delivery/internal/services"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps carries what the HTTP layer needs from the composition root.
type Deps struct {
	Delivery   *services.DeliveryService
	Navigation *services.NavigationManager
	// MaxFixAge bounds how old a pushed device fix may be and still answer a one-shot request.
	MaxFixAge time.Duration
	Log       *zap.Logger
}

// NewRouter wires HTTP handlers with their dependencies and returns the gin engine.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(requestID(), accessLog(log), recovery(log))

	r.GET("/health", handlers.Health)

	v1 := r.Group("/api/v1")

	delivery := &handlers.DeliveryHandler{Service: d.Delivery, Log: log}
	delivery.RegisterRoutes(v1.Group("/delivery"))

	nav := &handlers.NavigationHandler{Manager: d.Navigation, MaxFixAge: d.MaxFixAge, Log: log}
	nav.RegisterRoutes(v1.Group("/navigation"))

	return r
}
