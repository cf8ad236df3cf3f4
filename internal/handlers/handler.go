package handlers

import (
	"house_screens/internal/events"
	"house_screens/internal/logger"
	"house_screens/internal/service"

	"github.com/gin-gonic/gin"

	_ "house_screens/docs"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	bus      *events.Bus
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler. bus may be nil, in which case
// /ws only streams state snapshots.
func NewHandler(services *service.Service, bus *events.Bus, log *logger.Logger) *Handler {
	return &Handler{services: services, bus: bus, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// Bus events and state snapshots over WebSocket, same port.
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.operatorMiddleware)
	{
		h.registerReconcileRoutes(api)
		h.registerHouseRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerReconcileRoutes(api *gin.RouterGroup) {
	api.POST("/reconcile", h.reconcile)
	api.GET("/state", h.getState)
	api.POST("/refresh/shown", h.refreshShown)
	api.POST("/setup/reset", h.setupReset)
}

func (h *Handler) registerHouseRoutes(api *gin.RouterGroup) {
	houses := api.Group("/houses/:id")
	{
		houses.POST("/created", h.houseCreated)
		// Pairing: creates an environment with one screen, then reconciles.
		houses.POST("/environments", h.pairEnvironment)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("", h.getLogs)
	}
}
