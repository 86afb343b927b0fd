package router

import (
	"convene/config"
	"convene/internal/auth"
	"convene/internal/coordinator"
	"convene/internal/handler"
	"convene/internal/isochrone"
	"convene/internal/middleware"
	"convene/internal/places"
	"convene/internal/reachability"
	"convene/internal/repository"
	"convene/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB, verifier auth.TokenVerifier, log *zap.Logger) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// Repositories
	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	intersectionRepo := repository.NewIntersectionRepository(db)
	joinRequestRepo := repository.NewJoinRequestRepository(db)
	placeRepo := repository.NewPlaceRepository(db)

	hub := ws.NewRoomHub()

	// External collaborators
	isochroneClient := isochrone.NewClient(cfg.Isochrone.BaseURL, cfg.Isochrone.APIKey, cfg.Isochrone.Timeout, log)
	regionResolver := isochrone.NewRegionResolver(isochroneClient, cfg.Isochrone.RegionProbeTTL, log)
	orchestrator := isochrone.NewOrchestrator(isochroneClient, log)
	placeClient := places.NewClient(cfg.Places.BaseURL, cfg.Places.APIKey, cfg.Places.Timeout, log)

	resolver := auth.NewResolver(verifier, userRepo)
	recomputer := reachability.NewRecomputer(roomRepo, locationRepo, intersectionRepo, orchestrator, hub, log)
	coord := coordinator.NewCoordinator(
		userRepo, roomRepo, messageRepo, notificationRepo,
		locationRepo, intersectionRepo, joinRequestRepo, placeRepo,
		regionResolver, recomputer, placeClient, hub, log,
	)

	api := r.Group("/api")
	{
		authed := api.Group("")
		authed.Use(middleware.AuthRequired(resolver))
		authed.GET("/display-name", handler.GetDisplayName())
		authed.POST("/display-name", handler.UpdateDisplayName(userRepo))
		authed.POST("/rooms", handler.CreateRoom(roomRepo))
	}

	r.GET("/ws/rooms/:room_id", handler.UpgradeRoomWS(resolver, roomRepo, userRepo, hub, coord))

	return r
}
