package user

import (
	"github.com/ZJUSCT/slotgarage/internal/api"
	"github.com/ZJUSCT/slotgarage/internal/auth"
	"github.com/ZJUSCT/slotgarage/internal/config"
	"github.com/ZJUSCT/slotgarage/internal/pubsub"
	"github.com/ZJUSCT/slotgarage/internal/ranking"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// NewUserRouter creates and configures the user Gin engine. gitlab may be nil
// when GitLab sign-in is disabled.
func NewUserRouter(
	cfg *config.Config,
	db *gorm.DB,
	tracker *ranking.Tracker,
	broker *pubsub.Broker,
	gitlab *auth.GitLabHandler) *gin.Engine {

	r := gin.Default()

	r.Use(api.CORSMiddleware(cfg.CORS))
	if cfg.Metrics.Enabled {
		r.Use(api.MetricsMiddleware())
	}

	h := NewHandler(cfg, db, tracker, broker, gitlab)

	v1 := r.Group("/api/v1")
	{
		// Auth
		authGroup := v1.Group("/auth")
		{
			authGroup.GET("/status", h.getAuthStatus)

			// Local Username/Password Auth (if enabled)
			if cfg.Auth.Local.Enabled {
				localAuthGroup := authGroup.Group("/local")
				{
					localAuthGroup.POST("/register", h.localRegister)
					localAuthGroup.POST("/login", h.localLogin)
				}
			}

			// GitLab OAuth2 (if enabled)
			if gitlab != nil {
				gitlabGroup := authGroup.Group("/gitlab")
				{
					gitlabGroup.GET("/login", gitlab.Login)
					gitlabGroup.GET("/callback", gitlab.Callback)
				}
			}
		}

		// Websocket for live circuit rankings
		v1.GET("/ws/circuits/:circuit", h.handleCircuitWs)

		// Publicly accessible info
		v1.GET("/circuits/:circuit/leaderboard", h.getCircuitLeaderboard)
		v1.GET("/competitions/:id/standings", h.getCompetitionStandings)

		// Authenticated routes
		authed := v1.Group("/")
		authed.Use(api.AuthMiddleware(cfg.Auth.JWT.Secret))
		{
			authed.GET("/user/profile", h.getUserProfile)

			vehicles := authed.Group("/vehicles")
			{
				vehicles.GET("", h.getVehicles)
				vehicles.POST("", h.createVehicle)
				vehicles.GET("/:id", h.getVehicle)
				vehicles.PATCH("/:id", h.updateVehicle)
				vehicles.DELETE("/:id", h.deleteVehicle)

				vehicles.GET("/:id/components", h.getComponents)
				vehicles.POST("/:id/components", h.createComponent)
				vehicles.DELETE("/:id/components/:componentID", h.deleteComponent)

				vehicles.GET("/:id/timings", h.getVehicleTimings)
				vehicles.POST("/:id/timings", h.createVehicleTiming)
			}

			competitions := authed.Group("/competitions")
			{
				competitions.GET("", h.getCompetitions)
				competitions.POST("", h.createCompetition)
				competitions.GET("/:id", h.getCompetition)
				competitions.DELETE("/:id", h.deleteCompetition)
				competitions.POST("/:id/participants", h.addParticipant)
				competitions.PUT("/:id/rules", h.putRule)
				competitions.POST("/:id/timings", h.addCompetitionTiming)
			}
		}
	}

	return r
}
