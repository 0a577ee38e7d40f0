package admin

import (
	"github.com/ZJUSCT/slotgarage/internal/api"
	"github.com/ZJUSCT/slotgarage/internal/config"
	"github.com/ZJUSCT/slotgarage/internal/metrics"
	"github.com/ZJUSCT/slotgarage/internal/ranking"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// NewAdminRouter creates and configures the admin Gin engine.
func NewAdminRouter(
	cfg *config.Config,
	db *gorm.DB,
	tracker *ranking.Tracker) *gin.Engine {

	r := gin.Default()

	r.Use(api.CORSMiddleware(cfg.CORS))

	h := NewHandler(cfg, db, tracker)

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Default().Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		// User Management
		users := v1.Group("/users")
		{
			users.GET("", h.getAllUsers)
			users.GET("/:id", h.getUser)
			users.DELETE("/:id", h.deleteUser)
			users.POST("/:id/reset-password", h.resetUserPassword)
		}

		// Leaderboard maintenance
		circuits := v1.Group("/circuits")
		{
			circuits.POST("/:circuit/recompute", h.recomputeCircuit)
		}
	}

	return r
}
