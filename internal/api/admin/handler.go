package admin

import (
	"github.com/ZJUSCT/slotgarage/internal/config"
	"github.com/ZJUSCT/slotgarage/internal/ranking"
	"gorm.io/gorm"
)

// Handler holds all dependencies for the admin API handlers.
type Handler struct {
	cfg     *config.Config
	db      *gorm.DB
	tracker *ranking.Tracker
}

// NewHandler creates a new admin handler with its dependencies.
func NewHandler(
	cfg *config.Config,
	db *gorm.DB,
	tracker *ranking.Tracker,
) *Handler {
	return &Handler{
		cfg:     cfg,
		db:      db,
		tracker: tracker,
	}
}
