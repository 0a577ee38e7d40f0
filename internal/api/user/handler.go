package user

import (
	"errors"
	"net/http"

	"github.com/ZJUSCT/slotgarage/internal/auth"
	"github.com/ZJUSCT/slotgarage/internal/config"
	"github.com/ZJUSCT/slotgarage/internal/pubsub"
	"github.com/ZJUSCT/slotgarage/internal/ranking"
	"github.com/ZJUSCT/slotgarage/internal/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler holds all dependencies for the user API handlers.
type Handler struct {
	cfg     *config.Config
	db      *gorm.DB
	tracker *ranking.Tracker
	broker  *pubsub.Broker
	gitlab  *auth.GitLabHandler
}

// NewHandler creates a new user handler with its dependencies.
func NewHandler(
	cfg *config.Config,
	db *gorm.DB,
	tracker *ranking.Tracker,
	broker *pubsub.Broker,
	gitlab *auth.GitLabHandler,
) *Handler {
	return &Handler{
		cfg:     cfg,
		db:      db,
		tracker: tracker,
		broker:  broker,
		gitlab:  gitlab,
	}
}

// lookupError answers a failed lookup with 404 or 500.
func lookupError(c *gin.Context, err error, what string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.Error(c, http.StatusNotFound, what+" not found")
		return
	}
	util.Error(c, http.StatusInternalServerError, err)
}
