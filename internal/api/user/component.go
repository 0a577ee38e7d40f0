package user

import (
	"net/http"
	"time"

	"github.com/ZJUSCT/slotgarage/internal/database"
	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/ZJUSCT/slotgarage/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func (h *Handler) getComponents(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}
	util.Success(c, gin.H{
		"components": vehicle.Components,
		"total_cost": database.ComponentCost(vehicle),
	}, "Components retrieved successfully")
}

func (h *Handler) createComponent(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}

	var req struct {
		Name        string          `json:"name" binding:"required"`
		Category    string          `json:"category"`
		Cost        decimal.Decimal `json:"cost"`
		InstalledAt *time.Time      `json:"installed_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	if req.Cost.IsNegative() {
		util.Error(c, http.StatusBadRequest, "cost must not be negative")
		return
	}

	component := models.Component{
		ID:          uuid.NewString(),
		VehicleID:   vehicle.ID,
		Name:        req.Name,
		Category:    req.Category,
		Cost:        req.Cost,
		InstalledAt: req.InstalledAt,
	}
	if err := database.CreateComponent(h.db, &component); err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to create component")
		return
	}
	util.Success(c, component, "Component created successfully")
}

func (h *Handler) deleteComponent(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}
	if err := database.DeleteComponent(h.db, vehicle.ID, c.Param("componentID")); err != nil {
		lookupError(c, err, "component")
		return
	}
	util.Success(c, nil, "Component deleted successfully")
}
