package user

import (
	"net/http"

	"github.com/ZJUSCT/slotgarage/internal/api"
	"github.com/ZJUSCT/slotgarage/internal/database"
	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/ZJUSCT/slotgarage/internal/ranking"
	"github.com/ZJUSCT/slotgarage/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type vehicleView struct {
	models.Vehicle
	ComponentCost decimal.Decimal `json:"component_cost"`
	TotalCost     decimal.Decimal `json:"total_cost"`
}

func newVehicleView(v *models.Vehicle) vehicleView {
	parts := database.ComponentCost(v)
	return vehicleView{
		Vehicle:       *v,
		ComponentCost: parts,
		TotalCost:     v.PurchasePrice.Add(parts),
	}
}

// ownedVehicle loads the vehicle named by :id and checks it belongs to the caller.
func (h *Handler) ownedVehicle(c *gin.Context) (*models.Vehicle, bool) {
	vehicle, err := database.GetVehicle(h.db, c.Param("id"))
	if err != nil {
		lookupError(c, err, "vehicle")
		return nil, false
	}
	if vehicle.OwnerID != api.UserID(c) {
		util.Error(c, http.StatusForbidden, "you can only access your own vehicles")
		return nil, false
	}
	return vehicle, true
}

func (h *Handler) getVehicles(c *gin.Context) {
	vehicles, err := database.GetVehiclesByOwner(h.db, api.UserID(c))
	if err != nil {
		util.Error(c, http.StatusInternalServerError, err)
		return
	}
	views := lo.Map(vehicles, func(v models.Vehicle, _ int) vehicleView { return newVehicleView(&v) })
	util.Success(c, views, "Vehicles retrieved successfully")
}

func (h *Handler) createVehicle(c *gin.Context) {
	var req struct {
		Manufacturer  string          `json:"manufacturer"`
		Model         string          `json:"model" binding:"required"`
		Scale         string          `json:"scale"`
		Reference     string          `json:"reference"`
		PurchasePrice decimal.Decimal `json:"purchase_price"`
		Notes         string          `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	if req.PurchasePrice.IsNegative() {
		util.Error(c, http.StatusBadRequest, "purchase_price must not be negative")
		return
	}

	vehicle := models.Vehicle{
		ID:            uuid.NewString(),
		OwnerID:       api.UserID(c),
		Manufacturer:  req.Manufacturer,
		Model:         req.Model,
		Scale:         req.Scale,
		Reference:     req.Reference,
		PurchasePrice: req.PurchasePrice,
		Notes:         req.Notes,
	}
	if err := database.CreateVehicle(h.db, &vehicle); err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to create vehicle")
		return
	}
	util.Success(c, newVehicleView(&vehicle), "Vehicle created successfully")
}

func (h *Handler) getVehicle(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}
	util.Success(c, newVehicleView(vehicle), "Vehicle retrieved successfully")
}

func (h *Handler) updateVehicle(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}

	var req struct {
		Manufacturer  *string          `json:"manufacturer"`
		Model         *string          `json:"model"`
		Scale         *string          `json:"scale"`
		Reference     *string          `json:"reference"`
		PurchasePrice *decimal.Decimal `json:"purchase_price"`
		Notes         *string          `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	if req.Manufacturer != nil {
		vehicle.Manufacturer = *req.Manufacturer
	}
	if req.Model != nil {
		if *req.Model == "" {
			util.Error(c, http.StatusBadRequest, "model must not be empty")
			return
		}
		vehicle.Model = *req.Model
	}
	if req.Scale != nil {
		vehicle.Scale = *req.Scale
	}
	if req.Reference != nil {
		vehicle.Reference = *req.Reference
	}
	if req.PurchasePrice != nil {
		if req.PurchasePrice.IsNegative() {
			util.Error(c, http.StatusBadRequest, "purchase_price must not be negative")
			return
		}
		vehicle.PurchasePrice = *req.PurchasePrice
	}
	if req.Notes != nil {
		vehicle.Notes = *req.Notes
	}

	if err := database.UpdateVehicle(h.db, vehicle); err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to update vehicle")
		return
	}
	util.Success(c, newVehicleView(vehicle), "Vehicle updated successfully")
}

// deleteVehicle drops the vehicle with its timings and re-ranks every circuit
// it was on so the remaining positions close up.
func (h *Handler) deleteVehicle(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}

	circuits, err := database.GetVehicleCircuits(h.db, vehicle.ID)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, err)
		return
	}
	if err := database.DeleteVehicle(h.db, vehicle.ID); err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to delete vehicle")
		return
	}

	for _, circuit := range circuits {
		result, err := h.tracker.Recompute(c.Request.Context(), circuit, "")
		if err != nil {
			zap.S().Errorf("failed to re-rank circuit %s after deleting vehicle %s: %v", circuit, vehicle.ID, err)
			continue
		}
		// nobody left on the circuit, end its live streams
		if result.Groups == 0 {
			h.broker.CloseTopic(ranking.Topic(circuit))
		}
	}
	zap.S().Infof("vehicle %s deleted by user %s", vehicle.ID, vehicle.OwnerID)
	util.Success(c, nil, "Vehicle deleted successfully")
}
