package user

import (
	"fmt"
	"net/http"

	"github.com/ZJUSCT/slotgarage/internal/database"
	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/ZJUSCT/slotgarage/internal/laptime"
	"github.com/ZJUSCT/slotgarage/internal/metrics"
	"github.com/ZJUSCT/slotgarage/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// optionalTime normalises an optional MM:SS.mmm field; empty means absent.
func optionalTime(field string, value *string) (*string, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	if !laptime.Valid(*value) {
		return nil, fmt.Errorf("%s must be formatted as MM:SS.mmm", field)
	}
	return value, nil
}

func (h *Handler) getVehicleTimings(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}
	timings, err := database.GetCircuitTimingsByVehicle(h.db, vehicle.ID)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, err)
		return
	}
	util.Success(c, timings, "Timings retrieved successfully")
}

func (h *Handler) createVehicleTiming(c *gin.Context) {
	vehicle, ok := h.ownedVehicle(c)
	if !ok {
		return
	}

	var req struct {
		Circuit     string  `json:"circuit" binding:"required"`
		Lane        int     `json:"lane" binding:"min=0"`
		Laps        int     `json:"laps" binding:"required,min=1"`
		BestLapTime *string `json:"best_lap_time"`
		TotalTime   *string `json:"total_time"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	bestLap, err := optionalTime("best_lap_time", req.BestLapTime)
	if err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	total, err := optionalTime("total_time", req.TotalTime)
	if err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	timing := models.CircuitTiming{
		ID:          uuid.NewString(),
		VehicleID:   vehicle.ID,
		Circuit:     req.Circuit,
		Lane:        req.Lane,
		Laps:        req.Laps,
		BestLapTime: bestLap,
		TotalTime:   total,
	}
	if err := database.CreateCircuitTiming(h.db, &timing); err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to save timing")
		return
	}
	metrics.RecordTiming("circuit")

	// Timings without a best lap never enter the leaderboard.
	if timing.BestLapTime == nil {
		util.Success(c, gin.H{"timing": timing}, "Timing recorded")
		return
	}

	result, err := h.tracker.OnNewTiming(c.Request.Context(), timing.Circuit, timing.ID)
	if err != nil {
		zap.S().Errorf("timing %s saved but ranking failed: %v", timing.ID, err)
		util.Error(c, http.StatusInternalServerError, "timing saved but ranking could not be updated")
		return
	}

	message := "Timing recorded"
	if result.Update.Failed > 0 {
		message = fmt.Sprintf("Timing recorded, %d of %d position updates failed", result.Update.Failed, result.Update.Groups)
	}
	util.Success(c, gin.H{
		"timing":  timing,
		"ranking": result.Ranking,
		"update":  result.Update,
	}, message)
}
