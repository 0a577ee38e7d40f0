package user

import (
	"fmt"
	"net/http"

	"github.com/ZJUSCT/slotgarage/internal/api"
	"github.com/ZJUSCT/slotgarage/internal/database"
	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/ZJUSCT/slotgarage/internal/laptime"
	"github.com/ZJUSCT/slotgarage/internal/metrics"
	"github.com/ZJUSCT/slotgarage/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (h *Handler) ownedCompetition(c *gin.Context) (*models.Competition, bool) {
	competition, err := database.GetCompetition(h.db, c.Param("id"))
	if err != nil {
		lookupError(c, err, "competition")
		return nil, false
	}
	if competition.OwnerID != api.UserID(c) {
		util.Error(c, http.StatusForbidden, "you can only manage your own competitions")
		return nil, false
	}
	return competition, true
}

func (h *Handler) getCompetitions(c *gin.Context) {
	competitions, err := database.GetCompetitionsByOwner(h.db, api.UserID(c))
	if err != nil {
		util.Error(c, http.StatusInternalServerError, err)
		return
	}
	util.Success(c, competitions, "Competitions retrieved successfully")
}

func (h *Handler) createCompetition(c *gin.Context) {
	var req struct {
		Name    string `json:"name" binding:"required"`
		Circuit string `json:"circuit"`
		Rounds  int    `json:"rounds" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	competition := models.Competition{
		ID:      uuid.NewString(),
		OwnerID: api.UserID(c),
		Name:    req.Name,
		Circuit: req.Circuit,
		Rounds:  req.Rounds,
	}
	if err := database.CreateCompetition(h.db, &competition); err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to create competition")
		return
	}
	util.Success(c, competition, "Competition created successfully")
}

func (h *Handler) getCompetition(c *gin.Context) {
	competition, ok := h.ownedCompetition(c)
	if !ok {
		return
	}
	util.Success(c, competition, "Competition retrieved successfully")
}

func (h *Handler) deleteCompetition(c *gin.Context) {
	competition, ok := h.ownedCompetition(c)
	if !ok {
		return
	}
	if err := database.DeleteCompetition(h.db, competition.ID); err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to delete competition")
		return
	}
	zap.S().Infof("competition %s deleted", competition.ID)
	util.Success(c, nil, "Competition deleted successfully")
}

func (h *Handler) addParticipant(c *gin.Context) {
	competition, ok := h.ownedCompetition(c)
	if !ok {
		return
	}

	var req struct {
		DriverName string `json:"driver_name" binding:"required"`
		VehicleRef string `json:"vehicle_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	participant := models.Participant{
		ID:            uuid.NewString(),
		CompetitionID: competition.ID,
		DriverName:    req.DriverName,
		VehicleRef:    req.VehicleRef,
	}
	if err := database.CreateParticipant(h.db, &participant); err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to add participant")
		return
	}
	util.Success(c, participant, "Participant added successfully")
}

func (h *Handler) putRule(c *gin.Context) {
	competition, ok := h.ownedCompetition(c)
	if !ok {
		return
	}

	var req struct {
		RuleType        models.RuleType `json:"rule_type" binding:"required,oneof=per_round final"`
		PointsStructure map[int]int     `json:"points_structure" binding:"required"`
		UseBonusBestLap bool            `json:"use_bonus_best_lap"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	for pos := range req.PointsStructure {
		if pos < 1 {
			util.Error(c, http.StatusBadRequest, fmt.Sprintf("points_structure position %d must be 1 or greater", pos))
			return
		}
	}

	rule := models.CompetitionRule{
		CompetitionID:   competition.ID,
		RuleType:        req.RuleType,
		PointsStructure: req.PointsStructure,
		UseBonusBestLap: req.UseBonusBestLap,
	}
	if err := database.UpsertRule(h.db, &rule); err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to save rule")
		return
	}
	util.Success(c, rule, "Rule saved successfully")
}

func (h *Handler) addCompetitionTiming(c *gin.Context) {
	competition, ok := h.ownedCompetition(c)
	if !ok {
		return
	}

	var req struct {
		ParticipantID  string  `json:"participant_id" binding:"required"`
		RoundNumber    int     `json:"round_number" binding:"required,min=1"`
		TotalTime      string  `json:"total_time" binding:"required"`
		BestLapTime    string  `json:"best_lap_time"`
		Laps           int     `json:"laps" binding:"min=0"`
		PenaltySeconds float64 `json:"penalty_seconds" binding:"min=0"`
		Lane           int     `json:"lane" binding:"min=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}
	if req.RoundNumber > competition.Rounds {
		util.Error(c, http.StatusBadRequest, fmt.Sprintf("round_number must be between 1 and %d", competition.Rounds))
		return
	}
	if !laptime.Valid(req.TotalTime) {
		util.Error(c, http.StatusBadRequest, "total_time must be formatted as MM:SS.mmm")
		return
	}
	if req.BestLapTime != "" && !laptime.Valid(req.BestLapTime) {
		util.Error(c, http.StatusBadRequest, "best_lap_time must be formatted as MM:SS.mmm")
		return
	}

	if _, err := database.GetParticipant(h.db, competition.ID, req.ParticipantID); err != nil {
		lookupError(c, err, "participant")
		return
	}
	exists, err := database.HasRoundTiming(h.db, req.ParticipantID, req.RoundNumber)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, err)
		return
	}
	if exists {
		util.Error(c, http.StatusConflict, "participant already has a timing for this round")
		return
	}

	timing := models.CompetitionTiming{
		ID:             uuid.NewString(),
		CompetitionID:  competition.ID,
		ParticipantID:  req.ParticipantID,
		RoundNumber:    req.RoundNumber,
		TotalTime:      req.TotalTime,
		BestLapTime:    req.BestLapTime,
		Laps:           req.Laps,
		PenaltySeconds: req.PenaltySeconds,
		Lane:           req.Lane,
	}
	if err := database.CreateCompetitionTiming(h.db, &timing); err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to save timing")
		return
	}
	metrics.RecordTiming("competition")
	util.Success(c, timing, "Timing recorded")
}

func (h *Handler) getCompetitionStandings(c *gin.Context) {
	standings, err := database.GetCompetitionStandings(h.db, c.Param("id"))
	if err != nil {
		lookupError(c, err, "competition")
		return
	}
	util.Success(c, standings, "Standings computed successfully")
}
