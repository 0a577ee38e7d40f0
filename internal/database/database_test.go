package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/ZJUSCT/slotgarage/internal/ranking"
)

func initTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Init(filepath.Join(t.TempDir(), "data", "garage.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createVehicle(t *testing.T, db *gorm.DB, owner, model string) *models.Vehicle {
	t.Helper()
	v := &models.Vehicle{ID: uuid.NewString(), OwnerID: owner, Manufacturer: "NSR", Model: model}
	require.NoError(t, CreateVehicle(db, v))
	return v
}

func createTiming(t *testing.T, db *gorm.DB, vehicleID, circuit string, lane int, best string, at time.Time) *models.CircuitTiming {
	t.Helper()
	timing := &models.CircuitTiming{
		ID:          uuid.NewString(),
		CreatedAt:   at,
		VehicleID:   vehicleID,
		Circuit:     circuit,
		Lane:        lane,
		Laps:        10,
		BestLapTime: lo.ToPtr(best),
	}
	require.NoError(t, CreateCircuitTiming(db, timing))
	return timing
}

func TestTimingStoreWithTracker(t *testing.T) {
	db := initTestDB(t)
	a := createVehicle(t, db, "u1", "Corvette C7R")
	b := createVehicle(t, db, "u1", "Audi R18")
	base := time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)

	aSlow := createTiming(t, db, a.ID, "home", 1, "00:45.500", base)
	bBest := createTiming(t, db, b.ID, "home", 1, "00:44.999", base.Add(time.Minute))
	require.NoError(t, CreateCircuitTiming(db, &models.CircuitTiming{
		ID: uuid.NewString(), VehicleID: a.ID, Circuit: "home", Lane: 1, Laps: 10, CreatedAt: base,
	}))

	tracker := ranking.NewTracker(NewTimingStore(db), nil)
	ctx := context.Background()

	_, err := tracker.Recompute(ctx, "home", "")
	require.NoError(t, err)

	aFast := createTiming(t, db, a.ID, "home", 1, "00:44.500", base.Add(2*time.Minute))
	res, err := tracker.OnNewTiming(ctx, "home", aFast.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Update.Failed)

	require.Len(t, res.Ranking, 2)
	assert.Equal(t, aFast.ID, res.Ranking[0].TimingID)
	assert.Equal(t, "NSR Corvette C7R", res.Ranking[0].VehicleName)
	assert.Equal(t, ranking.StatusUp, res.Ranking[0].PositionStatus)
	assert.Equal(t, bBest.ID, res.Ranking[1].TimingID)
	assert.Equal(t, ranking.StatusDown, res.Ranking[1].PositionStatus)
	assert.Equal(t, 0.499, *res.Ranking[1].GapToLeader)

	var stale models.CircuitTiming
	require.NoError(t, db.First(&stale, "id = ?", aSlow.ID).Error)
	assert.Nil(t, stale.CurrentPosition)
	assert.Nil(t, stale.PreviousPosition)
	assert.Nil(t, stale.PositionChange)

	var fresh models.CircuitTiming
	require.NoError(t, db.First(&fresh, "id = ?", aFast.ID).Error)
	require.NotNil(t, fresh.CurrentPosition)
	assert.Equal(t, 1, *fresh.CurrentPosition)
	require.NotNil(t, fresh.PreviousPosition)
	assert.Equal(t, 2, *fresh.PreviousPosition)
	assert.Equal(t, 1, *fresh.PositionChange)
	assert.NotNil(t, fresh.PositionUpdatedAt)

	count, err := CountRankedTimings(db, "home")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestTimingStoreUpdateMissingRow(t *testing.T) {
	db := initTestDB(t)
	err := NewTimingStore(db).UpdatePosition(context.Background(), "missing", ranking.PositionUpdate{CurrentPosition: 1})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, NewTimingStore(db).ClearPositions(context.Background(), nil))
}

func TestVehicleComponents(t *testing.T) {
	db := initTestDB(t)
	v := createVehicle(t, db, "u1", "Porsche 917K")
	for _, cost := range []string{"12.50", "7.25"} {
		require.NoError(t, CreateComponent(db, &models.Component{
			ID: uuid.NewString(), VehicleID: v.ID, Name: "part", Cost: decimal.RequireFromString(cost),
		}))
	}

	loaded, err := GetVehicle(db, v.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Components, 2)
	assert.True(t, decimal.RequireFromString("19.75").Equal(ComponentCost(loaded)))

	assert.ErrorIs(t, DeleteComponent(db, "other-vehicle", loaded.Components[0].ID), gorm.ErrRecordNotFound)
	require.NoError(t, DeleteVehicle(db, v.ID))
	_, err = GetVehicle(db, v.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCompetitionStandings(t *testing.T) {
	db := initTestDB(t)
	comp := &models.Competition{ID: uuid.NewString(), OwnerID: "u1", Name: "Club night", Circuit: "home", Rounds: 1}
	require.NoError(t, CreateCompetition(db, comp))

	base := time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)
	p1 := &models.Participant{ID: uuid.NewString(), CompetitionID: comp.ID, DriverName: "Anna", CreatedAt: base}
	p2 := &models.Participant{ID: uuid.NewString(), CompetitionID: comp.ID, DriverName: "Ben", CreatedAt: base.Add(time.Second)}
	require.NoError(t, CreateParticipant(db, p1))
	require.NoError(t, CreateParticipant(db, p2))

	require.NoError(t, UpsertRule(db, &models.CompetitionRule{
		CompetitionID: comp.ID, RuleType: models.RulePerRound, PointsStructure: models.PointsTable{1: 3, 2: 1},
	}))
	// replaces the first per_round rule
	require.NoError(t, UpsertRule(db, &models.CompetitionRule{
		CompetitionID: comp.ID, RuleType: models.RulePerRound, PointsStructure: models.PointsTable{1: 10, 2: 5},
	}))

	for _, tm := range []*models.CompetitionTiming{
		{ID: uuid.NewString(), CompetitionID: comp.ID, ParticipantID: p2.ID, RoundNumber: 1, TotalTime: "01:35.000"},
		{ID: uuid.NewString(), CompetitionID: comp.ID, ParticipantID: p1.ID, RoundNumber: 1, TotalTime: "01:30.000"},
	} {
		require.NoError(t, CreateCompetitionTiming(db, tm))
	}

	has, err := HasRoundTiming(db, p1.ID, 1)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = HasRoundTiming(db, p1.ID, 2)
	require.NoError(t, err)
	assert.False(t, has)

	standings, err := GetCompetitionStandings(db, comp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Club night", standings.Name)
	assert.True(t, standings.IsCompleted)
	assert.Equal(t, 10, standings.PointsByParticipant[p1.ID])
	assert.Equal(t, 5, standings.PointsByParticipant[p2.ID])
	assert.Equal(t, "Anna", standings.SortedParticipants[0].DriverName)

	require.NoError(t, DeleteCompetition(db, comp.ID))
	_, err = GetCompetitionStandings(db, comp.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPointsTableRoundTrip(t *testing.T) {
	v, err := models.PointsTable{1: 10, 2: 5}.Value()
	require.NoError(t, err)

	var table models.PointsTable
	require.NoError(t, table.Scan(v))
	assert.Equal(t, models.PointsTable{1: 10, 2: 5}, table)

	require.NoError(t, table.Scan(`{"3":1}`))
	assert.Equal(t, models.PointsTable{3: 1}, table)
	assert.Error(t, table.Scan(`{"first":1}`))
	assert.Error(t, table.Scan(42))
}
