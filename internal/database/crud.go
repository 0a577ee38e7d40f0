package database

import (
	"errors"

	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// User CRUD
func CreateUser(db *gorm.DB, user *models.User) error {
	return db.Create(user).Error
}

func GetUserByID(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByUsername(db *gorm.DB, username string) (*models.User, error) {
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByGitLabID(db *gorm.DB, gitlabID string) (*models.User, error) {
	var user models.User
	if err := db.Where("git_lab_id = ?", gitlabID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetAllUsers(db *gorm.DB) ([]models.User, error) {
	var users []models.User
	if err := db.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func DeleteUser(db *gorm.DB, userID string) error {
	return db.Delete(&models.User{}, "id = ?", userID).Error
}

// Vehicle CRUD
func CreateVehicle(db *gorm.DB, vehicle *models.Vehicle) error {
	return db.Create(vehicle).Error
}

func GetVehicle(db *gorm.DB, id string) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	if err := db.Preload("Components", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at asc")
	}).Where("id = ?", id).First(&vehicle).Error; err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func GetVehiclesByOwner(db *gorm.DB, ownerID string) ([]models.Vehicle, error) {
	var vehicles []models.Vehicle
	if err := db.Preload("Components").Where("owner_id = ?", ownerID).Order("created_at desc").Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}

func UpdateVehicle(db *gorm.DB, vehicle *models.Vehicle) error {
	return db.Omit(clause.Associations).Save(vehicle).Error
}

// DeleteVehicle removes a vehicle together with its components and timings.
func DeleteVehicle(db *gorm.DB, id string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("vehicle_id = ?", id).Delete(&models.Component{}).Error; err != nil {
			return err
		}
		if err := tx.Where("vehicle_id = ?", id).Delete(&models.CircuitTiming{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Vehicle{}, "id = ?", id).Error
	})
}

// ComponentCost sums the cost of all components fitted to a vehicle.
func ComponentCost(vehicle *models.Vehicle) decimal.Decimal {
	total := decimal.Zero
	for _, c := range vehicle.Components {
		total = total.Add(c.Cost)
	}
	return total
}

// Component CRUD
func CreateComponent(db *gorm.DB, component *models.Component) error {
	return db.Create(component).Error
}

func DeleteComponent(db *gorm.DB, vehicleID, componentID string) error {
	result := db.Where("id = ? AND vehicle_id = ?", componentID, vehicleID).Delete(&models.Component{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Circuit timings
func CreateCircuitTiming(db *gorm.DB, timing *models.CircuitTiming) error {
	return db.Create(timing).Error
}

func GetCircuitTimingsByVehicle(db *gorm.DB, vehicleID string) ([]models.CircuitTiming, error) {
	var timings []models.CircuitTiming
	if err := db.Where("vehicle_id = ?", vehicleID).Order("created_at desc").Find(&timings).Error; err != nil {
		return nil, err
	}
	return timings, nil
}

// GetVehicleCircuits lists the circuits a vehicle has timings on.
func GetVehicleCircuits(db *gorm.DB, vehicleID string) ([]string, error) {
	var circuits []string
	err := db.Model(&models.CircuitTiming{}).
		Where("vehicle_id = ?", vehicleID).
		Distinct().Order("circuit").
		Pluck("circuit", &circuits).Error
	return circuits, err
}

// GetCircuits lists every circuit that has at least one timing.
func GetCircuits(db *gorm.DB) ([]string, error) {
	var circuits []string
	err := db.Model(&models.CircuitTiming{}).Distinct().Order("circuit").Pluck("circuit", &circuits).Error
	return circuits, err
}

// CountRankedTimings counts rows on a circuit that currently hold a position.
func CountRankedTimings(db *gorm.DB, circuit string) (int64, error) {
	var count int64
	err := db.Model(&models.CircuitTiming{}).
		Where("circuit = ? AND current_position IS NOT NULL", circuit).
		Count(&count).Error
	return count, err
}

// Competition CRUD
func CreateCompetition(db *gorm.DB, competition *models.Competition) error {
	return db.Create(competition).Error
}

func GetCompetition(db *gorm.DB, id string) (*models.Competition, error) {
	var competition models.Competition
	if err := db.Preload("Participants", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at asc, id asc")
	}).Preload("Rules").Where("id = ?", id).First(&competition).Error; err != nil {
		return nil, err
	}
	return &competition, nil
}

func GetCompetitionsByOwner(db *gorm.DB, ownerID string) ([]models.Competition, error) {
	var competitions []models.Competition
	if err := db.Where("owner_id = ?", ownerID).Order("created_at desc").Find(&competitions).Error; err != nil {
		return nil, err
	}
	return competitions, nil
}

func DeleteCompetition(db *gorm.DB, id string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{&models.CompetitionTiming{}, &models.CompetitionRule{}, &models.Participant{}} {
			if err := tx.Where("competition_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Competition{}, "id = ?", id).Error
	})
}

func CreateParticipant(db *gorm.DB, participant *models.Participant) error {
	return db.Create(participant).Error
}

func GetParticipant(db *gorm.DB, competitionID, participantID string) (*models.Participant, error) {
	var participant models.Participant
	if err := db.Where("id = ? AND competition_id = ?", participantID, competitionID).First(&participant).Error; err != nil {
		return nil, err
	}
	return &participant, nil
}

// UpsertRule stores the competition's rule for rule.RuleType, replacing any
// earlier rule of that type.
func UpsertRule(db *gorm.DB, rule *models.CompetitionRule) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "competition_id"}, {Name: "rule_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"points_structure", "use_bonus_best_lap", "updated_at"}),
	}).Create(rule).Error
}

func CreateCompetitionTiming(db *gorm.DB, timing *models.CompetitionTiming) error {
	return db.Create(timing).Error
}

// GetCompetitionTimings returns a competition's timings in the order they were recorded.
func GetCompetitionTimings(db *gorm.DB, competitionID string) ([]models.CompetitionTiming, error) {
	var timings []models.CompetitionTiming
	if err := db.Where("competition_id = ?", competitionID).Order("created_at asc, id asc").Find(&timings).Error; err != nil {
		return nil, err
	}
	return timings, nil
}

// HasRoundTiming reports whether the participant already has a timing for round.
func HasRoundTiming(db *gorm.DB, participantID string, round int) (bool, error) {
	var existing models.CompetitionTiming
	err := db.Where("participant_id = ? AND round_number = ?", participantID, round).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
