package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RuleType string

const (
	RulePerRound RuleType = "per_round"
	RuleFinal    RuleType = "final"
)

// PointsTable maps a 1-based finishing position to points. It is stored as a
// JSON object keyed by the position.
type PointsTable map[int]int

func (p PointsTable) Value() (driver.Value, error) {
	raw := make(map[string]int, len(p))
	for pos, pts := range p {
		raw[strconv.Itoa(pos)] = pts
	}
	return json.Marshal(raw)
}

func (p *PointsTable) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	var raw map[string]int
	if err := json.Unmarshal(bytes, &raw); err != nil {
		return err
	}
	table := make(PointsTable, len(raw))
	for k, pts := range raw {
		pos, err := strconv.Atoi(k)
		if err != nil {
			return err
		}
		table[pos] = pts
	}
	*p = table
	return nil
}

type User struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`

	Username     string `gorm:"uniqueIndex" json:"username"`
	PasswordHash string `json:"-"`
	Nickname     string `json:"nickname"`
	// GitLabID is the subject of the user's GitLab identity, nil for local accounts.
	GitLabID *string `gorm:"uniqueIndex" json:"-"`
}

// SSOOnly reports whether the account can only sign in through GitLab.
func (u User) SSOOnly() bool {
	return u.PasswordHash == "" && u.GitLabID != nil
}

type Vehicle struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID       string          `gorm:"index" json:"owner_id"`
	Manufacturer  string          `json:"manufacturer"`
	Model         string          `json:"model"`
	Scale         string          `json:"scale"` // e.g. "1:32"
	Reference     string          `json:"reference"`
	PurchasePrice decimal.Decimal `gorm:"type:text" json:"purchase_price"`
	Notes         string          `json:"notes"`

	Components []Component `gorm:"foreignKey:VehicleID;constraint:OnDelete:CASCADE" json:"components,omitempty"`
}

// DisplayName is the label used on leaderboards.
func (v Vehicle) DisplayName() string {
	if v.Manufacturer == "" {
		return v.Model
	}
	return v.Manufacturer + " " + v.Model
}

// Component is a modification or spare part fitted to a vehicle.
type Component struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	VehicleID   string          `gorm:"index" json:"vehicle_id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"` // motor, tyres, gears, ...
	Cost        decimal.Decimal `gorm:"type:text" json:"cost"`
	InstalledAt *time.Time      `json:"installed_at"`
}

// CircuitTiming is a recorded run of a vehicle on a circuit. The position
// columns are owned by the ranking tracker.
type CircuitTiming struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	VehicleID   string  `gorm:"index" json:"vehicle_id"`
	Vehicle     Vehicle `gorm:"foreignKey:VehicleID" json:"-"`
	Circuit     string  `gorm:"index" json:"circuit"`
	Lane        int     `json:"lane"`
	Laps        int     `json:"laps"`
	BestLapTime *string `json:"best_lap_time"`
	TotalTime   *string `json:"total_time"`

	CurrentPosition   *int       `json:"current_position"`
	PreviousPosition  *int       `json:"previous_position"`
	PositionChange    *int       `json:"position_change"`
	PositionUpdatedAt *time.Time `json:"position_updated_at"`
}

type Competition struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID string `gorm:"index" json:"owner_id"`
	Name    string `json:"name"`
	Circuit string `json:"circuit"`
	Rounds  int    `json:"rounds"`

	Participants []Participant       `gorm:"foreignKey:CompetitionID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
	Rules        []CompetitionRule   `gorm:"foreignKey:CompetitionID;constraint:OnDelete:CASCADE" json:"rules,omitempty"`
	Timings      []CompetitionTiming `gorm:"foreignKey:CompetitionID;constraint:OnDelete:CASCADE" json:"-"`
}

type Participant struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	CompetitionID string `gorm:"index" json:"competition_id"`
	DriverName    string `json:"driver_name"`
	VehicleRef    string `json:"vehicle_ref"`
}

type CompetitionTiming struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	CompetitionID  string  `gorm:"index" json:"competition_id"`
	ParticipantID  string  `gorm:"index" json:"participant_id"`
	RoundNumber    int     `json:"round_number"`
	TotalTime      string  `json:"total_time"`
	BestLapTime    string  `json:"best_lap_time"`
	Laps           int     `json:"laps"`
	PenaltySeconds float64 `json:"penalty_seconds"`
	Lane           int     `json:"lane"`
}

type CompetitionRule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UpdatedAt time.Time `json:"updated_at"`

	CompetitionID   string      `gorm:"uniqueIndex:idx_competition_rule" json:"competition_id"`
	RuleType        RuleType    `gorm:"uniqueIndex:idx_competition_rule" json:"rule_type"`
	PointsStructure PointsTable `gorm:"type:text" json:"points_structure"`
	UseBonusBestLap bool        `json:"use_bonus_best_lap"`
}
