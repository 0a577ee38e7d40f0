package database

import (
	"time"

	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/ZJUSCT/slotgarage/internal/metrics"
	"github.com/ZJUSCT/slotgarage/internal/scoring"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type Standings struct {
	CompetitionID string `json:"competition_id"`
	Name          string `json:"name"`
	Circuit       string `json:"circuit"`
	Rounds        int    `json:"rounds"`
	scoring.Result
}

// GetCompetitionStandings loads everything recorded for a competition and
// scores it from scratch.
func GetCompetitionStandings(db *gorm.DB, competitionID string) (*Standings, error) {
	competition, err := GetCompetition(db, competitionID)
	if err != nil {
		return nil, err
	}
	timings, err := GetCompetitionTimings(db, competitionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := scoring.Compute(
		scoring.Competition{ID: competition.ID, Rounds: competition.Rounds},
		lo.Map(competition.Participants, func(p models.Participant, _ int) scoring.Participant {
			return scoring.Participant{ID: p.ID, DriverName: p.DriverName, VehicleRef: p.VehicleRef}
		}),
		lo.Map(timings, func(t models.CompetitionTiming, _ int) scoring.Timing {
			return scoring.Timing{
				ID:             t.ID,
				ParticipantID:  t.ParticipantID,
				RoundNumber:    t.RoundNumber,
				TotalTime:      t.TotalTime,
				BestLapTime:    t.BestLapTime,
				Laps:           t.Laps,
				PenaltySeconds: t.PenaltySeconds,
				Lane:           t.Lane,
			}
		}),
		lo.Map(competition.Rules, func(r models.CompetitionRule, _ int) scoring.Rule {
			return scoring.Rule{
				Type:            scoring.RuleType(r.RuleType),
				Points:          r.PointsStructure,
				UseBonusBestLap: r.UseBonusBestLap,
			}
		}),
	)
	metrics.ObserveScoring(time.Since(start))

	return &Standings{
		CompetitionID: competition.ID,
		Name:          competition.Name,
		Circuit:       competition.Circuit,
		Rounds:        competition.Rounds,
		Result:        result,
	}, nil
}
