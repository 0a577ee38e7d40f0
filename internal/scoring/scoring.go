// Package scoring turns the raw timings of a competition into points and
// standings. Everything here is a pure function of its inputs: nothing is
// cached or persisted between calls.
package scoring

import (
	"cmp"
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/ZJUSCT/slotgarage/internal/laptime"
)

// RuleType selects when a rule awards points.
type RuleType string

const (
	RulePerRound RuleType = "per_round"
	RuleFinal    RuleType = "final"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	return t == RulePerRound || t == RuleFinal
}

// Competition is the part of a competition scoring depends on.
type Competition struct {
	ID     string
	Rounds int
}

// Participant is one driver entered in a competition.
type Participant struct {
	ID         string
	DriverName string
	VehicleRef string
}

// Timing is a participant's result for one round. TotalTime and BestLapTime
// use the laptime format; PenaltySeconds is added to the total time.
type Timing struct {
	ID             string
	ParticipantID  string
	RoundNumber    int
	TotalTime      string
	BestLapTime    string
	Laps           int
	PenaltySeconds float64
	Lane           int
}

// Rule maps a 1-based rank to the points it earns. Ranks missing from Points
// earn nothing.
type Rule struct {
	Type            RuleType
	Points          map[int]int
	UseBonusBestLap bool
}

// ParticipantStats aggregates a participant's timings across all rounds.
type ParticipantStats struct {
	ParticipantID    string  `json:"participant_id"`
	DriverName       string  `json:"driver_name"`
	VehicleRef       string  `json:"vehicle_ref"`
	RoundsCompleted  int     `json:"rounds_completed"`
	RoundsRemaining  int     `json:"rounds_remaining"`
	TotalTimeSeconds float64 `json:"total_time_seconds"`
	TotalTime        *string `json:"total_time"`
	BestLapTime      *string `json:"best_lap_time"`
	TotalLaps        int     `json:"total_laps"`
	PenaltySeconds   float64 `json:"penalty_seconds"`
	Points           int     `json:"points"`
}

// Standing is a participant's stats with its 1-based overall position.
type Standing struct {
	ParticipantStats
	Position int `json:"position"`
}

// Result is the scored state of a competition. IsCompleted is true once there
// are at least as many timings as participants times rounds; final rules
// only award points then.
type Result struct {
	PointsByParticipant map[string]int     `json:"points_by_participant"`
	ParticipantStats    []ParticipantStats `json:"participant_stats"`
	SortedParticipants  []Standing         `json:"sorted_participants"`
	IsCompleted         bool               `json:"is_completed"`
}

// Compute scores a competition. Malformed or missing timing data never fails
// the computation; it ranks last in comparisons and counts as zero in sums.
func Compute(competition Competition, participants []Participant, timings []Timing, rules []Rule) Result {
	byParticipant := lo.GroupBy(timings, func(t Timing) string { return t.ParticipantID })

	points := make(map[string]int, len(participants))
	for _, p := range participants {
		points[p.ID] = 0
	}

	if rule, ok := findRule(rules, RulePerRound); ok {
		for round := 1; round <= competition.Rounds; round++ {
			scoreRound(round, participants, byParticipant, rule, points)
		}
	}

	completed := len(timings) >= len(participants)*competition.Rounds
	if rule, ok := findRule(rules, RuleFinal); ok && completed {
		scoreFinal(participants, byParticipant, rule, points)
	}

	stats := make([]ParticipantStats, 0, len(participants))
	for _, p := range participants {
		stats = append(stats, buildStats(competition, p, byParticipant[p.ID], points[p.ID]))
	}

	return Result{
		PointsByParticipant: points,
		ParticipantStats:    stats,
		SortedParticipants:  rank(stats),
		IsCompleted:         completed,
	}
}

func findRule(rules []Rule, t RuleType) (Rule, bool) {
	return lo.Find(rules, func(r Rule) bool { return r.Type == t })
}

type roundEntry struct {
	participantID string
	timing        Timing
	key           float64
}

// scoreRound awards per-round points only when every participant has a
// timing for the round.
func scoreRound(round int, participants []Participant, byParticipant map[string][]Timing, rule Rule, points map[string]int) {
	entries := make([]roundEntry, 0, len(participants))
	for _, p := range participants {
		t, ok := lo.Find(byParticipant[p.ID], func(t Timing) bool { return t.RoundNumber == round })
		if !ok {
			return
		}
		entries = append(entries, roundEntry{
			participantID: p.ID,
			timing:        t,
			key:           laptime.SecondsOrInf(t.TotalTime) + t.PenaltySeconds,
		})
	}

	slices.SortStableFunc(entries, func(a, b roundEntry) int { return cmp.Compare(a.key, b.key) })
	for i, e := range entries {
		points[e.participantID] += rule.Points[i+1]
	}

	if rule.UseBonusBestLap {
		if id, ok := uniqueBestLap(entries); ok {
			points[id]++
		}
	}
}

// uniqueBestLap finds the participant holding the fastest lap of the round.
// A shared fastest lap awards nobody.
func uniqueBestLap(entries []roundEntry) (string, bool) {
	best := math.Inf(1)
	holder := ""
	tied := false
	for _, e := range entries {
		lap, ok := laptime.Parse(e.timing.BestLapTime)
		if !ok {
			continue
		}
		switch {
		case lap < best:
			best, holder, tied = lap, e.timing.ParticipantID, false
		case lap == best:
			tied = true
		}
	}
	if math.IsInf(best, 1) || tied || holder == "" {
		return "", false
	}
	return holder, true
}

func scoreFinal(participants []Participant, byParticipant map[string][]Timing, rule Rule, points map[string]int) {
	type total struct {
		participantID string
		seconds       float64
	}
	totals := lo.Map(participants, func(p Participant, _ int) total {
		return total{participantID: p.ID, seconds: sumTime(byParticipant[p.ID])}
	})
	slices.SortStableFunc(totals, func(a, b total) int { return cmp.Compare(a.seconds, b.seconds) })
	for i, t := range totals {
		points[t.participantID] += rule.Points[i+1]
	}
}

func sumTime(timings []Timing) float64 {
	return lo.SumBy(timings, func(t Timing) float64 {
		return laptime.SecondsOrZero(t.TotalTime) + t.PenaltySeconds
	})
}

func buildStats(competition Competition, p Participant, timings []Timing, pts int) ParticipantStats {
	rounds := lo.Uniq(lo.Map(timings, func(t Timing, _ int) int { return t.RoundNumber }))
	s := ParticipantStats{
		ParticipantID:    p.ID,
		DriverName:       p.DriverName,
		VehicleRef:       p.VehicleRef,
		RoundsCompleted:  len(rounds),
		RoundsRemaining:  max(competition.Rounds-len(rounds), 0),
		TotalTimeSeconds: sumTime(timings),
		TotalLaps:        lo.SumBy(timings, func(t Timing) int { return t.Laps }),
		PenaltySeconds:   lo.SumBy(timings, func(t Timing) float64 { return t.PenaltySeconds }),
		Points:           pts,
	}
	if s.TotalTimeSeconds != 0 {
		formatted := laptime.Format(s.TotalTimeSeconds)
		s.TotalTime = &formatted
	}
	// Fixed-width strings order the same way as their parsed values.
	for _, t := range timings {
		if !laptime.Valid(t.BestLapTime) {
			continue
		}
		if s.BestLapTime == nil || t.BestLapTime < *s.BestLapTime {
			lap := t.BestLapTime
			s.BestLapTime = &lap
		}
	}
	return s
}

// rank orders by points, then total time (no recorded time last), then
// completed rounds. Remaining ties keep the participants' input order.
func rank(stats []ParticipantStats) []Standing {
	sorted := slices.Clone(stats)
	slices.SortStableFunc(sorted, func(a, b ParticipantStats) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		if c := compareTotalTime(a.TotalTimeSeconds, b.TotalTimeSeconds); c != 0 {
			return c
		}
		return cmp.Compare(b.RoundsCompleted, a.RoundsCompleted)
	})
	return lo.Map(sorted, func(s ParticipantStats, i int) Standing {
		return Standing{ParticipantStats: s, Position: i + 1}
	})
}

func compareTotalTime(a, b float64) int {
	switch {
	case a == 0 && b == 0:
		return 0
	case a == 0:
		return 1
	case b == 0:
		return -1
	}
	return cmp.Compare(a, b)
}
