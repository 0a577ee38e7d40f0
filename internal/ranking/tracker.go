// Package ranking maintains per-circuit leaderboards. Every vehicle/lane/lap
// count combination on a circuit is ranked by its best lap, and the ranks are
// written back to the timing rows together with how far they moved since the
// previous recompute.
package ranking

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/ZJUSCT/slotgarage/internal/laptime"
	"github.com/ZJUSCT/slotgarage/internal/metrics"
	"github.com/ZJUSCT/slotgarage/internal/pubsub"
)

const defaultMaxConcurrentUpdates = 8

// Store is the persistence the tracker needs.
type Store interface {
	// CircuitTimings returns all timings on circuit that have a best lap,
	// oldest first.
	CircuitTimings(ctx context.Context, circuit string) ([]models.CircuitTiming, error)
	UpdatePosition(ctx context.Context, timingID string, update PositionUpdate) error
	// ClearPositions nulls the position columns of the given rows.
	ClearPositions(ctx context.Context, timingIDs []string) error
}

type PositionUpdate struct {
	CurrentPosition  int
	PreviousPosition *int
	PositionChange   int
	UpdatedAt        time.Time
}

// GroupKey identifies one entrant on a circuit.
type GroupKey struct {
	VehicleID string `json:"vehicle_id"`
	Lane      int    `json:"lane"`
	Laps      int    `json:"laps"`
}

func keyOf(t *models.CircuitTiming) GroupKey {
	return GroupKey{VehicleID: t.VehicleID, Lane: t.Lane, Laps: t.Laps}
}

type Tracker struct {
	store       Store
	logger      *zap.Logger
	broker      *pubsub.Broker
	concurrency int
	now         func() time.Time
}

type Option func(*Tracker)

// WithMaxConcurrentUpdates bounds the number of group writes in flight.
func WithMaxConcurrentUpdates(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// WithBroker publishes recompute events on the circuit's topic.
func WithBroker(b *pubsub.Broker) Option {
	return func(t *Tracker) {
		t.broker = b
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTracker(store Store, logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		store:       store,
		logger:      logger.Named("ranking"),
		concurrency: defaultMaxConcurrentUpdates,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// group is one entrant with the row that represents it.
type group struct {
	key     GroupKey
	best    *models.CircuitTiming
	seconds float64
	members []*models.CircuitTiming
}

// selectBest groups timings by entrant, keeps the fastest row per entrant
// (first seen wins ties) and orders the entrants by that row's time.
func selectBest(timings []models.CircuitTiming) []*group {
	index := make(map[GroupKey]*group)
	var groups []*group
	for i := range timings {
		t := &timings[i]
		secs := laptime.PtrSecondsOrInf(t.BestLapTime)
		g, ok := index[keyOf(t)]
		if !ok {
			g = &group{key: keyOf(t), best: t, seconds: secs}
			index[g.key] = g
			groups = append(groups, g)
		} else if secs < g.seconds {
			g.best, g.seconds = t, secs
		}
		g.members = append(g.members, t)
	}
	slices.SortStableFunc(groups, func(a, b *group) int { return cmp.Compare(a.seconds, b.seconds) })
	return groups
}

// storedPosition is the rank the entrant held before this recompute. The best
// row may have just changed, so any member still carrying a rank counts.
func (g *group) storedPosition() *int {
	if g.best.CurrentPosition != nil {
		return g.best.CurrentPosition
	}
	for _, m := range g.members {
		if m.CurrentPosition != nil {
			return m.CurrentPosition
		}
	}
	return nil
}

func (g *group) contains(timingID string) bool {
	return lo.ContainsBy(g.members, func(m *models.CircuitTiming) bool { return m.ID == timingID })
}

// staleMembers are the non-best rows that still carry position data.
func (g *group) staleMembers() []string {
	var ids []string
	for _, m := range g.members {
		if m.ID == g.best.ID {
			continue
		}
		if m.CurrentPosition != nil || m.PreviousPosition != nil || m.PositionChange != nil {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

type GroupOutcome struct {
	GroupKey
	TimingID         string `json:"timing_id"`
	Position         int    `json:"position"`
	PreviousPosition *int   `json:"previous_position"`
	PositionChange   int    `json:"position_change"`
	Written          bool   `json:"written"`
	Cleared          int    `json:"cleared"`
	Error            string `json:"error,omitempty"`
	err              error
}

// Err is the write failure of this group, if any.
func (o GroupOutcome) Err() error { return o.err }

type UpdateResult struct {
	Circuit   string         `json:"circuit"`
	Groups    int            `json:"groups"`
	Updated   int            `json:"updated"`
	Unchanged int            `json:"unchanged"`
	Failed    int            `json:"failed"`
	Outcomes  []GroupOutcome `json:"outcomes"`
}

// Partial reports whether some, but not all, group writes failed.
func (r *UpdateResult) Partial() bool {
	return r.Failed > 0 && r.Failed < r.Groups
}

// Recompute re-ranks every entrant on circuit and persists the positions.
// triggeringTimingID names the row that caused the recompute; its entrant is
// always rewritten. Only a failure to load the circuit is returned as an
// error, individual write failures are reported in the result.
func (t *Tracker) Recompute(ctx context.Context, circuit, triggeringTimingID string) (*UpdateResult, error) {
	start := t.now()

	// Snapshot: every stored position is read here, before any write.
	timings, err := t.store.CircuitTimings(ctx, circuit)
	if err != nil {
		metrics.RecordRecomputeError()
		return nil, fmt.Errorf("failed to load timings for circuit %s: %w", circuit, err)
	}
	groups := selectBest(timings)

	outcomes := make([]GroupOutcome, len(groups))
	for i, g := range groups {
		previous := g.storedPosition()
		newPos := i + 1
		change := 0
		if previous != nil {
			change = *previous - newPos
		}
		outcomes[i] = GroupOutcome{
			GroupKey:         g.key,
			TimingID:         g.best.ID,
			Position:         newPos,
			PreviousPosition: previous,
			PositionChange:   change,
		}
	}

	// Mutation: groups touch disjoint rows, so they are written concurrently.
	now := t.now()
	var eg errgroup.Group
	eg.SetLimit(t.concurrency)
	for i, g := range groups {
		out := &outcomes[i]
		needsWrite := out.PositionChange != 0 ||
			(triggeringTimingID != "" && g.contains(triggeringTimingID)) ||
			g.best.CurrentPosition == nil || *g.best.CurrentPosition != out.Position
		stale := g.staleMembers()
		if !needsWrite && len(stale) == 0 {
			continue
		}
		eg.Go(func() error {
			if needsWrite {
				err := t.store.UpdatePosition(ctx, g.best.ID, PositionUpdate{
					CurrentPosition:  out.Position,
					PreviousPosition: out.PreviousPosition,
					PositionChange:   out.PositionChange,
					UpdatedAt:        now,
				})
				if err != nil {
					out.fail(fmt.Errorf("update timing %s: %w", g.best.ID, err))
					return nil
				}
				out.Written = true
			}
			if len(stale) > 0 {
				if err := t.store.ClearPositions(ctx, stale); err != nil {
					out.fail(fmt.Errorf("clear %d stale timings: %w", len(stale), err))
					return nil
				}
				out.Cleared = len(stale)
			}
			return nil
		})
	}
	// Tasks never return an error; failures live in the outcomes.
	_ = eg.Wait()

	result := &UpdateResult{Circuit: circuit, Groups: len(groups), Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			result.Failed++
			t.logger.Warn("position update failed",
				zap.String("circuit", circuit),
				zap.String("vehicle_id", o.VehicleID),
				zap.Int("lane", o.Lane),
				zap.Int("laps", o.Laps),
				zap.Error(o.err))
		case o.Written:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	metrics.RecordRecompute(result.Updated, result.Failed, t.now().Sub(start))
	t.logger.Info("positions recomputed",
		zap.String("circuit", circuit),
		zap.String("trigger", triggeringTimingID),
		zap.Int("groups", result.Groups),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed))
	t.publish(circuit, "positions_recomputed", result)

	return result, nil
}

func (o *GroupOutcome) fail(err error) {
	o.err = err
	o.Error = err.Error()
}

type Status string

const (
	StatusUp     Status = "up"
	StatusDown   Status = "down"
	StatusStable Status = "stable"
)

type Entry struct {
	Position         int        `json:"position"`
	TimingID         string     `json:"timing_id"`
	VehicleID        string     `json:"vehicle_id"`
	VehicleName      string     `json:"vehicle_name"`
	Lane             int        `json:"lane"`
	Laps             int        `json:"laps"`
	BestLapTime      *string    `json:"best_lap_time"`
	BestLapSeconds   *float64   `json:"best_lap_seconds"`
	PreviousPosition *int       `json:"previous_position"`
	PositionChange   int        `json:"position_change"`
	PositionStatus   Status     `json:"position_status"`
	GapToLeader      *float64   `json:"gap_to_leader"`
	GapToPrevious    *float64   `json:"gap_to_previous"`
	RecordedAt       time.Time  `json:"recorded_at"`
	PositionUpdated  *time.Time `json:"position_updated_at"`
}

// Leaderboard builds the circuit ranking from the stored rows without writing
// anything. Movement information comes from the last recompute.
func (t *Tracker) Leaderboard(ctx context.Context, circuit string) ([]Entry, error) {
	timings, err := t.store.CircuitTimings(ctx, circuit)
	if err != nil {
		return nil, fmt.Errorf("failed to load timings for circuit %s: %w", circuit, err)
	}
	groups := selectBest(timings)

	entries := make([]Entry, 0, len(groups))
	for i, g := range groups {
		best := g.best
		e := Entry{
			Position:         i + 1,
			TimingID:         best.ID,
			VehicleID:        best.VehicleID,
			VehicleName:      best.Vehicle.DisplayName(),
			Lane:             best.Lane,
			Laps:             best.Laps,
			BestLapTime:      best.BestLapTime,
			PreviousPosition: best.PreviousPosition,
			PositionStatus:   StatusStable,
			RecordedAt:       best.CreatedAt,
			PositionUpdated:  best.PositionUpdatedAt,
		}
		if best.PositionChange != nil {
			e.PositionChange = *best.PositionChange
			switch {
			case e.PositionChange > 0:
				e.PositionStatus = StatusUp
			case e.PositionChange < 0:
				e.PositionStatus = StatusDown
			}
		}
		if !math.IsInf(g.seconds, 1) {
			e.BestLapSeconds = lo.ToPtr(g.seconds)
		}
		if i == 0 {
			e.GapToLeader = zeroGap(g.seconds)
			e.GapToPrevious = zeroGap(g.seconds)
		} else {
			e.GapToLeader = gap(g.seconds, groups[0].seconds)
			e.GapToPrevious = gap(g.seconds, groups[i-1].seconds)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

type NewTimingResult struct {
	Ranking []Entry       `json:"ranking"`
	Update  *UpdateResult `json:"update"`
}

// OnNewTiming re-ranks the circuit after timingID was recorded and returns the
// fresh leaderboard.
func (t *Tracker) OnNewTiming(ctx context.Context, circuit, timingID string) (*NewTimingResult, error) {
	update, err := t.Recompute(ctx, circuit, timingID)
	if err != nil {
		return nil, err
	}
	entries, err := t.Leaderboard(ctx, circuit)
	if err != nil {
		return nil, err
	}
	return &NewTimingResult{Ranking: entries, Update: update}, nil
}

type event struct {
	Type    string      `json:"type"`
	Circuit string      `json:"circuit"`
	Payload interface{} `json:"payload"`
}

// StreamRanking is the stream name ranking events carry in the websocket
// envelope.
const StreamRanking = "ranking"

// Topic is the broker topic carrying a circuit's ranking events.
func Topic(circuit string) string {
	return "circuit:" + circuit
}

func (t *Tracker) publish(circuit, kind string, payload interface{}) {
	if t.broker == nil {
		return
	}
	msg, err := json.Marshal(event{Type: kind, Circuit: circuit, Payload: payload})
	if err != nil {
		t.logger.Error("failed to encode ranking event", zap.Error(err))
		return
	}
	t.broker.Publish(Topic(circuit), pubsub.FormatMessage(StreamRanking, string(msg)))
}
