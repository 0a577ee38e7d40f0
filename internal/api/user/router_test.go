package user

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ZJUSCT/slotgarage/internal/config"
	"github.com/ZJUSCT/slotgarage/internal/database"
	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/ZJUSCT/slotgarage/internal/pubsub"
	"github.com/ZJUSCT/slotgarage/internal/ranking"
)

type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	broker *pubsub.Broker
	db     *gorm.DB
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Init(filepath.Join(t.TempDir(), "garage.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{}
	cfg.Auth.JWT.Secret = "test-secret"
	cfg.Auth.JWT.ExpireHours = 1
	cfg.Auth.Local.Enabled = true

	broker := pubsub.NewBroker(4)
	tracker := ranking.NewTracker(database.NewTimingStore(db), nil, ranking.WithBroker(broker))
	return &testServer{t: t, engine: NewUserRouter(cfg, db, tracker, broker, nil), db: db, broker: broker}
}

func (s *testServer) do(method, path string, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

// ok performs the request, expects success and decodes data into out.
func (s *testServer) ok(method, path string, body, out interface{}) {
	s.t.Helper()
	code, resp := s.do(method, path, body)
	require.Equal(s.t, http.StatusOK, code, resp.Message)
	if out != nil {
		require.NoError(s.t, json.Unmarshal(resp.Data, out))
	}
}

func (s *testServer) login(username string) {
	s.t.Helper()
	s.token = ""
	s.ok(http.MethodPost, "/api/v1/auth/local/register", gin.H{"username": username, "password": "secret-pw"}, nil)
	var login struct {
		Token string `json:"token"`
	}
	s.ok(http.MethodPost, "/api/v1/auth/local/login", gin.H{"username": username, "password": "secret-pw"}, &login)
	require.NotEmpty(s.t, login.Token)
	s.token = login.Token
}

type idOnly struct {
	ID string `json:"id"`
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	var status struct {
		LocalAuthEnabled  bool `json:"local_auth_enabled"`
		GitLabAuthEnabled bool `json:"gitlab_auth_enabled"`
	}
	s.ok(http.MethodGet, "/api/v1/auth/status", nil, &status)
	assert.True(t, status.LocalAuthEnabled)
	assert.False(t, status.GitLabAuthEnabled)

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/gitlab/login", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	code, _ := s.do(http.MethodGet, "/api/v1/vehicles", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	s.login("anna")
	code, resp := s.do(http.MethodPost, "/api/v1/auth/local/register", gin.H{"username": "anna", "password": "secret-pw"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, -1, resp.Code)

	s.token = ""
	code, _ = s.do(http.MethodPost, "/api/v1/auth/local/login", gin.H{"username": "anna", "password": "wrong-pw"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestLocalLoginRejectsGitLabAccount(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, database.CreateUser(s.db, &models.User{ID: "g1", Username: "carla", GitLabID: lo.ToPtr("77")}))

	code, resp := s.do(http.MethodPost, "/api/v1/auth/local/login", gin.H{"username": "carla", "password": ""})
	assert.Equal(t, http.StatusBadRequest, code, resp.Message)
	code, resp = s.do(http.MethodPost, "/api/v1/auth/local/login", gin.H{"username": "carla", "password": "anything"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "this account signs in with GitLab", resp.Message)
}

func TestProfileUsesTokenIdentity(t *testing.T) {
	s := newTestServer(t)
	s.login("anna")

	var profile struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	s.ok(http.MethodGet, "/api/v1/user/profile", nil, &profile)
	assert.Equal(t, "anna", profile.Username)

	require.NoError(t, s.db.Delete(&models.User{}, "id = ?", profile.ID).Error)
	code, _ := s.do(http.MethodGet, "/api/v1/user/profile", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCircuitTimingFlow(t *testing.T) {
	s := newTestServer(t)
	s.login("anna")

	var corvette, audi idOnly
	s.ok(http.MethodPost, "/api/v1/vehicles", gin.H{"manufacturer": "Scalextric", "model": "Corvette", "purchase_price": "49.90"}, &corvette)
	s.ok(http.MethodPost, "/api/v1/vehicles", gin.H{"manufacturer": "Slot.it", "model": "Audi R18"}, &audi)

	s.ok(http.MethodPost, "/api/v1/vehicles/"+corvette.ID+"/components", gin.H{"name": "Flat-6 motor", "cost": "24.10"}, nil)
	var vehicle struct {
		TotalCost string `json:"total_cost"`
	}
	s.ok(http.MethodGet, "/api/v1/vehicles/"+corvette.ID, nil, &vehicle)
	assert.Equal(t, "74", vehicle.TotalCost)

	code, _ := s.do(http.MethodPost, "/api/v1/vehicles/"+corvette.ID+"/timings", gin.H{"circuit": "home", "laps": 10, "best_lap_time": "7.5s"})
	assert.Equal(t, http.StatusBadRequest, code)

	s.ok(http.MethodPost, "/api/v1/vehicles/"+corvette.ID+"/timings", gin.H{"circuit": "home", "lane": 1, "laps": 10, "best_lap_time": "00:07.900"}, nil)

	var created struct {
		Ranking []ranking.Entry      `json:"ranking"`
		Update  ranking.UpdateResult `json:"update"`
	}
	s.ok(http.MethodPost, "/api/v1/vehicles/"+audi.ID+"/timings", gin.H{"circuit": "home", "lane": 1, "laps": 10, "best_lap_time": "00:07.600"}, &created)
	require.Len(t, created.Ranking, 2)
	assert.Equal(t, audi.ID, created.Ranking[0].VehicleID)
	assert.Equal(t, ranking.StatusDown, created.Ranking[1].PositionStatus)
	assert.Zero(t, created.Update.Failed)

	var board struct {
		Circuit string          `json:"circuit"`
		Entries []ranking.Entry `json:"entries"`
	}
	s.token = ""
	s.ok(http.MethodGet, "/api/v1/circuits/home/leaderboard", nil, &board)
	assert.Equal(t, "home", board.Circuit)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "Slot.it Audi R18", board.Entries[0].VehicleName)
	require.NotNil(t, board.Entries[1].GapToLeader)
	assert.InDelta(t, 0.3, *board.Entries[1].GapToLeader, 1e-9)
}

func TestVehicleOwnership(t *testing.T) {
	s := newTestServer(t)
	s.login("anna")
	var v idOnly
	s.ok(http.MethodPost, "/api/v1/vehicles", gin.H{"model": "Porsche 962"}, &v)

	s.login("ben")
	code, _ := s.do(http.MethodGet, "/api/v1/vehicles/"+v.ID, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodGet, "/api/v1/vehicles/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCompetitionStandingsFlow(t *testing.T) {
	s := newTestServer(t)
	s.login("anna")

	var comp idOnly
	s.ok(http.MethodPost, "/api/v1/competitions", gin.H{"name": "Club night", "circuit": "home", "rounds": 2}, &comp)
	base := "/api/v1/competitions/" + comp.ID

	var p1, p2 idOnly
	s.ok(http.MethodPost, base+"/participants", gin.H{"driver_name": "Anna"}, &p1)
	s.ok(http.MethodPost, base+"/participants", gin.H{"driver_name": "Ben"}, &p2)

	code, _ := s.do(http.MethodPut, base+"/rules", gin.H{"rule_type": "sprint", "points_structure": gin.H{"1": 10}})
	assert.Equal(t, http.StatusBadRequest, code)
	s.ok(http.MethodPut, base+"/rules", gin.H{"rule_type": "per_round", "points_structure": gin.H{"1": 10, "2": 5}}, nil)

	s.ok(http.MethodPost, base+"/timings", gin.H{"participant_id": p1.ID, "round_number": 1, "total_time": "01:30.000"}, nil)
	s.ok(http.MethodPost, base+"/timings", gin.H{"participant_id": p2.ID, "round_number": 1, "total_time": "01:35.000"}, nil)

	code, _ = s.do(http.MethodPost, base+"/timings", gin.H{"participant_id": p1.ID, "round_number": 1, "total_time": "01:29.000"})
	assert.Equal(t, http.StatusConflict, code)
	code, _ = s.do(http.MethodPost, base+"/timings", gin.H{"participant_id": p1.ID, "round_number": 3, "total_time": "01:29.000"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(http.MethodPost, base+"/timings", gin.H{"participant_id": p1.ID, "round_number": 2, "total_time": "1:29"})
	assert.Equal(t, http.StatusBadRequest, code)

	var standings struct {
		Points      map[string]int `json:"points_by_participant"`
		IsCompleted bool           `json:"is_completed"`
		Sorted      []struct {
			ParticipantID string `json:"participant_id"`
			Position      int    `json:"position"`
			Points        int    `json:"points"`
		} `json:"sorted_participants"`
	}
	s.token = ""
	s.ok(http.MethodGet, base+"/standings", nil, &standings)
	assert.False(t, standings.IsCompleted)
	require.Len(t, standings.Sorted, 2)
	assert.Equal(t, p1.ID, standings.Sorted[0].ParticipantID)
	assert.Equal(t, 1, standings.Sorted[0].Position)
	assert.Equal(t, 10, standings.Sorted[0].Points)
	assert.Equal(t, 5, standings.Points[p2.ID])

	code, _ = s.do(http.MethodGet, "/api/v1/competitions/missing/standings", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDeleteVehicleClosesEmptyCircuit(t *testing.T) {
	s := newTestServer(t)
	s.login("anna")

	var v idOnly
	s.ok(http.MethodPost, "/api/v1/vehicles", gin.H{"model": "Ford GT40"}, &v)
	s.ok(http.MethodPost, "/api/v1/vehicles/"+v.ID+"/timings", gin.H{"circuit": "attic", "laps": 5, "best_lap_time": "00:06.250"}, nil)

	ch, unsubscribe := s.broker.Subscribe(ranking.Topic("attic"))
	defer unsubscribe()

	// the cached recompute event is replayed first
	select {
	case msg := <-ch:
		var envelope pubsub.WsMessage
		require.NoError(t, json.Unmarshal(msg, &envelope))
		assert.Equal(t, ranking.StreamRanking, envelope.Stream)
	case <-time.After(time.Second):
		t.Fatal("no cached ranking event")
	}

	s.ok(http.MethodDelete, "/api/v1/vehicles/"+v.ID, nil, nil)

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("circuit stream still open after its last vehicle was deleted")
		}
	}
}
