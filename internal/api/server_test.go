package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/gridrules/internal/domain"
	"github.com/xela07ax/gridrules/internal/engine"
	"github.com/xela07ax/gridrules/internal/rules"
	"github.com/xela07ax/gridrules/internal/state"
	"go.uber.org/zap"
)

type memStates struct {
	states map[string]domain.State
	putErr error
}

func (m *memStates) Get(_ context.Context, envID string) (domain.State, error) {
	st, ok := m.states[envID]
	if !ok {
		return domain.State{}, fmt.Errorf("%w: %s", state.ErrNotFound, envID)
	}
	return st, nil
}

func (m *memStates) Put(_ context.Context, st domain.State) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.states[st.EnvID] = st
	return nil
}

type memVerdicts struct{ out []domain.Verdict }

func (m *memVerdicts) ListByEnv(_ context.Context, envID string, limit int) ([]domain.Verdict, error) {
	var res []domain.Verdict
	for _, v := range m.out {
		if v.EnvID == envID && len(res) < limit {
			res = append(res, v)
		}
	}
	return res, nil
}

type brokenRule struct{}

func (brokenRule) IsLegal(domain.Action, domain.State) (bool, error) {
	return false, errors.New("broken")
}

func newTestServer(t *testing.T, f rules.Factory, verdicts VerdictReader) (*Server, *memStates) {
	t.Helper()
	states := &memStates{states: map[string]domain.State{
		"case14": {
			EnvID:        "case14",
			Step:         7,
			LineStatus:   []bool{true, true},
			LineCooldown: []int{0, 2},
			SubCooldown:  []int{0},
			Parameters:   domain.DefaultParameters(),
		},
	}}
	gate, err := rules.New(f)
	require.NoError(t, err)

	arb := engine.NewArbiter(gate, states, nil, nil, nil, zap.NewNop())
	return NewServer(Deps{
		Arbiter:  arb,
		States:   states,
		Verdicts: verdicts,
		RuleSets: rules.DefaultRegistry().Names(),
	}, zap.NewNop()), states
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_CheckEnv(t *testing.T) {
	s, _ := newTestServer(t, rules.NewDefaultRules, nil)

	tests := []struct {
		name      string
		path      string
		body      any
		wantCode  int
		wantLegal bool
	}{
		{name: "legal", path: "/v1/environments/case14/legality", body: domain.Action{ChangeLineStatus: []int{0}}, wantCode: http.StatusOK, wantLegal: true},
		{name: "cooldown", path: "/v1/environments/case14/legality", body: domain.Action{ChangeLineStatus: []int{1}}, wantCode: http.StatusOK},
		{name: "unknown env", path: "/v1/environments/nope/legality", body: domain.Action{}, wantCode: http.StatusNotFound},
		{name: "bad index", path: "/v1/environments/case14/legality", body: domain.Action{ChangeLineStatus: []int{9}}, wantCode: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(engine.HeaderTraceID))

			if tt.wantCode == http.StatusOK {
				var v domain.Verdict
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
				assert.Equal(t, tt.wantLegal, v.Legal)
				assert.Equal(t, int64(7), v.Step)
			}
		})
	}
}

func TestServer_CheckEnvBadBody(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/environments/case14/legality", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_StrategyError(t *testing.T) {
	s, _ := newTestServer(t, func() rules.LegalAction { return brokenRule{} }, nil)

	rec := do(t, s, http.MethodPost, "/v1/environments/case14/legality", domain.Action{})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var v domain.Verdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "broken", v.Error)
	assert.False(t, v.Legal)
}

func TestServer_CheckInline(t *testing.T) {
	s, _ := newTestServer(t, rules.NewLookParam, nil)

	st := domain.State{EnvID: "adhoc", Parameters: domain.Parameters{MaxLineStatusChanged: 2, MaxSubChanged: 0}}
	rec := do(t, s, http.MethodPost, "/v1/legality", engine.CheckRequest{State: &st, Action: domain.Action{ChangeLineStatus: []int{0, 1}}})
	require.Equal(t, http.StatusOK, rec.Code)
	var v domain.Verdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.Legal)
	assert.Equal(t, "adhoc", v.EnvID)

	rec = do(t, s, http.MethodPost, "/v1/legality", engine.CheckRequest{EnvID: "case14", Action: domain.Action{ChangeBus: []int{0}}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/v1/legality", engine.CheckRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_PutState(t *testing.T) {
	s, states := newTestServer(t, nil, nil)

	rec := do(t, s, http.MethodPut, "/v1/environments/case5/state", domain.State{Step: 3})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(3), states.states["case5"].Step)
	assert.Equal(t, "case5", states.states["case5"].EnvID)

	rec = do(t, s, http.MethodPut, "/v1/environments/case5/state", domain.State{EnvID: "other"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	states.putErr = errors.New("redis down")
	rec = do(t, s, http.MethodPut, "/v1/environments/case5/state", domain.State{})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Rules(t *testing.T) {
	s, _ := newTestServer(t, rules.NewPreventReconnection, nil)

	rec := do(t, s, http.MethodGet, "/v1/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Active    string   `json:"active"`
		Available []string `json:"available"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, rules.NamePreventReconnection, body.Active)
	assert.Contains(t, body.Available, rules.NameDefaultRules)
}

func TestServer_Verdicts(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	rec := do(t, s, http.MethodGet, "/v1/environments/case14/verdicts", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	s, _ = newTestServer(t, nil, &memVerdicts{out: []domain.Verdict{
		{ID: "a", EnvID: "case14"}, {ID: "b", EnvID: "case14"}, {ID: "c", EnvID: "other"},
	}})

	rec = do(t, s, http.MethodGet, "/v1/environments/case14/verdicts?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out []domain.Verdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out, 1)

	rec = do(t, s, http.MethodGet, "/v1/environments/case14/verdicts?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", nil).Code)
}
