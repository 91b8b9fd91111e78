package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homebus/conductor/pkg/config"
	"github.com/homebus/conductor/pkg/orchestrator"
	"github.com/homebus/conductor/pkg/transport"
	"github.com/homebus/conductor/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *transport.Inmem) {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = ""
	cfg.Scheduler.TaskTimeout = 2 * time.Second
	cfg.Scheduler.PollInterval = 5 * time.Millisecond
	cfg.Scheduler.SettleDelay = 0

	tp := transport.NewInmem()
	orch, err := orchestrator.New(cfg, tp)
	require.NoError(t, err)
	orch.Start()
	t.Cleanup(func() { require.NoError(t, orch.Shutdown()) })

	return NewServer(orch, "127.0.0.1:0"), tp
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndListServices(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/services", []*types.ServiceDefinition{
		{Name: "db"},
		{Name: "api", DependsOn: []string{"db"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/api/v1/services", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var services []orchestrator.ServiceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &services))
	assert.Len(t, services, 2)
}

func TestRegisterRejectsCycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/services", []*types.ServiceDefinition{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "cycle")
}

func TestStartServiceReturnsAcceptedTask(t *testing.T) {
	s, tp := newTestServer(t)
	tp.OnControl("tts", func(msg *types.ControlMessage) {
		go tp.InjectStatus(&types.StatusMessage{
			ServiceName: "tts", InstanceID: "tts-1", State: types.InstanceStateRunning,
		})
	})
	require.Equal(t, http.StatusCreated,
		doJSON(t, s, http.MethodPost, "/api/v1/services", []*types.ServiceDefinition{{Name: "tts"}}).Code)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/services/tts/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var task types.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, types.ActionStart, task.Action)
	assert.Equal(t, "api", task.CreatedBy)

	require.Eventually(t, func() bool {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/tasks/"+task.ID, nil)
		var got types.Task
		return rec.Code == http.StatusOK &&
			json.Unmarshal(rec.Body.Bytes(), &got) == nil &&
			got.Status == types.TaskCompleted
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStartUnknownServiceIs404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/v1/services/ghost/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScaleRequiresReplicas(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated,
		doJSON(t, s, http.MethodPost, "/api/v1/services", []*types.ServiceDefinition{{Name: "tts"}}).Code)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/services/tts/scale", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/services/tts/scale", map[string]string{"replicas": "3"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestGroupLifecycle(t *testing.T) {
	s, tp := newTestServer(t)
	for _, svc := range []string{"db", "api"} {
		svc := svc
		tp.OnControl(svc, func(msg *types.ControlMessage) {
			go tp.InjectStatus(&types.StatusMessage{
				ServiceName: svc, InstanceID: svc + "-1", State: types.InstanceStateRunning,
			})
		})
	}
	require.Equal(t, http.StatusCreated,
		doJSON(t, s, http.MethodPost, "/api/v1/services", []*types.ServiceDefinition{
			{Name: "db"}, {Name: "api", DependsOn: []string{"db"}},
		}).Code)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/groups", types.ServiceGroup{
		Name: "stack", Members: []string{"db", "api"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/api/v1/groups/stack/start", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp["task_ids"], 2)

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/groups/stack", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/groups/ghost/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelConflictOnFinishedTask(t *testing.T) {
	s, tp := newTestServer(t)
	tp.OnControl("tts", func(msg *types.ControlMessage) {
		go tp.InjectStatus(&types.StatusMessage{
			ServiceName: "tts", InstanceID: "tts-1", State: types.InstanceStateRunning,
		})
	})
	require.Equal(t, http.StatusCreated,
		doJSON(t, s, http.MethodPost, "/api/v1/services", []*types.ServiceDefinition{{Name: "tts"}}).Code)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/services/tts/start", nil)
	var task types.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))

	require.Eventually(t, func() bool {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/tasks/"+task.ID, nil)
		var got types.Task
		return json.Unmarshal(rec.Body.Bytes(), &got) == nil && got.Status == types.TaskCompleted
	}, 3*time.Second, 10*time.Millisecond)

	rec = doJSON(t, s, http.MethodDelete, "/api/v1/tasks/"+task.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGraphEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated,
		doJSON(t, s, http.MethodPost, "/api/v1/services", []*types.ServiceDefinition{
			{Name: "db"}, {Name: "api", DependsOn: []string{"db"}},
		}).Code)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/graph/order", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"db", "api"}, resp["order"])
}

func TestCreatedByHeader(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusCreated,
		doJSON(t, s, http.MethodPost, "/api/v1/services", []*types.ServiceDefinition{{Name: "tts"}}).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/services/tts/stop", nil)
	req.Header.Set("X-Conductor-User", "alice")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var task types.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, "alice", task.CreatedBy)
}
