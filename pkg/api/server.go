package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/homebus/conductor/pkg/groups"
	"github.com/homebus/conductor/pkg/log"
	"github.com/homebus/conductor/pkg/metrics"
	"github.com/homebus/conductor/pkg/orchestrator"
	"github.com/homebus/conductor/pkg/scheduler"
	"github.com/homebus/conductor/pkg/types"
)

// Server is the HTTP control surface over the orchestrator.
type Server struct {
	orch   *orchestrator.Orchestrator
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates the HTTP server bound to addr.
func NewServer(orch *orchestrator.Orchestrator, addr string) *Server {
	s := &Server{
		orch:   orch,
		logger: log.WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", metrics.HealthHandler())
	r.Get("/readyz", metrics.ReadyHandler())
	r.Get("/livez", metrics.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/services", func(r chi.Router) {
			r.Get("/", s.listServices)
			r.Post("/", s.registerServices)
			r.Get("/{name}", s.getService)
			r.Delete("/{name}", s.deregisterService)
			r.Post("/{name}/start", s.serviceAction(actionStart))
			r.Post("/{name}/stop", s.serviceAction(actionStop))
			r.Post("/{name}/restart", s.serviceAction(actionRestart))
			r.Post("/{name}/scale", s.serviceAction(actionScale))
			r.Post("/{name}/update", s.serviceAction(actionUpdate))
			r.Post("/{name}/maintenance", s.serviceAction(actionMaintenance))
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Get("/{id}", s.getTask)
			r.Delete("/{id}", s.cancelTask)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.listGroups)
			r.Post("/", s.defineGroup)
			r.Get("/{name}", s.getGroup)
			r.Delete("/{name}", s.deleteGroup)
			r.Post("/{name}/start", s.groupAction(true))
			r.Post("/{name}/stop", s.groupAction(false))
		})

		r.Get("/instances", s.listInstances)
		r.Get("/graph", s.dependencyGraph)
		r.Get("/graph/order", s.topologicalOrder)
	})

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Stop. Blocks.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down, draining in-flight requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// createdBy resolves the audit identity of a request. Anonymous callers
// are recorded as "api".
func createdBy(r *http.Request) string {
	if who := r.Header.Get("X-Conductor-User"); who != "" {
		return who
	}
	return "api"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scheduler.ErrUnknownService),
		errors.Is(err, scheduler.ErrTaskNotFound),
		errors.Is(err, groups.ErrGroupNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scheduler.ErrTaskNotCancellable),
		errors.Is(err, groups.ErrGroupExists):
		status = http.StatusConflict
	case errors.Is(err, groups.ErrEmptyGroup):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// Service handlers.

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.ListServices())
}

func (s *Server) getService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	status, ok := s.orch.GetServiceStatus(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown service: " + name})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) registerServices(w http.ResponseWriter, r *http.Request) {
	var defs []*types.ServiceDefinition
	if err := json.NewDecoder(r.Body).Decode(&defs); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
		return
	}
	if err := s.orch.Register(defs...); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"registered": len(defs)})
}

func (s *Server) deregisterService(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Deregister(chi.URLParam(r, "name")); err != nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type serviceAction int

const (
	actionStart serviceAction = iota
	actionStop
	actionRestart
	actionScale
	actionUpdate
	actionMaintenance
)

type actionRequest struct {
	InstanceID string            `json:"instance_id,omitempty"`
	Replicas   string            `json:"replicas,omitempty"`
	Enabled    *bool             `json:"enabled,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

func (s *Server) serviceAction(action serviceAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		who := createdBy(r)

		var req actionRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
				return
			}
		}

		var task *types.Task
		var err error
		switch action {
		case actionStart:
			task, err = s.orch.StartService(name, who)
		case actionStop:
			task, err = s.orch.StopService(name, who)
		case actionRestart:
			task, err = s.orch.RestartService(name, req.InstanceID, who)
		case actionScale:
			if req.Replicas == "" {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "replicas is required"})
				return
			}
			task, err = s.orch.ScaleService(name, req.Replicas, who)
		case actionUpdate:
			task, err = s.orch.UpdateService(name, req.Parameters, who)
		case actionMaintenance:
			if req.Enabled == nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "enabled is required"})
				return
			}
			task, err = s.orch.SetMaintenance(name, *req.Enabled, who)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, task)
	}
}

// Task handlers.

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.ListTasks())
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.orch.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.CancelTask(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Group handlers.

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.ListGroups())
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.orch.GetGroup(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) defineGroup(w http.ResponseWriter, r *http.Request) {
	var group types.ServiceGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
		return
	}
	if err := s.orch.DefineGroup(&group); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.DeleteGroup(chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) groupAction(start bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		who := createdBy(r)

		var ids []string
		var err error
		if start {
			ids, err = s.orch.StartGroup(name, who)
		} else {
			ids, err = s.orch.StopGroup(name, who)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string][]string{"task_ids": ids})
	}
}

// Introspection handlers.

func (s *Server) listInstances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Instances())
}

func (s *Server) dependencyGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.DependencyGraph())
}

func (s *Server) topologicalOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orch.TopologicalOrder()
	if err != nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"order": order})
}
