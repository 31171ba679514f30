// Package server exposes the REST and WebSocket surface: submitting
// backtests and optimization sweeps, reading persisted runs, and streaming
// progress events.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/quantframe/quantframe/internal/backtest/engine"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/optimizer"
	"github.com/quantframe/quantframe/internal/scheduler"
	"github.com/quantframe/quantframe/internal/store"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/stream"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"go.uber.org/zap"
)

type Server struct {
	scheduler *scheduler.Scheduler
	store     *store.RunStore
	hub       *stream.Hub
	registry  *strategy.Registry
	log       *logger.Logger
	router    *mux.Router
}

func NewServer(sched *scheduler.Scheduler, runStore *store.RunStore, hub *stream.Hub, registry *strategy.Registry, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}

	s := &Server{
		scheduler: sched,
		store:     runStore,
		hub:       hub,
		registry:  registry,
		log:       log,
		router:    mux.NewRouter(),
	}

	s.routes()

	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/backtests", s.handleSubmitBacktest).Methods(http.MethodPost)
	api.HandleFunc("/optimizations", s.handleSubmitOptimization).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/strategies", s.handleListStrategies).Methods(http.MethodGet)
	api.HandleFunc("/schema", s.handleConfigSchema).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.hub.HandleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// BacktestRequest is the POST /api/v1/backtests body.
type BacktestRequest struct {
	Strategy string           `json:"strategy"`
	Config   engine.RunConfig `json:"config"`
}

// OptimizationRequest is the POST /api/v1/optimizations body.
type OptimizationRequest struct {
	Strategy string                     `json:"strategy"`
	Config   engine.RunConfig           `json:"config"`
	Ranges   []optimizer.ParameterRange `json:"ranges"`
}

func (s *Server) handleSubmitBacktest(w http.ResponseWriter, r *http.Request) {
	var request BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return
	}

	if err := request.Config.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return
	}

	runID, err := s.scheduler.SubmitBacktest(r.Context(), request.Config, request.Strategy)
	if err != nil {
		s.writeError(w, statusFor(err), err)

		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": string(types.RunStatusPending),
	})
}

func (s *Server) handleSubmitOptimization(w http.ResponseWriter, r *http.Request) {
	var request OptimizationRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return
	}

	if err := request.Config.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return
	}

	optimizationID, err := s.scheduler.SubmitOptimization(r.Context(), request.Config, request.Strategy, request.Ranges)
	if err != nil {
		s.writeError(w, statusFor(err), err)

		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"optimization_id": optimizationID,
		"status":          string(types.RunStatusPending),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	var (
		records []store.RunRecord
		err     error
	)

	if optimizationID := r.URL.Query().Get("optimization_id"); optimizationID != "" {
		records, err = s.store.ListRunsByOptimization(optimizationID)
	} else {
		records, err = s.store.ListRuns()
	}

	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	if records == nil {
		records = []store.RunRecord{}
	}

	s.writeJSON(w, http.StatusOK, records)
}

// RunResponse is the GET /api/v1/runs/{id} body: the record plus its ledger
// and curve. For a run still in flight only the status is set.
type RunResponse struct {
	Record      *store.RunRecord    `json:"record,omitempty"`
	Status      types.RunStatus     `json:"status"`
	Trades      []types.Trade       `json:"trades,omitempty"`
	EquityCurve []types.EquityPoint `json:"equity_curve,omitempty"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	loaded, err := s.store.GetRun(runID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	record, takeErr := loaded.Take()
	if takeErr != nil {
		// not persisted yet; the scheduler may still know it
		if status, statusErr := s.scheduler.Status(runID).Take(); statusErr == nil {
			s.writeJSON(w, http.StatusOK, RunResponse{Status: status})

			return
		}

		s.writeError(w, http.StatusNotFound, errors.Newf(errors.ErrCodeUnknown, "run %s not found", runID))

		return
	}

	trades, err := s.store.GetTrades(runID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	equity, err := s.store.GetEquityCurve(runID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	s.writeJSON(w, http.StatusOK, RunResponse{
		Record:      &record,
		Status:      record.Status,
		Trades:      trades,
		EquityCurve: equity,
	})
}

// StrategyInfo describes one registered strategy and its tunables.
type StrategyInfo struct {
	Name       string               `json:"name"`
	Parameters []strategy.Parameter `json:"parameters"`
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	names := s.registry.List()
	infos := make([]StrategyInfo, 0, len(names))

	for _, name := range names {
		strat, err := s.registry.Load(name, "_", nil)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)

			return
		}

		parameters := strat.Parameters()
		if parameters == nil {
			parameters = []strategy.Parameter{}
		}

		infos = append(infos, StrategyInfo{Name: name, Parameters: parameters})
	}

	s.writeJSON(w, http.StatusOK, infos)
}

// handleConfigSchema serves the JSON schema describing the run configuration,
// for clients that build submission forms from it.
func (s *Server) handleConfigSchema(w http.ResponseWriter, r *http.Request) {
	var config engine.RunConfig

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(schema)); err != nil {
		s.log.Error("Failed to write schema response", zap.Error(err))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.HasCode(err, errors.ErrCodeRunAlreadyActive):
		return http.StatusConflict
	case errors.HasCode(err, errors.ErrCodeInvalidRange),
		errors.HasCode(err, errors.ErrCodeInvalidConfiguration),
		errors.HasCode(err, errors.ErrCodeUnknownParameter),
		errors.HasCode(err, errors.ErrCodeStrategyNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
