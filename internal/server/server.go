package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/benchmarks"
	"github.com/copyleftdev/boxopt/internal/config"
	apperrors "github.com/copyleftdev/boxopt/internal/errors"
	"github.com/copyleftdev/boxopt/internal/logging"
	"github.com/copyleftdev/boxopt/internal/metrics"
	"github.com/copyleftdev/boxopt/internal/optimization"
	"github.com/copyleftdev/boxopt/internal/optimization/surrogate"
)

// Logger defines the logging interface used by the server.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// Server implements the HTTP and JSON-RPC API. It launches optimization
// tasks on the built-in benchmarks and reports their History.
type Server struct {
	cfg        *config.Config
	logger     Logger
	metrics    *metrics.Collector
	indexSizes surrogate.ResourceSizes

	baseCtx context.Context
	stop    context.CancelFunc
	wg      conc.WaitGroup
	slots   chan struct{}

	tasks   map[string]*Task
	tasksMu sync.RWMutex
}

// NewServer creates a server. collector may be nil. The configured index
// size table, if any, is loaded once here.
func NewServer(cfg *config.Config, logger Logger, collector *metrics.Collector) (*Server, error) {
	sizes, err := cfg.IndexSizes()
	if err != nil {
		return nil, err
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    collector,
		indexSizes: sizes,
		baseCtx:    ctx,
		stop:       stop,
		slots:      make(chan struct{}, cfg.Optimization.WorkerCount),
		tasks:      make(map[string]*Task),
	}, nil
}

func (s *Server) zapLogger(taskID string) *zap.Logger {
	return logging.NewZapLogger(s.logger.WithFields(map[string]interface{}{"optimization_id": taskID}))
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/benchmarks", s.handleBenchmarks)
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Post("/optimization/{id}/extend", s.handleExtend)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Delete("/task/{id}", s.handleRemove)
	})

	r.Post("/rpc", s.handleJSONRPC)
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var (
		result interface{}
		err    error
	)
	switch request.Method {
	case "optimization.start":
		var p StartParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.start(p)
		}
	case "optimization.status":
		var p TaskParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.status(p.ID)
		}
	case "optimization.cancel":
		var p TaskParams
		if err = decodeParams(request.Params, &p); err == nil {
			err = s.cancel(p.ID)
			result = map[string]string{"status": "cancellation requested"}
		}
	case "optimization.extend":
		var p ExtendParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.extend(p)
		}
	case "optimization.remove":
		var p TaskParams
		if err = decodeParams(request.Params, &p); err == nil {
			err = s.remove(p.ID)
			result = map[string]string{"status": "removed"}
		}
	case "optimization.benchmarks":
		result = s.benchmarks()
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := codeServerError
		if apperrors.HTTPStatus(err) == http.StatusBadRequest {
			code = codeInvalidParams
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// respondWithError sends a JSON-RPC 2.0 error response.
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("rpc error", map[string]interface{}{
		"code":    code,
		"message": message,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperrors.HTTPStatus(err), map[string]interface{}{"error": err.Error()})
}

// StartResult is returned when a task is accepted.
type StartResult struct {
	ID     string `json:"optimization_id"`
	Status string `json:"status"`
}

func (s *Server) start(p StartParams) (StartResult, error) {
	id := uuid.NewString()
	t, err := s.newTask(id, p)
	if err != nil {
		return StartResult{}, apperrors.Wrap(err, "start optimization").WithOperation("optimization.start")
	}

	s.tasksMu.Lock()
	s.tasks[id] = t
	s.tasksMu.Unlock()

	s.logger.Info("optimization started", map[string]interface{}{
		"optimization_id": id,
		"benchmark":       t.Benchmark.Name,
		"space":           describeSpace(t.optimizer.History().Space()),
		"max_iterations":  t.optimizer.MaxIterations(),
	})
	s.launch(t)
	return StartResult{ID: id, Status: StatusPending}, nil
}

func (s *Server) task(id string) (*Task, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	s.tasksMu.RLock()
	defer s.tasksMu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "optimization %q", id)
	}
	return t, nil
}

func (s *Server) status(id string) (StatusResult, error) {
	t, err := s.task(id)
	if err != nil {
		return StatusResult{}, err
	}
	return t.snapshot(), nil
}

func (s *Server) cancel(id string) error {
	t, err := s.task(id)
	if err != nil {
		return err
	}
	if t.finished() {
		return apperrors.Errorf("cannot cancel optimization with status: %s", t.Status()).WithStatus(http.StatusConflict)
	}

	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	t.optimizer.Stop()
	if cancel != nil {
		cancel()
	}

	s.logger.Info("optimization cancelled", map[string]interface{}{"optimization_id": id})
	return nil
}

// extend raises a finished task's iteration target, optionally switches its
// context, and runs it again. Only the new trials are evaluated.
func (s *Server) extend(p ExtendParams) (StartResult, error) {
	t, err := s.task(p.ID)
	if err != nil {
		return StartResult{}, err
	}
	if !t.finished() {
		return StartResult{}, apperrors.Errorf("cannot extend optimization with status: %s", t.Status()).
			WithStatus(http.StatusConflict)
	}
	if p.MaxIterations <= t.optimizer.History().Len() {
		return StartResult{}, optimization.InvalidConfigurationf(
			"max_iterations %d must exceed the %d completed trials", p.MaxIterations, t.optimizer.History().Len())
	}
	if len(p.Context) > 0 {
		if err := t.optimizer.ResetContext(mat.NewDense(1, len(p.Context), p.Context)); err != nil {
			return StartResult{}, err
		}
	}
	if !t.reopen() {
		return StartResult{}, apperrors.Errorf("optimization %s is already being extended", t.ID).
			WithStatus(http.StatusConflict)
	}
	t.optimizer.SetMaxIterations(p.MaxIterations)

	s.logger.Info("optimization extended", map[string]interface{}{
		"optimization_id": t.ID,
		"max_iterations":  p.MaxIterations,
	})
	s.launch(t)
	return StartResult{ID: t.ID, Status: StatusPending}, nil
}

// remove forgets a finished task and its metric series.
func (s *Server) remove(id string) error {
	t, err := s.task(id)
	if err != nil {
		return err
	}
	if !t.finished() {
		return apperrors.Errorf("cannot remove optimization with status: %s", t.Status()).WithStatus(http.StatusConflict)
	}
	s.tasksMu.Lock()
	delete(s.tasks, id)
	s.tasksMu.Unlock()
	s.metrics.Forget(id)
	return nil
}

// BenchmarkInfo describes a built-in objective.
type BenchmarkInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Optimum     float64  `json:"optimum"`
	Space       []string `json:"space"`
}

func (s *Server) benchmarks() []BenchmarkInfo {
	var out []BenchmarkInfo
	for _, name := range benchmarks.Names() {
		b, _ := benchmarks.Get(name)
		info := BenchmarkInfo{Name: b.Name, Description: b.Description, Optimum: b.Optimum}
		if sp, err := b.Space(); err == nil {
			info.Space = sp.Names()
		}
		out = append(out, info)
	}
	return out
}

// Close cancels every task and waits for their runs to return.
func (s *Server) Close() error {
	s.stop()
	s.tasksMu.RLock()
	for _, t := range s.tasks {
		t.optimizer.Stop()
	}
	s.tasksMu.RUnlock()
	s.wg.Wait()
	return nil
}

// Wait blocks until every launched run has returned or timeout elapses.
func (s *Server) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Server) handleBenchmarks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.benchmarks())
}

// handleOptimize handles POST /api/v1/optimize.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var p StartParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, apperrors.Wrap(err, "invalid request body").WithStatus(http.StatusBadRequest))
		return
	}
	result, err := s.start(p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.status(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleExtend handles POST /api/v1/optimization/{id}/extend.
func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	var p ExtendParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, apperrors.Wrap(err, "invalid request body").WithStatus(http.StatusBadRequest))
		return
	}
	p.ID = chi.URLParam(r, "id")
	result, err := s.extend(p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// handleCancel handles DELETE /api/v1/optimization/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.cancel(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}

// handleRemove handles DELETE /api/v1/task/{id}.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.remove(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
