package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/taskgrid/internal/models"
	"github.com/fentz26/taskgrid/internal/phase"
	"github.com/fentz26/taskgrid/internal/scheduler"
)

// Version is reported by the health endpoint. Set at build time.
var Version = "dev"

// Pinger checks the backing database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides the HTTP API for taskgrid.
type Server struct {
	service *Service
	db      Pinger
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, db Pinger, addr string) *Server {
	return &Server{
		service: service,
		db:      db,
		addr:    addr,
	}
}

// Handler builds the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Agent endpoints
	mux.HandleFunc("/agents", s.handleAgents)
	mux.HandleFunc("/agents/", s.handleAgentByID)

	// Task endpoints
	mux.HandleFunc("/tasks", s.handleTasks)
	mux.HandleFunc("/tasks/", s.handleTaskByID)

	// Board endpoints
	mux.HandleFunc("/health/board", s.handleBoardHealth)
	mux.HandleFunc("/blockers", s.handleBlockers)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/comments", s.handleComments)
	mux.HandleFunc("/pdr", s.handlePDR)

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("Starting taskgrid daemon on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		resp.OK = false
		resp.DB = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}

// handleAgents handles POST /agents and GET /agents
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.registerAgent(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.service.ListAgents())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAgentByID handles /agents/{id}/*
func (s *Server) handleAgentByID(w http.ResponseWriter, r *http.Request) {
	agentID, action := splitPath(r.URL.Path, "/agents/")
	if agentID == "" {
		http.Error(w, "agent id required", http.StatusBadRequest)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		agent, err := s.service.GetAgent(agentID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agent)
	case action == "next" && r.Method == http.MethodPost:
		s.requestNextTask(w, agentID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// handleTasks handles POST /tasks and GET /tasks
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.submitTasks(w, r)
	case http.MethodGet:
		s.listTasks(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTaskByID handles /tasks/{id}/*
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	taskID, action := splitPath(r.URL.Path, "/tasks/")
	if taskID == "" {
		http.Error(w, "task id required", http.StatusBadRequest)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getTask(w, taskID)
	case action == "dependencies" && r.Method == http.MethodGet:
		s.getTaskDependencies(w, taskID)
	case action == "comments" && r.Method == http.MethodGet:
		s.getTaskComments(w, taskID)
	case action == "progress" && r.Method == http.MethodPost:
		s.reportProgress(w, r, taskID)
	case action == "blocker" && r.Method == http.MethodPost:
		s.reportBlocker(w, r, taskID)
	case action == "unblock" && r.Method == http.MethodPost:
		s.unblockTask(w, r, taskID)
	case action == "release" && r.Method == http.MethodPost:
		s.releaseTask(w, r, taskID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// --- Agent Handlers ---

// RegisterAgentRequest is the body of POST /agents.
type RegisterAgentRequest struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Skills []string `json:"skills"`
}

func (s *Server) registerAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if !decode(w, r, &req) {
		return
	}

	agent, err := s.service.RegisterAgent(req.ID, req.Name, req.Skills)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) requestNextTask(w http.ResponseWriter, agentID string) {
	task, err := s.service.RequestNextTask(agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if task == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// --- Task Handlers ---

// SubmitRequest is the body of POST /tasks.
type SubmitRequest struct {
	Tasks []models.TaskDraft `json:"tasks"`
	Edges []models.Edge      `json:"edges,omitempty"`
}

func (s *Server) submitTasks(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Tasks) == 0 && len(req.Edges) == 0 {
		writeError(w, ErrInvalidRequest)
		return
	}

	res, err := s.service.SubmitTasks(req.Tasks, req.Edges)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := scheduler.TaskFilter{
		Status:  models.TaskStatus(q.Get("status")),
		Feature: q.Get("feature"),
		AgentID: q.Get("agent"),
	}
	if typ := q.Get("type"); typ != "" {
		parsed, ok := models.ParseTaskType(typ)
		if !ok {
			known := make([]string, len(models.TaskTypes))
			for i, tt := range models.TaskTypes {
				known[i] = string(tt)
			}
			http.Error(w, "unknown task type (want one of "+strings.Join(known, ", ")+")", http.StatusBadRequest)
			return
		}
		f.Type = parsed
	}
	if f.Status != "" && !f.Status.Valid() {
		http.Error(w, "unknown task status", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, s.service.ListTasks(f))
}

func (s *Server) getTask(w http.ResponseWriter, taskID string) {
	task, err := s.service.GetTask(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) getTaskDependencies(w http.ResponseWriter, taskID string) {
	deps, err := s.service.TaskDependencies(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

func (s *Server) getTaskComments(w http.ResponseWriter, taskID string) {
	comments, err := s.service.Comments(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// ProgressRequest is the body of POST /tasks/{id}/progress.
type ProgressRequest struct {
	AgentID string                `json:"agent_id"`
	Percent float64               `json:"percent"`
	Status  models.ProgressStatus `json:"status"`
	Message string                `json:"message,omitempty"`
}

func (s *Server) reportProgress(w http.ResponseWriter, r *http.Request, taskID string) {
	var req ProgressRequest
	if !decode(w, r, &req) {
		return
	}

	task, err := s.service.ReportProgress(req.AgentID, taskID, req.Percent, req.Status, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// BlockerRequest is the body of POST /tasks/{id}/blocker.
type BlockerRequest struct {
	AgentID     string `json:"agent_id"`
	Description string `json:"description"`
}

func (s *Server) reportBlocker(w http.ResponseWriter, r *http.Request, taskID string) {
	var req BlockerRequest
	if !decode(w, r, &req) {
		return
	}

	task, err := s.service.ReportBlocker(req.AgentID, taskID, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// UnblockRequest is the body of POST /tasks/{id}/unblock.
type UnblockRequest struct {
	Note string `json:"note,omitempty"`
}

func (s *Server) unblockTask(w http.ResponseWriter, r *http.Request, taskID string) {
	var req UnblockRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	task, err := s.service.UnblockTask(taskID, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ReleaseRequest is the body of POST /tasks/{id}/release.
type ReleaseRequest struct {
	AgentID string `json:"agent_id"`
}

func (s *Server) releaseTask(w http.ResponseWriter, r *http.Request, taskID string) {
	var req ReleaseRequest
	if !decode(w, r, &req) {
		return
	}

	task, err := s.service.ReleaseTask(req.AgentID, taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// --- Board Handlers ---

func (s *Server) handleBoardHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.service.BoardHealth())
}

func (s *Server) handleBlockers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	blockers, err := s.service.Blockers()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blockers)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.service.Stats())
}

// handleComments handles GET /comments?q=...
func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	comments, err := s.service.SearchComments(r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// handlePDR handles GET /pdr?task=...&limit=...
func (s *Server) handlePDR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.service.AuditLog(q.Get("task"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error    string                 `json:"error"`
	Problems phase.ValidationErrors `json:"problems,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var verrs phase.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Problems = verrs
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// splitPath returns the id and optional action from prefix/{id}/{action}.
func splitPath(path, prefix string) (id, action string) {
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) > 0 {
		id = parts[0]
	}
	if len(parts) > 1 {
		action = parts[1]
	}
	return id, action
}
