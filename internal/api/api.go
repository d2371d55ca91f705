package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/joescharf/jpa/internal/allocator"
	"github.com/joescharf/jpa/internal/health"
	"github.com/joescharf/jpa/internal/llm"
	"github.com/joescharf/jpa/internal/models"
	"github.com/joescharf/jpa/internal/store"
	"github.com/joescharf/jpa/internal/triage"
)

// syncTimer is implemented by stores that know when a project was cached.
type syncTimer interface {
	LastSync(ctx context.Context, projectKey string) (time.Time, bool, error)
}

// Config holds the optional collaborators of a Server.
type Config struct {
	Classifier triage.Classifier
	LLM        *llm.Client  // nil when no API key is configured
	Metrics    http.Handler // served at /metrics when set
	Logger     *slog.Logger
	SyncTimes  syncTimer // reports cache freshness for the health score
	Now        func() time.Time
}

// Server provides the REST API handlers.
type Server struct {
	store     store.IssueStore
	allocator *allocator.Allocator
	classify  triage.Classifier
	scorer    *health.Scorer
	llm       *llm.Client
	metrics   http.Handler
	logger    *slog.Logger
	syncTimes syncTimer
	now       func() time.Time
}

// NewServer creates a new API server.
func NewServer(s store.IssueStore, a *allocator.Allocator, cfg Config) *Server {
	srv := &Server{
		store:     s,
		allocator: a,
		classify:  cfg.Classifier,
		llm:       cfg.LLM,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		syncTimes: cfg.SyncTimes,
		now:       cfg.Now,
	}
	if srv.classify.Window <= 0 {
		srv.classify = triage.Default
	}
	if srv.logger == nil {
		srv.logger = slog.New(slog.DiscardHandler)
	}
	if srv.now == nil {
		srv.now = time.Now
	}
	srv.scorer = health.NewScorer(srv.classify)
	return srv
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/projects", s.listProjects)
	mux.HandleFunc("GET /api/v1/projects/{key}/issues", s.listProjectIssues)
	mux.HandleFunc("GET /api/v1/projects/{key}/users", s.teamWorkload)
	mux.HandleFunc("GET /api/v1/projects/{key}/stats", s.projectStats)
	mux.HandleFunc("POST /api/v1/projects/{key}/auto-assign", s.autoAssign)
	mux.HandleFunc("POST /api/v1/projects/{key}/triage", s.triageSummary)

	mux.HandleFunc("PUT /api/v1/issues/{key}/assignee", s.setAssignee)
	mux.HandleFunc("PUT /api/v1/issues/{key}/priority", s.setPriority)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return corsMiddleware(s.logMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store errors: not found is 404, anything else is
// reported with fallback.
func writeStoreError(w http.ResponseWriter, err error, fallback int) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, fallback, err.Error())
}

// --- Views ---

type userView struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Active      bool   `json:"active"`
}

type issueView struct {
	ID       string           `json:"id"`
	Key      string           `json:"key"`
	Summary  string           `json:"summary"`
	Status   string           `json:"status"`
	Assignee *userView        `json:"assignee"`
	Priority priorityView     `json:"priority"`
	DueDate  string           `json:"dueDate,omitempty"`
	Created  time.Time        `json:"created"`
	Updated  time.Time        `json:"updated"`
	Problems []triage.Problem `json:"problems,omitempty"`
	MultiFix bool             `json:"multiFix,omitempty"`
}

type priorityView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newUserView(u *models.User) *userView {
	if u == nil {
		return nil
	}
	return &userView{AccountID: u.AccountID, DisplayName: u.DisplayName, Email: u.Email, Active: u.Active}
}

func (s *Server) newIssueView(i *models.Issue, now time.Time) issueView {
	v := issueView{
		ID:       i.ID,
		Key:      i.Key,
		Summary:  i.Summary,
		Status:   i.Status,
		Assignee: newUserView(i.Assignee),
		Priority: priorityView{ID: i.Priority.ID, Name: i.Priority.Name},
		Created:  i.CreatedAt,
		Updated:  i.UpdatedAt,
		Problems: s.classify.Problems(i, now),
	}
	if i.DueDate != nil {
		v.DueDate = i.DueDate.Format("2006-01-02")
	}
	v.MultiFix = len(v.Problems) > 1
	return v
}

// --- Projects ---

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	type projectView struct {
		ID             string `json:"id"`
		Key            string `json:"key"`
		Name           string `json:"name"`
		ProjectTypeKey string `json:"projectTypeKey"`
	}
	views := make([]projectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, projectView{ID: p.ID, Key: p.Key, Name: p.Name, ProjectTypeKey: p.ProjectTypeKey})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) listProjectIssues(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	issues, err := s.store.ListIssues(r.Context(), key)
	if err != nil {
		writeStoreError(w, err, http.StatusBadGateway)
		return
	}

	now := s.now()
	if r.URL.Query().Get("problems") == "true" {
		issues = s.classify.Filter(issues, now)
	}

	views := make([]issueView, 0, len(issues))
	for _, i := range issues {
		views = append(views, s.newIssueView(i, now))
	}
	writeJSON(w, http.StatusOK, views)
}

// loadProject reads the full issue set and roster concurrently.
func (s *Server) loadProject(ctx context.Context, key string) ([]*models.Issue, []*models.User, error) {
	var issues []*models.Issue
	var users []*models.User

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		var err error
		issues, err = s.store.ListIssues(ctx, key)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		users, err = s.store.ListAssignableUsers(ctx, key)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, nil, err
	}
	return issues, users, nil
}

type memberView struct {
	User      *userView `json:"user"`
	Assigned  int       `json:"assigned"`
	Remaining int       `json:"remaining"`
	Available bool      `json:"available"`
}

func (s *Server) teamWorkload(w http.ResponseWriter, r *http.Request) {
	issues, users, err := s.loadProject(r.Context(), r.PathValue("key"))
	if err != nil {
		writeStoreError(w, err, http.StatusBadGateway)
		return
	}

	rows := triage.Workload(issues, users, s.allocator.Cap())
	views := make([]memberView, 0, len(rows))
	for _, m := range rows {
		views = append(views, memberView{User: newUserView(m.User), Assigned: m.Assigned, Remaining: m.Remaining, Available: m.Available})
	}
	writeJSON(w, http.StatusOK, views)
}

type statsResponse struct {
	ProjectKey string              `json:"projectKey"`
	Cap        int                 `json:"cap"`
	Stats      triage.Stats        `json:"stats"`
	Health     *health.HealthScore `json:"health"`
	LastSync   *time.Time          `json:"lastSync,omitempty"`
}

func (s *Server) projectStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := r.PathValue("key")
	issues, users, err := s.loadProject(ctx, key)
	if err != nil {
		writeStoreError(w, err, http.StatusBadGateway)
		return
	}

	now := s.now()
	resp := statsResponse{
		ProjectKey: key,
		Cap:        s.allocator.Cap(),
		Stats:      s.classify.Summarize(issues, users, now, s.allocator.Cap()),
	}

	meta := &health.ProjectMetadata{Now: now, Cap: s.allocator.Cap()}
	if s.syncTimes != nil {
		if t, ok, err := s.syncTimes.LastSync(ctx, key); err == nil && ok {
			meta.LastSync = t
			resp.LastSync = &t
		}
	}
	resp.Health = s.scorer.Score(meta, issues, users)
	writeJSON(w, http.StatusOK, resp)
}

// --- Auto-assign ---

func (s *Server) autoAssign(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	res, err := s.allocator.AutoAssign(r.Context(), key)
	if err != nil {
		s.logger.Warn("auto-assign failed", "project", key, "error", err)
		writeStoreError(w, err, http.StatusBadGateway)
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusConflict, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Triage ---

func (s *Server) triageSummary(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set anthropic.api_key)")
		return
	}
	ctx := r.Context()
	key := r.PathValue("key")
	issues, err := s.store.ListIssues(ctx, key)
	if err != nil {
		writeStoreError(w, err, http.StatusBadGateway)
		return
	}

	now := s.now()
	summary, err := s.llm.SummarizeProblems(ctx, key, s.classify.Filter(issues, now), now)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- Issues ---

func (s *Server) setAssignee(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req struct {
		AccountID string `json:"accountId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "accountId is required")
		return
	}

	if err := s.store.SetAssignee(r.Context(), key, req.AccountID); err != nil {
		writeStoreError(w, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"issueKey": key, "accountId": req.AccountID})
}

func (s *Server) setPriority(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req struct {
		PriorityID string `json:"priorityId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p, ok := models.ParsePriority(req.PriorityID)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown priority: "+req.PriorityID)
		return
	}

	if err := s.store.SetPriority(r.Context(), key, p.ID); err != nil {
		writeStoreError(w, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"issueKey": key, "priority": priorityView{ID: p.ID, Name: p.Name}})
}
