package evaluation

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/ranking"
	"github.com/ricesearch/rice-eval/internal/snapshot"
)

const maxRequestBytes = 32 << 20

// Handler provides HTTP handlers for evaluation.
type Handler struct {
	runner     *Runner
	store      snapshot.Store
	aggregator *Aggregator
	cfg        config.EvalConfig
	log        *logger.Logger
}

// NewHandler creates a new evaluation handler. The aggregator may be nil.
func NewHandler(runner *Runner, store snapshot.Store, aggregator *Aggregator, cfg config.EvalConfig, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		runner:     runner,
		store:      store,
		aggregator: aggregator,
		cfg:        cfg,
		log:        log,
	}
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluation/rankings", h.handleRankings)
	mux.HandleFunc("POST /v1/evaluation/sets", h.handleSets)
	mux.HandleFunc("GET /v1/evaluation/runs", h.handleListRuns)
	mux.HandleFunc("GET /v1/evaluation/runs/{id}", h.handleGetRun)
}

// RankingsRequest asks for a ranking evaluation.
type RankingsRequest struct {
	// Qrels maps query -> document -> relevance grade.
	Qrels map[string]map[string]float64 `json:"qrels"`
	// Run maps query -> documents in rank order.
	Run      map[string][]string `json:"run"`
	MaxN     int                 `json:"max_n,omitempty"`
	Measures string              `json:"measures,omitempty"`
}

// SetsRequest asks for a set evaluation.
type SetsRequest struct {
	Gold  map[string][]LabeledSet `json:"gold"`
	Test  map[string][]LabeledSet `json:"test"`
	Alpha *float64                `json:"alpha,omitempty"`
}

// RunView is the stored state of a run with its derived report.
type RunView struct {
	RunID     string          `json:"run_id"`
	Kind      snapshot.Kind   `json:"kind"`
	Status    snapshot.Status `json:"status"`
	Shards    int             `json:"shards"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Ranking   *RankingReport  `json:"ranking,omitempty"`
	Sets      *SetsReport     `json:"sets,omitempty"`
}

func (h *Handler) handleRankings(w http.ResponseWriter, r *http.Request) {
	var req RankingsRequest
	if err := decodeBody(w, r, &req); err != nil {
		errors.WriteError(w, err)
		return
	}
	if len(req.Run) == 0 {
		errors.WriteError(w, errors.ValidationError("run is required"))
		return
	}

	opts := RankOptions{MaxN: req.MaxN}
	if req.Measures != "" {
		measures, err := ranking.ParseMeasures(req.Measures)
		if err != nil {
			errors.WriteError(w, err)
			return
		}
		opts.Measures = measures
	}

	qrels := make(Qrels, len(req.Qrels))
	for q, docs := range req.Qrels {
		for d, rel := range docs {
			qrels.Add(Judgment{QueryID: q, DocID: d, Relevance: rel})
		}
	}

	outcome, err := h.runner.Rank(r.Context(), RunFromMap(req.Run), qrels, opts)
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Warn("Ranking evaluation failed")
		errors.WriteError(w, err)
		return
	}

	report, err := NewRankingReport(outcome.RunID, outcome.Result, outcome.Measures)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleSets(w http.ResponseWriter, r *http.Request) {
	var req SetsRequest
	if err := decodeBody(w, r, &req); err != nil {
		errors.WriteError(w, err)
		return
	}

	alpha := h.cfg.Alpha
	if req.Alpha != nil {
		alpha = *req.Alpha
	}
	if alpha < 0 || alpha > 1 {
		errors.WriteError(w, errors.InvalidArgument("alpha must be between 0 and 1"))
		return
	}

	outcome, err := h.runner.Sets(r.Context(), SetCollectionFromMap(req.Gold), SetCollectionFromMap(req.Test))
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Warn("Set evaluation failed")
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, NewSetsReport(outcome.RunID, outcome.Stats, alpha))
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.List(r.Context())
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": ids})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap, err := h.store.Load(r.Context(), id)
	if err != nil && !errors.IsNotFound(err) {
		errors.WriteError(w, err)
		return
	}
	found := err == nil

	// A running run may have more merged shards on the bus than in the store.
	if h.aggregator != nil && (!found || snap.Status == snapshot.StatusRunning) {
		if live, ok := h.aggregator.Progress(id); ok {
			if found {
				live.Measures = snap.Measures
				live.CreatedAt = snap.CreatedAt
			}
			snap, found = live, true
		}
	}
	if !found {
		errors.WriteError(w, errors.NotFoundError("run "+id))
		return
	}

	view, err := h.view(snap)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) view(snap snapshot.Snapshot) (*RunView, error) {
	view := &RunView{
		RunID:     snap.RunID,
		Kind:      snap.Kind,
		Status:    snap.Status,
		Shards:    snap.Shards,
		Error:     snap.Error,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
	}

	switch {
	case snap.Ranking != nil:
		measures, err := h.measuresFor(snap)
		if err != nil {
			return nil, err
		}
		report, err := NewRankingReport(snap.RunID, snap.Ranking.Result(), measures)
		if err != nil {
			return nil, err
		}
		view.Ranking = report
	case snap.Sets != nil:
		view.Sets = NewSetsReport(snap.RunID, *snap.Sets, h.cfg.Alpha)
	}
	return view, nil
}

// measuresFor returns the measures recorded with a run, or the configured
// defaults that fit its cutoff range.
func (h *Handler) measuresFor(snap snapshot.Snapshot) ([]ranking.Measure, error) {
	if len(snap.Measures) > 0 {
		measures := make([]ranking.Measure, 0, len(snap.Measures))
		for _, name := range snap.Measures {
			m, err := ranking.ParseMeasure(name)
			if err != nil {
				return nil, err
			}
			measures = append(measures, m)
		}
		return measures, nil
	}

	defaults, err := ranking.ParseMeasures(h.cfg.Measures)
	if err != nil {
		return nil, err
	}
	fitting := defaults[:0]
	for _, m := range defaults {
		if m.At <= snap.Ranking.MaxN {
			fitting = append(fitting, m)
		}
	}
	return fitting, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errors.CodeInvalidRequest, "invalid request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
