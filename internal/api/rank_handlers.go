package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/onnwee/feedrank/internal/ranking"
	"github.com/onnwee/feedrank/internal/validate"
)

// Candidate ids are echoed back verbatim, so they are not trimmed.
var candidateIDConstraints = validate.StringConstraints{
	MinLength: 1,
	MaxLength: validate.MaxIdentifierLength,
}

// Defaults for RankOptions.
const (
	DefaultMaxRankCandidates = 10000
	DefaultMaxRankBodyBytes  = 8 << 20
)

// RankOptions bounds POST /rank requests.
type RankOptions struct {
	MaxCandidates int
	MaxBodyBytes  int64
	MaxPageSize   int
}

// RankHandlers exposes the ranking engine directly: callers supply candidates
// with precomputed features.
type RankHandlers struct {
	engine *ranking.Engine
	opts   RankOptions
}

// NewRankHandlers creates rank handlers. Zero options use the defaults; a zero
// MaxPageSize leaves page sizes unclamped.
func NewRankHandlers(engine *ranking.Engine, opts RankOptions) *RankHandlers {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxRankCandidates
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxRankBodyBytes
	}
	return &RankHandlers{engine: engine, opts: opts}
}

// RankRequest is the body of POST /rank.
type RankRequest struct {
	Candidates        []ranking.Candidate               `json:"candidates"`
	Factors           []string                          `json:"factors,omitempty"`
	Overrides         map[string]ranking.FactorOverride `json:"overrides,omitempty"`
	ContextParameters map[string]string                 `json:"context_parameters,omitempty"`
	PerPage           int                               `json:"per_page,omitempty"`
	Page              int                               `json:"page,omitempty"`
	Explain           bool                              `json:"explain,omitempty"`
}

// RankResponse is the body returned by POST /rank. Items are in presentation
// order; explanations, when requested, follow the same order and come with the
// overrides that were reverted to registry defaults.
type RankResponse struct {
	IDs               []string                   `json:"ids"`
	Items             []ranking.ScoredItem       `json:"items"`
	Explanations      []ranking.Explanation      `json:"explanations,omitempty"`
	RejectedOverrides []ranking.RejectedOverride `json:"rejected_overrides,omitempty"`
	PerPage      int                   `json:"per_page"`
	Page         int                   `json:"page"`
}

// Rank handles POST /rank.
func (h *RankHandlers) Rank(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	req, err := h.decode(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeCodedError(w, r, ErrCodePayloadTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeCodedError(w, r, ErrCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Candidates) > h.opts.MaxCandidates {
		writeCodedError(w, r, ErrCodePayloadTooLarge, fmt.Sprintf("At most %d candidates are allowed", h.opts.MaxCandidates))
		return
	}
	for i, c := range req.Candidates {
		if _, err := validate.String(c.ID, candidateIDConstraints); err != nil {
			writeCodedError(w, r, ErrCodeValidation, fmt.Sprintf("candidates[%d].id: %v", i, err))
			return
		}
	}

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = ranking.DefaultPageSize
	}
	if h.opts.MaxPageSize > 0 && perPage > h.opts.MaxPageSize {
		perPage = h.opts.MaxPageSize
	}
	page := max(req.Page, 1)

	cfg := ranking.Config{
		SelectedFactors:   req.Factors,
		Overrides:         req.Overrides,
		ContextParameters: req.ContextParameters,
	}

	items, err := h.engine.RankItems(r.Context(), req.Candidates, cfg, perPage, page)
	if err != nil {
		writeServiceError(w, r, err, "Failed to rank candidates")
		return
	}

	resp := RankResponse{
		IDs:     ranking.IDs(items),
		Items:   items,
		PerPage: perPage,
		Page:    page,
	}
	if req.Explain {
		resp.Explanations = explainWindow(h.engine, req.Candidates, cfg, resp.IDs)
		resp.RejectedOverrides = h.engine.Registry().Select(cfg).Rejected
	}

	writeJSON(w, r, http.StatusOK, resp)
}

func (h *RankHandlers) decode(w http.ResponseWriter, r *http.Request) (*RankRequest, error) {
	body := http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var req RankRequest
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("body is empty")
		}
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("body must contain a single JSON object")
	}
	return &req, nil
}

// explainWindow explains only the candidates in ids, in that order. Duplicate
// candidate ids explain the first occurrence.
func explainWindow(engine *ranking.Engine, candidates []ranking.Candidate, cfg ranking.Config, ids []string) []ranking.Explanation {
	byID := make(map[string]ranking.Candidate, len(ids))
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, c := range candidates {
		if _, seen := byID[c.ID]; want[c.ID] && !seen {
			byID[c.ID] = c
		}
	}

	window := make([]ranking.Candidate, 0, len(ids))
	for _, id := range ids {
		window = append(window, byID[id])
	}
	return engine.Explain(window, cfg)
}

// FactorsResponse is the body of GET /factors.
type FactorsResponse struct {
	Factors []ranking.FactorDefinition `json:"factors"`
}

// Factors handles GET /factors: the registry in declaration order.
func (h *RankHandlers) Factors(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, r, http.StatusOK, FactorsResponse{Factors: h.engine.Registry().Definitions()})
}
