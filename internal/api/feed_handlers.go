package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/feedrank/internal/feed"
	"github.com/onnwee/feedrank/internal/middleware"
	"github.com/onnwee/feedrank/internal/ranking"
	"github.com/onnwee/feedrank/internal/validate"
)

// FeedBuilder builds ranked feeds. *feed.Service implements it.
type FeedBuilder interface {
	Build(ctx context.Context, req feed.Request) (*feed.Result, error)
}

// FeedHandlers serves the reader's ranked feed.
type FeedHandlers struct {
	builder     FeedBuilder
	authEnabled bool
}

// NewFeedHandlers creates feed handlers. When authEnabled is false the reader
// is taken from the user_id query parameter instead of the bearer token.
func NewFeedHandlers(builder FeedBuilder, authEnabled bool) *FeedHandlers {
	return &FeedHandlers{builder: builder, authEnabled: authEnabled}
}

// GetFeed handles GET /feed.
//
// Query parameters: per_page, page, tag, factors (comma separated factor names)
// and default_experience_level. Unknown factor names are ignored.
func (h *FeedHandlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	query := r.URL.Query()

	perPage, ok := optionalInt(w, r, "per_page")
	if !ok {
		return
	}
	page, ok := optionalInt(w, r, "page")
	if !ok {
		return
	}

	scoring := ranking.Config{SelectedFactors: splitList(query.Get("factors"))}
	if level := strings.TrimSpace(query.Get(feed.ContextDefaultExperienceLevel)); level != "" {
		scoring.ContextParameters = map[string]string{feed.ContextDefaultExperienceLevel: level}
	}

	userID := middleware.GetUserID(r.Context())
	if !h.authEnabled {
		id, err := validate.OptionalIdentifier(query.Get("user_id"))
		if err != nil {
			writeCodedError(w, r, ErrCodeValidation, "user_id: "+err.Error())
			return
		}
		userID = id
	}
	tag, err := validate.Tag(query.Get("tag"))
	if err != nil {
		writeCodedError(w, r, ErrCodeValidation, "tag: "+err.Error())
		return
	}

	result, err := h.builder.Build(r.Context(), feed.Request{
		UserID:  userID,
		Tag:     tag,
		Scoring: scoring,
		PerPage: perPage,
		Page:    page,
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to build feed")
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// optionalInt parses an optional integer query parameter, writing a
// validation error when it is malformed.
func optionalInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeCodedError(w, r, ErrCodeValidation, name+" must be an integer")
		return 0, false
	}
	return n, true
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// writeServiceError maps ranking and feed errors to responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, feed.ErrInvalidContextParameter):
		writeCodedError(w, r, ErrCodeValidation, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeCodedError(w, r, ErrCodeUnavailable, "Request cancelled")
	default:
		slog.ErrorContext(r.Context(), message, "error", err)
		writeCodedError(w, r, ErrCodeInternal, message)
	}
}
