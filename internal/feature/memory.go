package feature

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/feedrank/internal/ranking"
)

// Followable kinds.
const (
	FollowUser         = "user"
	FollowTag          = "tag"
	FollowOrganization = "organization"
)

// InMemoryStore is a thread-safe in-memory corpus. It backs development
// servers, the CLI and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	articles map[string]*Article
	comments map[string][]Comment // keyed by article ID
	settings map[string]UserSettings
	follows  map[string]map[string]map[string]struct{} // follower -> kind -> target
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		articles: make(map[string]*Article),
		comments: make(map[string][]Comment),
		settings: make(map[string]UserSettings),
		follows:  make(map[string]map[string]map[string]struct{}),
	}
}

// AddArticle stores a copy of a. An empty ID gets a generated UUID, which is
// returned.
func (s *InMemoryStore) AddArticle(a Article) (string, error) {
	if a.AuthorID == "" {
		return "", fmt.Errorf("%w: author_id is required", ErrInvalidArticle)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Tags = append([]string(nil), a.Tags...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.articles[a.ID]; exists {
		return "", fmt.Errorf("%w: %s", ErrArticleExists, a.ID)
	}
	s.articles[a.ID] = &a
	return a.ID, nil
}

// AddComment records a comment. The article's CommentsCount is left alone;
// it is a denormalized counter owned by the article.
func (s *InMemoryStore) AddComment(c Comment) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[c.ArticleID] = append(s.comments[c.ArticleID], c)
}

// SetUserSettings creates or replaces a reader's settings row.
func (s *InMemoryStore) SetUserSettings(settings UserSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settings.UserID] = settings
}

// Follow records that follower follows target of the given kind.
func (s *InMemoryStore) Follow(follower, kind, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKind, ok := s.follows[follower]
	if !ok {
		byKind = make(map[string]map[string]struct{})
		s.follows[follower] = byKind
	}
	targets, ok := byKind[kind]
	if !ok {
		targets = make(map[string]struct{})
		byKind[kind] = targets
	}
	targets[target] = struct{}{}
}

// Candidates returns a candidate for every published article matching q,
// sorted by ID so callers see a stable order.
func (s *InMemoryStore) Candidates(ctx context.Context, q Query) ([]ranking.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Now.IsZero() {
		q.Now = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var reader Reader
	if settings, ok := s.settings[q.UserID]; ok {
		reader.Settings = &settings
	}

	candidates := make([]ranking.Candidate, 0, len(s.articles))
	for _, a := range s.articles {
		if !a.Published {
			continue
		}
		if q.Tag != "" && !hasTag(a.Tags, q.Tag) {
			continue
		}
		candidates = append(candidates, BuildCandidate(s.signals(a, q.UserID), reader, q))
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID < candidates[j].ID
	})
	return candidates, nil
}

// signals aggregates a's reader-specific inputs. Caller must hold the read lock.
func (s *InMemoryStore) signals(a *Article, userID string) Signals {
	sig := Signals{Article: *a}
	if userID == "" {
		return sig
	}

	for _, c := range s.comments[a.ID] {
		if !s.isFollowing(userID, FollowUser, c.AuthorID) {
			continue
		}
		sig.FollowedCommentCount++
		if sig.LatestFollowedComment == nil || c.CreatedAt.After(*sig.LatestFollowedComment) {
			created := c.CreatedAt
			sig.LatestFollowedComment = &created
		}
	}
	for _, tag := range a.Tags {
		if s.isFollowing(userID, FollowTag, tag) {
			sig.MatchingTagCount++
		}
	}
	sig.FollowsAuthor = s.isFollowing(userID, FollowUser, a.AuthorID)
	sig.FollowsOrg = a.OrganizationID != "" && s.isFollowing(userID, FollowOrganization, a.OrganizationID)
	return sig
}

func (s *InMemoryStore) isFollowing(follower, kind, target string) bool {
	_, ok := s.follows[follower][kind][target]
	return ok
}

// Articles returns copies of the articles for ids, in order, skipping unknown ids.
func (s *InMemoryStore) Articles(ctx context.Context, ids []string) ([]Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Article, 0, len(ids))
	for _, id := range ids {
		a, ok := s.articles[id]
		if !ok {
			continue
		}
		cp := *a
		cp.Tags = append([]string(nil), a.Tags...)
		out = append(out, cp)
	}
	return out, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
