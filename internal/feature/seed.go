package feature

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"
)

// ErrInvalidSeed is returned for seed documents that cannot be applied.
var ErrInvalidSeed = errors.New("invalid seed")

// Follow is one follow edge in a seed document.
type Follow struct {
	Follower string `yaml:"follower"`
	Kind     string `yaml:"kind"`
	Target   string `yaml:"target"`
}

// Seed is a YAML corpus used to populate an InMemoryStore for development
// servers and the CLI.
type Seed struct {
	Articles []Article      `yaml:"articles"`
	Comments []Comment      `yaml:"comments"`
	Settings []UserSettings `yaml:"settings"`
	Follows  []Follow       `yaml:"follows"`
}

// ParseSeed decodes a seed document. Unknown keys are rejected and an empty
// document is an empty seed.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return &seed, nil
}

// LoadSeed reads a seed file and returns a store holding its contents.
func LoadSeed(path string) (*InMemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return nil, err
	}
	store := NewInMemoryStore()
	if err := store.Apply(seed); err != nil {
		return nil, err
	}
	return store, nil
}

// Apply adds every record of seed to the store. Articles are added first so
// comments can reference them; the first failing article aborts the load.
func (s *InMemoryStore) Apply(seed *Seed) error {
	for i, a := range seed.Articles {
		if _, err := s.AddArticle(a); err != nil {
			return fmt.Errorf("article %d: %w", i, err)
		}
	}
	for i, c := range seed.Comments {
		if c.ArticleID == "" || c.AuthorID == "" {
			return fmt.Errorf("%w: comment %d needs article_id and author_id", ErrInvalidSeed, i)
		}
		s.AddComment(c)
	}
	for i, st := range seed.Settings {
		if st.UserID == "" {
			return fmt.Errorf("%w: settings %d needs user_id", ErrInvalidSeed, i)
		}
		s.SetUserSettings(st)
	}
	for i, f := range seed.Follows {
		switch f.Kind {
		case FollowUser, FollowTag, FollowOrganization:
		default:
			return fmt.Errorf("%w: follow %d has unknown kind %q", ErrInvalidSeed, i, f.Kind)
		}
		if f.Follower == "" || f.Target == "" {
			return fmt.Errorf("%w: follow %d needs follower and target", ErrInvalidSeed, i)
		}
		s.Follow(f.Follower, f.Kind, f.Target)
	}
	return nil
}
