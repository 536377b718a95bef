// Package search runs substring queries across leads, interactions and
// messages and merges them into one ranked result list.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sdr/internal/storage"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100

	previewRunes = 200
)

// Fixed relevance per result kind.
const (
	leadScore        = 1.0
	interactionScore = 0.8
	messageScore     = 0.6
)

var ErrEmptyQuery = errors.New("search query is empty")

type Kind string

const (
	KindLead        Kind = "lead"
	KindInteraction Kind = "interaction"
	KindMessage     Kind = "message"
)

type Result struct {
	ID      int64   `json:"id"`
	Type    Kind    `json:"type"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Store is the read-only query surface search needs.
type Store interface {
	GetLead(id int64) (storage.Lead, error)
	SearchLeads(q string, limit int) ([]storage.Lead, error)
	SearchInteractions(q string, limit int) ([]storage.Interaction, error)
	SearchMessages(q string, limit int) ([]storage.Message, error)
}

type Searcher struct {
	store        Store
	defaultLimit int
}

// New returns a Searcher. A defaultLimit outside 1..MaxLimit falls back to
// DefaultLimit.
func New(store Store, defaultLimit int) *Searcher {
	if defaultLimit <= 0 || defaultLimit > MaxLimit {
		defaultLimit = DefaultLimit
	}
	return &Searcher{store: store, defaultLimit: defaultLimit}
}

// Search matches query case-insensitively and returns at most limit results,
// leads first, then interactions, then messages. limit <= 0 uses the default
// and anything above MaxLimit is capped.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	limit = min(limit, MaxLimit)

	var (
		leads        []storage.Lead
		interactions []storage.Interaction
		messages     []storage.Message
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gCtx.Err(); err != nil {
			return err
		}
		var err error
		leads, err = s.store.SearchLeads(query, limit)
		if err != nil {
			return fmt.Errorf("searching leads: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := gCtx.Err(); err != nil {
			return err
		}
		var err error
		interactions, err = s.store.SearchInteractions(query, limit)
		if err != nil {
			return fmt.Errorf("searching interactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := gCtx.Err(); err != nil {
			return err
		}
		var err error
		messages, err = s.store.SearchMessages(query, limit)
		if err != nil {
			return fmt.Errorf("searching messages: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	names := newNameCache(s.store)
	results := make([]Result, 0, len(leads)+len(interactions)+len(messages))
	for _, l := range leads {
		content := l.CompanyName
		if l.JobTitle != nil && *l.JobTitle != "" {
			content = *l.JobTitle + " at " + l.CompanyName
		}
		results = append(results, Result{
			ID:      l.ID,
			Type:    KindLead,
			Title:   l.FullName() + " - " + l.CompanyName,
			Content: content,
			Score:   leadScore,
		})
	}
	for _, i := range interactions {
		name, err := names.get(i.LeadID)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{
			ID:      i.ID,
			Type:    KindInteraction,
			Title:   "Interaction with " + name,
			Content: Preview(i.Content),
			Score:   interactionScore,
		})
	}
	for _, m := range messages {
		name, err := names.get(m.LeadID)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{
			ID:      m.ID,
			Type:    KindMessage,
			Title:   "Message to " + name,
			Content: Preview(m.Content),
			Score:   messageScore,
		})
	}

	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Preview truncates s to 200 runes, marking the cut with "...".
func Preview(s string) string {
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	return string([]rune(s)[:previewRunes]) + "..."
}

type nameCache struct {
	store Store
	names map[int64]string
}

func newNameCache(store Store) *nameCache {
	return &nameCache{store: store, names: make(map[int64]string)}
}

func (c *nameCache) get(leadID int64) (string, error) {
	if n, ok := c.names[leadID]; ok {
		return n, nil
	}
	name := "Unknown"
	l, err := c.store.GetLead(leadID)
	switch {
	case err == nil:
		name = l.FullName()
	case !errors.Is(err, storage.ErrNotFound):
		return "", fmt.Errorf("resolving lead %d: %w", leadID, err)
	}
	c.names[leadID] = name
	return name, nil
}
