// Package subscription keeps the channel -> tokens mapping on top of a
// dispatch.DocumentStorage backend.
package subscription

import (
	"context"
	"sync"

	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

// Store implements dispatch.SubscriptionStore. Every mutation reads the whole
// document, applies the set operation and writes the whole document back.
type Store struct {
	mu   sync.Mutex
	docs dispatch.DocumentStorage
}

// NewStore creates a Store over docs.
func NewStore(docs dispatch.DocumentStorage) *Store {
	return &Store{docs: docs}
}

// Store merges tokens into channel, keeping first-occurrence order and dropping duplicates.
func (s *Store) Store(ctx context.Context, channel string, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.docs.Read(ctx)
	if err != nil {
		return err
	}
	doc[channel] = union(doc[channel], tokens)
	return s.docs.Write(ctx, doc)
}

// Retrieve returns a copy of the channel's tokens, nil when the channel is absent.
func (s *Store) Retrieve(ctx context.Context, channel string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.docs.Read(ctx)
	if err != nil {
		return nil, err
	}
	tokens, ok := doc[channel]
	if !ok {
		return nil, nil
	}
	return append([]string{}, tokens...), nil
}

// Forget removes tokens from channel by exact match. An absent channel is left
// untouched and nothing is written. A channel left empty is deleted.
func (s *Store) Forget(ctx context.Context, channel string, tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.docs.Read(ctx)
	if err != nil {
		return err
	}
	existing, ok := doc[channel]
	if !ok {
		return nil
	}

	remaining := difference(existing, tokens)
	if len(remaining) == 0 {
		delete(doc, channel)
	} else {
		doc[channel] = remaining
	}
	return s.docs.Write(ctx, doc)
}

func union(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, t := range list {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func difference(existing, removed []string) []string {
	drop := make(map[string]struct{}, len(removed))
	for _, t := range removed {
		drop[t] = struct{}{}
	}
	out := make([]string, 0, len(existing))
	for _, t := range existing {
		if _, gone := drop[t]; !gone {
			out = append(out, t)
		}
	}
	return out
}
