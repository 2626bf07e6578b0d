package store

import (
	"context"
	"sort"
	"sync"

	"veridoc/internal/document"
	"veridoc/internal/sentinel"
	"veridoc/pkg/domain"
)

// InMemoryStore keeps issued documents in memory for tests and local runs.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[domain.DocumentID]*document.IssuedDocument
}

// New constructs an empty in-memory document store.
func New() *InMemoryStore {
	return &InMemoryStore{docs: make(map[domain.DocumentID]*document.IssuedDocument)}
}

func (s *InMemoryStore) Save(_ context.Context, doc *document.IssuedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return sentinel.ErrConflict
	}
	copyDoc := *doc
	s.docs[doc.ID] = &copyDoc
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.DocumentID) (*document.IssuedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (s *InMemoryStore) ListByApplicant(_ context.Context, applicantID domain.ApplicantID) ([]*document.IssuedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []*document.IssuedDocument
	for _, doc := range s.docs {
		if doc.ApplicantID == applicantID {
			copyDoc := *doc
			docs = append(docs, &copyDoc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].IssuedAt.Before(docs[j].IssuedAt) })
	return docs, nil
}
