package document

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo keeps documents in process memory. Stored documents are
// deep-copied through JSON so callers cannot mutate them.
type MemoryRepo struct {
	mu   sync.RWMutex
	docs map[uuid.UUID][]byte
	meta map[uuid.UUID]*Summary
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs: make(map[uuid.UUID][]byte),
		meta: make(map[uuid.UUID]*Summary),
	}
}

func (r *MemoryRepo) Create(_ context.Context, doc *MedicalDocument) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	r.docs[doc.ID] = body
	r.meta[doc.ID] = doc.Summarize()
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*MedicalDocument, error) {
	r.mu.RLock()
	body, ok := r.docs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var doc MedicalDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &doc, nil
}

func (r *MemoryRepo) List(_ context.Context, filter ListFilter, limit, offset int) ([]*Summary, int, error) {
	r.mu.RLock()
	var all []*Summary
	for _, s := range r.meta {
		if filter.ReviewRequired && !s.ReviewRequired {
			continue
		}
		cp := *s
		all = append(all, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].ProcessedAt.Equal(all[j].ProcessedAt) {
			return all[i].ProcessedAt.After(all[j].ProcessedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	total := len(all)
	if offset >= total {
		return []*Summary{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *MemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return ErrNotFound
	}
	delete(r.docs, id)
	delete(r.meta, id)
	return nil
}
