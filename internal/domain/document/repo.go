package document

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no document has the requested id.
var ErrNotFound = errors.New("document not found")

// ListFilter narrows List results.
type ListFilter struct {
	ReviewRequired bool
}

type Repository interface {
	Create(ctx context.Context, doc *MedicalDocument) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalDocument, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Summary, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
