package document

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/visitrecon/internal/domain/record"
	"github.com/ehr/visitrecon/internal/platform/db"
	"github.com/ehr/visitrecon/internal/platform/seal"
)

func sampleDocument(source string, at time.Time, review bool) *MedicalDocument {
	return &MedicalDocument{
		ID:            uuid.New(),
		SchemaVersion: SchemaVersion,
		SourceName:    source,
		PageCount:     2,
		ProcessedAt:   at,
		Visits: []record.ReconciledVisit{{
			VisitID:              "visit_001",
			RawSourcePages:       []int{1, 2},
			ExtractionConfidence: 0.9,
			ManualReviewRequired: review,
		}},
		Warnings: []string{},
		Errors:   []string{},
	}
}

func openTestSQLite(t *testing.T, name string) *sql.DB {
	t.Helper()
	sqlDB, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return sqlDB
}

func testKeyring(t *testing.T) *seal.Keyring {
	t.Helper()
	k, err := seal.NewKeyring(bytes.Repeat([]byte{0x42}, seal.KeySize), 1)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	return k
}

func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	sqliteRepo, err := NewSQLiteRepo(context.Background(), openTestSQLite(t, "documents.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepo: %v", err)
	}
	sealedRepo, err := NewSQLiteRepo(context.Background(), openTestSQLite(t, "sealed.db"), WithSealer(testKeyring(t)))
	if err != nil {
		t.Fatalf("NewSQLiteRepo: %v", err)
	}
	return map[string]Repository{
		"memory":        NewMemoryRepo(),
		"sqlite":        sqliteRepo,
		"sqlite-sealed": sealedRepo,
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := sampleDocument("scan.pdf", time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC), true)
			if err := repo.Create(ctx, doc); err != nil {
				t.Fatalf("Create() error: %v", err)
			}

			got, err := repo.GetByID(ctx, doc.ID)
			if err != nil {
				t.Fatalf("GetByID() error: %v", err)
			}
			if got.SourceName != "scan.pdf" || len(got.Visits) != 1 || !got.ReviewRequired() {
				t.Errorf("unexpected document %+v", got)
			}
			if !got.ProcessedAt.Equal(doc.ProcessedAt) {
				t.Errorf("expected processed_at %v, got %v", doc.ProcessedAt, got.ProcessedAt)
			}

			got.SourceName = "mutated"
			again, _ := repo.GetByID(ctx, doc.ID)
			if again.SourceName != "scan.pdf" {
				t.Error("stored document must not be shared with callers")
			}
		})
	}
}

func TestRepository_CreateAssignsID(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			doc := sampleDocument("", time.Now().UTC(), false)
			doc.ID = uuid.Nil
			if err := repo.Create(context.Background(), doc); err != nil {
				t.Fatalf("Create() error: %v", err)
			}
			if doc.ID == uuid.Nil {
				t.Error("expected an id to be assigned")
			}
		})
	}
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := repo.GetByID(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestRepository_ListOrderingAndPagination(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
			var ids []uuid.UUID
			for i := 0; i < 5; i++ {
				doc := sampleDocument("", base.Add(time.Duration(i)*time.Minute), i%2 == 0)
				if err := repo.Create(ctx, doc); err != nil {
					t.Fatalf("Create() error: %v", err)
				}
				ids = append(ids, doc.ID)
			}

			page, total, err := repo.List(ctx, ListFilter{}, 2, 0)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if total != 5 || len(page) != 2 {
				t.Fatalf("expected 2 of 5, got %d of %d", len(page), total)
			}
			if page[0].ID != ids[4] || page[1].ID != ids[3] {
				t.Error("expected newest documents first")
			}
			if page[0].VisitCount != 1 || page[0].PageCount != 2 {
				t.Errorf("unexpected summary %+v", page[0])
			}

			tail, _, err := repo.List(ctx, ListFilter{}, 2, 4)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if len(tail) != 1 || tail[0].ID != ids[0] {
				t.Errorf("expected the oldest document on the last page, got %v", tail)
			}

			past, total, err := repo.List(ctx, ListFilter{}, 2, 10)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if past == nil || len(past) != 0 || total != 5 {
				t.Errorf("expected empty page past the end, got %v (total %d)", past, total)
			}

			flagged, total, err := repo.List(ctx, ListFilter{ReviewRequired: true}, 10, 0)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if total != 3 || len(flagged) != 3 {
				t.Errorf("expected 3 documents needing review, got %d", total)
			}
			for _, s := range flagged {
				if !s.ReviewRequired {
					t.Errorf("document %s should not match the review filter", s.ID)
				}
			}
		})
	}
}

func TestRepository_Delete(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			doc := sampleDocument("", time.Now().UTC(), false)
			if err := repo.Create(ctx, doc); err != nil {
				t.Fatalf("Create() error: %v", err)
			}
			if err := repo.Delete(ctx, doc.ID); err != nil {
				t.Fatalf("Delete() error: %v", err)
			}
			if _, err := repo.GetByID(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
			if err := repo.Delete(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound deleting twice, got %v", err)
			}
		})
	}
}

func TestSQLiteRepo_SealedBodies(t *testing.T) {
	ctx := context.Background()
	sqlDB := openTestSQLite(t, "sealed.db")
	keys := testKeyring(t)

	plainRepo, err := NewSQLiteRepo(ctx, sqlDB)
	if err != nil {
		t.Fatalf("NewSQLiteRepo: %v", err)
	}
	sealedRepo, err := NewSQLiteRepo(ctx, sqlDB, WithSealer(keys))
	if err != nil {
		t.Fatalf("NewSQLiteRepo: %v", err)
	}

	legacy := sampleDocument("legacy.pdf", time.Now().UTC(), false)
	if err := plainRepo.Create(ctx, legacy); err != nil {
		t.Fatalf("Create(legacy): %v", err)
	}
	doc := sampleDocument("sealed.pdf", time.Now().UTC(), false)
	if err := sealedRepo.Create(ctx, doc); err != nil {
		t.Fatalf("Create(sealed): %v", err)
	}

	var body string
	if err := sqlDB.QueryRowContext(ctx, `SELECT body FROM processed_document WHERE id = ?`, doc.ID.String()).Scan(&body); err != nil {
		t.Fatalf("read raw body: %v", err)
	}
	if strings.Contains(body, "visit_001") || !strings.Contains(body, `"sealed":"v1:`) {
		t.Errorf("expected a sealed body, got %s", body)
	}

	if got, err := sealedRepo.GetByID(ctx, doc.ID); err != nil || got.SourceName != "sealed.pdf" {
		t.Errorf("GetByID(sealed) = %v, %v", got, err)
	}
	if got, err := sealedRepo.GetByID(ctx, legacy.ID); err != nil || got.SourceName != "legacy.pdf" {
		t.Errorf("expected plain rows to stay readable, got %v, %v", got, err)
	}
	if _, err := plainRepo.GetByID(ctx, doc.ID); err == nil {
		t.Error("expected an error reading a sealed row without a key")
	}

	// a body copied onto another row fails authentication
	other := sampleDocument("other.pdf", time.Now().UTC(), false)
	if err := sealedRepo.Create(ctx, other); err != nil {
		t.Fatalf("Create(other): %v", err)
	}
	if _, err := sqlDB.ExecContext(ctx, `UPDATE processed_document SET body = ? WHERE id = ?`, body, other.ID.String()); err != nil {
		t.Fatalf("swap body: %v", err)
	}
	if _, err := sealedRepo.GetByID(ctx, other.ID); err == nil {
		t.Error("expected an error for a body sealed under another id")
	}
}
