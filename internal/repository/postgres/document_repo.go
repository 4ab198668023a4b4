package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

const documentColumns = `id, title, author, price, category, description, file_id,
	filename, content_type, size, locked, created_at`

// documentRepository implements repository.DocumentRepository.
type documentRepository struct {
	q Querier
}

// NewDocumentRepository creates a new PostgreSQL document repository.
func NewDocumentRepository(db *DB) repository.DocumentRepository {
	return &documentRepository{q: db.Pool}
}

// Create persists a new document.
func (r *documentRepository) Create(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.q.Exec(ctx, query,
		doc.ID,
		doc.Title,
		doc.Author,
		doc.Price,
		doc.Category,
		doc.Description,
		doc.FileID,
		doc.Filename,
		doc.ContentType,
		doc.Size,
		doc.Locked,
		doc.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s already exists: %w", doc.ID, err)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

// GetByID retrieves a document by ID.
func (r *documentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := scanDocument(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// List returns all documents, newest first.
func (r *documentRepository) List(ctx context.Context) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY created_at DESC, id DESC`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

// Delete deletes a document by ID.
func (r *documentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.q.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}

	return nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Author,
		&doc.Price,
		&doc.Category,
		&doc.Description,
		&doc.FileID,
		&doc.Filename,
		&doc.ContentType,
		&doc.Size,
		&doc.Locked,
		&doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	return &doc, nil
}

var _ repository.DocumentRepository = (*documentRepository)(nil)
