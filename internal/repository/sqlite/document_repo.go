package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/repository"
)

const documentColumns = `id, title, author, price, category, description, file_id,
	filename, content_type, size, locked, created_at`

// documentRepository implements repository.DocumentRepository for SQLite.
type documentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new SQLite document repository.
func NewDocumentRepository(db *DB) repository.DocumentRepository {
	return &documentRepository{db: db}
}

// Create persists a new document.
func (r *documentRepository) Create(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.db.ExecContext(ctx, query,
		doc.ID.String(),
		doc.Title,
		doc.Author,
		doc.Price,
		doc.Category,
		doc.Description,
		doc.FileID.String(),
		doc.Filename,
		doc.ContentType,
		doc.Size,
		doc.Locked,
		formatTime(doc.CreatedAt),
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
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`

	doc, err := scanDocument(r.db.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// List returns all documents, newest first.
// rowid breaks ties between documents created in the same instant.
func (r *documentRepository) List(ctx context.Context) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY created_at DESC, rowid DESC`

	rows, err := r.db.db.QueryContext(ctx, query)
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
	result, err := r.db.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrDocumentNotFound
	}

	return nil
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		doc       domain.Document
		id        string
		fileID    string
		createdAt string
	)

	err := row.Scan(
		&id,
		&doc.Title,
		&doc.Author,
		&doc.Price,
		&doc.Category,
		&doc.Description,
		&fileID,
		&doc.Filename,
		&doc.ContentType,
		&doc.Size,
		&doc.Locked,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if doc.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid stored document id %q: %w", id, err)
	}
	if doc.FileID, err = uuid.Parse(fileID); err != nil {
		return nil, fmt.Errorf("invalid stored file id %q: %w", fileID, err)
	}
	if doc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &doc, nil
}

var _ repository.DocumentRepository = (*documentRepository)(nil)
