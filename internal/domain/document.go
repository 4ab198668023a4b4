package domain

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultAuthor is recorded when a document is uploaded without an author.
const DefaultAuthor = "Unknown"

// Document is the descriptive metadata record of one uploaded file.
// It references its blob by id; the blob is not owned through this struct.
type Document struct {
	// ID is the unique document identifier (distinct from FileID).
	ID uuid.UUID `json:"id"`

	// Title is required and non-empty.
	Title string `json:"title"`

	// Author defaults to "Unknown".
	Author string `json:"author"`

	// Price is non-negative; 0 means free.
	Price float64 `json:"price"`

	// Category is required.
	Category string `json:"category"`

	// Description is optional free text.
	Description string `json:"description"`

	// FileID references the blob holding the file content.
	FileID uuid.UUID `json:"fileId"`

	// Filename is the original filename for display.
	Filename string `json:"filename"`

	// ContentType is the MIME type of the stored file.
	ContentType string `json:"contentType"`

	// Size is the stored file length in bytes.
	Size int64 `json:"size"`

	// CreatedAt is set once at creation and never changes.
	CreatedAt time.Time `json:"createdAt"`

	// Locked is derived at creation as Price > 0 and stored as-is.
	Locked bool `json:"locked"`
}

// DocumentFields holds the raw form fields of an upload.
// Price is kept as text so that normalization happens in one place.
type DocumentFields struct {
	Title       string
	Author      string
	Price       string
	Category    string
	Description string
}

// ParsePrice normalizes a submitted price.
// Missing, non-numeric and non-finite values become 0. Validate rejects
// values too large for a float64 before they get here.
func ParsePrice(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0
	}
	return price
}

// Validate checks the required fields and value ranges.
func (f DocumentFields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(f.Category) == "" {
		return ErrCategoryRequired
	}
	return checkPrice(f.Price)
}

func checkPrice(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	// Overflow yields ±Inf together with strconv.ErrRange.
	price, err := strconv.ParseFloat(raw, 64)
	if math.IsInf(price, 0) {
		return ErrPriceOutOfRange
	}
	if err != nil || math.IsNaN(price) {
		return nil
	}
	if price < 0 {
		return ErrNegativePrice
	}
	return nil
}

// NewDocument builds a validated document for the given blob.
// Defaults are applied and Locked is derived from the normalized price.
func NewDocument(fields DocumentFields, blob *Blob, now time.Time) (*Document, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	if blob == nil || blob.ID == uuid.Nil {
		return nil, ErrMissingBlobReference
	}

	author := strings.TrimSpace(fields.Author)
	if author == "" {
		author = DefaultAuthor
	}
	price := ParsePrice(fields.Price)

	return &Document{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(fields.Title),
		Author:      author,
		Price:       price,
		Category:    strings.TrimSpace(fields.Category),
		Description: fields.Description,
		FileID:      blob.ID,
		Filename:    blob.Filename,
		ContentType: blob.ContentType,
		Size:        blob.Length,
		CreatedAt:   now.UTC(),
		Locked:      price > 0,
	}, nil
}

// ParseID parses a document or blob identifier.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, NewDomainError(ErrMalformedID, err.Error(), raw)
	}
	return id, nil
}
