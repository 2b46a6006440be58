package documents

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Schema creates the history table.
const Schema = `
CREATE TABLE IF NOT EXISTS signed_documents (
	id          UUID PRIMARY KEY,
	title       TEXT NOT NULL,
	filename    TEXT NOT NULL,
	source_kind TEXT NOT NULL,
	page_count  INTEGER NOT NULL,
	size_bytes  BIGINT NOT NULL,
	s3_bucket   TEXT NOT NULL,
	s3_key      TEXT NOT NULL,
	owner_email TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS signed_documents_created_at_idx ON signed_documents (created_at);
CREATE INDEX IF NOT EXISTS signed_documents_owner_idx ON signed_documents (owner_email, created_at DESC);
`

type Repository interface {
	CreateSignedDocument(ctx context.Context, doc *SignedDocument) error
	GetSignedDocument(ctx context.Context, id uuid.UUID) (*SignedDocument, error)
	ListSignedDocuments(ctx context.Context, ownerEmail string, limit, offset int) ([]SignedDocument, error)
	DeleteSignedDocument(ctx context.Context, id uuid.UUID) error
	ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]SignedDocument, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

func (r *postgresRepository) CreateSignedDocument(ctx context.Context, doc *SignedDocument) error {
	query := `
		INSERT INTO signed_documents (
			id, title, filename, source_kind, page_count, size_bytes,
			s3_bucket, s3_key, owner_email, created_at
		) VALUES (
			:id, :title, :filename, :source_kind, :page_count, :size_bytes,
			:s3_bucket, :s3_key, :owner_email, :created_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, doc)
	return err
}

func (r *postgresRepository) GetSignedDocument(ctx context.Context, id uuid.UUID) (*SignedDocument, error) {
	var doc SignedDocument
	err := r.db.GetContext(ctx, &doc, "SELECT * FROM signed_documents WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *postgresRepository) ListSignedDocuments(ctx context.Context, ownerEmail string, limit, offset int) ([]SignedDocument, error) {
	docs := []SignedDocument{}
	query := "SELECT * FROM signed_documents WHERE owner_email = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3"
	err := r.db.SelectContext(ctx, &docs, query, ownerEmail, limit, offset)
	return docs, err
}

func (r *postgresRepository) DeleteSignedDocument(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM signed_documents WHERE id = $1", id)
	return err
}

func (r *postgresRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]SignedDocument, error) {
	docs := []SignedDocument{}
	err := r.db.SelectContext(ctx, &docs,
		"SELECT * FROM signed_documents WHERE created_at < $1 ORDER BY created_at LIMIT $2", cutoff, limit)
	return docs, err
}
