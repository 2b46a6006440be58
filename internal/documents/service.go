package documents

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("signed document not found")

// Processor runs documents through the signing pipeline. *Pipeline
// implements it.
type Processor interface {
	Preview(ctx context.Context, data []byte) ([]PreviewPage, SourceKind, error)
	Run(ctx context.Context, job SignJob) (*SignResult, error)
}

type Service interface {
	Preview(ctx context.Context, data []byte) (*PreviewResult, error)
	Sign(ctx context.Context, req SignRequest) (*SignedDocument, *SignResult, error)
	ListHistory(ctx context.Context, ownerEmail string, limit, offset int) ([]SignedDocument, error)
	GetHistory(ctx context.Context, ownerEmail string, id uuid.UUID) (*SignedDocument, error)
	Download(ctx context.Context, ownerEmail string, id uuid.UUID) (*SignedDocument, io.ReadCloser, error)
	DeleteHistory(ctx context.Context, ownerEmail string, id uuid.UUID) error
	PurgeExpired(ctx context.Context, cutoff time.Time, batch int) (int, error)
}

type SignRequest struct {
	Title      string
	Filename   string
	Data       []byte
	Overlays   []Overlay
	OwnerEmail string
}

type PreviewResult struct {
	Kind  SourceKind         `json:"kind"`
	Pages []PreviewPageImage `json:"pages"`
}

type PreviewPageImage struct {
	Number int    `json:"number"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

type documentService struct {
	repo      Repository
	storage   *StorageProvider
	processor Processor
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(repo Repository, storage *StorageProvider, processor Processor, logger *zap.Logger) Service {
	return &documentService{
		repo:      repo,
		storage:   storage,
		processor: processor,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *documentService) Preview(ctx context.Context, data []byte) (*PreviewResult, error) {
	pages, kind, err := s.processor.Preview(ctx, data)
	if err != nil {
		return nil, err
	}
	result := &PreviewResult{Kind: kind, Pages: make([]PreviewPageImage, len(pages))}
	for i, p := range pages {
		result.Pages[i] = PreviewPageImage{
			Number: p.Number,
			Width:  p.Width,
			Height: p.Height,
			URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(p.JPEG),
		}
	}
	return result, nil
}

func (s *documentService) Sign(ctx context.Context, req SignRequest) (*SignedDocument, *SignResult, error) {
	result, err := s.processor.Run(ctx, SignJob{
		Title:    req.Title,
		Filename: req.Filename,
		Data:     req.Data,
		Overlays: req.Overlays,
	})
	if err != nil {
		return nil, nil, err
	}

	id := uuid.New()
	key := s.storage.SignedKey(id, result.Filename)
	if err := s.storage.UploadPDF(ctx, key, result.PDF); err != nil {
		return nil, nil, fmt.Errorf("failed to store signed document: %w", err)
	}

	doc := &SignedDocument{
		ID:         id,
		Title:      req.Title,
		Filename:   result.Filename,
		SourceKind: result.Kind,
		PageCount:  result.Pages,
		SizeBytes:  int64(len(result.PDF)),
		S3Bucket:   s.storage.Bucket(),
		S3Key:      key,
		OwnerEmail: req.OwnerEmail,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.CreateSignedDocument(ctx, doc); err != nil {
		if delErr := s.storage.Delete(ctx, doc.S3Bucket, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned object", zap.String("key", key), zap.Error(delErr))
		}
		return nil, nil, fmt.Errorf("failed to record signed document: %w", err)
	}

	s.logger.Info("Document signed",
		zap.String("id", id.String()),
		zap.String("filename", doc.Filename),
		zap.Int("pages", doc.PageCount))
	return doc, result, nil
}

func (s *documentService) ListHistory(ctx context.Context, ownerEmail string, limit, offset int) ([]SignedDocument, error) {
	if ownerEmail == "" {
		return []SignedDocument{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListSignedDocuments(ctx, ownerEmail, limit, offset)
}

// GetHistory returns a record owned by ownerEmail. Records of other owners
// and anonymous records are reported as ErrNotFound.
func (s *documentService) GetHistory(ctx context.Context, ownerEmail string, id uuid.UUID) (*SignedDocument, error) {
	doc, err := s.repo.GetSignedDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || ownerEmail == "" || doc.OwnerEmail != ownerEmail {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (s *documentService) Download(ctx context.Context, ownerEmail string, id uuid.UUID) (*SignedDocument, io.ReadCloser, error) {
	doc, err := s.GetHistory(ctx, ownerEmail, id)
	if err != nil {
		return nil, nil, err
	}
	body, err := s.storage.Download(ctx, doc.S3Bucket, doc.S3Key)
	if err != nil {
		return nil, nil, err
	}
	return doc, body, nil
}

func (s *documentService) DeleteHistory(ctx context.Context, ownerEmail string, id uuid.UUID) error {
	doc, err := s.GetHistory(ctx, ownerEmail, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, doc)
}

// PurgeExpired deletes up to batch records created before cutoff along with
// their stored objects. It stops at the first failure.
func (s *documentService) PurgeExpired(ctx context.Context, cutoff time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	docs, err := s.repo.ListCreatedBefore(ctx, cutoff, batch)
	if err != nil {
		return 0, err
	}
	purged := 0
	for i := range docs {
		if err := s.remove(ctx, &docs[i]); err != nil {
			return purged, fmt.Errorf("failed to purge %s: %w", docs[i].ID, err)
		}
		purged++
	}
	return purged, nil
}

func (s *documentService) remove(ctx context.Context, doc *SignedDocument) error {
	if err := s.storage.Delete(ctx, doc.S3Bucket, doc.S3Key); err != nil {
		return err
	}
	return s.repo.DeleteSignedDocument(ctx, doc.ID)
}
