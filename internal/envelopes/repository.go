package envelopes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, env *Envelope) error
	Get(ctx context.Context, id uuid.UUID) (*Envelope, error)
	List(ctx context.Context, ownerEmail string, limit, offset int) ([]Envelope, error)
	Save(ctx context.Context, env *Envelope) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListStale(ctx context.Context, statuses []Status, cutoff time.Time, limit int) ([]Envelope, error)

	AddDocument(ctx context.Context, doc *Document) error
	SaveDocument(ctx context.Context, doc *Document) error
	DeleteDocument(ctx context.Context, envelopeID, id uuid.UUID) error

	AddSigner(ctx context.Context, signer *Signer) error
	SaveSigner(ctx context.Context, signer *Signer) error
	DeleteSigner(ctx context.Context, envelopeID, id uuid.UUID) error

	AddField(ctx context.Context, field *Field) error
	SaveField(ctx context.Context, field *Field) error
	DeleteField(ctx context.Context, envelopeID, id uuid.UUID) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Migrate creates or updates the envelope tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Envelope{}, &Document{}, &Signer{}, &Field{}); err != nil {
		return fmt.Errorf("failed to migrate envelope tables: %w", err)
	}
	return nil
}

func (r *gormRepository) Create(ctx context.Context, env *Envelope) error {
	return r.db.WithContext(ctx).Omit("Documents", "Signers", "Fields").Create(env).Error
}

// Get loads an envelope with its documents, signers and fields. It returns
// nil, nil when the envelope does not exist.
func (r *gormRepository) Get(ctx context.Context, id uuid.UUID) (*Envelope, error) {
	var env Envelope
	err := r.db.WithContext(ctx).
		Preload("Documents", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") }).
		Preload("Signers", func(db *gorm.DB) *gorm.DB { return db.Order("routing_order, created_at") }).
		Preload("Fields").
		First(&env, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (r *gormRepository) List(ctx context.Context, ownerEmail string, limit, offset int) ([]Envelope, error) {
	var envs []Envelope
	err := r.db.WithContext(ctx).
		Where("owner_email = ?", ownerEmail).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&envs).Error
	if err != nil {
		return nil, err
	}
	return envs, nil
}

func (r *gormRepository) Save(ctx context.Context, env *Envelope) error {
	return r.db.WithContext(ctx).Omit("Documents", "Signers", "Fields").Save(env).Error
}

func (r *gormRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&Field{}, &Signer{}, &Document{}} {
			if err := tx.Where("envelope_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&Envelope{}, "id = ?", id).Error
	})
}

func (r *gormRepository) ListStale(ctx context.Context, statuses []Status, cutoff time.Time, limit int) ([]Envelope, error) {
	var envs []Envelope
	err := r.db.WithContext(ctx).
		Preload("Documents").
		Where("status IN ? AND updated_at < ?", statuses, cutoff).
		Order("updated_at").
		Limit(limit).
		Find(&envs).Error
	return envs, err
}

func (r *gormRepository) AddDocument(ctx context.Context, doc *Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *gormRepository) SaveDocument(ctx context.Context, doc *Document) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

func (r *gormRepository) DeleteDocument(ctx context.Context, envelopeID, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("envelope_id = ? AND document_id = ?", envelopeID, id).Delete(&Field{}).Error; err != nil {
			return err
		}
		return tx.Where("envelope_id = ? AND id = ?", envelopeID, id).Delete(&Document{}).Error
	})
}

func (r *gormRepository) AddSigner(ctx context.Context, signer *Signer) error {
	return r.db.WithContext(ctx).Create(signer).Error
}

func (r *gormRepository) SaveSigner(ctx context.Context, signer *Signer) error {
	return r.db.WithContext(ctx).Save(signer).Error
}

func (r *gormRepository) DeleteSigner(ctx context.Context, envelopeID, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("envelope_id = ? AND signer_id = ?", envelopeID, id).Delete(&Field{}).Error; err != nil {
			return err
		}
		return tx.Where("envelope_id = ? AND id = ?", envelopeID, id).Delete(&Signer{}).Error
	})
}

func (r *gormRepository) AddField(ctx context.Context, field *Field) error {
	return r.db.WithContext(ctx).Create(field).Error
}

func (r *gormRepository) SaveField(ctx context.Context, field *Field) error {
	return r.db.WithContext(ctx).Save(field).Error
}

func (r *gormRepository) DeleteField(ctx context.Context, envelopeID, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("envelope_id = ? AND id = ?", envelopeID, id).Delete(&Field{}).Error
}
