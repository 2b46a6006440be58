package envelopes

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/documents"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/placement"
)

// Status is the lifecycle state of an envelope.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusCompleted Status = "completed"
	StatusVoided    Status = "voided"
)

// Step is the e-sign wizard screen an envelope is on.
type Step string

const (
	StepLanding          Step = "landing"
	StepCreateDocuments  Step = "create_documents"
	StepCreateRecipients Step = "create_recipients"
	StepCreateFields     Step = "create_fields"
	StepDashboard        Step = "dashboard"
	StepSignerView       Step = "signer_view"
)

type SignerStatus string

const (
	SignerPending SignerStatus = "pending"
	SignerSent    SignerStatus = "sent"
	SignerViewed  SignerStatus = "viewed"
	SignerSigned  SignerStatus = "signed"
)

type FieldType string

const (
	FieldSignature FieldType = "signature"
	FieldStamp     FieldType = "stamp"
	FieldDate      FieldType = "date"
	FieldText      FieldType = "text"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldSignature, FieldStamp, FieldDate, FieldText:
		return true
	}
	return false
}

// Envelope groups documents sent to signers for signature.
type Envelope struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Title       string     `json:"title" gorm:"not null"`
	Message     string     `json:"message"`
	OwnerEmail  string     `json:"owner_email" gorm:"index"`
	Status      Status     `json:"status" gorm:"default:'draft';index"`
	Step        Step       `json:"step" gorm:"default:'landing'"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	VoidedAt    *time.Time `json:"voided_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime;index"`

	Documents []Document `json:"documents" gorm:"foreignKey:EnvelopeID;constraint:OnDelete:CASCADE"`
	Signers   []Signer   `json:"signers" gorm:"foreignKey:EnvelopeID;constraint:OnDelete:CASCADE"`
	Fields    []Field    `json:"fields" gorm:"foreignKey:EnvelopeID;constraint:OnDelete:CASCADE"`
}

// Document is a file attached to an envelope.
type Document struct {
	ID          uuid.UUID            `json:"id" gorm:"type:uuid;primaryKey"`
	EnvelopeID  uuid.UUID            `json:"envelope_id" gorm:"type:uuid;not null;index"`
	Filename    string               `json:"filename" gorm:"not null"`
	Kind        documents.SourceKind `json:"kind"`
	Pages       int                  `json:"pages"`
	SizeBytes   int64                `json:"size_bytes"`
	S3Key       string               `json:"-"`
	SignedS3Key string               `json:"-"`
	Signed      bool                 `json:"signed" gorm:"-"`
	CreatedAt   time.Time            `json:"created_at" gorm:"autoCreateTime"`
}

// Signer is a recipient who must sign. Lower routing orders sign first;
// signers sharing an order sign in parallel.
type Signer struct {
	ID             uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	EnvelopeID     uuid.UUID    `json:"envelope_id" gorm:"type:uuid;not null;index"`
	Name           string       `json:"name" gorm:"not null"`
	Email          string       `json:"email" gorm:"not null"`
	RoutingOrder   int          `json:"routing_order" gorm:"default:1"`
	Status         SignerStatus `json:"status" gorm:"default:'pending'"`
	AccessCodeHash string       `json:"-"`
	ViewedAt       *time.Time   `json:"viewed_at,omitempty"`
	SignedAt       *time.Time   `json:"signed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at" gorm:"autoCreateTime"`
}

// RequiresAccessCode reports whether the signer must enter a code.
func (s Signer) RequiresAccessCode() bool {
	return s.AccessCodeHash != ""
}

// Field is a spot on a document page a signer fills in.
type Field struct {
	ID         uuid.UUID                               `json:"id" gorm:"type:uuid;primaryKey"`
	EnvelopeID uuid.UUID                               `json:"envelope_id" gorm:"type:uuid;not null;index"`
	DocumentID uuid.UUID                               `json:"document_id" gorm:"type:uuid;not null"`
	SignerID   uuid.UUID                               `json:"signer_id" gorm:"type:uuid;not null"`
	Type       FieldType                               `json:"type" gorm:"not null"`
	Page       int                                     `json:"page" gorm:"not null"`
	Placement  datatypes.JSONType[placement.Placement] `json:"placement" gorm:"type:jsonb"`
	Stamp      datatypes.JSON                          `json:"stamp,omitempty" gorm:"type:jsonb"`
	Value      string                                  `json:"value,omitempty"`
	FilledAt   *time.Time                              `json:"filled_at,omitempty"`
}

// SignerView is what a signer sees after opening their link.
type SignerView struct {
	EnvelopeID uuid.UUID  `json:"envelope_id"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Step       Step       `json:"step"`
	Signer     Signer     `json:"signer"`
	Documents  []Document `json:"documents"`
	Fields     []Field    `json:"fields"`
}
