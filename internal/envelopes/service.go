package envelopes

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/mail"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/documents"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/placement"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/filename"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/security"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/workflows"
)

var (
	ErrNotFound         = errors.New("envelope not found")
	ErrNotDraft         = errors.New("envelope is no longer a draft")
	ErrNotSent          = errors.New("envelope is not out for signature")
	ErrIncomplete       = errors.New("envelope is incomplete")
	ErrInvalidInput     = errors.New("invalid input")
	ErrAlreadySigned    = errors.New("signer has already signed")
	ErrNotYourTurn      = errors.New("earlier signers have not signed yet")
	ErrAccessDenied     = errors.New("access code required or incorrect")
	ErrSignedDocMissing = errors.New("signed document not available")
)

const dateLayout = "02/01/2006"

// Storage holds original and signed envelope documents.
type Storage interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
	Bucket() string
}

// Options tunes the envelope service.
type Options struct {
	PublicBaseURL string
	LinkTTL       time.Duration
}

type SignerInput struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required"`
	RoutingOrder int    `json:"routing_order"`
	AccessCode   string `json:"access_code"`
}

type FieldInput struct {
	DocumentID uuid.UUID           `json:"document_id" binding:"required"`
	SignerID   uuid.UUID           `json:"signer_id" binding:"required"`
	Type       FieldType           `json:"type" binding:"required"`
	Page       int                 `json:"page"`
	Placement  placement.Placement `json:"placement"`
	Stamp      *stamp.StampConfig  `json:"stamp,omitempty"`
}

// Service runs the e-sign wizard and the signing ceremony.
type Service struct {
	repo      Repository
	storage   Storage
	processor documents.Processor
	tokens    *security.TokenIssuer
	notifier  Notifier
	wizard    *workflows.StateMachine
	options   Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewWizard returns the e-sign step machine. The signer view is entered
// from the dashboard through a signed link and leads back to it.
func NewWizard() *workflows.StateMachine {
	return workflows.NewStateMachine(string(StepLanding), map[string][]string{
		string(StepLanding):          {string(StepCreateDocuments)},
		string(StepCreateDocuments):  {string(StepCreateRecipients), string(StepLanding)},
		string(StepCreateRecipients): {string(StepCreateFields), string(StepCreateDocuments)},
		string(StepCreateFields):     {string(StepDashboard), string(StepCreateRecipients)},
		string(StepDashboard):        {string(StepSignerView), string(StepLanding)},
		string(StepSignerView):       {string(StepDashboard)},
	})
}

func NewService(repo Repository, storage Storage, processor documents.Processor, tokens *security.TokenIssuer, notifier Notifier, options Options, logger *zap.Logger) *Service {
	if options.LinkTTL <= 0 {
		options.LinkTTL = 7 * 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		storage:   storage,
		processor: processor,
		tokens:    tokens,
		notifier:  notifier,
		wizard:    NewWizard(),
		options:   options,
		logger:    logger,
		now:       time.Now,
	}
}

// Create opens a draft envelope on the documents step.
func (s *Service) Create(ctx context.Context, ownerEmail, title, message string) (*Envelope, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if err := s.wizard.Transition(s.wizard.Initial(), string(StepCreateDocuments)); err != nil {
		return nil, err
	}
	env := &Envelope{
		ID:         uuid.New(),
		Title:      title,
		Message:    strings.TrimSpace(message),
		OwnerEmail: ownerEmail,
		Status:     StatusDraft,
		Step:       StepCreateDocuments,
		Documents:  []Document{},
		Signers:    []Signer{},
		Fields:     []Field{},
	}
	if err := s.repo.Create(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to create envelope: %w", err)
	}
	return env, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Envelope, error) {
	env, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, ErrNotFound
	}
	for i := range env.Documents {
		env.Documents[i].Signed = env.Documents[i].SignedS3Key != ""
	}
	return env, nil
}

// Owned returns the envelope when ownerEmail created it. Envelopes of other
// owners are reported as ErrNotFound.
func (s *Service) Owned(ctx context.Context, ownerEmail string, id uuid.UUID) (*Envelope, error) {
	env, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerEmail == "" || env.OwnerEmail != ownerEmail {
		return nil, ErrNotFound
	}
	return env, nil
}

func (s *Service) List(ctx context.Context, ownerEmail string, limit, offset int) ([]Envelope, error) {
	if ownerEmail == "" {
		return []Envelope{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, ownerEmail, limit, offset)
}

func (s *Service) draft(ctx context.Context, id uuid.UUID) (*Envelope, error) {
	env, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if env.Status != StatusDraft {
		return nil, ErrNotDraft
	}
	return env, nil
}

// MoveTo changes the wizard step of a draft. The dashboard is reached
// through Send only.
func (s *Service) MoveTo(ctx context.Context, id uuid.UUID, step Step) (*Envelope, error) {
	env, err := s.draft(ctx, id)
	if err != nil {
		return nil, err
	}
	if step == StepDashboard || step == StepSignerView {
		return nil, fmt.Errorf("%w: %s -> %s", workflows.ErrInvalidTransition, env.Step, step)
	}
	if err := s.wizard.Transition(string(env.Step), string(step)); err != nil {
		return nil, err
	}
	switch {
	case step == StepCreateRecipients && len(env.Documents) == 0:
		return nil, fmt.Errorf("%w: add a document first", ErrIncomplete)
	case step == StepCreateFields && len(env.Signers) == 0:
		return nil, fmt.Errorf("%w: add a signer first", ErrIncomplete)
	}
	env.Step = step
	if err := s.repo.Save(ctx, env); err != nil {
		return nil, err
	}
	return env, nil
}

// AddDocument uploads a file to a draft envelope.
func (s *Service) AddDocument(ctx context.Context, id uuid.UUID, name string, data []byte) (*Document, error) {
	env, err := s.draft(ctx, id)
	if err != nil {
		return nil, err
	}
	kind, err := documents.DetectKind(data)
	if err != nil {
		return nil, err
	}
	pages, err := documents.CountPages(data)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		ID:         uuid.New(),
		EnvelopeID: env.ID,
		Filename:   name,
		Kind:       kind,
		Pages:      pages,
		SizeBytes:  int64(len(data)),
	}
	safe := filename.WithSuffix(strings.TrimSuffix(name, path.Ext(name)), strings.ToLower(path.Ext(name)), "document")
	doc.S3Key = fmt.Sprintf("envelopes/%s/%s/%s", env.ID, doc.ID, safe)
	if err := s.storage.Upload(ctx, doc.S3Key, contentType(kind), data); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	if err := s.repo.AddDocument(ctx, doc); err != nil {
		s.dropObject(ctx, doc.S3Key)
		return nil, fmt.Errorf("failed to record document: %w", err)
	}
	return doc, nil
}

func (s *Service) RemoveDocument(ctx context.Context, id, documentID uuid.UUID) error {
	env, err := s.draft(ctx, id)
	if err != nil {
		return err
	}
	doc := findDocument(env, documentID)
	if doc == nil {
		return ErrNotFound
	}
	if err := s.repo.DeleteDocument(ctx, env.ID, doc.ID); err != nil {
		return err
	}
	s.dropObject(ctx, doc.S3Key)
	return nil
}

// AddSigner adds a recipient. An access code, when given, is stored as a
// bcrypt hash.
func (s *Service) AddSigner(ctx context.Context, id uuid.UUID, in SignerInput) (*Signer, error) {
	env, err := s.draft(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if name == "" || err != nil {
		return nil, fmt.Errorf("%w: signer needs a name and a valid email", ErrInvalidInput)
	}
	for _, existing := range env.Signers {
		if strings.EqualFold(existing.Email, addr.Address) {
			return nil, fmt.Errorf("%w: %s is already a signer", ErrInvalidInput, addr.Address)
		}
	}
	order := in.RoutingOrder
	if order <= 0 {
		order = 1
	}

	signer := &Signer{
		ID:           uuid.New(),
		EnvelopeID:   env.ID,
		Name:         name,
		Email:        addr.Address,
		RoutingOrder: order,
		Status:       SignerPending,
	}
	if code := strings.TrimSpace(in.AccessCode); code != "" {
		hash, err := security.HashAccessCode(code)
		if err != nil {
			return nil, err
		}
		signer.AccessCodeHash = hash
	}
	if err := s.repo.AddSigner(ctx, signer); err != nil {
		return nil, fmt.Errorf("failed to add signer: %w", err)
	}
	return signer, nil
}

func (s *Service) RemoveSigner(ctx context.Context, id, signerID uuid.UUID) error {
	env, err := s.draft(ctx, id)
	if err != nil {
		return err
	}
	if findSigner(env, signerID) == nil {
		return ErrNotFound
	}
	return s.repo.DeleteSigner(ctx, env.ID, signerID)
}

// AddField places a field for a signer on a document page.
func (s *Service) AddField(ctx context.Context, id uuid.UUID, in FieldInput) (*Field, error) {
	env, err := s.draft(ctx, id)
	if err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown field type %q", ErrInvalidInput, in.Type)
	}
	doc := findDocument(env, in.DocumentID)
	if doc == nil {
		return nil, fmt.Errorf("%w: document is not part of this envelope", ErrInvalidInput)
	}
	if findSigner(env, in.SignerID) == nil {
		return nil, fmt.Errorf("%w: signer is not part of this envelope", ErrInvalidInput)
	}
	page := in.Page
	if page == 0 {
		page = 1
	}
	if page < 1 || page > doc.Pages {
		return nil, fmt.Errorf("%w: page %d of %d", ErrInvalidInput, page, doc.Pages)
	}
	if in.Placement.WidthPercent <= 0 {
		return nil, fmt.Errorf("%w: field width is required", ErrInvalidInput)
	}

	field := &Field{
		ID:         uuid.New(),
		EnvelopeID: env.ID,
		DocumentID: doc.ID,
		SignerID:   in.SignerID,
		Type:       in.Type,
		Page:       page,
		Placement:  datatypes.NewJSONType(in.Placement),
	}
	if in.Type == FieldStamp {
		cfg := stamp.DefaultConfig()
		if in.Stamp != nil {
			cfg = in.Stamp.Normalize()
		}
		raw, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		field.Stamp = datatypes.JSON(raw)
	}
	if err := s.repo.AddField(ctx, field); err != nil {
		return nil, fmt.Errorf("failed to add field: %w", err)
	}
	return field, nil
}

func (s *Service) RemoveField(ctx context.Context, id, fieldID uuid.UUID) error {
	env, err := s.draft(ctx, id)
	if err != nil {
		return err
	}
	for _, f := range env.Fields {
		if f.ID == fieldID {
			return s.repo.DeleteField(ctx, env.ID, fieldID)
		}
	}
	return ErrNotFound
}

// Send moves a complete draft to the dashboard and invites the first
// routing group.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (*Envelope, error) {
	env, err := s.draft(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.wizard.Transition(string(env.Step), string(StepDashboard)); err != nil {
		return nil, err
	}
	if err := validateForSend(env); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	env.Status = StatusSent
	env.Step = StepDashboard
	env.SentAt = &now
	if err := s.repo.Save(ctx, env); err != nil {
		return nil, err
	}
	if err := s.inviteNext(ctx, env); err != nil {
		return nil, err
	}
	s.logger.Info("Envelope sent", zap.String("envelope_id", env.ID.String()), zap.Int("signers", len(env.Signers)))
	return env, nil
}

func validateForSend(env *Envelope) error {
	if len(env.Documents) == 0 {
		return fmt.Errorf("%w: no documents", ErrIncomplete)
	}
	if len(env.Signers) == 0 {
		return fmt.Errorf("%w: no signers", ErrIncomplete)
	}
	for _, signer := range env.Signers {
		if len(fieldsFor(env, signer.ID)) == 0 {
			return fmt.Errorf("%w: %s has no fields", ErrIncomplete, signer.Email)
		}
	}
	return nil
}

// inviteNext invites the pending signers of the lowest routing order that
// still has unsigned signers.
func (s *Service) inviteNext(ctx context.Context, env *Envelope) error {
	order := nextRoutingOrder(env)
	if order == 0 {
		return nil
	}
	for i := range env.Signers {
		signer := &env.Signers[i]
		if signer.RoutingOrder != order || signer.Status != SignerPending {
			continue
		}
		link, err := s.SignerLink(env, signer)
		if err != nil {
			return err
		}
		if err := s.notifier.InviteSigner(ctx, env, signer, link); err != nil {
			return fmt.Errorf("failed to invite %s: %w", signer.Email, err)
		}
		signer.Status = SignerSent
		if err := s.repo.SaveSigner(ctx, signer); err != nil {
			return err
		}
	}
	return nil
}

func nextRoutingOrder(env *Envelope) int {
	order := 0
	for _, signer := range env.Signers {
		if signer.Status == SignerSigned {
			continue
		}
		if order == 0 || signer.RoutingOrder < order {
			order = signer.RoutingOrder
		}
	}
	return order
}

// SignerLink builds the signed signer-view URL for signer.
func (s *Service) SignerLink(env *Envelope, signer *Signer) (string, error) {
	token, err := s.tokens.Issue(signer.ID.String(), security.PurposeSignerView, s.options.LinkTTL, security.Claims{
		Email:      signer.Email,
		Name:       signer.Name,
		EnvelopeID: env.ID.String(),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimRight(s.options.PublicBaseURL, "/") + "/sign?token=" + url.QueryEscape(token), nil
}

// authorize resolves a signer link and checks the access code.
func (s *Service) authorize(ctx context.Context, token, accessCode string) (*Envelope, *Signer, error) {
	claims, err := s.tokens.Verify(token, security.PurposeSignerView)
	if err != nil {
		return nil, nil, err
	}
	envID, err := uuid.Parse(claims.EnvelopeID)
	if err != nil {
		return nil, nil, security.ErrInvalidToken
	}
	signerID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil, security.ErrInvalidToken
	}

	env, err := s.Get(ctx, envID)
	if err != nil {
		return nil, nil, err
	}
	if env.Status != StatusSent {
		return nil, nil, ErrNotSent
	}
	signer := findSigner(env, signerID)
	if signer == nil {
		return nil, nil, ErrNotFound
	}
	if signer.RequiresAccessCode() {
		if err := security.CheckAccessCode(signer.AccessCodeHash, accessCode); err != nil {
			return nil, nil, ErrAccessDenied
		}
	}
	return env, signer, nil
}

// OpenSignerView returns the documents and fields of the signer behind token.
func (s *Service) OpenSignerView(ctx context.Context, token, accessCode string) (*SignerView, error) {
	env, signer, err := s.authorize(ctx, token, accessCode)
	if err != nil {
		return nil, err
	}
	if err := s.wizard.Transition(string(env.Step), string(StepSignerView)); err != nil {
		return nil, err
	}
	if signer.Status == SignerSent || signer.Status == SignerPending {
		now := s.now().UTC()
		signer.Status = SignerViewed
		signer.ViewedAt = &now
		if err := s.repo.SaveSigner(ctx, signer); err != nil {
			return nil, err
		}
	}
	return &SignerView{
		EnvelopeID: env.ID,
		Title:      env.Title,
		Message:    env.Message,
		Step:       StepSignerView,
		Signer:     *signer,
		Documents:  env.Documents,
		Fields:     fieldsFor(env, signer.ID),
	}, nil
}

// DocumentForSigner streams an original document to a signer.
func (s *Service) DocumentForSigner(ctx context.Context, token, accessCode string, documentID uuid.UUID) (*Document, io.ReadCloser, error) {
	env, _, err := s.authorize(ctx, token, accessCode)
	if err != nil {
		return nil, nil, err
	}
	doc := findDocument(env, documentID)
	if doc == nil {
		return nil, nil, ErrNotFound
	}
	body, err := s.storage.Download(ctx, s.storage.Bucket(), doc.S3Key)
	if err != nil {
		return nil, nil, err
	}
	return doc, body, nil
}

// Complete fills the signer's fields with values keyed by field id. When
// the last signer completes, every document is composed and the envelope
// is completed; otherwise the next routing group is invited.
func (s *Service) Complete(ctx context.Context, token, accessCode string, values map[uuid.UUID]string) (*Envelope, error) {
	env, signer, err := s.authorize(ctx, token, accessCode)
	if err != nil {
		return nil, err
	}
	if signer.Status == SignerSigned {
		return nil, ErrAlreadySigned
	}
	if signer.RoutingOrder != nextRoutingOrder(env) {
		return nil, ErrNotYourTurn
	}

	now := s.now().UTC()
	for i := range env.Fields {
		field := &env.Fields[i]
		if field.SignerID != signer.ID {
			continue
		}
		value, err := fieldValue(field.Type, values[field.ID], now)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.ID, err)
		}
		field.Value = value
		field.FilledAt = &now
	}
	signer.Status = SignerSigned
	signer.SignedAt = &now

	// The last signer's values are only persisted once every document has
	// been composed, so a failed composition can be retried.
	last := nextRoutingOrder(env) == 0
	if last {
		if err := s.compose(ctx, env); err != nil {
			return nil, err
		}
	}
	for i := range env.Fields {
		if env.Fields[i].SignerID == signer.ID {
			if err := s.repo.SaveField(ctx, &env.Fields[i]); err != nil {
				return nil, err
			}
		}
	}
	if err := s.repo.SaveSigner(ctx, signer); err != nil {
		return nil, err
	}
	s.logger.Info("Signer completed",
		zap.String("envelope_id", env.ID.String()),
		zap.String("signer", signer.Email))

	if !last {
		if err := s.inviteNext(ctx, env); err != nil {
			return nil, err
		}
		return env, nil
	}
	if err := s.markCompleted(ctx, env); err != nil {
		return nil, err
	}
	return env, nil
}

func fieldValue(t FieldType, value string, now time.Time) (string, error) {
	value = strings.TrimSpace(value)
	switch t {
	case FieldSignature:
		if err := checkSignatureImage(value); err != nil {
			return "", err
		}
	case FieldText:
		if value == "" {
			return "", fmt.Errorf("%w: text is required", ErrInvalidInput)
		}
	case FieldDate:
		if value == "" {
			value = now.Format(dateLayout)
		}
	case FieldStamp:
		value = ""
	}
	return value, nil
}

// checkSignatureImage accepts a base64 image or data: URI.
func checkSignatureImage(value string) error {
	if value == "" {
		return fmt.Errorf("%w: signature is required", ErrInvalidInput)
	}
	raw := value
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 {
			return fmt.Errorf("%w: malformed signature", ErrInvalidInput)
		}
		raw = raw[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", ErrInvalidInput)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: signature is not an image", ErrInvalidInput)
	}
	return nil
}

// compose renders every document with all filled fields. The first
// failing document aborts completion.
func (s *Service) compose(ctx context.Context, env *Envelope) error {
	for i := range env.Documents {
		doc := &env.Documents[i]
		overlays, err := overlaysFor(env, doc.ID)
		if err != nil {
			return err
		}
		data, err := s.read(ctx, doc.S3Key)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", doc.Filename, err)
		}
		result, err := s.processor.Run(ctx, documents.SignJob{
			Title:    strings.TrimSuffix(doc.Filename, path.Ext(doc.Filename)),
			Filename: doc.Filename,
			Data:     data,
			Overlays: overlays,
		})
		if err != nil {
			return fmt.Errorf("failed to compose %s: %w", doc.Filename, err)
		}
		key := fmt.Sprintf("envelopes/%s/%s/signed/%s", env.ID, doc.ID, result.Filename)
		if err := s.storage.Upload(ctx, key, "application/pdf", result.PDF); err != nil {
			return fmt.Errorf("failed to store %s: %w", result.Filename, err)
		}
		doc.SignedS3Key = key
		doc.Signed = true
		if err := s.repo.SaveDocument(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) markCompleted(ctx context.Context, env *Envelope) error {
	now := s.now().UTC()
	env.Status = StatusCompleted
	env.CompletedAt = &now
	if err := s.repo.Save(ctx, env); err != nil {
		return err
	}
	if err := s.notifier.EnvelopeCompleted(ctx, env); err != nil {
		s.logger.Warn("Failed to send completion notice", zap.String("envelope_id", env.ID.String()), zap.Error(err))
	}
	s.logger.Info("Envelope completed", zap.String("envelope_id", env.ID.String()))
	return nil
}

func (s *Service) read(ctx context.Context, key string) ([]byte, error) {
	body, err := s.storage.Download(ctx, s.storage.Bucket(), key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func overlaysFor(env *Envelope, documentID uuid.UUID) ([]documents.Overlay, error) {
	var overlays []documents.Overlay
	for _, f := range env.Fields {
		if f.DocumentID != documentID {
			continue
		}
		o := documents.Overlay{Placement: f.Placement.Data(), Page: f.Page}
		switch f.Type {
		case FieldSignature:
			o.Kind = documents.OverlaySignature
			o.Image = f.Value
		case FieldStamp:
			cfg := stamp.DefaultConfig()
			if len(f.Stamp) > 0 {
				if err := json.Unmarshal(f.Stamp, &cfg); err != nil {
					return nil, fmt.Errorf("field %s: %w", f.ID, err)
				}
			}
			o.Kind = documents.OverlayStamp
			o.Stamp = &cfg
		case FieldDate:
			o.Kind = documents.OverlayDate
			o.Text = f.Value
		case FieldText:
			o.Kind = documents.OverlayText
			o.Text = f.Value
		}
		overlays = append(overlays, o)
	}
	return overlays, nil
}

// Void cancels an envelope that has not completed.
func (s *Service) Void(ctx context.Context, id uuid.UUID) (*Envelope, error) {
	env, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch env.Status {
	case StatusCompleted:
		return nil, fmt.Errorf("%w: completed envelopes cannot be voided", workflows.ErrInvalidTransition)
	case StatusVoided:
		return env, nil
	}
	now := s.now().UTC()
	env.Status = StatusVoided
	env.VoidedAt = &now
	if err := s.repo.Save(ctx, env); err != nil {
		return nil, err
	}
	return env, nil
}

// Delete removes a draft or voided envelope and its stored files.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	env, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if env.Status != StatusDraft && env.Status != StatusVoided {
		return fmt.Errorf("%w: only drafts and voided envelopes can be deleted", workflows.ErrInvalidTransition)
	}
	return s.remove(ctx, env)
}

func (s *Service) remove(ctx context.Context, env *Envelope) error {
	for _, doc := range env.Documents {
		for _, key := range []string{doc.S3Key, doc.SignedS3Key} {
			if key == "" {
				continue
			}
			if err := s.storage.Delete(ctx, s.storage.Bucket(), key); err != nil {
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
		}
	}
	return s.repo.Delete(ctx, env.ID)
}

// SignedDocument opens the composed PDF of a completed envelope document.
func (s *Service) SignedDocument(ctx context.Context, id, documentID uuid.UUID) (string, io.ReadCloser, error) {
	env, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	doc := findDocument(env, documentID)
	if doc == nil {
		return "", nil, ErrNotFound
	}
	if doc.SignedS3Key == "" {
		return "", nil, ErrSignedDocMissing
	}
	body, err := s.storage.Download(ctx, s.storage.Bucket(), doc.SignedS3Key)
	if err != nil {
		return "", nil, err
	}
	return path.Base(doc.SignedS3Key), body, nil
}

// PurgeStale deletes drafts and voided envelopes untouched since cutoff.
func (s *Service) PurgeStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	envs, err := s.repo.ListStale(ctx, []Status{StatusDraft, StatusVoided}, cutoff, limit)
	if err != nil {
		return 0, err
	}
	purged := 0
	for i := range envs {
		if err := s.remove(ctx, &envs[i]); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

func (s *Service) dropObject(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, s.storage.Bucket(), key); err != nil {
		s.logger.Warn("Failed to delete object", zap.String("key", key), zap.Error(err))
	}
}

func findDocument(env *Envelope, id uuid.UUID) *Document {
	for i := range env.Documents {
		if env.Documents[i].ID == id {
			return &env.Documents[i]
		}
	}
	return nil
}

func findSigner(env *Envelope, id uuid.UUID) *Signer {
	for i := range env.Signers {
		if env.Signers[i].ID == id {
			return &env.Signers[i]
		}
	}
	return nil
}

func fieldsFor(env *Envelope, signerID uuid.UUID) []Field {
	fields := []Field{}
	for _, f := range env.Fields {
		if f.SignerID == signerID {
			fields = append(fields, f)
		}
	}
	return fields
}

func contentType(kind documents.SourceKind) string {
	switch kind {
	case documents.KindPDF:
		return "application/pdf"
	case documents.KindDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "image/" + strings.ToLower(string(kind))
	}
}
