package envelopes

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/documents"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/placement"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/security"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/storage"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/workflows"
)

// memRepository keeps envelopes in memory and hands out copies the way a
// database round trip would.
type memRepository struct {
	mu   sync.Mutex
	envs map[uuid.UUID]*Envelope
}

func newMemRepository() *memRepository {
	return &memRepository{envs: map[uuid.UUID]*Envelope{}}
}

func (r *memRepository) copyOf(env *Envelope) *Envelope {
	out := *env
	out.Documents = append([]Document{}, env.Documents...)
	out.Signers = append([]Signer{}, env.Signers...)
	out.Fields = append([]Field{}, env.Fields...)
	sort.SliceStable(out.Signers, func(i, j int) bool { return out.Signers[i].RoutingOrder < out.Signers[j].RoutingOrder })
	return &out
}

func (r *memRepository) Create(ctx context.Context, env *Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	env.CreatedAt = time.Now()
	env.UpdatedAt = env.CreatedAt
	r.envs[env.ID] = r.copyOf(env)
	return nil
}

func (r *memRepository) Get(ctx context.Context, id uuid.UUID) (*Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	env, ok := r.envs[id]
	if !ok {
		return nil, nil
	}
	return r.copyOf(env), nil
}

func (r *memRepository) List(ctx context.Context, ownerEmail string, limit, offset int) ([]Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Envelope
	for _, env := range r.envs {
		if env.OwnerEmail == ownerEmail {
			out = append(out, *r.copyOf(env))
		}
	}
	return out, nil
}

func (r *memRepository) Save(ctx context.Context, env *Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.envs[env.ID]
	if !ok {
		return errors.New("missing envelope")
	}
	children := *stored
	updated := *env
	updated.Documents, updated.Signers, updated.Fields = children.Documents, children.Signers, children.Fields
	updated.UpdatedAt = time.Now()
	r.envs[env.ID] = &updated
	return nil
}

func (r *memRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.envs, id)
	return nil
}

func (r *memRepository) ListStale(ctx context.Context, statuses []Status, cutoff time.Time, limit int) ([]Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Envelope
	for _, env := range r.envs {
		for _, s := range statuses {
			if env.Status == s && env.UpdatedAt.Before(cutoff) && len(out) < limit {
				out = append(out, *r.copyOf(env))
			}
		}
	}
	return out, nil
}

func (r *memRepository) mutate(id uuid.UUID, fn func(env *Envelope)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	env, ok := r.envs[id]
	if !ok {
		return errors.New("missing envelope")
	}
	fn(env)
	return nil
}

func (r *memRepository) AddDocument(ctx context.Context, doc *Document) error {
	return r.mutate(doc.EnvelopeID, func(env *Envelope) { env.Documents = append(env.Documents, *doc) })
}

func (r *memRepository) SaveDocument(ctx context.Context, doc *Document) error {
	return r.mutate(doc.EnvelopeID, func(env *Envelope) {
		for i := range env.Documents {
			if env.Documents[i].ID == doc.ID {
				env.Documents[i] = *doc
			}
		}
	})
}

func (r *memRepository) DeleteDocument(ctx context.Context, envelopeID, id uuid.UUID) error {
	return r.mutate(envelopeID, func(env *Envelope) {
		env.Documents = removeWhere(env.Documents, func(d Document) bool { return d.ID == id })
		env.Fields = removeWhere(env.Fields, func(f Field) bool { return f.DocumentID == id })
	})
}

func (r *memRepository) AddSigner(ctx context.Context, signer *Signer) error {
	return r.mutate(signer.EnvelopeID, func(env *Envelope) { env.Signers = append(env.Signers, *signer) })
}

func (r *memRepository) SaveSigner(ctx context.Context, signer *Signer) error {
	return r.mutate(signer.EnvelopeID, func(env *Envelope) {
		for i := range env.Signers {
			if env.Signers[i].ID == signer.ID {
				env.Signers[i] = *signer
			}
		}
	})
}

func (r *memRepository) DeleteSigner(ctx context.Context, envelopeID, id uuid.UUID) error {
	return r.mutate(envelopeID, func(env *Envelope) {
		env.Signers = removeWhere(env.Signers, func(s Signer) bool { return s.ID == id })
		env.Fields = removeWhere(env.Fields, func(f Field) bool { return f.SignerID == id })
	})
}

func (r *memRepository) AddField(ctx context.Context, field *Field) error {
	return r.mutate(field.EnvelopeID, func(env *Envelope) { env.Fields = append(env.Fields, *field) })
}

func (r *memRepository) SaveField(ctx context.Context, field *Field) error {
	return r.mutate(field.EnvelopeID, func(env *Envelope) {
		for i := range env.Fields {
			if env.Fields[i].ID == field.ID {
				env.Fields[i] = *field
			}
		}
	})
}

func (r *memRepository) DeleteField(ctx context.Context, envelopeID, id uuid.UUID) error {
	return r.mutate(envelopeID, func(env *Envelope) {
		env.Fields = removeWhere(env.Fields, func(f Field) bool { return f.ID == id })
	})
}

func removeWhere[T any](items []T, match func(T) bool) []T {
	out := items[:0]
	for _, item := range items {
		if !match(item) {
			out = append(out, item)
		}
	}
	return out
}

type invitation struct {
	email string
	link  string
}

type recordingNotifier struct {
	mu        sync.Mutex
	invites   []invitation
	completed []uuid.UUID
}

func (n *recordingNotifier) InviteSigner(ctx context.Context, env *Envelope, signer *Signer, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invites = append(n.invites, invitation{email: signer.Email, link: link})
	return nil
}

func (n *recordingNotifier) EnvelopeCompleted(ctx context.Context, env *Envelope) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, env.ID)
	return nil
}

// tokenFor returns the signing token of the latest invitation to email.
func (n *recordingNotifier) tokenFor(t *testing.T, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.invites) - 1; i >= 0; i-- {
		if n.invites[i].email == email {
			u, err := url.Parse(n.invites[i].link)
			require.NoError(t, err)
			return u.Query().Get("token")
		}
	}
	t.Fatalf("no invitation for %s", email)
	return ""
}

type fakeProcessor struct {
	mu   sync.Mutex
	jobs []documents.SignJob
	err  error
}

func (f *fakeProcessor) Preview(ctx context.Context, data []byte) ([]documents.PreviewPage, documents.SourceKind, error) {
	return nil, "", errors.New("not used")
}

func (f *fakeProcessor) Run(ctx context.Context, job documents.SignJob) (*documents.SignResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.jobs = append(f.jobs, job)
	return &documents.SignResult{
		Filename: documents.SignedFilename(job.Title, job.Filename),
		PDF:      []byte("%PDF-signed"),
	}, nil
}

type fixture struct {
	svc      *Service
	repo     *memRepository
	mem      *storage.MemoryClient
	proc     *fakeProcessor
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemRepository(),
		mem:      storage.NewMemoryClient(),
		proc:     &fakeProcessor{},
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(
		f.repo,
		documents.NewStorageProvider(f.mem, "envelopes", time.Minute),
		f.proc,
		security.NewTokenIssuer("test-secret", "stamp-studio", time.Hour),
		f.notifier,
		Options{PublicBaseURL: "https://studio.example/"},
		zap.NewNop(),
	)
	return f
}

func testPDF(t *testing.T, pages int) []byte {
	t.Helper()
	doc := gofpdf.New("P", "pt", "A4", "")
	for i := 0; i < pages; i++ {
		doc.AddPage()
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func signatureURI(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 4))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

var box = placement.Placement{XPercent: 60, YPercent: 80, WidthPercent: 20, HeightPercent: 8, Scale: 1}

// draftReady builds an envelope on the fields step with one two-page PDF
// and one signature field per signer.
func (f *fixture) draftReady(t *testing.T, signers ...SignerInput) (*Envelope, *Document) {
	t.Helper()
	ctx := context.Background()
	env, err := f.svc.Create(ctx, "owner@example.com", "Lease agreement", "Please sign")
	require.NoError(t, err)
	doc, err := f.svc.AddDocument(ctx, env.ID, "lease.pdf", testPDF(t, 2))
	require.NoError(t, err)
	_, err = f.svc.MoveTo(ctx, env.ID, StepCreateRecipients)
	require.NoError(t, err)
	for _, in := range signers {
		signer, err := f.svc.AddSigner(ctx, env.ID, in)
		require.NoError(t, err)
		_, err = f.svc.AddField(ctx, env.ID, FieldInput{
			DocumentID: doc.ID, SignerID: signer.ID, Type: FieldSignature, Page: 2, Placement: box,
		})
		require.NoError(t, err)
	}
	env, err = f.svc.MoveTo(ctx, env.ID, StepCreateFields)
	require.NoError(t, err)
	return env, doc
}

func TestWizard(t *testing.T) {
	w := NewWizard()
	assert.Equal(t, string(StepLanding), w.Initial())
	assert.True(t, w.CanTransition(string(StepCreateFields), string(StepDashboard)))
	assert.True(t, w.CanTransition(string(StepDashboard), string(StepSignerView)))
	assert.True(t, w.CanTransition(string(StepCreateRecipients), string(StepCreateDocuments)))
	assert.False(t, w.CanTransition(string(StepCreateDocuments), string(StepDashboard)))
	assert.False(t, w.CanTransition(string(StepLanding), string(StepSignerView)))
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "owner@example.com", "  ", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	env, err := f.svc.Create(ctx, "owner@example.com", " NDA ", "")
	require.NoError(t, err)
	assert.Equal(t, "NDA", env.Title)
	assert.Equal(t, StatusDraft, env.Status)
	assert.Equal(t, StepCreateDocuments, env.Step)

	_, err = f.svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMoveTo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, err := f.svc.Create(ctx, "", "NDA", "")
	require.NoError(t, err)

	_, err = f.svc.MoveTo(ctx, env.ID, StepCreateRecipients)
	assert.ErrorIs(t, err, ErrIncomplete)

	_, err = f.svc.MoveTo(ctx, env.ID, StepDashboard)
	assert.ErrorIs(t, err, workflows.ErrInvalidTransition)

	_, err = f.svc.MoveTo(ctx, env.ID, StepCreateFields)
	assert.ErrorIs(t, err, workflows.ErrInvalidTransition)

	moved, err := f.svc.MoveTo(ctx, env.ID, StepLanding)
	require.NoError(t, err)
	assert.Equal(t, StepLanding, moved.Step)
}

func TestAddDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, err := f.svc.Create(ctx, "", "NDA", "")
	require.NoError(t, err)

	doc, err := f.svc.AddDocument(ctx, env.ID, "My Contract.pdf", testPDF(t, 3))
	require.NoError(t, err)
	assert.Equal(t, documents.KindPDF, doc.Kind)
	assert.Equal(t, 3, doc.Pages)
	assert.Contains(t, doc.S3Key, "envelopes/"+env.ID.String()+"/"+doc.ID.String()+"/")
	assert.Equal(t, 1, f.mem.Len())

	_, err = f.svc.AddDocument(ctx, env.ID, "notes.txt", []byte("plain text"))
	assert.ErrorIs(t, err, documents.ErrUnsupportedSource)

	require.NoError(t, f.svc.RemoveDocument(ctx, env.ID, doc.ID))
	assert.Equal(t, 0, f.mem.Len())
	assert.ErrorIs(t, f.svc.RemoveDocument(ctx, env.ID, doc.ID), ErrNotFound)
}

func TestAddSigner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, err := f.svc.Create(ctx, "", "NDA", "")
	require.NoError(t, err)

	signer, err := f.svc.AddSigner(ctx, env.ID, SignerInput{Name: "Wanjiru", Email: "Wanjiru <wanjiru@example.co.ke>", AccessCode: "4321"})
	require.NoError(t, err)
	assert.Equal(t, "wanjiru@example.co.ke", signer.Email)
	assert.Equal(t, 1, signer.RoutingOrder)
	assert.True(t, signer.RequiresAccessCode())
	assert.NotEqual(t, "4321", signer.AccessCodeHash)

	_, err = f.svc.AddSigner(ctx, env.ID, SignerInput{Name: "Again", Email: "WANJIRU@example.co.ke"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.AddSigner(ctx, env.ID, SignerInput{Name: "Otieno", Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddFieldValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, doc := f.draftReady(t, SignerInput{Name: "Amina", Email: "amina@example.com"})
	full, err := f.svc.Get(ctx, env.ID)
	require.NoError(t, err)
	signerID := full.Signers[0].ID

	tests := []struct {
		name string
		in   FieldInput
	}{
		{"unknown type", FieldInput{DocumentID: doc.ID, SignerID: signerID, Type: "initials", Placement: box}},
		{"foreign document", FieldInput{DocumentID: uuid.New(), SignerID: signerID, Type: FieldText, Placement: box}},
		{"foreign signer", FieldInput{DocumentID: doc.ID, SignerID: uuid.New(), Type: FieldText, Placement: box}},
		{"page past end", FieldInput{DocumentID: doc.ID, SignerID: signerID, Type: FieldText, Page: 3, Placement: box}},
		{"zero width", FieldInput{DocumentID: doc.ID, SignerID: signerID, Type: FieldText}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddField(ctx, env.ID, tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	field, err := f.svc.AddField(ctx, env.ID, FieldInput{DocumentID: doc.ID, SignerID: signerID, Type: FieldStamp, Placement: box})
	require.NoError(t, err)
	assert.Equal(t, 1, field.Page)
	assert.NotEmpty(t, field.Stamp)
}

func TestSendRequiresFieldPerSigner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, _ := f.draftReady(t, SignerInput{Name: "Amina", Email: "amina@example.com"})
	_, err := f.svc.AddSigner(ctx, env.ID, SignerInput{Name: "Baraka", Email: "baraka@example.com"})
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, env.ID)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Empty(t, f.notifier.invites)
}

func TestSigningFollowsRoutingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, doc := f.draftReady(t,
		SignerInput{Name: "Baraka", Email: "baraka@example.com", RoutingOrder: 2},
		SignerInput{Name: "Amina", Email: "amina@example.com", RoutingOrder: 1},
	)

	sent, err := f.svc.Send(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, sent.Status)
	assert.Equal(t, StepDashboard, sent.Step)
	require.Len(t, f.notifier.invites, 1)
	assert.Equal(t, "amina@example.com", f.notifier.invites[0].email)
	assert.Contains(t, f.notifier.invites[0].link, "https://studio.example/sign?token=")

	_, err = f.svc.AddSigner(ctx, env.ID, SignerInput{Name: "Late", Email: "late@example.com"})
	assert.ErrorIs(t, err, ErrNotDraft)

	aminaToken := f.notifier.tokenFor(t, "amina@example.com")
	view, err := f.svc.OpenSignerView(ctx, aminaToken, "")
	require.NoError(t, err)
	assert.Equal(t, StepSignerView, view.Step)
	assert.Equal(t, SignerViewed, view.Signer.Status)
	require.Len(t, view.Fields, 1)

	values := map[uuid.UUID]string{view.Fields[0].ID: signatureURI(t)}
	updated, err := f.svc.Complete(ctx, aminaToken, "", values)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, updated.Status)
	require.Len(t, f.notifier.invites, 2)
	assert.Equal(t, "baraka@example.com", f.notifier.invites[1].email)

	_, err = f.svc.Complete(ctx, aminaToken, "", values)
	assert.ErrorIs(t, err, ErrAlreadySigned)

	barakaToken := f.notifier.tokenFor(t, "baraka@example.com")
	barakaView, err := f.svc.OpenSignerView(ctx, barakaToken, "")
	require.NoError(t, err)
	done, err := f.svc.Complete(ctx, barakaToken, "", map[uuid.UUID]string{barakaView.Fields[0].ID: signatureURI(t)})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, []uuid.UUID{env.ID}, f.notifier.completed)

	require.Len(t, f.proc.jobs, 1)
	job := f.proc.jobs[0]
	assert.Equal(t, "lease", job.Title)
	require.Len(t, job.Overlays, 2)
	for _, o := range job.Overlays {
		assert.Equal(t, documents.OverlaySignature, o.Kind)
		assert.Equal(t, 2, o.Page)
	}

	name, body, err := f.svc.SignedDocument(ctx, env.ID, doc.ID)
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, "lease_Signed.pdf", name)

	_, err = f.svc.OpenSignerView(ctx, barakaToken, "")
	assert.ErrorIs(t, err, ErrNotSent)
}

func TestCompleteOutOfTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, _ := f.draftReady(t,
		SignerInput{Name: "Amina", Email: "amina@example.com", RoutingOrder: 1},
		SignerInput{Name: "Baraka", Email: "baraka@example.com", RoutingOrder: 2},
	)
	_, err := f.svc.Send(ctx, env.ID)
	require.NoError(t, err)

	full, err := f.svc.Get(ctx, env.ID)
	require.NoError(t, err)
	link, err := f.svc.SignerLink(full, &full.Signers[1])
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, u.Query().Get("token"), "", nil)
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestAccessCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, _ := f.draftReady(t, SignerInput{Name: "Amina", Email: "amina@example.com", AccessCode: "2468"})
	_, err := f.svc.Send(ctx, env.ID)
	require.NoError(t, err)
	token := f.notifier.tokenFor(t, "amina@example.com")

	_, err = f.svc.OpenSignerView(ctx, token, "")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = f.svc.OpenSignerView(ctx, token, "1357")
	assert.ErrorIs(t, err, ErrAccessDenied)

	view, err := f.svc.OpenSignerView(ctx, token, "2468")
	require.NoError(t, err)
	assert.Equal(t, "amina@example.com", view.Signer.Email)
}

func TestOpenSignerViewRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.OpenSignerView(ctx, "garbage", "")
	assert.ErrorIs(t, err, security.ErrInvalidToken)

	session, err := f.svc.tokens.Issue(uuid.NewString(), security.PurposeSession, 0, security.Claims{})
	require.NoError(t, err)
	_, err = f.svc.OpenSignerView(ctx, session, "")
	assert.ErrorIs(t, err, security.ErrWrongPurpose)
}

func TestCompleteValidatesValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, doc := f.draftReady(t, SignerInput{Name: "Amina", Email: "amina@example.com"})
	full, err := f.svc.Get(ctx, env.ID)
	require.NoError(t, err)
	dateField, err := f.svc.AddField(ctx, env.ID, FieldInput{
		DocumentID: doc.ID, SignerID: full.Signers[0].ID, Type: FieldDate, Page: 1, Placement: box,
	})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, env.ID)
	require.NoError(t, err)
	token := f.notifier.tokenFor(t, "amina@example.com")

	sigField := full.Fields[0].ID
	_, err = f.svc.Complete(ctx, token, "", map[uuid.UUID]string{sigField: "bm90IGFuIGltYWdl"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	f.svc.now = func() time.Time { return time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC) }
	_, err = f.svc.Complete(ctx, token, "", map[uuid.UUID]string{sigField: signatureURI(t)})
	require.NoError(t, err)

	require.Len(t, f.proc.jobs, 1)
	var date *documents.Overlay
	for i, o := range f.proc.jobs[0].Overlays {
		if o.Kind == documents.OverlayDate {
			date = &f.proc.jobs[0].Overlays[i]
		}
	}
	require.NotNil(t, date, "date field %s", dateField.ID)
	assert.Equal(t, "07/03/2026", date.Text)
	assert.Equal(t, 1, date.Page)
}

func TestCompletionFailureKeepsEnvelopeOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, _ := f.draftReady(t, SignerInput{Name: "Amina", Email: "amina@example.com"})
	_, err := f.svc.Send(ctx, env.ID)
	require.NoError(t, err)
	full, err := f.svc.Get(ctx, env.ID)
	require.NoError(t, err)

	token := f.notifier.tokenFor(t, "amina@example.com")
	values := map[uuid.UUID]string{full.Fields[0].ID: signatureURI(t)}

	f.proc.err = &documents.StageError{Stage: documents.StageCompose, Err: errors.New("boom")}
	_, err = f.svc.Complete(ctx, token, "", values)
	require.Error(t, err)

	after, err := f.svc.Get(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, after.Status)
	assert.NotEqual(t, SignerSigned, after.Signers[0].Status)
	assert.Empty(t, f.notifier.completed)

	f.proc.err = nil
	done, err := f.svc.Complete(ctx, token, "", values)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
}

func TestVoidAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env, _ := f.draftReady(t, SignerInput{Name: "Amina", Email: "amina@example.com"})
	_, err := f.svc.Send(ctx, env.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, env.ID), workflows.ErrInvalidTransition)

	voided, err := f.svc.Void(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVoided, voided.Status)

	_, err = f.svc.OpenSignerView(ctx, f.notifier.tokenFor(t, "amina@example.com"), "")
	assert.ErrorIs(t, err, ErrNotSent)

	require.NoError(t, f.svc.Delete(ctx, env.ID))
	assert.Equal(t, 0, f.mem.Len())
	_, err = f.svc.Get(ctx, env.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale, _ := f.draftReady(t, SignerInput{Name: "Amina", Email: "amina@example.com"})
	sent, _ := f.draftReady(t, SignerInput{Name: "Baraka", Email: "baraka@example.com"})
	_, err := f.svc.Send(ctx, sent.ID)
	require.NoError(t, err)

	purged, err := f.svc.PurgeStale(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = f.svc.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Get(ctx, sent.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.mem.Len())
}

type MockRepository struct {
	mock.Mock
	Repository
}

func (m *MockRepository) Get(ctx context.Context, id uuid.UUID) (*Envelope, error) {
	args := m.Called(ctx, id)
	if env := args.Get(0); env != nil {
		return env.(*Envelope), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) ListStale(ctx context.Context, statuses []Status, cutoff time.Time, limit int) ([]Envelope, error) {
	args := m.Called(ctx, statuses, cutoff, limit)
	if envs := args.Get(0); envs != nil {
		return envs.([]Envelope), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRepositoryErrorsPropagate(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, documents.NewStorageProvider(storage.NewMemoryClient(), "b", time.Minute), &fakeProcessor{},
		security.NewTokenIssuer("s", "i", time.Hour), NewLogNotifier(zap.NewNop()), Options{}, zap.NewNop())
	ctx := context.Background()
	dbErr := errors.New("connection reset")

	id := uuid.New()
	repo.On("Get", mock.Anything, id).Return(nil, dbErr)
	_, err := svc.Get(ctx, id)
	assert.ErrorIs(t, err, dbErr)

	repo.On("ListStale", mock.Anything, []Status{StatusDraft, StatusVoided}, mock.Anything, 100).Return(nil, dbErr)
	purged, err := svc.PurgeStale(ctx, time.Now(), 0)
	assert.ErrorIs(t, err, dbErr)
	assert.Zero(t, purged)

	repo.AssertExpectations(t)
}
