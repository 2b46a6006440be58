package bulk

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/documents"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/storage"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/workflows"
)

type fakeProcessor struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (f *fakeProcessor) Preview(ctx context.Context, data []byte) ([]documents.PreviewPage, documents.SourceKind, error) {
	return nil, "", errors.New("not used")
}

func (f *fakeProcessor) Run(ctx context.Context, job documents.SignJob) (*documents.SignResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, job.Filename)
	f.mu.Unlock()
	if job.Filename == f.failOn {
		return nil, &documents.StageError{Stage: documents.StageRasterize, Err: errors.New("converter crashed")}
	}
	return &documents.SignResult{
		Filename: documents.SignedFilename(job.Title, job.Filename),
		PDF:      []byte("%PDF-" + job.Filename),
	}, nil
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

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func newTestService(t *testing.T, proc documents.Processor) (*Service, *storage.MemoryClient) {
	t.Helper()
	mem := storage.NewMemoryClient()
	svc := NewService(proc, documents.NewStorageProvider(mem, "bulk", time.Minute), nil, Options{
		MaxFiles: 3,
		Pricing:  Pricing{PricePerPage: 10, Currency: "KES"},
	}, zap.NewNop())
	t.Cleanup(svc.Close)
	return svc, mem
}

func readyJob(t *testing.T, svc *Service, files map[string][]byte, order ...string) string {
	t.Helper()
	job := svc.Create()
	for _, name := range order {
		_, err := svc.AddFile(job.ID, name, files[name])
		require.NoError(t, err)
	}
	for _, step := range []Step{StepCustomize, StepPosition, StepPreview} {
		_, err := svc.MoveTo(job.ID, step)
		require.NoError(t, err)
	}
	_, err := svc.Accept(job.ID)
	require.NoError(t, err)
	return job.ID
}

func TestQuoteRecomputedOnAddAndRemove(t *testing.T) {
	svc, _ := newTestService(t, &fakeProcessor{})
	job := svc.Create()
	assert.Equal(t, StepSetup, job.Step)
	assert.Zero(t, job.Quote.Total)

	job, err := svc.AddFile(job.ID, "lease.pdf", testPDF(t, 3))
	require.NoError(t, err)
	job, err = svc.AddFile(job.ID, "id.png", testPNG(t))
	require.NoError(t, err)

	assert.Equal(t, 4, job.Quote.TotalPages)
	assert.Equal(t, 40.0, job.Quote.Total)
	assert.Equal(t, "KES", job.Quote.Currency)
	require.Len(t, job.Quote.Lines, 2)
	assert.Equal(t, 30.0, job.Quote.Lines[0].Subtotal)

	job, err = svc.RemoveFile(job.ID, job.Files[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, job.Quote.TotalPages)
	assert.Equal(t, 30.0, job.Quote.Total)
	assert.Equal(t, job.TotalPages(), job.Quote.TotalPages)

	_, err = svc.RemoveFile(job.ID, "missing")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestAddFileRejectsUnsupportedAndExcess(t *testing.T) {
	svc, _ := newTestService(t, &fakeProcessor{})
	job := svc.Create()

	_, err := svc.AddFile(job.ID, "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, documents.ErrUnsupportedSource)

	for i := 0; i < 3; i++ {
		_, err = svc.AddFile(job.ID, "p.png", testPNG(t))
		require.NoError(t, err)
	}
	_, err = svc.AddFile(job.ID, "p.png", testPNG(t))
	assert.ErrorIs(t, err, ErrTooManyFiles)

	_, err = svc.AddFile("nope", "p.png", testPNG(t))
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestWizardTransitions(t *testing.T) {
	svc, _ := newTestService(t, &fakeProcessor{})
	job := svc.Create()

	_, err := svc.MoveTo(job.ID, StepCustomize)
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = svc.AddFile(job.ID, "a.png", testPNG(t))
	require.NoError(t, err)

	_, err = svc.MoveTo(job.ID, StepPosition)
	assert.ErrorIs(t, err, workflows.ErrInvalidTransition)

	job, err = svc.MoveTo(job.ID, StepCustomize)
	require.NoError(t, err)
	assert.Equal(t, StepCustomize, job.Step)

	job, err = svc.MoveTo(job.ID, StepSetup)
	require.NoError(t, err)
	assert.Equal(t, StepSetup, job.Step)

	_, err = svc.MoveTo(job.ID, StepProcessing)
	assert.ErrorIs(t, err, workflows.ErrInvalidTransition)
}

func TestJobListsNextSteps(t *testing.T) {
	svc, _ := newTestService(t, &fakeProcessor{})
	job := svc.Create()
	assert.Equal(t, []Step{StepCustomize}, job.NextSteps)

	_, err := svc.AddFile(job.ID, "a.png", testPNG(t))
	require.NoError(t, err)
	job, err = svc.MoveTo(job.ID, StepCustomize)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Step{StepSetup, StepPosition}, job.NextSteps)

	for _, step := range []Step{StepPosition, StepPreview} {
		job, err = svc.MoveTo(job.ID, step)
		require.NoError(t, err)
	}
	assert.ElementsMatch(t, []Step{StepPosition, StepProcessing}, job.NextSteps)

	job.NextSteps[0] = StepFailed
	again, err := svc.Get(job.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Step{StepPosition, StepProcessing}, again.NextSteps)
}

func TestAcceptanceWithdrawnByQuoteChange(t *testing.T) {
	svc, _ := newTestService(t, &fakeProcessor{})
	id := readyJob(t, svc, map[string][]byte{"a.png": testPNG(t)}, "a.png")

	job, err := svc.Get(id)
	require.NoError(t, err)
	require.NotNil(t, job.AcceptedAt)

	job, err = svc.AddFile(id, "b.png", testPNG(t))
	require.NoError(t, err)
	assert.Nil(t, job.AcceptedAt)

	_, err = svc.Process(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotAccepted)
}

func TestProcessBuildsArchive(t *testing.T) {
	proc := &fakeProcessor{}
	svc, mem := newTestService(t, proc)
	files := map[string][]byte{"a.png": testPNG(t), "b.pdf": testPDF(t, 2)}
	id := readyJob(t, svc, files, "a.png", "b.pdf")

	job, err := svc.Process(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StepCompleted, job.Step)
	assert.Equal(t, 2, job.Processed)
	assert.Equal(t, "bulk/"+id+"/stamped_documents.zip", job.ArchiveKey)
	assert.Equal(t, 1, mem.Len())

	name, body, err := svc.Archive(context.Background(), id)
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, "stamped_documents.zip", name)

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a_Signed.pdf", "b_Signed.pdf"}, names)
}

func TestProcessStopsAtFirstFailure(t *testing.T) {
	proc := &fakeProcessor{failOn: "b.pdf"}
	svc, mem := newTestService(t, proc)
	files := map[string][]byte{"a.png": testPNG(t), "b.pdf": testPDF(t, 1), "c.png": testPNG(t)}
	id := readyJob(t, svc, files, "a.png", "b.pdf", "c.png")

	job, err := svc.Process(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.pdf")
	assert.Equal(t, StepFailed, job.Step)
	assert.Equal(t, 1, job.Processed)
	assert.NotEmpty(t, job.Error)
	assert.Equal(t, []string{"a.png", "b.pdf"}, proc.calls)
	assert.Equal(t, 0, mem.Len())

	_, _, err = svc.Archive(context.Background(), id)
	assert.ErrorIs(t, err, ErrArchiveMissing)

	job, err = svc.MoveTo(id, StepPreview)
	require.NoError(t, err)
	assert.Equal(t, StepPreview, job.Step)
}

func TestCompletedJobIsLocked(t *testing.T) {
	svc, _ := newTestService(t, &fakeProcessor{})
	id := readyJob(t, svc, map[string][]byte{"a.png": testPNG(t)}, "a.png")
	_, err := svc.Process(context.Background(), id)
	require.NoError(t, err)

	_, err = svc.AddFile(id, "b.png", testPNG(t))
	assert.ErrorIs(t, err, ErrNotEditable)
	_, err = svc.SetPlacement(id, placementAt(10, 10), documents.PagesFirst)
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestSetPlacementValidatesPages(t *testing.T) {
	svc, _ := newTestService(t, &fakeProcessor{})
	job := svc.Create()

	job, err := svc.SetPlacement(job.ID, placementAt(120, -5), "")
	require.NoError(t, err)
	assert.Equal(t, documents.PagesAll, job.Pages)
	assert.Equal(t, 100.0, job.Placement.XPercent)
	assert.Equal(t, 0.0, job.Placement.YPercent)

	_, err = svc.SetPlacement(job.ID, placementAt(10, 10), "middle")
	assert.ErrorIs(t, err, documents.ErrInvalidOverlay)
}

func TestUniqueName(t *testing.T) {
	seen := map[string]int{}
	assert.Equal(t, "a_Signed.pdf", uniqueName(seen, "a_Signed.pdf"))
	assert.Equal(t, "a_Signed_2.pdf", uniqueName(seen, "a_Signed.pdf"))
	assert.Equal(t, "a_Signed_3.pdf", uniqueName(seen, "a_Signed.pdf"))
}
