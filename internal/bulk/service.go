package bulk

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/documents"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/placement"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/cache"
	"stampdesk/stamp-studio/stamp-studio-backend/pkg/workflows"
)

var (
	ErrJobNotFound    = errors.New("bulk job not found")
	ErrFileNotFound   = errors.New("file not found")
	ErrTooManyFiles   = errors.New("too many files")
	ErrNoFiles        = errors.New("no files uploaded")
	ErrNotEditable    = errors.New("job can no longer be edited")
	ErrNotAccepted    = errors.New("quote has not been accepted")
	ErrArchiveMissing = errors.New("archive not ready")
)

// Options tunes the bulk service.
type Options struct {
	JobTTL      time.Duration
	MaxFiles    int
	ArchiveName string
	Pricing     Pricing
}

// Archiver stores finished archives.
type Archiver interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Bucket() string
}

// Service runs bulk stamping wizards. Jobs live in memory and expire after
// Options.JobTTL of inactivity.
type Service struct {
	jobs      *cache.TTLCache[*Job]
	mu        sync.Mutex
	wizard    *workflows.StateMachine
	processor documents.Processor
	archiver  Archiver
	progress  *ProgressHub
	options   Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewWizard returns the bulk step machine: a linear setup to preview wizard
// that hands over to processing once the quote is accepted.
func NewWizard() *workflows.StateMachine {
	sm := workflows.NewLinearStateMachine(
		string(StepSetup), string(StepCustomize), string(StepPosition), string(StepPreview))
	sm.Allow(string(StepPreview), string(StepProcessing))
	sm.Allow(string(StepProcessing), string(StepCompleted), string(StepFailed))
	sm.Allow(string(StepFailed), string(StepPreview))
	return sm
}

func NewService(processor documents.Processor, archiver Archiver, progress *ProgressHub, options Options, logger *zap.Logger) *Service {
	if options.JobTTL <= 0 {
		options.JobTTL = 2 * time.Hour
	}
	if options.MaxFiles <= 0 {
		options.MaxFiles = 50
	}
	if options.ArchiveName == "" {
		options.ArchiveName = "stamped_documents.zip"
	}
	s := &Service{
		wizard:    NewWizard(),
		processor: processor,
		archiver:  archiver,
		progress:  progress,
		options:   options,
		logger:    logger,
		now:       time.Now,
	}
	s.jobs = cache.New[*Job](options.JobTTL, time.Minute, cache.WithEvictHook(func(key string, job *Job) {
		logger.Debug("Bulk job expired", zap.String("job_id", key), zap.String("step", string(job.Step)))
	}))
	return s
}

// Close stops the job expiry loop.
func (s *Service) Close() {
	s.jobs.Stop()
}

// Create starts a new job at the setup step.
func (s *Service) Create() *Job {
	now := s.now().UTC()
	job := &Job{
		ID:        uuid.New().String(),
		Step:      Step(s.wizard.Initial()),
		Files:     []File{},
		Stamp:     stamp.DefaultConfig(),
		Placement: placement.Placement{XPercent: 70, YPercent: 75, WidthPercent: 20},
		Pages:     documents.PagesAll,
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.Quote = NewQuote(job.Files, s.options.Pricing)

	s.mu.Lock()
	s.jobs.Set(job.ID, job)
	active := s.jobs.Size()
	s.mu.Unlock()
	s.logger.Debug("Bulk job created", zap.String("job_id", job.ID), zap.Int("active_jobs", active))
	return s.snapshot(job)
}

// Get returns a snapshot of the job.
func (s *Service) Get(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs.Get(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	s.jobs.Touch(id)
	return s.snapshot(job), nil
}

// snapshot clones job and lists the steps the wizard allows next.
func (s *Service) snapshot(job *Job) *Job {
	c := job.clone()
	c.NextSteps = []Step{}
	for _, next := range s.wizard.GetAllowedTransitions(string(job.Step)) {
		c.NextSteps = append(c.NextSteps, Step(next))
	}
	return c
}

// update applies fn to the stored job under the service lock.
func (s *Service) update(id string, fn func(job *Job) error) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs.Get(id)
	if !ok {
		return nil, ErrJobNotFound
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = s.now().UTC()
	s.jobs.Touch(id)
	return s.snapshot(job), nil
}

func editable(job *Job) error {
	switch job.Step {
	case StepProcessing, StepCompleted:
		return ErrNotEditable
	}
	return nil
}

// AddFile counts the pages of data and adds it to the job. The quote is
// recomputed.
func (s *Service) AddFile(id, name string, data []byte) (*Job, error) {
	kind, err := documents.DetectKind(data)
	if err != nil {
		return nil, err
	}
	pages, err := documents.CountPages(data)
	if err != nil {
		return nil, err
	}
	return s.update(id, func(job *Job) error {
		if err := editable(job); err != nil {
			return err
		}
		if len(job.Files) >= s.options.MaxFiles {
			return fmt.Errorf("%w: limit is %d", ErrTooManyFiles, s.options.MaxFiles)
		}
		job.Files = append(job.Files, File{
			ID:    uuid.New().String(),
			Name:  name,
			Kind:  kind,
			Pages: pages,
			Size:  int64(len(data)),
			data:  data,
		})
		s.requote(job)
		return nil
	})
}

// RemoveFile drops a file and recomputes the quote.
func (s *Service) RemoveFile(id, fileID string) (*Job, error) {
	return s.update(id, func(job *Job) error {
		if err := editable(job); err != nil {
			return err
		}
		for i, f := range job.Files {
			if f.ID == fileID {
				job.Files = append(job.Files[:i], job.Files[i+1:]...)
				s.requote(job)
				return nil
			}
		}
		return ErrFileNotFound
	})
}

// requote refreshes the quote and withdraws any earlier acceptance.
func (s *Service) requote(job *Job) {
	job.Quote = NewQuote(job.Files, s.options.Pricing)
	job.AcceptedAt = nil
}

// SetStamp replaces the stamp design.
func (s *Service) SetStamp(id string, cfg stamp.StampConfig) (*Job, error) {
	return s.update(id, func(job *Job) error {
		if err := editable(job); err != nil {
			return err
		}
		job.Stamp = cfg.Normalize()
		return nil
	})
}

// SetPlacement sets where the stamp goes and on which pages.
func (s *Service) SetPlacement(id string, p placement.Placement, pages documents.PageSelection) (*Job, error) {
	switch pages {
	case "":
		pages = documents.PagesAll
	case documents.PagesAll, documents.PagesFirst, documents.PagesLast:
	default:
		return nil, fmt.Errorf("%w: page selection %q", documents.ErrInvalidOverlay, pages)
	}
	return s.update(id, func(job *Job) error {
		if err := editable(job); err != nil {
			return err
		}
		p.XPercent = placement.ClampPercent(p.XPercent)
		p.YPercent = placement.ClampPercent(p.YPercent)
		job.Placement = p
		job.Pages = pages
		return nil
	})
}

// MoveTo moves the wizard to step. Processing and its outcomes are reached
// through Process only.
func (s *Service) MoveTo(id string, step Step) (*Job, error) {
	return s.update(id, func(job *Job) error {
		switch step {
		case StepProcessing, StepCompleted, StepFailed:
			return fmt.Errorf("%w: %s -> %s", workflows.ErrInvalidTransition, job.Step, step)
		}
		if err := s.wizard.Transition(string(job.Step), string(step)); err != nil {
			return err
		}
		if step == StepCustomize && job.Step == StepSetup && len(job.Files) == 0 {
			return ErrNoFiles
		}
		job.Step = step
		return nil
	})
}

// Accept records acceptance of the current quote. No payment is taken.
func (s *Service) Accept(id string) (*Job, error) {
	return s.update(id, func(job *Job) error {
		if job.Step != StepPreview {
			return fmt.Errorf("%w: quote can only be accepted at %s", workflows.ErrInvalidTransition, StepPreview)
		}
		if len(job.Files) == 0 {
			return ErrNoFiles
		}
		now := s.now().UTC()
		job.AcceptedAt = &now
		return nil
	})
}

// Quote returns the current quote.
func (s *Service) Quote(id string) (Quote, error) {
	job, err := s.Get(id)
	if err != nil {
		return Quote{}, err
	}
	return job.Quote, nil
}

// Start validates the job and processes it in the background.
func (s *Service) Start(id string) (*Job, error) {
	job, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.process(context.Background(), job); err != nil {
			s.logger.Error("Bulk job failed", zap.String("job_id", id), zap.Error(err))
		}
	}()
	return job, nil
}

// Process runs the job to completion on the calling goroutine.
func (s *Service) Process(ctx context.Context, id string) (*Job, error) {
	job, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	err = s.process(ctx, job)
	final, getErr := s.Get(id)
	if getErr != nil {
		return nil, getErr
	}
	return final, err
}

func (s *Service) begin(id string) (*Job, error) {
	return s.update(id, func(job *Job) error {
		if len(job.Files) == 0 {
			return ErrNoFiles
		}
		if job.AcceptedAt == nil {
			return ErrNotAccepted
		}
		if err := s.wizard.Transition(string(job.Step), string(StepProcessing)); err != nil {
			return err
		}
		job.Step = StepProcessing
		job.Processed = 0
		job.Error = ""
		job.ArchiveKey = ""
		return nil
	})
}

// process stamps each file in order and abandons the batch on the first
// failure.
func (s *Service) process(ctx context.Context, job *Job) error {
	s.mu.Lock()
	stored, ok := s.jobs.Get(job.ID)
	var files []File
	if ok {
		files = append(files, stored.Files...)
	}
	s.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}

	cfg := job.Stamp
	overlay := documents.Overlay{
		Kind:      documents.OverlayStamp,
		Placement: job.Placement,
		Pages:     job.Pages,
		Stamp:     &cfg,
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make(map[string]int)

	for i, f := range files {
		result, err := s.processor.Run(ctx, documents.SignJob{
			Title:    strings.TrimSuffix(f.Name, path.Ext(f.Name)),
			Filename: f.Name,
			Data:     f.data,
			Overlays: []documents.Overlay{overlay},
		})
		if err == nil {
			err = addToArchive(zw, uniqueName(names, result.Filename), result.PDF)
		}
		if err != nil {
			return s.fail(job.ID, i, len(files), f.Name, err)
		}
		s.advance(job.ID, i+1, len(files), f.Name)
	}

	if err := zw.Close(); err != nil {
		return s.fail(job.ID, len(files), len(files), "", err)
	}
	key := fmt.Sprintf("bulk/%s/%s", job.ID, s.options.ArchiveName)
	if err := s.archiver.Upload(ctx, key, "application/zip", buf.Bytes()); err != nil {
		return s.fail(job.ID, len(files), len(files), "", fmt.Errorf("failed to store archive: %w", err))
	}

	s.finish(job.ID, len(files), StepCompleted, "", func(j *Job) { j.ArchiveKey = key })
	s.logger.Info("Bulk job completed", zap.String("job_id", job.ID), zap.Int("files", len(files)))
	return nil
}

func (s *Service) advance(id string, processed, total int, file string) {
	s.update(id, func(job *Job) error {
		job.Processed = processed
		return nil
	})
	s.publish(Progress{JobID: id, Step: StepProcessing, Processed: processed, Total: total, File: file})
}

func (s *Service) fail(id string, processed, total int, file string, err error) error {
	s.finish(id, total, StepFailed, err.Error(), func(j *Job) { j.Processed = processed })
	s.publish(Progress{JobID: id, Step: StepFailed, Processed: processed, Total: total, File: file, Error: err.Error()})
	if file != "" {
		return fmt.Errorf("%s: %w", file, err)
	}
	return err
}

func (s *Service) finish(id string, total int, step Step, message string, fn func(*Job)) {
	s.update(id, func(job *Job) error {
		job.Step = step
		job.Error = message
		fn(job)
		return nil
	})
	if step == StepCompleted {
		s.publish(Progress{JobID: id, Step: step, Processed: total, Total: total})
	}
}

func (s *Service) publish(p Progress) {
	if s.progress != nil {
		s.progress.Publish(p)
	}
}

// Archive opens the finished archive of a completed job.
func (s *Service) Archive(ctx context.Context, id string) (string, io.ReadCloser, error) {
	job, err := s.Get(id)
	if err != nil {
		return "", nil, err
	}
	if job.Step != StepCompleted || job.ArchiveKey == "" {
		return "", nil, ErrArchiveMissing
	}
	body, err := s.archiver.Download(ctx, s.archiver.Bucket(), job.ArchiveKey)
	if err != nil {
		return "", nil, err
	}
	return s.options.ArchiveName, body, nil
}

func addToArchive(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

// uniqueName suffixes repeated names with a counter.
func uniqueName(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}
