package bulk

import (
	"time"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/documents"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/placement"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp"
)

// Step is a bulk wizard state.
type Step string

const (
	StepSetup      Step = "setup"
	StepCustomize  Step = "customize"
	StepPosition   Step = "position"
	StepPreview    Step = "preview"
	StepProcessing Step = "processing"
	StepCompleted  Step = "completed"
	StepFailed     Step = "failed"
)

// File is an uploaded document waiting to be stamped.
type File struct {
	ID    string               `json:"id"`
	Name  string               `json:"name"`
	Kind  documents.SourceKind `json:"kind"`
	Pages int                  `json:"pages"`
	Size  int64                `json:"size"`

	data []byte
}

// Job is one bulk stamping session.
type Job struct {
	ID         string                  `json:"id"`
	Step       Step                    `json:"step"`
	NextSteps  []Step                  `json:"next_steps"`
	Files      []File                  `json:"files"`
	Stamp      stamp.StampConfig       `json:"stamp"`
	Placement  placement.Placement     `json:"placement"`
	Pages      documents.PageSelection `json:"pages"`
	Quote      Quote                   `json:"quote"`
	AcceptedAt *time.Time              `json:"accepted_at,omitempty"`
	Processed  int                     `json:"processed"`
	ArchiveKey string                  `json:"archive_key,omitempty"`
	Error      string                  `json:"error,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// clone copies the job so callers never share its slices.
func (j *Job) clone() *Job {
	c := *j
	c.Files = append([]File(nil), j.Files...)
	c.Quote.Lines = append([]QuoteLine(nil), j.Quote.Lines...)
	if j.AcceptedAt != nil {
		t := *j.AcceptedAt
		c.AcceptedAt = &t
	}
	return &c
}

// TotalPages sums the page counts of every file.
func (j *Job) TotalPages() int {
	total := 0
	for _, f := range j.Files {
		total += f.Pages
	}
	return total
}

// QuoteLine prices one file.
type QuoteLine struct {
	File     string  `json:"file"`
	Pages    int     `json:"pages"`
	Subtotal float64 `json:"subtotal"`
}

// Quote is the cost of stamping every page of every file.
type Quote struct {
	Lines        []QuoteLine `json:"lines"`
	TotalPages   int         `json:"total_pages"`
	PricePerPage float64     `json:"price_per_page"`
	Currency     string      `json:"currency"`
	Total        float64     `json:"total"`
}

// Pricing is the per-page price applied to quotes.
type Pricing struct {
	PricePerPage float64
	Currency     string
}

// NewQuote prices files at pricing.
func NewQuote(files []File, pricing Pricing) Quote {
	q := Quote{
		Lines:        make([]QuoteLine, 0, len(files)),
		PricePerPage: pricing.PricePerPage,
		Currency:     pricing.Currency,
	}
	for _, f := range files {
		q.Lines = append(q.Lines, QuoteLine{
			File:     f.Name,
			Pages:    f.Pages,
			Subtotal: float64(f.Pages) * pricing.PricePerPage,
		})
		q.TotalPages += f.Pages
	}
	q.Total = float64(q.TotalPages) * pricing.PricePerPage
	return q
}

// Progress is pushed to subscribers while a job is processed.
type Progress struct {
	JobID     string    `json:"job_id"`
	Step      Step      `json:"step"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	File      string    `json:"file,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
