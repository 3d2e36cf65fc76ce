package weather

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Summary is the structured result of one pipeline invocation.
type Summary struct {
	Processed  int         `json:"processed"`
	Upserted   int         `json:"upserted"`
	Modified   int         `json:"modified"`
	Matched    int         `json:"matched"`
	Failed     int         `json:"failed"`
	Collection string      `json:"collection"`
	RunID      string      `json:"run_id,omitempty"`
	DryRun     bool        `json:"dry_run,omitempty"`
	Location   Location    `json:"location"`
	Start      string      `json:"start_date"`
	End        string      `json:"end_date"`
	Variables  VariableSet `json:"variables"`

	Failures []LoadError `json:"-"`
}

// Status is "ok" when every record was written and "partial" otherwise.
func (s Summary) Status() string {
	if s.Failed > 0 {
		return "partial"
	}
	return "ok"
}

// Pipeline sequences extract, transform and load for one invocation.
type Pipeline struct {
	extractor Extractor
	loader    *Loader
	events    EventPublisher
	log       *slog.Logger
	dryRun    bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEvents publishes a RunEvent after every load.
func WithEvents(p EventPublisher) Option {
	return func(pl *Pipeline) { pl.events = p }
}

// WithDryRun stops after the transform stage; nothing is written.
func WithDryRun(dry bool) Option {
	return func(pl *Pipeline) { pl.dryRun = dry }
}

// NewPipeline creates a new Pipeline.
func NewPipeline(extractor Extractor, loader *Loader, log *slog.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		extractor: extractor,
		loader:    loader,
		log:       log,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Collection returns the name of the collection the pipeline loads into.
func (p *Pipeline) Collection() string {
	return p.loader.Collection()
}

// Run validates the request, then extracts, transforms and loads.
// Extract and transform failures abort before anything is written.
// Per-record load failures do not abort; they are counted in Summary.Failed.
func (p *Pipeline) Run(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{
		Collection: p.loader.Collection(),
		Location:   req.Location,
		Start:      req.Range.StartDate(),
		End:        req.Range.EndDate(),
		Variables:  req.Variables,
		DryRun:     p.dryRun,
	}

	if err := req.Validate(); err != nil {
		return summary, err
	}

	log := p.log.With("invocation", uuid.NewString(), "location", req.Location.Key())
	log.Info("extracting",
		"provider", p.extractor.Name(),
		"start_date", summary.Start,
		"end_date", summary.End,
		"hourly", req.Variables.String(),
	)

	payload, err := p.extractor.Extract(ctx, req.Location, req.Range, req.Variables)
	if err != nil {
		log.Error("extract failed", "error", err)
		return summary, err
	}

	records, err := Transform(payload, req.Location, req.Variables, log)
	if err != nil {
		log.Error("transform failed", "error", err)
		return summary, err
	}
	summary.Processed = len(records)
	log.Info("transformed hourly records", "count", len(records))

	if p.dryRun {
		log.Info("dry run; skipping load")
		return summary, nil
	}

	res, err := p.loader.Load(ctx, records)
	summary.RunID = res.RunID
	if err != nil {
		log.Error("load failed", "error", err)
		return summary, err
	}

	summary.Upserted = res.Upserted
	summary.Modified = res.Modified
	summary.Matched = res.Matched
	summary.Failed = len(res.Failures)
	summary.Failures = res.Failures

	p.publish(ctx, log, summary)

	log.Info("ingestion complete",
		"run_id", summary.RunID,
		"processed", summary.Processed,
		"upserted", summary.Upserted,
		"modified", summary.Modified,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (p *Pipeline) publish(ctx context.Context, log *slog.Logger, s Summary) {
	if p.events == nil || s.RunID == "" {
		return
	}
	ev := RunEvent{
		RunID:      s.RunID,
		Source:     SourceOpenMeteo,
		Location:   s.Location,
		Start:      s.Start,
		End:        s.End,
		Variables:  s.Variables.Names(),
		Processed:  s.Processed,
		Upserted:   s.Upserted,
		Modified:   s.Modified,
		Failed:     s.Failed,
		Collection: s.Collection,
		FinishedAt: time.Now().UTC(),
	}
	if err := p.events.Publish(ctx, ev); err != nil {
		log.Warn("run event not published", "run_id", s.RunID, "error", err)
	}
}
