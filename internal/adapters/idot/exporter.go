package idot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"idotplan/internal/blob"
	"idotplan/internal/core"
)

// ArtifactKind names the two files produced for every plan.
type ArtifactKind string

const (
	ArtifactDispenses ArtifactKind = "dispenses"
	ArtifactSummary   ArtifactKind = "summary"
)

// Artifact is a stored output file.
type Artifact struct {
	Kind        ArtifactKind `json:"kind"`
	Key         string       `json:"key"`
	URL         string       `json:"url"`
	ContentType string       `json:"content_type"`
	SizeBytes   int64        `json:"size_bytes"`
}

// ExportInput is everything needed to write one plan.
type ExportInput struct {
	Plan       core.Plan
	Config     core.Config
	Experiment core.Experiment
	// DispenseKey and SummaryKey are store keys, typically file names.
	DispenseKey string
	SummaryKey  string
}

// ExportResult reports the stored artifacts of one run.
type ExportResult struct {
	RunID     string
	Dispenses Artifact
	Summary   Artifact
}

// Exporter writes plan artifacts to a blob store.
type Exporter struct {
	store  blob.Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// ExporterOption customizes an Exporter.
type ExporterOption func(*Exporter)

// WithExportLogger sets the logger used for write events.
func WithExportLogger(l *zap.Logger) ExporterOption {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithNow fixes the timestamp written into the dispenser preamble.
func WithNow(now func() time.Time) ExporterOption {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(fn func() string) ExporterOption {
	return func(e *Exporter) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewExporter constructs an exporter over store.
func NewExporter(store blob.Store, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export renders both payloads before writing anything, then stores the
// dispense file followed by the summary. If the summary write fails the
// dispense key is rolled back: a file that existed before the run is put back
// with its previous content and metadata, otherwise the new file is removed.
func (e *Exporter) Export(ctx context.Context, in ExportInput) (ExportResult, error) {
	if e.store == nil {
		return ExportResult{}, fmt.Errorf("export: no output store configured")
	}
	if in.DispenseKey == "" || in.SummaryKey == "" {
		return ExportResult{}, fmt.Errorf("export: output keys required")
	}
	if in.DispenseKey == in.SummaryKey {
		return ExportResult{}, fmt.Errorf("export: dispense and summary outputs share the key %q", in.DispenseKey)
	}
	dispenses, err := RenderDispenses(in.Plan, in.Experiment, e.now())
	if err != nil {
		return ExportResult{}, err
	}
	summary, err := RenderSummary(in.Plan, in.Config)
	if err != nil {
		return ExportResult{}, err
	}

	runID := e.newID()
	meta := map[string]string{
		"run_id":     runID,
		"experiment": in.Experiment.Name,
		"reactions":  strconv.Itoa(len(in.Plan.Reactions)),
	}
	prev, err := e.snapshot(ctx, in.DispenseKey)
	if err != nil {
		return ExportResult{}, err
	}
	first, err := e.put(ctx, ArtifactDispenses, in.DispenseKey, dispenses, meta)
	if err != nil {
		return ExportResult{}, err
	}
	second, err := e.put(ctx, ArtifactSummary, in.SummaryKey, summary, meta)
	if err != nil {
		e.rollback(ctx, in.DispenseKey, prev)
		return ExportResult{}, err
	}
	return ExportResult{RunID: runID, Dispenses: first, Summary: second}, nil
}

// previousObject is the content a key held before the run overwrote it.
type previousObject struct {
	info blob.Info
	body []byte
}

func (e *Exporter) snapshot(ctx context.Context, key string) (*previousObject, error) {
	info, rc, err := e.store.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read existing output %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read existing output %s: %w", key, err)
	}
	return &previousObject{info: info, body: body}, nil
}

func (e *Exporter) rollback(ctx context.Context, key string, prev *previousObject) {
	if prev == nil {
		if _, err := e.store.Delete(ctx, key); err != nil {
			e.logger.Warn("remove partial output", zap.String("key", key), zap.Error(err))
		}
		return
	}
	_, err := e.store.Put(ctx, key, bytes.NewReader(prev.body), blob.PutOptions{
		ContentType: prev.info.ContentType,
		Metadata:    prev.info.Metadata,
		Overwrite:   true,
	})
	if err != nil {
		e.logger.Warn("restore previous output", zap.String("key", key), zap.Error(err))
	}
}

func (e *Exporter) put(ctx context.Context, kind ArtifactKind, key string, payload []byte, meta map[string]string) (Artifact, error) {
	info, err := e.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: "text/csv",
		Metadata:    meta,
		Overwrite:   true,
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("write %s output %s: %w", kind, key, err)
	}
	e.logger.Info("wrote output",
		zap.String("kind", string(kind)),
		zap.String("key", key),
		zap.String("driver", string(e.store.Driver())),
		zap.Int64("bytes", info.Size),
		zap.String("run_id", meta["run_id"]))
	return Artifact{Kind: kind, Key: key, URL: info.URL, ContentType: info.ContentType, SizeBytes: info.Size}, nil
}
