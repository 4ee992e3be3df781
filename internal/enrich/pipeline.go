// Package enrich drives a full run: read names, look them up in the NPI
// registry, keep in-scope providers, write the table, optionally upload it.
package enrich

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gyeh/npi-enrich/internal/config"
	"github.com/gyeh/npi-enrich/internal/domain"
	"github.com/gyeh/npi-enrich/internal/input"
	"github.com/gyeh/npi-enrich/internal/npi"
	"github.com/gyeh/npi-enrich/internal/output"
	"github.com/gyeh/npi-enrich/internal/progress"
	"github.com/gyeh/npi-enrich/internal/worker"
)

// Uploader ships the written output file somewhere durable.
type Uploader interface {
	UploadFile(ctx context.Context, runID, localPath string) (string, error)
}

// Pipeline holds everything one run needs.
type Pipeline struct {
	RunID    string
	Runner   *worker.Runner
	Uploader Uploader // optional
	Logger   *slog.Logger
}

// Summary describes a completed run.
type Summary struct {
	RunID     string
	Output    string
	UploadURI string
	Stats     worker.Stats
	Duration  time.Duration
}

// New wires a Pipeline from cfg. uploader may be nil.
func New(cfg config.Config, mgr progress.Manager, uploader Uploader, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	runner, err := worker.NewRunner(cfg, npi.NewClient(cfg), mgr, logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		RunID:    runID,
		Runner:   runner,
		Uploader: uploader,
		Logger:   logger,
	}, nil
}

// RunFile reads identities from inputPath and runs the pipeline. inputPath
// may be an http(s) URL, which is downloaded to a temp file first. An input
// read failure is returned before any lookup is made.
func (p *Pipeline) RunFile(ctx context.Context, inputPath, outputPath string) (*Summary, error) {
	localPath := inputPath
	if input.IsRemote(inputPath) {
		fetched, err := input.Fetch(ctx, inputPath, os.TempDir())
		if err != nil {
			return nil, err
		}
		defer os.Remove(fetched)
		p.Logger.Debug("downloaded input", "url", inputPath, "path", fetched)
		localPath = fetched
	}

	ids, err := input.ReadIdentities(localPath)
	if err != nil {
		return nil, err
	}
	p.Logger.Info("processed input", "path", inputPath, "names", len(ids))
	return p.Run(ctx, ids, outputPath)
}

// Run looks up every identity, then writes the accepted records to
// outputPath. If the lookups fail, nothing is written.
func (p *Pipeline) Run(ctx context.Context, ids []domain.InputIdentity, outputPath string) (*Summary, error) {
	start := time.Now()
	p.Logger.Info("starting lookups",
		"names", len(ids),
		"allowed_taxonomies", strings.Join(p.Runner.Allowed.Codes(), ","),
	)

	res, err := p.Runner.LookupAll(ctx, ids)
	if err != nil {
		return nil, err
	}

	if err := output.WriteRecords(outputPath, res.Records); err != nil {
		return nil, err
	}

	sum := &Summary{
		RunID:  p.RunID,
		Output: outputPath,
		Stats:  res.Stats,
	}

	if p.Uploader != nil && outputPath != "-" {
		uri, err := p.Uploader.UploadFile(ctx, p.RunID, outputPath)
		if err != nil {
			return nil, err
		}
		sum.UploadURI = uri
		p.Logger.Info("uploaded output", "uri", uri)
	}

	sum.Duration = time.Since(start)
	p.Logger.Info("run complete",
		"output", outputPath,
		"identities", res.Stats.Identities,
		"profiles", res.Stats.Profiles,
		"accepted", res.Stats.Accepted,
		"rejected", res.Stats.Rejected,
		"skipped", res.Stats.Skipped,
		"malformed", res.Stats.Malformed,
		"duration", sum.Duration.Round(time.Millisecond),
	)
	return sum, nil
}
