package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/gyeh/npi-enrich/internal/config"
	"github.com/gyeh/npi-enrich/internal/domain"
	"github.com/gyeh/npi-enrich/internal/npi"
	"github.com/gyeh/npi-enrich/internal/pace"
	"github.com/gyeh/npi-enrich/internal/progress"
)

// Searcher looks up registry profiles for one identity.
type Searcher interface {
	SearchByName(ctx context.Context, id domain.InputIdentity) ([]npi.Profile, error)
}

// Stats summarizes a lookup run.
type Stats struct {
	Identities int
	Requests   int
	Profiles   int
	Accepted   int
	Rejected   int
	Skipped    int // identities dropped by the skip policy
	Malformed  int // identities whose response could not be parsed
}

// Result holds the accepted records, in input order, and run statistics.
type Result struct {
	Records []domain.Record
	Stats   Stats
}

// Runner issues one registry search per identity, strictly one at a time,
// waiting on Pacer between consecutive requests. Every returned profile is
// normalized and filtered before it is kept.
type Runner struct {
	Client     Searcher
	Normalizer npi.Normalizer
	Allowed    npi.AllowedCodeSet
	Pacer      pace.Pacer

	// OnLookupError is config.OnLookupErrorAbort (stop the run) or
	// config.OnLookupErrorSkip (log and move to the next identity).
	OnLookupError string

	// OnMalformed is called when a response cannot be parsed. The identity
	// then yields no profiles. Nil logs a warning.
	OnMalformed func(id domain.InputIdentity, err error)

	Progress progress.Manager
	Logger   *slog.Logger
}

// NewRunner builds a Runner from cfg around the given client.
func NewRunner(cfg config.Config, client Searcher, mgr progress.Manager, logger *slog.Logger) (*Runner, error) {
	pacer, err := pace.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Runner{
		Client:        client,
		Normalizer:    npi.NewNormalizer(cfg),
		Allowed:       npi.NewAllowedCodeSet(cfg.AllowedTaxonomies),
		Pacer:         pacer,
		OnLookupError: cfg.OnLookupError,
		Progress:      mgr,
		Logger:        logger,
	}, nil
}

// LookupAll searches every identity in order and returns the accepted
// records. Under the abort policy the first transport failure ends the run
// and is returned; no partial result is returned with it.
func (r *Runner) LookupAll(ctx context.Context, ids []domain.InputIdentity) (*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	mgr := r.Progress
	if mgr == nil {
		mgr = &progress.NoopManager{}
	}
	pacer := r.Pacer
	if pacer == nil {
		pacer = pace.None{}
	}

	tracker := mgr.NewTracker("lookups", len(ids))
	defer tracker.Done()
	tracker.SetStage("Fetching")

	res := &Result{Stats: Stats{Identities: len(ids)}}
	for i, id := range ids {
		if i > 0 {
			if err := pacer.Wait(ctx, i); err != nil {
				return nil, err
			}
		}
		tracker.SetProgress(int64(i+1), int64(len(ids)))
		logger.Debug("registry lookup", "index", i+1, "total", len(ids), "first_name", id.FirstName, "last_name", id.LastName)

		res.Stats.Requests++
		profiles, err := r.Client.SearchByName(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			switch {
			case domain.IsKind(err, domain.KindMalformedResponse):
				res.Stats.Malformed++
				r.malformed(logger, tracker, id, err)
				continue
			case r.OnLookupError == config.OnLookupErrorSkip:
				res.Stats.Skipped++
				logger.Warn("lookup failed, skipping identity", "identity", id.String(), "error", err)
				tracker.LogWarning(fmt.Sprintf("lookup failed for %s, skipped", id))
				continue
			default:
				return nil, fmt.Errorf("looking up %s: %w", id, err)
			}
		}

		res.Stats.Profiles += len(profiles)
		for _, p := range profiles {
			rec := r.Normalizer.Normalize(p)
			if !r.Allowed.Accept(rec) {
				res.Stats.Rejected++
				continue
			}
			res.Records = append(res.Records, rec)
		}
		tracker.SetCounter("accepted", int64(len(res.Records)))
	}

	res.Stats.Accepted = len(res.Records)
	tracker.SetStage(fmt.Sprintf("Done (%d accepted)", res.Stats.Accepted))
	return res, nil
}

func (r *Runner) malformed(logger *slog.Logger, tracker progress.Tracker, id domain.InputIdentity, err error) {
	if r.OnMalformed != nil {
		r.OnMalformed(id, err)
		return
	}
	logger.Warn("malformed registry response, treating as no results", "identity", id.String(), "error", err)
	tracker.LogWarning(fmt.Sprintf("malformed response for %s", id))
}
