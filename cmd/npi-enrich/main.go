package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyeh/npi-enrich/internal/cloud"
	"github.com/gyeh/npi-enrich/internal/config"
	"github.com/gyeh/npi-enrich/internal/enrich"
	"github.com/gyeh/npi-enrich/internal/logging"
	"github.com/gyeh/npi-enrich/internal/progress"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	delay             time.Duration
	pacing            string
	timeout           time.Duration
	onLookupError     string
	allowedTaxonomies []string
	noProgress        bool
	logProgress       bool
	s3Bucket          string
	s3Region          string
	s3Prefix          string
	debug             bool
	logJSON           bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:          "npi-enrich <input-file> [output-file]",
		Short:        "Look up provider names in the NPI registry and write in-scope matches to a table",
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg = applyFlags(cmd, cfg, opts)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			inputPath := args[0]
			outputPath := cfg.OutputFile
			if len(args) == 2 {
				outputPath = args[1]
			}

			logger := logging.New(logging.Config{Debug: opts.debug, JSON: opts.logJSON})

			// Handle signals
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Fprintln(os.Stderr, "\nInterrupted, stopping lookups...")
				cancel()
			}()

			var uploader enrich.Uploader
			if cfg.S3Bucket != "" {
				s3c, err := cloud.NewS3Client(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
				if err != nil {
					return err
				}
				uploader = s3c
			}

			mgr := newProgressManager(opts, outputPath)
			p, err := enrich.New(cfg, mgr, uploader, logger)
			if err != nil {
				return err
			}

			sum, err := p.RunFile(ctx, inputPath, outputPath)
			mgr.Wait()
			if err != nil {
				logger.Error("run failed", "run_id", p.RunID, "error", err)
				return err
			}

			fmt.Fprintf(os.Stderr, "\nLookup complete: %d names searched, %d records kept in %.1fs\n",
				sum.Stats.Identities, sum.Stats.Accepted, sum.Duration.Seconds())
			if outputPath != "-" {
				fmt.Fprintf(os.Stderr, "Results written to %s\n", outputPath)
			}
			if sum.UploadURI != "" {
				fmt.Fprintf(os.Stderr, "Uploaded to %s\n", sum.UploadURI)
			}
			return nil
		},
	}

	def := config.Default()
	cmd.Flags().DurationVar(&opts.delay, "delay", def.LookupDelay, "Pause between consecutive registry requests")
	cmd.Flags().StringVar(&opts.pacing, "pacing", def.Pacing, "Pacing strategy: fixed, none, exponential or rate")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", def.RequestTimeout, "Per-request timeout (0 disables)")
	cmd.Flags().StringVar(&opts.onLookupError, "on-lookup-error", def.OnLookupError, "What to do when a lookup fails: abort or skip")
	cmd.Flags().StringSliceVar(&opts.allowedTaxonomies, "allowed-taxonomies", nil, "Comma-separated primary taxonomy codes to keep")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().BoolVar(&opts.logProgress, "log-progress", false, "Print progress as log lines instead of bars")
	cmd.Flags().StringVar(&opts.s3Bucket, "s3-bucket", "", "Upload the output file to this S3 bucket")
	cmd.Flags().StringVar(&opts.s3Region, "s3-region", def.S3Region, "AWS region of the S3 bucket")
	cmd.Flags().StringVar(&opts.s3Prefix, "s3-prefix", def.S3Prefix, "Key prefix for uploaded files")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON")

	return cmd
}

// applyFlags overrides cfg with every flag the user set explicitly. Unset
// flags leave the environment-derived value alone.
func applyFlags(cmd *cobra.Command, cfg config.Config, opts options) config.Config {
	flags := cmd.Flags()
	if flags.Changed("delay") {
		cfg.LookupDelay = opts.delay
	}
	if flags.Changed("pacing") {
		cfg.Pacing = strings.ToLower(opts.pacing)
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout = opts.timeout
	}
	if flags.Changed("on-lookup-error") {
		cfg.OnLookupError = strings.ToLower(opts.onLookupError)
	}
	if flags.Changed("allowed-taxonomies") {
		cfg.AllowedTaxonomies = trimAll(opts.allowedTaxonomies)
	}
	if flags.Changed("s3-bucket") {
		cfg.S3Bucket = opts.s3Bucket
	}
	if flags.Changed("s3-region") {
		cfg.S3Region = opts.s3Region
	}
	if flags.Changed("s3-prefix") {
		cfg.S3Prefix = opts.s3Prefix
	}
	return cfg
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// newProgressManager picks bars for an interactive terminal and plain log
// lines otherwise. Bars are never drawn when the table goes to stdout.
func newProgressManager(opts options, outputPath string) progress.Manager {
	switch {
	case opts.noProgress:
		return &progress.NoopManager{}
	case opts.logProgress || outputPath == "-" || !isTerminal(os.Stderr):
		return progress.NewLogManager()
	default:
		return progress.NewMPBManager()
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
