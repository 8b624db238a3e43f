package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/local/pagetrim/internal/fault"
	"github.com/local/pagetrim/internal/pages"
	"github.com/local/pagetrim/internal/rebuild"
	"github.com/local/pagetrim/internal/session"
	"github.com/local/pagetrim/internal/source"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		out                string
		keep, remove, trim string
		noPreset, dryRun   bool
		quiet              bool
	)
	cmd := &cobra.Command{
		Use:   "export <file|url|s3://bucket/key>...",
		Short: "Rebuild documents without the UI",
		Long: `export loads each input, applies the profile preset and the page lists given
on the command line, and writes <name>_<suffix>.pdf to --out (a directory or
s3://bucket/prefix). Inputs that fail are reported and the others still run.`,
		Example: `  pagetrim export apuntes.pdf
  pagetrim export --remove 1,4 --trim 2-3 -o out/ tema1.pdf tema2.pdf
  pagetrim export --profile footer --no-preset -o s3://bucket/clean https://host/doc.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ov, err := buildOverrides(keep, remove, trim)
			if err != nil {
				return err
			}
			if out == "" {
				out = a.cfg.Export.Dir
			}
			ctx := cmd.Context()
			var sink source.Sink
			if !dryRun {
				if sink, err = source.NewSink(ctx, out); err != nil {
					return err
				}
			}
			sess, err := a.newSession(!noPreset)
			if err != nil {
				return err
			}
			defer sess.Close()

			fetcher := source.NewFetcher(a.cfg.Server.Timeout, int64(a.cfg.Server.MaxUploadMB)<<20)
			job := &exportJob{sess: sess, fetch: fetcher.Fetch, sink: sink, overrides: ov, dryRun: dryRun}

			var bar *progressbar.ProgressBar
			if !quiet && !dryRun {
				bar = newBar(len(args))
				job.progress = func(ref string) {
					bar.Describe(shortRef(ref))
					_ = bar.Add(1)
				}
			}
			outcomes := job.run(ctx, args)
			if bar != nil {
				_ = bar.Finish()
			}
			return report(cmd.OutOrStdout(), outcomes)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "", "output directory or s3://bucket/prefix (default PAGETRIM_EXPORT_DIR)")
	f.StringVar(&keep, "keep", "", "pages to keep untouched, e.g. 1,3-5")
	f.StringVar(&remove, "remove", "", "pages to remove")
	f.StringVar(&trim, "trim", "", "pages to trim")
	f.BoolVar(&noPreset, "no-preset", false, "start every page as keep instead of the profile preset")
	f.BoolVar(&dryRun, "dry-run", false, "print the page actions without writing anything")
	f.BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

type exportJob struct {
	sess      *session.Session
	fetch     func(ctx context.Context, ref string) (*source.Input, error)
	sink      source.Sink
	overrides overrides
	dryRun    bool
	progress  func(ref string)

	// used tracks output names already written in this run.
	used map[string]int
}

// outcome is one input's result. Export is nil on dry runs.
type outcome struct {
	Ref     string
	Name    string
	Dest    string
	Records []pages.Record
	Export  *session.Export
	Err     error
}

// run processes refs in order; a failing input never stops the rest.
func (j *exportJob) run(ctx context.Context, refs []string) []outcome {
	out := make([]outcome, 0, len(refs))
	for _, ref := range refs {
		o := j.one(ctx, ref)
		if o.Err != nil {
			log.Warn().Err(o.Err).Str("ref", ref).Str("kind", fault.Kind(o.Err)).Msg("export failed")
		}
		out = append(out, o)
		if j.progress != nil {
			j.progress(ref)
		}
	}
	return out
}

func (j *exportJob) one(ctx context.Context, ref string) outcome {
	o := outcome{Ref: ref, Name: ref}
	if err := ctx.Err(); err != nil {
		o.Err = err
		return o
	}
	in, err := j.fetch(ctx, ref)
	if err != nil {
		o.Err = err
		return o
	}
	o.Name = in.Name

	doc, err := j.sess.Load(in.Name, in.Data)
	if err != nil {
		o.Err = err
		return o
	}
	defer func() { _ = j.sess.RemoveDocument(doc.ID) }()

	for _, p := range j.overrides.sorted() {
		if _, err := j.sess.SetAction(doc.ID, p, j.overrides[p]); err != nil {
			o.Err = fmt.Errorf("document has %d pages: %w", doc.PageCount, err)
			return o
		}
	}

	if j.dryRun {
		o.Records, o.Err = j.sess.Pages(doc.ID)
		return o
	}

	ex, err := j.sess.Export(doc.ID)
	if err != nil {
		o.Err = err
		return o
	}
	if j.used == nil {
		j.used = map[string]int{}
	}
	ex.Name = rebuild.UniqueName(j.used, ex.Name)
	o.Export = ex
	o.Dest, o.Err = j.sink.Write(ctx, ex.Name, ex.Data)
	return o
}

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	dim      = color.New(color.Faint).SprintFunc()
)

// report prints one line per input and returns an error when any input failed.
func report(w io.Writer, outcomes []outcome) error {
	failed := 0
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			failed++
			fmt.Fprintf(w, "%s %s\n", failMark("✗"), fault.Notice(o.Name, o.Err))
		case o.Export == nil:
			fmt.Fprintf(w, "%s %s\n", okMark("•"), o.Name)
			for _, r := range o.Records {
				label := r.Action.Label()
				if label == "" {
					label = dim("keep")
				}
				fmt.Fprintf(w, "    %4d  %s\n", r.Page, label)
			}
		default:
			fmt.Fprintf(w, "%s %s -> %s %s\n", okMark("✓"), o.Name, o.Dest,
				dim(fmt.Sprintf("(kept %d, removed %d, trimmed %d)", o.Export.Kept, o.Export.Removed, o.Export.Trimmed)))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(outcomes))
	}
	return nil
}

func newBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("exporting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
}

func shortRef(ref string) string {
	if i := strings.LastIndexAny(ref, `/\`); i >= 0 && i < len(ref)-1 {
		return ref[i+1:]
	}
	return ref
}
