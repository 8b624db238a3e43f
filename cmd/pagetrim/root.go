package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	cfgpkg "github.com/local/pagetrim/internal/config"
	logpkg "github.com/local/pagetrim/internal/logger"
	"github.com/local/pagetrim/internal/pdfdoc"
	"github.com/local/pagetrim/internal/rebuild"
	"github.com/local/pagetrim/internal/render"
	"github.com/local/pagetrim/internal/session"
)

// app carries what PersistentPreRunE resolved for the subcommands.
type app struct {
	envFiles     []string
	profile      string
	profilesFile string
	logLevel     string
	noColor      bool

	cfg  cfgpkg.Config
	prof cfgpkg.Profile
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pagetrim",
		Short: "Remove pages and trim margins from PDF documents",
		Long: `pagetrim rebuilds PDF documents page by page. Every page is kept as is,
removed, or trimmed of its left and top margins. Pages start with the actions of
the selected profile's preset and can be changed in the web UI (serve) or with
page lists on the command line (export).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logpkg.Close()
		},
	}

	f := root.PersistentFlags()
	f.StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default .env)")
	f.StringVarP(&a.profile, "profile", "p", "", "trim profile (classic, footer or one from --profiles-file)")
	f.StringVar(&a.profilesFile, "profiles-file", "", "YAML file with extra profiles")
	f.StringVar(&a.logLevel, "log-level", "", "override LOG_LEVEL")
	f.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newServeCmd(a), newExportCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if a.noColor {
		color.NoColor = true
	}
	cfg, err := cfgpkg.Load(a.envFiles...)
	if err != nil {
		return err
	}
	if a.profile != "" {
		cfg.Profile = a.profile
	}
	if a.profilesFile != "" {
		cfg.ProfilesFile = a.profilesFile
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	// Keep stdout clean for command output.
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		Console:      os.Stderr,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})

	p, err := cfg.ResolveProfile()
	if err != nil {
		log.Error().Err(err).Str("profile", cfg.Profile).Msg("invalid profile")
		return err
	}
	a.cfg = cfg
	a.prof = p
	log.Debug().Str("command", cmd.Name()).Str("profile", p.Name).Msg("configured")
	return nil
}

// newSession wires the pdfcpu rebuilder and the go-fitz previews for the resolved profile.
func (a *app) newSession(preset bool) (*session.Session, error) {
	r, err := rebuild.New(pdfdoc.New(), a.prof.Options())
	if err != nil {
		return nil, err
	}
	opts := session.Options{
		Rebuilder: r,
		Suffix:    a.prof.OutputSuffix(),
		Preview:   render.Options{DPI: a.cfg.Preview.DPI, Quality: a.cfg.Preview.Quality},
	}
	if preset {
		opts.Preset = a.prof.Rule()
	}
	return session.New(opts)
}
