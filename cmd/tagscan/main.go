package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jward/tagscan"
	"github.com/jward/tagscan/internal/config"
	"github.com/jward/tagscan/internal/fingerprint"
	"github.com/jward/tagscan/internal/logging"
)

func main() {
	c := newCLI(os.Stdout, os.Stderr)
	if err := c.root().Execute(); err != nil {
		if !c.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

// cli holds flag values and the resolved configuration for one invocation.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	flagConfig   string
	flagCache    string
	flagVersion  string
	flagFormat   string
	flagWordlist string

	cfg    *config.Config
	logger *slog.Logger

	// errorHandled is set by outputError so main() doesn't double-print.
	errorHandled bool
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{stdout: stdout, stderr: stderr}
}

func (c *cli) root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tagscan",
		Short:         "Index tag references and strings in game package archives",
		Long:          "Tagscan decodes every entry of a package directory, classifies its hash-sized fields, and caches a reference graph and string index for queries.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(c.flagFormat); err != nil {
				return err
			}
			return c.loadConfig(cmd)
		},
		// No Run: prints help by default.
	}
	cmd.SetOut(c.stdout)
	cmd.SetErr(c.stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&c.flagConfig, "config", "", "YAML configuration file")
	pf.StringVar(&c.flagCache, "cache", "", "cache file path (default: "+config.DefaultCachePath+")")
	pf.StringVar(&c.flagVersion, "version", "", "catalog version (default: "+config.DefaultVersion+")")
	pf.StringVar(&c.flagFormat, "format", "json", "output format: json|text")
	pf.StringVar(&c.flagWordlist, "wordlist", "", "extra known-string wordlist, one name per line")

	cmd.AddCommand(c.scanCmd())
	cmd.AddCommand(c.queryCmd())
	cmd.AddCommand(c.catalogsCmd())
	return cmd
}

// loadConfig reads --config (or the defaults) and applies every global flag
// the user set explicitly on top of it.
func (c *cli) loadConfig(cmd *cobra.Command) error {
	cfg := config.Default()
	if c.flagConfig != "" {
		var err error
		if cfg, err = config.LoadFile(c.flagConfig); err != nil {
			return err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("cache") {
		cfg.CachePath = c.flagCache
	}
	if flags.Changed("version") {
		cfg.Version = c.flagVersion
	}
	if flags.Changed("wordlist") {
		cfg.Wordlist = c.flagWordlist
	}
	if flags.Lookup("workers") != nil && flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Lookup("fingerprint") != nil && flags.Changed("fingerprint") {
		cfg.Fingerprint, _ = flags.GetString("fingerprint")
	}
	if flags.Lookup("log-level") != nil && flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	c.cfg = cfg
	c.logger = logging.New(level, c.stderr)
	return nil
}

// loadCatalog builds the configured catalog version.
func (c *cli) loadCatalog(ctx context.Context) (*tagscan.Catalog, error) {
	opts := []tagscan.CatalogOption{tagscan.WithCatalogLogger(c.logger)}
	if c.cfg.Wordlist != "" {
		opts = append(opts, tagscan.WithWordlistFile(c.cfg.Wordlist))
	}
	cat, err := tagscan.LoadCatalog(ctx, c.cfg.Version, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return cat, nil
}

// --- scan ---

func (c *cli) scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Scan a package directory and update the cache",
		Long:  "Decodes every *.pkg archive under dir, reusing cached results for archives whose fingerprint is unchanged, and saves the cache.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.runScan,
	}
	cmd.Flags().Int("workers", 0, "parallel decode workers (0: one per CPU)")
	cmd.Flags().String("fingerprint", fingerprint.Full.String(), "fingerprint mode: full|quick")
	cmd.Flags().String("log-level", "info", "log level: debug|info|warn|error")
	return cmd
}

func (c *cli) runScan(cmd *cobra.Command, args []string) error {
	dir, err := c.resolveScanDir(args)
	if err != nil {
		return c.outputError("scan", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cat, err := c.loadCatalog(ctx)
	if err != nil {
		return c.outputError("scan", err)
	}
	engine, err := tagscan.New(c.cfg.CachePath, cat,
		tagscan.WithLogger(c.logger),
		tagscan.WithWorkers(c.cfg.Workers),
		tagscan.WithFingerprintMode(c.cfg.FingerprintMode()),
	)
	if err != nil {
		return c.outputError("scan", fmt.Errorf("creating engine: %w", err))
	}

	if logging.IsTerminal(c.stderr) {
		done := c.renderProgress(engine)
		defer done()
	}

	report, err := engine.Scan(ctx, dir)
	if report == nil {
		return c.outputError("scan", fmt.Errorf("scanning: %w", err))
	}
	result := CLIResult{Command: "scan", Results: reportToCLI(report)}
	if err != nil {
		return c.outputPartial(result, err)
	}
	return c.outputResult(result)
}

// resolveScanDir returns the absolute directory to scan: the argument, or
// packages_dir from the config.
func (c *cli) resolveScanDir(args []string) (string, error) {
	dir := c.cfg.PackagesDir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return "", errors.New("no package directory: pass one or set packages_dir in the config")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// renderProgress draws a single status line on stderr until the returned
// func is called.
func (c *cli) renderProgress(engine *tagscan.Engine) func() {
	updates, cancel := engine.Subscribe()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		start := time.Now()
		for p := range updates {
			line := fmt.Sprintf("%s %s/%s", p.State, humanize.Comma(int64(p.ArchivesDone)), humanize.Comma(int64(p.ArchivesTotal)))
			if p.CurrentArchive != "" {
				line += " " + filepath.Base(p.CurrentArchive)
			}
			line += " (" + time.Since(start).Round(time.Second).String() + ")"
			fmt.Fprintf(c.stderr, "\r\033[K%s", line)
		}
		fmt.Fprint(c.stderr, "\r\033[K")
	}()
	return func() {
		cancel()
		<-finished
	}
}

// --- catalogs ---

func (c *cli) catalogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalogs",
		Short: "List the embedded catalog versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []CLICatalog
			for _, v := range tagscan.CatalogVersions() {
				cat, err := tagscan.LoadCatalog(cmd.Context(), v, tagscan.WithCatalogLogger(c.logger))
				if err != nil {
					return c.outputError("catalogs", fmt.Errorf("loading catalog %s: %w", v, err))
				}
				out = append(out, catalogToCLI(cat, v == c.cfg.Version))
			}
			if out == nil {
				out = []CLICatalog{}
			}
			return c.outputResult(CLIResult{Command: "catalogs", Results: out})
		},
	}
}
