package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/tagscan"
)

// queryFlags are shared by the query subcommands.
type queryFlags struct {
	limit  int
	offset int
}

func (c *cli) queryCmd() *cobra.Command {
	qf := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the saved scan cache",
		Long:  "Run queries against the cache written by 'tagscan scan'. Nothing is rescanned. Tag ids are accepted as packed hex (80802001) or pkg:entry in hex (1:1).",
	}
	cmd.PersistentFlags().IntVar(&qf.limit, "limit", 50, "pagination limit (max 500)")
	cmd.PersistentFlags().IntVar(&qf.offset, "offset", 0, "pagination offset")

	cmd.AddCommand(c.tagCmd())
	cmd.AddCommand(c.refsCmd())
	cmd.AddCommand(c.refbyCmd())
	cmd.AddCommand(c.stringsCmd(qf))
	cmd.AddCommand(c.typeCmd(qf))
	cmd.AddCommand(c.graphCmd())
	cmd.AddCommand(c.summaryCmd())
	return cmd
}

func (qf *queryFlags) pagination() tagscan.Pagination {
	return tagscan.Pagination{Limit: qf.limit, Offset: qf.offset}
}

// --- Helpers ---

// openEngine loads the catalog and the cache from the configured path. A
// missing or unusable cache is an error here: queries never scan.
func (c *cli) openEngine(cmd *cobra.Command) (*tagscan.Engine, error) {
	if _, err := os.Stat(c.cfg.CachePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("cache not found: %s (run 'tagscan scan' first)", c.cfg.CachePath)
	}
	cat, err := c.loadCatalog(cmd.Context())
	if err != nil {
		return nil, err
	}
	engine, err := tagscan.New(c.cfg.CachePath, cat, tagscan.WithLogger(c.logger))
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	if info := engine.CacheInfo(); info.Discarded != "" {
		return nil, fmt.Errorf("cache %s is unusable: %s (run 'tagscan scan' again)", info.Path, info.Discarded)
	}
	return engine, nil
}

// outputResult marshals a CLIResult to stdout in the selected format.
func (c *cli) outputResult(result CLIResult) error {
	if c.flagFormat == "text" {
		return c.outputResultText(result)
	}
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func (c *cli) outputError(command string, err error) error {
	return c.outputPartial(CLIResult{Command: command}, err)
}

// outputPartial is outputError for commands that still have results to
// show, such as a cancelled scan.
func (c *cli) outputPartial(result CLIResult, err error) error {
	c.errorHandled = true
	if c.flagFormat == "text" {
		if result.Results != nil {
			_ = c.outputResultText(result)
		}
		fmt.Fprintf(c.stderr, "Error: %s\n", err)
		return err
	}
	result.Error = err.Error()
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// parseTagArg parses a positional tag id with a clear error.
func parseTagArg(value string) (tagscan.TagID, error) {
	id, err := tagscan.ParseTagID(value)
	if err != nil {
		return 0, fmt.Errorf("invalid tag id %q: %w", value, err)
	}
	return id, nil
}

// --- Tag Commands ---

func (c *cli) tagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag <id>",
		Short: "Show a tag with its references and string fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTagArg(args[0])
			if err != nil {
				return c.outputError("tag", err)
			}
			engine, err := c.openEngine(cmd)
			if err != nil {
				return c.outputError("tag", err)
			}
			qb := engine.Query()
			res, ok := qb.GetTag(id)
			if !ok {
				return c.outputError("tag", fmt.Errorf("tag %s not found", id))
			}
			one := 1
			return c.outputResult(CLIResult{
				Command:    "tag",
				Results:    tagToCLI(res, qb.StringRefsOf(id), engine.Catalog()),
				TotalCount: &one,
			})
		},
	}
}

func (c *cli) refsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refs <id>",
		Short: "List the tags a tag references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTagArg(args[0])
			if err != nil {
				return c.outputError("refs", err)
			}
			engine, err := c.openEngine(cmd)
			if err != nil {
				return c.outputError("refs", err)
			}
			edges := edgesToCLI(engine.Query().ReferencesOf(id))
			n := len(edges)
			return c.outputResult(CLIResult{Command: "refs", Results: edges, TotalCount: &n})
		},
	}
}

func (c *cli) refbyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refby <id>",
		Short: "List the tags referencing a tag",
		Long:  "Lists every edge pointing at the tag. With --string the argument is a string hash and the result is the tags holding a field with that hash.",
		Args:  cobra.ExactArgs(1),
	}
	asString := cmd.Flags().Bool("string", false, "treat the argument as a string hash")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if *asString {
			h, err := tagscan.ParseHash(args[0])
			if err != nil {
				return c.outputError("refby", err)
			}
			engine, err := c.openEngine(cmd)
			if err != nil {
				return c.outputError("refby", err)
			}
			ids := engine.Query().TagsReferencingString(h)
			out := make([]string, len(ids))
			for i, id := range ids {
				out[i] = id.String()
			}
			n := len(out)
			return c.outputResult(CLIResult{Command: "refby", Results: out, TotalCount: &n})
		}

		id, err := parseTagArg(args[0])
		if err != nil {
			return c.outputError("refby", err)
		}
		engine, err := c.openEngine(cmd)
		if err != nil {
			return c.outputError("refby", err)
		}
		edges := edgesToCLI(engine.Query().ReferencedBy(id))
		n := len(edges)
		return c.outputResult(CLIResult{Command: "refby", Results: edges, TotalCount: &n})
	}
	return cmd
}

// --- Discovery Commands ---

func (c *cli) stringsCmd(qf *queryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strings [text]",
		Short: "Search extracted strings",
		Long:  "Searches localized strings in the catalog's default language and raw strings, by case-insensitive substring. --hash lists every language for one hash instead; --tag lists the strings extracted from one tag.",
		Args:  cobra.MaximumNArgs(1),
	}
	exact := cmd.Flags().Bool("exact", false, "match the whole text, case-sensitively")
	kind := cmd.Flags().String("kind", "", "restrict to localized or raw strings")
	hash := cmd.Flags().String("hash", "", "list every entry for this string hash")
	tag := cmd.Flags().String("tag", "", "list the strings extracted from this tag")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var filter tagscan.StringFilter
		filter.Exact = *exact
		switch *kind {
		case "":
		case "localized":
			k := tagscan.StringLocalized
			filter.Kind = &k
		case "raw":
			k := tagscan.StringRaw
			filter.Kind = &k
		default:
			return c.outputError("strings", fmt.Errorf("invalid kind %q: must be localized or raw", *kind))
		}

		engine, err := c.openEngine(cmd)
		if err != nil {
			return c.outputError("strings", err)
		}
		qb := engine.Query()

		var entries []tagscan.StringEntry
		var total int
		switch {
		case *hash != "":
			h, err := tagscan.ParseHash(*hash)
			if err != nil {
				return c.outputError("strings", err)
			}
			entries = qb.StringsByHash(h)
			total = len(entries)
		case *tag != "":
			id, err := parseTagArg(*tag)
			if err != nil {
				return c.outputError("strings", err)
			}
			entries = qb.StringsOf(id)
			total = len(entries)
		default:
			var query string
			if len(args) > 0 {
				query = args[0]
			}
			page := qb.FindStrings(query, filter, qf.pagination())
			entries, total = page.Items, page.TotalCount
		}

		out := stringsToCLI(entries)
		return c.outputResult(CLIResult{Command: "strings", Results: out, TotalCount: &total})
	}
	return cmd
}

func (c *cli) typeCmd(qf *queryFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "type <hash>",
		Short: "List the tags of one type hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := tagscan.ParseHash(args[0])
			if err != nil {
				return c.outputError("type", err)
			}
			engine, err := c.openEngine(cmd)
			if err != nil {
				return c.outputError("type", err)
			}
			page := engine.Query().FindTagsByType(h, qf.pagination())
			out := make([]CLITag, len(page.Items))
			for i, t := range page.Items {
				out[i] = plainTagToCLI(t, engine.Catalog())
			}
			return c.outputResult(CLIResult{Command: "type", Results: out, TotalCount: &page.TotalCount})
		},
	}
}

// --- Graph Commands ---

func (c *cli) graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <id>",
		Short: "Walk references transitively from a tag",
		Long:  "Returns the reference graph reachable from the tag up to --max-depth. --reverse walks referrers instead.",
		Args:  cobra.ExactArgs(1),
	}
	maxDepth := cmd.Flags().Int("max-depth", 5, "maximum traversal depth (0-100)")
	reverse := cmd.Flags().Bool("reverse", false, "walk incoming references")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		id, err := parseTagArg(args[0])
		if err != nil {
			return c.outputError("graph", err)
		}
		engine, err := c.openEngine(cmd)
		if err != nil {
			return c.outputError("graph", err)
		}
		qb := engine.Query()

		direction := "references"
		walk := qb.TransitiveReferences
		if *reverse {
			direction = "referrers"
			walk = qb.TransitiveReferrers
		}
		g, err := walk(id, *maxDepth)
		if err != nil {
			return c.outputError("graph", err)
		}
		if g == nil {
			return c.outputError("graph", fmt.Errorf("tag %s not found", id))
		}
		out := graphToCLI(g, direction, qb, engine.Catalog())
		n := len(out.Nodes)
		return c.outputResult(CLIResult{Command: "graph", Results: out, TotalCount: &n})
	}
	return cmd
}

// --- Summary ---

func (c *cli) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Summarize the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.openEngine(cmd)
			if err != nil {
				return c.outputError("summary", err)
			}
			s := engine.Query().Summary()
			info := engine.CacheInfo()
			out := CLISummary{
				CachePath:  info.Path,
				Catalog:    engine.Catalog().Version(),
				RunID:      info.RunID,
				Archives:   s.Archives,
				Tags:       s.Tags,
				Strings:    s.Strings,
				Edges:      s.Edges,
				Degraded:   s.Degraded,
				Unresolved: s.Unresolved,
				ByQuality:  make(map[string]int, len(s.ByQuality)),
			}
			if !info.SavedAt.IsZero() {
				out.SavedAt = &info.SavedAt
			}
			for q, n := range s.ByQuality {
				out.ByQuality[q.String()] = n
			}
			return c.outputResult(CLIResult{Command: "summary", Results: out})
		},
	}
}
