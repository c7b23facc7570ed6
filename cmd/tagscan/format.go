package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jward/tagscan"
)

// --- Conversions ---

func hashString(h uint32) string { return fmt.Sprintf("%08X", h) }

func className(cat *tagscan.Catalog, h uint32) string {
	if cl, ok := cat.Class(h); ok {
		return cl.Name
	}
	return ""
}

// plainTagToCLI converts a Tag without the referrer count or string lookups.
func plainTagToCLI(t tagscan.Tag, cat *tagscan.Catalog) CLITag {
	out := CLITag{
		ID:       t.ID.String(),
		Package:  t.ID.Package(),
		Entry:    t.ID.Entry(),
		TypeHash: hashString(t.TypeHash),
		Size:     t.Size,
		FileType: t.Kind.Type,
		Subtype:  t.Kind.Subtype,
		Quality:  t.Quality.String(),
	}
	if cl, ok := cat.Class(t.TypeHash); ok {
		out.Class = cl.Name
		out.Recognized = true
	}
	for _, r := range t.References {
		out.References = append(out.References, CLIReference{
			Offset: r.Offset,
			Kind:   r.Kind.String(),
			Wide:   r.Wide,
			Value:  hashString(uint32(r.Value)),
		})
	}
	return out
}

func tagToCLI(res *tagscan.TagResult, refs []tagscan.StringRef, cat *tagscan.Catalog) CLITag {
	out := plainTagToCLI(res.Tag, cat)
	out.Referrers = res.Referrers
	for _, r := range refs {
		out.StringRefs = append(out.StringRefs, CLIStringRef{
			Offset: r.Offset,
			Hash:   hashString(r.Hash),
			Names:  cat.KnownStrings(r.Hash),
			Texts:  stringsToCLI(r.Texts),
		})
	}
	return out
}

func edgesToCLI(edges []tagscan.Edge) []CLIEdge {
	out := make([]CLIEdge, len(edges))
	for i, e := range edges {
		out[i] = CLIEdge{From: e.From.String(), To: e.To.String(), Offset: e.Offset, Wide: e.Wide}
	}
	return out
}

func stringsToCLI(entries []tagscan.StringEntry) []CLIString {
	out := make([]CLIString, len(entries))
	for i, e := range entries {
		s := CLIString{
			Hash:     hashString(e.Hash),
			Text:     e.Text,
			Kind:     e.Kind.String(),
			Language: e.Language,
		}
		for _, src := range e.Sources {
			s.Sources = append(s.Sources, src.String())
		}
		out[i] = s
	}
	return out
}

// graphToCLI converts a walk, naming each present node's class.
func graphToCLI(g *tagscan.RefGraph, direction string, qb *tagscan.QueryBuilder, cat *tagscan.Catalog) CLIGraph {
	out := CLIGraph{
		Root:      g.Root.String(),
		Direction: direction,
		Depth:     g.Depth,
		Nodes:     make([]CLIGraphNode, len(g.Nodes)),
		Edges:     edgesToCLI(g.Edges),
	}
	for i, n := range g.Nodes {
		node := CLIGraphNode{ID: n.ID.String(), Depth: n.Depth, Missing: n.Missing}
		if t, ok := qb.GetTag(n.ID); ok {
			node.Class = className(cat, t.TypeHash)
		}
		out.Nodes[i] = node
	}
	return out
}

func reportToCLI(r *tagscan.Report) CLIScanReport {
	out := CLIScanReport{
		RunID:      r.RunID,
		Dir:        r.Dir,
		State:      r.State.String(),
		DurationMS: r.Duration().Milliseconds(),
		Counts:     make(map[string]int),
		Archives:   make([]CLIArchiveResult, len(r.Archives)),
	}
	for i, a := range r.Archives {
		out.Counts[a.Status.String()]++
		out.Archives[i] = CLIArchiveResult{
			Path:           a.Path,
			Archive:        a.Archive,
			Patch:          a.Patch,
			Status:         a.Status.String(),
			Tags:           a.Tags,
			Strings:        a.Strings,
			Edges:          a.Edges,
			DegradedTags:   a.DegradedTags,
			SkippedStrings: a.SkippedStrings,
			Error:          a.Error,
		}
	}
	return out
}

func catalogToCLI(cat *tagscan.Catalog, selected bool) CLICatalog {
	order := "little"
	if cat.ByteOrder() == binary.BigEndian {
		order = "big"
	}
	return CLICatalog{
		Version:         cat.Version(),
		Selected:        selected,
		Classes:         len(cat.Classes()),
		KnownStrings:    cat.KnownStringCount(),
		ByteOrder:       order,
		PointerWidth:    cat.PointerWidth(),
		Alignment:       cat.Alignment(),
		DefaultLanguage: cat.DefaultLanguage(),
	}
}

// --- Text Formatters ---

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func count(n int) string { return humanize.Comma(int64(n)) }

// formatTagsText formats CLITag results as aligned columns.
func formatTagsText(w io.Writer, tags []CLITag) {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "ID\tTYPE\tCLASS\tSIZE\tQUALITY\tREFS")
	for _, t := range tags {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			t.ID, t.TypeHash, t.Class, humanize.IBytes(uint64(t.Size)), t.Quality, len(t.References))
	}
	tw.Flush()
}

// formatTagText formats one tag with its fields.
func formatTagText(w io.Writer, t CLITag) {
	class := t.Class
	if class == "" {
		class = "unrecognized"
	}
	fmt.Fprintf(w, "Tag %s (package %d, entry %d)\n", t.ID, t.Package, t.Entry)
	fmt.Fprintf(w, "Type: %s %s\n", t.TypeHash, class)
	fmt.Fprintf(w, "Size: %s\n", humanize.IBytes(uint64(t.Size)))
	fmt.Fprintf(w, "Quality: %s\n", t.Quality)
	fmt.Fprintf(w, "Referenced by: %s\n", count(t.Referrers))

	if len(t.References) > 0 {
		fmt.Fprintln(w)
		tw := newTabWriter(w)
		fmt.Fprintln(tw, "OFFSET\tKIND\tVALUE")
		for _, r := range t.References {
			kind := r.Kind
			if r.Wide {
				kind += " (64)"
			}
			fmt.Fprintf(tw, "0x%X\t%s\t%s\n", r.Offset, kind, r.Value)
		}
		tw.Flush()
	}

	if len(t.StringRefs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Strings:")
		for _, s := range t.StringRefs {
			var texts []string
			texts = append(texts, s.Names...)
			for _, e := range s.Texts {
				texts = append(texts, fmt.Sprintf("%q", e.Text))
			}
			fmt.Fprintf(w, "  0x%X %s %s\n", s.Offset, s.Hash, strings.Join(texts, ", "))
		}
	}
}

// formatEdgesText formats CLIEdge results as aligned columns.
func formatEdgesText(w io.Writer, edges []CLIEdge) {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "FROM\tTO\tOFFSET\tWIDE")
	for _, e := range edges {
		fmt.Fprintf(tw, "%s\t%s\t0x%X\t%t\n", e.From, e.To, e.Offset, e.Wide)
	}
	tw.Flush()
}

// formatStringsText formats CLIString results as aligned columns.
func formatStringsText(w io.Writer, entries []CLIString) {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "HASH\tKIND\tLANG\tSOURCES\tTEXT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%q\n", e.Hash, e.Kind, e.Language, len(e.Sources), e.Text)
	}
	tw.Flush()
}

// formatIDsText prints one tag id per line.
func formatIDsText(w io.Writer, ids []string) {
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
}

// formatGraphText prints a walk as an indented node list followed by edges.
func formatGraphText(w io.Writer, g CLIGraph) {
	fmt.Fprintf(w, "%s of %s (depth %d)\n", strings.ToUpper(g.Direction[:1])+g.Direction[1:], g.Root, g.Depth)
	for _, n := range g.Nodes {
		label := n.Class
		if n.Missing {
			label = "missing"
		}
		fmt.Fprintf(w, "%s%s %s\n", strings.Repeat("  ", n.Depth), n.ID, label)
	}
	if len(g.Edges) > 0 {
		fmt.Fprintln(w)
		formatEdgesText(w, g.Edges)
	}
}

// formatSummaryText formats CLISummary as readable text.
func formatSummaryText(w io.Writer, s CLISummary) {
	fmt.Fprintln(w, "Cache Summary")
	fmt.Fprintln(w, "=============")
	fmt.Fprintf(w, "Cache: %s\n", s.CachePath)
	fmt.Fprintf(w, "Catalog: %s\n", s.Catalog)
	if s.SavedAt != nil {
		fmt.Fprintf(w, "Saved: %s (run %s)\n", humanize.Time(*s.SavedAt), s.RunID)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Archives: %s\n", count(s.Archives))
	fmt.Fprintf(w, "Tags: %s (%s degraded)\n", count(s.Tags), count(s.Degraded))
	fmt.Fprintf(w, "Strings: %s\n", count(s.Strings))
	fmt.Fprintf(w, "Edges: %s (%s unresolved references)\n", count(s.Edges), count(s.Unresolved))

	if len(s.ByQuality) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Tags by Quality:")
		qualities := make([]string, 0, len(s.ByQuality))
		for q := range s.ByQuality {
			qualities = append(qualities, q)
		}
		sort.Strings(qualities)
		for _, q := range qualities {
			fmt.Fprintf(w, "  %s: %s\n", q, count(s.ByQuality[q]))
		}
	}
}

// formatScanText formats a scan report: one row per archive and a footer.
func formatScanText(w io.Writer, r CLIScanReport) {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "PATH\tARCHIVE\tPATCH\tSTATUS\tTAGS\tSTRINGS\tEDGES\tERROR")
	for _, a := range r.Archives {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			a.Path, a.Archive, a.Patch, a.Status, count(a.Tags), count(a.Strings), count(a.Edges), a.Error)
	}
	tw.Flush()

	statuses := make([]string, 0, len(r.Counts))
	for s, n := range r.Counts {
		statuses = append(statuses, fmt.Sprintf("%s %s", count(n), s))
	}
	sort.Strings(statuses)
	d := time.Duration(r.DurationMS) * time.Millisecond
	fmt.Fprintf(w, "\n%s: %s archives in %s (%s)\n", r.State, count(len(r.Archives)), d, strings.Join(statuses, ", "))
}

// formatCatalogsText formats CLICatalog results as aligned columns.
func formatCatalogsText(w io.Writer, cats []CLICatalog) {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "VERSION\tCLASSES\tKNOWN STRINGS\tORDER\tPOINTER\tLANG\t")
	for _, c := range cats {
		mark := ""
		if c.Selected {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Version, count(c.Classes), count(c.KnownStrings), c.ByteOrder, c.PointerWidth, c.DefaultLanguage, mark)
	}
	tw.Flush()
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func (c *cli) outputResultText(result CLIResult) error {
	w := c.stdout

	switch v := result.Results.(type) {
	case CLITag:
		formatTagText(w, v)
	case []CLITag:
		formatTagsText(w, v)
	case []CLIEdge:
		formatEdgesText(w, v)
	case []CLIString:
		formatStringsText(w, v)
	case []string:
		formatIDsText(w, v)
	case CLIGraph:
		formatGraphText(w, v)
	case CLISummary:
		formatSummaryText(w, v)
	case CLIScanReport:
		formatScanText(w, v)
	case []CLICatalog:
		formatCatalogsText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		total := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < total {
			fmt.Fprintf(w, "\nShowing %s of %s results\n", count(shown), count(total))
		}
	}
	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLITag:
		return len(r)
	case []CLIEdge:
		return len(r)
	case []CLIString:
		return len(r)
	case []string:
		return len(r)
	case []CLICatalog:
		return len(r)
	case CLIGraph:
		return len(r.Nodes)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
