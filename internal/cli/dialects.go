package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/vvka-141/mboxdb/internal/dialect"
)

var dialectsCmd = &cobra.Command{
	Use:   "dialects",
	Short: "Show which capabilities each backend supports",
	Long: `Print a table of every registered backend against every capability,
followed by the parameter limit of each backend.

Overrides from the dialect section of mboxdb.yaml are included.

Examples:
  mboxdb dialects
  NO_COLOR=1 mboxdb dialects | grep upsert`,
	Args: cobra.NoArgs,
	RunE: runDialects,
}

var dialectCmd = &cobra.Command{
	Use:   "dialect",
	Short: "Inspect a single dialect profile",
}

var dialectShowCmd = &cobra.Command{
	Use:   "show <backend>",
	Short: "Show capabilities, error codes and SQL styles of a backend",
	Long: `Show the resolved profile of a backend: capabilities, native error codes
per category, fallback message patterns, index hints and SQL styles.

Examples:
  mboxdb dialect show mariadb
  mboxdb dialect show sqlite`,
	Args: cobra.ExactArgs(1),
	RunE: runDialectShow,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <backend> <code-or-message>",
	Short: "Classify a native error code or message",
	Long: `Map a backend-native error code to its category and say whether the
retry executor would retry it. When the code is not mapped, the argument is
matched against the backend's message patterns instead.

Examples:
  mboxdb classify mysql 1213
  mboxdb classify postgres 40P01
  mboxdb classify sqlite "database is locked"`,
	Args: cobra.ExactArgs(2),
	RunE: runClassify,
}

var fragmentCmd = &cobra.Command{
	Use:   "fragment <backend> <kind> [args...]",
	Short: "Render a dialect-specific SQL fragment",
	Long: `Render the SQL fragment a backend uses for a portable construct.

Kinds:
  ifnull <a> <b>                        null replacement
  force-index <logical-index>           index hint (empty when unsupported)
  limit <offset> <count>                page clause
  upsert <conflict-cols> [update-cols]  comma-separated column lists
  bitand <a> <b>                        a & b
  bitandnot <a> <b>                     a & ~b
  concat <part>...                      string concatenation

Examples:
  mboxdb fragment mysql limit 20 10
  mboxdb fragment derby force-index mail_item_folder_date
  mboxdb fragment postgres upsert id,mailbox_id flags,tags`,
	Args: cobra.MinimumNArgs(2),
	RunE: runFragment,
}

func init() {
	dialectCmd.AddCommand(dialectShowCmd)
	rootCmd.AddCommand(dialectsCmd, dialectCmd, classifyCmd, fragmentCmd)
}

// loadRegistry builds the registry for commands that need no database.
func loadRegistry(cmd *cobra.Command) (*dialect.Registry, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := loadProjectConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newRegistry(cfg, logger)
}

func runDialects(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	if err := registry.ValidateAll(); err != nil {
		return err
	}

	names := registry.Names()
	profiles := make([]*dialect.Profile, len(names))
	for i, name := range names {
		profiles[i] = registry.MustLookup(name)
	}

	rows := [][]string{append([]string{"capability"}, names...)}
	for _, c := range dialect.AllCapabilities {
		row := []string{string(c)}
		for _, p := range profiles {
			if p.Supports(c) {
				row = append(row, "yes")
			} else {
				row = append(row, "-")
			}
		}
		rows = append(rows, row)
	}
	limits := []string{"param limit"}
	for _, p := range profiles {
		limits = append(limits, formatLimit(p.ParamLimit()))
	}
	rows = append(rows, limits)

	out := cmd.OutOrStdout()
	pal := newPalette(out)
	fmt.Fprint(out, pal.renderTable(rows, func(row, col int) lipgloss.Style {
		switch {
		case col == 0:
			return pal.head
		case rows[row][col] == "yes":
			return pal.yes
		case rows[row][col] == "-":
			return pal.no
		default:
			return lipgloss.NewStyle()
		}
	}))
	return nil
}

func runDialectShow(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	p, err := lookupDialect(registry, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pal := newPalette(out)

	fmt.Fprintln(out, pal.title.Render("Dialect "+p.Name()))
	if base := p.Base(); base != nil {
		fmt.Fprintf(out, "  derived from: %s\n", base.Name())
	}
	fmt.Fprintf(out, "  index hints:  %s\n", p.HintStyle())
	fmt.Fprintf(out, "  limit style:  %s\n", p.LimitStyle())
	if p.Supports(dialect.CapUpsert) {
		fmt.Fprintf(out, "  upsert style: %s\n", p.UpsertStyle())
	}
	fmt.Fprintf(out, "  param limit:  %s\n", formatLimit(p.ParamLimit()))

	fmt.Fprintln(out)
	fmt.Fprintln(out, pal.title.Render("Capabilities"))
	for _, c := range p.Capabilities() {
		fmt.Fprintf(out, "  %s\n", c)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, pal.title.Render("Error categories"))
	rows := [][]string{{"category", "codes", "patterns", "retried"}}
	for _, cat := range dialect.RequiredCategories {
		codes, ok := p.Codes(cat)
		codeCell := strings.Join(codes, " ")
		if !ok {
			codeCell = "unsupported"
		}
		retried := "no"
		if cat.Transient() {
			retried = "yes"
		}
		rows = append(rows, []string{
			string(cat),
			codeCell,
			strings.Join(p.MessagePatterns(cat), "; "),
			retried,
		})
	}
	fmt.Fprint(out, indent(pal.renderTable(rows, func(row, col int) lipgloss.Style {
		if rows[row][col] == "unsupported" {
			return pal.warn
		}
		return lipgloss.NewStyle()
	})))

	hints := p.IndexHints()
	if len(hints) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, pal.title.Render("Index hints"))
		logical := make([]string, 0, len(hints))
		for k := range hints {
			logical = append(logical, k)
		}
		sort.Strings(logical)
		for _, k := range logical {
			fmt.Fprintf(out, "  %s -> %s\n", k, hints[k])
		}
	}
	return nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	p, err := lookupDialect(registry, args[0])
	if err != nil {
		return err
	}

	source := "code"
	category := p.Classify(args[1])
	if category == dialect.Unknown {
		source = "message"
		category = p.ClassifyError(errors.New(args[1]))
	}
	if category == dialect.Unknown {
		source = "none"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "category:  %s\n", category)
	fmt.Fprintf(out, "matched:   %s\n", source)
	fmt.Fprintf(out, "transient: %t\n", category.Transient())
	if shared := p.SharedCategories(args[1]); len(shared) > 0 {
		names := make([]string, len(shared))
		for i, c := range shared {
			names[i] = string(c)
		}
		fmt.Fprintf(out, "shared:    %s (decided by message)\n", strings.Join(names, ", "))
	}
	return nil
}

func runFragment(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry(cmd)
	if err != nil {
		return err
	}
	p, err := lookupDialect(registry, args[0])
	if err != nil {
		return err
	}

	fragment, err := renderFragment(p, args[1], args[2:])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(fragment, "\n"))
	return nil
}

func renderFragment(p *dialect.Profile, kind string, args []string) (string, error) {
	need := func(n int, usage string) error {
		if len(args) != n {
			return fmt.Errorf("invalid argument count for %s: usage: %s", kind, usage)
		}
		return nil
	}

	switch kind {
	case "ifnull":
		if err := need(2, "ifnull <a> <b>"); err != nil {
			return "", err
		}
		return p.IfNull(args[0], args[1]), nil
	case "force-index":
		if err := need(1, "force-index <logical-index>"); err != nil {
			return "", err
		}
		return strings.TrimSpace(p.ForceIndexClause(args[0])), nil
	case "limit":
		if err := need(2, "limit <offset> <count>"); err != nil {
			return "", err
		}
		offset, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("invalid argument %q for offset: %w", args[0], err)
		}
		count, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("invalid argument %q for count: %w", args[1], err)
		}
		return p.Limit(offset, count), nil
	case "upsert":
		if len(args) < 1 || len(args) > 2 {
			return "", fmt.Errorf("invalid argument count for upsert: usage: upsert <conflict-cols> [update-cols]")
		}
		var update []string
		if len(args) == 2 {
			update = splitColumns(args[1])
		}
		return p.Upsert(splitColumns(args[0]), update)
	case "bitand":
		if err := need(2, "bitand <a> <b>"); err != nil {
			return "", err
		}
		return p.BitAND(args[0], args[1]), nil
	case "bitandnot":
		if err := need(2, "bitandnot <a> <b>"); err != nil {
			return "", err
		}
		return p.BitANDNOT(args[0], args[1]), nil
	case "concat":
		return p.Concat(args...), nil
	default:
		return "", fmt.Errorf("invalid argument %q: unknown fragment kind", kind)
	}
}

func splitColumns(s string) []string {
	var cols []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

func formatLimit(n int) string {
	if n <= 0 {
		return "none"
	}
	return strconv.Itoa(n)
}

func indent(s string) string {
	lines := strings.SplitAfter(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "  " + l
		}
	}
	return strings.Join(lines, "")
}
