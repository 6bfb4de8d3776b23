package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	jcs "github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/parity/internal/errors"
)

// Formatter renders a report
type Formatter interface {
	Format(r *Report) error
}

// FormatterOptions contains configuration for formatters
type FormatterOptions struct {
	// Writer is where output is written (defaults to os.Stdout)
	Writer io.Writer
	// NoColor disables styling for the text formatter
	NoColor bool
	// Compact disables indentation for JSON and YAML
	Compact bool
}

// NewFormatter creates a formatter based on the format string
func NewFormatter(format string, opts *FormatterOptions) (Formatter, error) {
	if opts == nil {
		opts = &FormatterOptions{Writer: os.Stdout}
	}
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	switch format {
	case "json":
		return &JSONFormatter{opts: opts}, nil
	case "yaml":
		return &YAMLFormatter{opts: opts}, nil
	case "text", "":
		return newTextFormatter(opts), nil
	default:
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("unknown format: %s (supported: text, json, yaml)", format))
	}
}

// sortedView returns a copy of r with entries sorted by fixture
func sortedView(r *Report) *Report {
	v := *r
	v.Entries = r.Sorted()
	return &v
}

// JSONFormatter writes RFC 8785 canonical JSON, so two reports of the same
// run state are byte-identical
type JSONFormatter struct {
	opts *FormatterOptions
}

// Format writes r as JSON
func (f *JSONFormatter) Format(r *Report) error {
	raw, err := json.Marshal(sortedView(r))
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return fmt.Errorf("canonicalize report: %w", err)
	}

	if !f.opts.Compact {
		var buf bytes.Buffer
		if err := json.Indent(&buf, canon, "", "  "); err != nil {
			return fmt.Errorf("indent report: %w", err)
		}
		canon = buf.Bytes()
	}
	canon = append(canon, '\n')

	_, err = f.opts.Writer.Write(canon)
	return err
}

// YAMLFormatter formats output as YAML
type YAMLFormatter struct {
	opts *FormatterOptions
}

// Format writes r as YAML
func (f *YAMLFormatter) Format(r *Report) error {
	encoder := yaml.NewEncoder(f.opts.Writer)
	if !f.opts.Compact {
		encoder.SetIndent(2)
	}
	defer encoder.Close()
	return encoder.Encode(sortedView(r))
}

// TextFormatter renders a human-readable summary
type TextFormatter struct {
	opts   *FormatterOptions
	styles map[Kind]lipgloss.Style
	title  lipgloss.Style
	dim    lipgloss.Style
}

var kindSymbols = map[Kind]string{
	KindEquivalent:           "✓",
	KindEquivalentWithCaveat: "~",
	KindDivergent:            "✗",
	KindTransformError:       "!",
	KindInfrastructureError:  "?",
}

func newTextFormatter(opts *FormatterOptions) *TextFormatter {
	r := lipgloss.NewRenderer(opts.Writer)
	return &TextFormatter{
		opts: opts,
		styles: map[Kind]lipgloss.Style{
			KindEquivalent:           r.NewStyle().Foreground(lipgloss.Color("10")),
			KindEquivalentWithCaveat: r.NewStyle().Foreground(lipgloss.Color("11")),
			KindDivergent:            r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
			KindTransformError:       r.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
			KindInfrastructureError:  r.NewStyle().Foreground(lipgloss.Color("99")).Bold(true),
		},
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

func (f *TextFormatter) render(s lipgloss.Style, text string) string {
	if f.opts.NoColor {
		return text
	}
	return s.Render(text)
}

// Format writes r as text
func (f *TextFormatter) Format(r *Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n\n", f.render(f.title, "Parity report"), f.render(f.dim, "run "+r.RunID))

	for _, e := range r.Sorted() {
		v := e.Verdict
		label := fmt.Sprintf("%s %-22s", kindSymbols[v.Kind], v.Kind)
		fmt.Fprintf(&b, "  %s %s", f.render(f.styles[v.Kind], label), e.FixtureID)
		if v.Reason != "" {
			fmt.Fprintf(&b, "  %s", f.render(f.dim, v.Reason))
		}
		b.WriteByte('\n')

		if v.ErrorCode != "" && !strings.Contains(v.Reason, v.ErrorCode) {
			fmt.Fprintf(&b, "      code: %s\n", v.ErrorCode)
		}
		writeIndented(&b, v.Diff)
		writeStderr(&b, "original", v.Original)
		writeStderr(&b, "transformed", v.Transformed)
		writeIndented(&b, v.Diagnostic)
	}

	b.WriteByte('\n')
	b.WriteString(f.summaryLine(r))
	b.WriteByte('\n')

	_, err := io.WriteString(f.opts.Writer, b.String())
	return err
}

func (f *TextFormatter) summaryLine(r *Report) string {
	parts := make([]string, 0, len(Kinds))
	for _, k := range Kinds {
		if n := r.Summary.Count(k); n > 0 {
			parts = append(parts, f.render(f.styles[k], fmt.Sprintf("%d %s", n, k)))
		}
	}

	line := fmt.Sprintf("%d fixtures", r.Summary.Total)
	if r.Incomplete {
		if r.Discovered > 0 {
			line = fmt.Sprintf("%d of %d fixtures", r.Summary.Total, r.Discovered)
		}
		line += " (incomplete: run cancelled)"
	}
	if len(parts) > 0 {
		line += ": " + strings.Join(parts, ", ")
	}
	return line + fmt.Sprintf(" in %dms", r.DurationMS)
}

func writeStderr(b *strings.Builder, side string, e *Execution) {
	if e == nil || e.Stderr == "" {
		return
	}
	fmt.Fprintf(b, "      %s stderr:\n", side)
	writeIndented(b, e.Stderr)
}

func writeIndented(b *strings.Builder, text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("      ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// WriteFile writes the report to path in the given format without styling
func (r *Report) WriteFile(path, format string) error {
	var buf bytes.Buffer
	f, err := NewFormatter(format, &FormatterOptions{Writer: &buf, NoColor: true})
	if err != nil {
		return err
	}
	if err := f.Format(r); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("write report %s", path), err)
	}
	return nil
}

var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*YAMLFormatter)(nil)
	_ Formatter = (*TextFormatter)(nil)
)
