package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// TextOptions controls WriteText.
type TextOptions struct {
	// Color enables ANSI styling.
	Color bool
	// Width truncates instruction text to the given number of cells; zero
	// disables truncation.
	Width int
	// Sets appends the invariant and affine memo sets after the entries.
	Sets  bool
}

const classWidth = 10

// WriteText renders kernels one block each:
//
//	kernel vecScale (thread id dims: 1)
//	  invariant  i32 %ntid
//	  affine     %idx = shl i32 %tid, 2
//	  3 invariant, 4 affine, 5 variant
func WriteText(w io.Writer, kernels []Kernel, opts TextOptions) error {
	p := newPalette(opts.Color)
	for i, k := range kernels {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		header := fmt.Sprintf("kernel %s (thread id dims: %d)", k.Name, k.ThreadIDUses)
		if _, err := fmt.Fprintln(w, p.header.Render(header)); err != nil {
			return err
		}
		for _, e := range k.Entries {
			class := runewidth.FillRight(e.Class, classWidth)
			if _, err := fmt.Fprintf(w, "  %s %s\n", p.class(e.Class).Sprint(class), truncate(e.Text, opts.Width)); err != nil {
				return err
			}
		}
		summary := fmt.Sprintf("%d invariant, %d affine, %d variant",
			k.Summary.Invariant, k.Summary.Affine, k.Summary.Variant)
		if _, err := fmt.Fprintf(w, "  %s\n", p.summary.Render(summary)); err != nil {
			return err
		}
		if opts.Sets {
			if err := writeSet(w, p, "Thread-Invariant values:", k.Invariant, opts.Width); err != nil {
				return err
			}
			if err := writeSet(w, p, "Affine values:", k.Affine, opts.Width); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSet(w io.Writer, p palette, title string, values []string, width int) error {
	if _, err := fmt.Fprintln(w, p.header.Render(title)); err != nil {
		return err
	}
	for _, s := range values {
		if _, err := fmt.Fprintf(w, "  %s\n", truncate(s, width)); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes kernels as an indented JSON array.
func WriteJSON(w io.Writer, kernels []Kernel) error {
	if kernels == nil {
		kernels = []Kernel{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(kernels)
}

type palette struct {
	header    lipgloss.Style
	summary   lipgloss.Style
	invariant *color.Color
	affine    *color.Color
	variant   *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		header:    lipgloss.NewStyle(),
		summary:   lipgloss.NewStyle(),
		invariant: color.New(color.FgGreen),
		affine:    color.New(color.FgCyan),
		variant:   color.New(color.FgYellow),
	}
	if enabled {
		p.header = p.header.Bold(true).Foreground(lipgloss.Color("7"))
		p.summary = p.summary.Faint(true)
		for _, c := range []*color.Color{p.invariant, p.affine, p.variant} {
			c.EnableColor()
		}
	} else {
		for _, c := range []*color.Color{p.invariant, p.affine, p.variant} {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) class(name string) *color.Color {
	switch name {
	case "invariant":
		return p.invariant
	case "affine":
		return p.affine
	default:
		return p.variant
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}

// ParseFormat validates an output format name.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", "text":
		return "text", nil
	case "json":
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (must be text or json)", s)
	}
}
