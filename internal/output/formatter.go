// Package output renders analysis results as colored text tables, JSON or TOON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	toon "github.com/toon-format/toon-go"
)

// Format represents an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatTOON Format = "toon"
)

// ParseFormat converts a string to Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "toon":
		return FormatTOON
	default:
		return FormatText
	}
}

// Renderable is data that can print itself as text and expose a structured
// form for the machine formats.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderData() any
}

// Formatter writes Renderables in one format.
type Formatter struct {
	format  Format
	writer  io.Writer
	file    *os.File
	colored bool
}

// NewFormatter creates a formatter over w.
func NewFormatter(format Format, w io.Writer, colored bool) *Formatter {
	return &Formatter{format: format, writer: w, colored: colored}
}

// NewFileFormatter creates a formatter writing to path. Color is disabled.
func NewFileFormatter(format Format, path string) (*Formatter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Formatter{format: format, writer: f, file: f}, nil
}

// Close closes the formatter's writer if it's a file.
func (f *Formatter) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// Writer returns the underlying writer.
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// Format returns the configured format.
func (f *Formatter) Format() Format {
	return f.format
}

// Colored returns whether colored output is enabled.
func (f *Formatter) Colored() bool {
	return f.colored
}

// Output writes r in the configured format.
func (f *Formatter) Output(r Renderable) error {
	switch f.format {
	case FormatJSON:
		enc := json.NewEncoder(f.writer)
		enc.SetIndent("", "  ")
		return enc.Encode(r.RenderData())
	case FormatTOON:
		out, err := toon.Marshal(r.RenderData(), toon.WithIndent(2))
		if err != nil {
			return fmt.Errorf("encode toon: %w", err)
		}
		if _, err := f.writer.Write(out); err != nil {
			return err
		}
		_, err = fmt.Fprintln(f.writer)
		return err
	default:
		return r.RenderText(f.writer, f.colored)
	}
}

// Table is a titled table with an optional footer line. Data, when set, is
// what the machine formats serialize instead of the cells.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Footer  string
	Empty   string // printed instead of the table when there are no rows
	Data    any
}

func (t *Table) RenderData() any {
	if t.Data != nil {
		return t.Data
	}
	rows := make([]map[string]string, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]string, len(t.Headers))
		for j, h := range t.Headers {
			if j < len(row) {
				m[h] = row[j]
			}
		}
		rows[i] = m
	}
	return rows
}

func (t *Table) RenderText(w io.Writer, colored bool) error {
	heading(w, t.Title, colored, "=")

	if len(t.Rows) == 0 {
		if t.Empty != "" {
			if colored {
				color.New(color.FgGreen).Fprintln(w, t.Empty)
			} else {
				fmt.Fprintln(w, t.Empty)
			}
		}
	} else {
		table := tablewriter.NewTable(w,
			tablewriter.WithConfig(tablewriter.Config{
				Header: tw.CellConfig{
					Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
					Formatting: tw.CellFormatting{AutoFormat: tw.On},
				},
				Row: tw.CellConfig{
					Alignment: tw.CellAlignment{Global: tw.AlignLeft},
				},
			}),
			tablewriter.WithRendition(tw.Rendition{
				Borders: tw.Border{Left: tw.Off, Right: tw.Off, Top: tw.Off, Bottom: tw.Off},
				Settings: tw.Settings{
					Separators: tw.Separators{BetweenColumns: tw.Off},
				},
			}),
		)
		table.Header(t.Headers)
		for _, row := range t.Rows {
			if err := table.Append(row); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if t.Footer != "" {
		fmt.Fprintln(w, t.Footer)
	}
	fmt.Fprintln(w)
	return nil
}

// Report groups several Renderables under one title.
type Report struct {
	Title    string
	Sections []Renderable
	Data     any
}

func (r *Report) RenderData() any {
	if r.Data != nil {
		return r.Data
	}
	parts := make([]any, len(r.Sections))
	for i, s := range r.Sections {
		parts[i] = s.RenderData()
	}
	return parts
}

func (r *Report) RenderText(w io.Writer, colored bool) error {
	if r.Title != "" {
		if colored {
			color.New(color.Bold, color.FgCyan).Fprintln(w, r.Title)
		} else {
			fmt.Fprintln(w, r.Title)
		}
		fmt.Fprintln(w)
	}
	for _, s := range r.Sections {
		if err := s.RenderText(w, colored); err != nil {
			return err
		}
	}
	return nil
}

func heading(w io.Writer, title string, colored bool, underline string) {
	if title == "" {
		return
	}
	if colored {
		color.New(color.Bold).Fprintln(w, title)
	} else {
		fmt.Fprintln(w, title)
	}
	fmt.Fprintln(w, strings.Repeat(underline, len(title)))
}

// Message helpers for status lines.

func (f *Formatter) Success(format string, args ...any) {
	f.message(color.FgGreen, "", format, args...)
}

func (f *Formatter) Warning(format string, args ...any) {
	f.message(color.FgYellow, "WARNING: ", format, args...)
}

func (f *Formatter) Error(format string, args ...any) {
	f.message(color.FgRed, "ERROR: ", format, args...)
}

func (f *Formatter) message(attr color.Attribute, prefix, format string, args ...any) {
	if f.colored {
		color.New(attr).Fprintf(f.writer, format+"\n", args...)
		return
	}
	fmt.Fprintf(f.writer, prefix+format+"\n", args...)
}

// SeverityColor returns a colored string based on severity level.
func SeverityColor(severity, text string) string {
	switch strings.ToLower(severity) {
	case "high":
		return color.RedString(text)
	case "medium":
		return color.YellowString(text)
	case "low":
		return color.GreenString(text)
	default:
		return text
	}
}
