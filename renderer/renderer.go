// Package renderer turns a foreign assets schedule into markdown and FA.csv.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/etnz/foreignassets"
	"github.com/etnz/foreignassets/date"
)

//go:embed templates/*.md
var templates embed.FS

// Options controls how amounts are rendered.
type Options struct {
	// Whole rounds amounts to whole units of the home currency, as the ITR forms expect.
	Whole bool
	// All keeps the rows not held during the year.
	All bool
}

// Summary is the data of the markdown summary of a schedule.
type Summary struct {
	Year     int
	Currency string
	Grouping string
	Rows     []foreignassets.Valuation
	Total    foreignassets.Total
	Failures []foreignassets.Failure
	// Skipped counts the rows not held during the year.
	Skipped int
}

// NewSummary prepares the summary of s.
func NewSummary(s *foreignassets.Schedule, failures []foreignassets.Failure, opts Options) *Summary {
	sum := &Summary{
		Year:     s.Year,
		Currency: s.HomeCurrency,
		Grouping: s.Grouping.String(),
		Total:    s.Total,
		Failures: failures,
	}
	for _, row := range s.Rows {
		if !row.Held && !opts.All {
			sum.Skipped++
			continue
		}
		sum.Rows = append(sum.Rows, row)
	}
	return sum
}

// RenderSummary renders the markdown summary of a schedule.
func RenderSummary(s *Summary, opts Options) string {
	partials := map[string]string{
		"schedule_rows":     "schedule_rows.md",
		"schedule_failures": "schedule_failures.md",
	}
	if len(s.Failures) == 0 {
		partials["schedule_failures"] = ""
	}
	return renderTemplate("schedule", "schedule.md", partials, funcs(opts), s)
}

// funcs returns the template helpers.
func funcs(opts Options) template.FuncMap {
	return template.FuncMap{
		"money": func(m foreignassets.Money) string {
			if m.Currency() == "" {
				return "0"
			}
			if opts.Whole {
				return m.RoundWhole().String()
			}
			return m.String()
		},
		"day": func(d date.Date) string {
			if d.IsZero() {
				return "-"
			}
			return d.String()
		},
		// cell escapes the characters breaking a table cell.
		"cell": func(s string) string {
			return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
		},
		"inc": func(i int) int { return i + 1 },
	}
}

// renderTemplate is a generic utility to render a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, helpers template.FuncMap, data any) string {
	mainContent, err := fs.ReadFile(templates, "templates/"+mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Funcs(helpers).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		var content []byte
		// An empty file name is a valid case, resulting in an empty template.
		if file != "" {
			content, err = fs.ReadFile(templates, "templates/"+file)
			if err != nil {
				return fmt.Sprintf("error reading partial template %q: %v", file, err)
			}
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
