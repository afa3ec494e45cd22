package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/wolfeidau/eventdesk/internal/features"
)

// DateTimeLocalLayout is the value format of a datetime-local input.
const DateTimeLocalLayout = "2006-01-02T15:04"

const displayLayout = "Jan 2, 2006 15:04 MST"

//go:embed templates/*.html
var templateFS embed.FS

func templateFuncs(flags *features.Flags, policy *bluemonday.Policy) template.FuncMap {
	funcs := template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format(displayLayout)
		},
		"sanitize": func(s string) template.HTML {
			return template.HTML(policy.Sanitize(s)) //nolint:gosec // sanitized by bluemonday
		},
	}
	for name, fn := range flags.FuncMap() {
		funcs[name] = fn
	}
	return funcs
}

// parseTemplates builds one template set per page, each a clone of the base layout.
func parseTemplates(funcs template.FuncMap) (map[string]*template.Template, error) {
	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	base, err := template.New("base.html").Funcs(funcs).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base template: %w", err)
	}

	sets := make(map[string]*template.Template)
	for _, file := range files {
		if file == "templates/base.html" {
			continue
		}

		set, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := set.ParseFS(templateFS, file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		sets[file[len("templates/"):]] = set
	}

	return sets, nil
}
