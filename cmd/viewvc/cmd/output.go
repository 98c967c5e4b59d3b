package cmd

import (
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/docker/go-units"
	jsoniter "github.com/json-iterator/go"
	"github.com/viewvc/viewvc-sub000/pkg/vclib"
)

const dateLayout = "2006-01-02 15:04:05"

var templateFuncs = template.FuncMap{
	"date": func(d *time.Time) string {
		if d == nil {
			return "-"
		}
		return d.UTC().Format(dateLayout)
	},
	"size": func(size int64) string {
		if size < 0 {
			return "-"
		}
		return units.HumanSize(float64(size))
	},
	"path": vclib.JoinPath,
	"orDash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
}

// outputTemplate returns the template given with --format, or the default template of a command
func outputTemplate(name, defaultTemplate string) *template.Template {
	if viewvcFlags.root.template != "" {
		t, err := template.New(name).Funcs(templateFuncs).Parse(viewvcFlags.root.template)
		if err != nil {
			wrapFatalln("parsing template", err)
			return nil
		}
		return t
	}
	return template.Must(template.New(name).Funcs(templateFuncs).Parse(defaultTemplate))
}

func writeJSON(w io.Writer, v interface{}) error {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// render writes v as JSON with --json, else through the template
func render(w io.Writer, t *template.Template, v interface{}) error {
	if viewvcFlags.root.json {
		return writeJSON(w, v)
	}
	if err := t.Execute(w, v); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}
	return nil
}
