package main

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/queryexporter/query-exporter/internal/config"
)

const (
	docsURL   = "https://github.com/free/sql_exporter#readme"
	templates = `
    {{ define "page" -}}
      <html>
      <head>
        <title>query_exporter</title>
        <style type="text/css">
          body { margin: 0; font-family: "Helvetica Neue", Helvetica, Arial, sans-serif; font-size: 14px; line-height: 1.42857143; color: #333; background-color: #fff; }
          .navbar { display: flex; background-color: #222; margin: 0; border-width: 0 0 1px; border-style: solid; border-color: #080808; }
          .navbar > * { margin: 0; padding: 15px; }
          .navbar * { line-height: 20px; color: #9d9d9d; }
          .navbar a { text-decoration: none; }
          .navbar a:hover, .navbar a:focus { color: #fff; }
          .navbar-header { font-size: 18px; }
          body > * { margin: 15px; padding: 0; }
          pre { padding: 10px; font-size: 13px; background-color: #f5f5f5; border: 1px solid #ccc; }
          h1, h2 { font-weight: 500; }
          a { color: #337ab7; }
          a:hover, a:focus { color: #23527c; }
        </style>
      </head>
      <body>
        <div class="navbar">
          <div class="navbar-header"><a href="/">query_exporter</a></div>
          <div><a href="{{ .MetricsPath }}">Metrics</a></div>
          <div><a href="/config">Configuration</a></div>
          <div><a href="{{ .DocsURL }}">Help</a></div>
        </div>
        {{template "content" .}}
      </body>
      </html>
    {{- end }}

    {{ define "content.home" -}}
      <p>This is a <a href="{{ .DocsURL }}">query_exporter</a> instance.
        You are probably looking for its <a href="{{ .MetricsPath }}">metrics</a> handler.</p>
    {{- end }}

    {{ define "content.config" -}}
      <h2>Configuration</h2>
      <pre>{{ .Config }}</pre>
    {{- end }}

    {{ define "content.error" -}}
      <h2>Error</h2>
      <pre>{{ .Err }}</pre>
    {{- end }}
    `
)

type tdata struct {
	MetricsPath string
	DocsURL     string

	// /config only
	Config string

	// /error only
	Err error
}

var (
	allTemplates   = template.Must(template.New("").Parse(templates))
	homeTemplate   = pageTemplate("home")
	configTemplate = pageTemplate("config")
	errorTemplate  = pageTemplate("error")
)

func pageTemplate(name string) *template.Template {
	page := fmt.Sprintf(`{{define "content"}}{{template "content.%s" .}}{{end}}{{template "page" .}}`, name)
	return template.Must(template.Must(allTemplates.Clone()).Parse(page))
}

// homeHandlerFunc is the HTTP handler for the home page ("/").
func homeHandlerFunc(metricsPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = homeTemplate.Execute(w, &tdata{MetricsPath: metricsPath, DocsURL: docsURL})
	}
}

// configHandlerFunc is the HTTP handler for the "/config" page. It renders
// the loaded configuration as YAML, with every database DSN's password
// redacted.
func configHandlerFunc(metricsPath string, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := cfg.YAML()
		if err != nil {
			handleError(err, metricsPath, w)
			return
		}
		_ = configTemplate.Execute(w, &tdata{
			MetricsPath: metricsPath,
			DocsURL:     docsURL,
			Config:      string(out),
		})
	}
}

// handleError is the error handler other handlers defer to. It must run
// before anything has been written to w, or the 500 status won't stick.
func handleError(err error, metricsPath string, w http.ResponseWriter) {
	w.WriteHeader(http.StatusInternalServerError)
	_ = errorTemplate.Execute(w, &tdata{MetricsPath: metricsPath, DocsURL: docsURL, Err: err})
}
