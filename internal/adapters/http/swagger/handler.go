// Package swagger serves the API reference.
package swagger

import (
	"bytes"
	"context"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
)

// Register attaches the reference page and the OpenAPI document to router.
// Both are served from the binary; the page loads nothing from the network.
// Routes:
//
//	GET /api-docs      -> HTML reference
//	GET /openapi.yaml  -> Embedded OpenAPI document
func Register(_ context.Context, router *mux.Router) {
	if router == nil {
		panic("router is nil")
	}

	page := mustRenderIndex()
	router.HandleFunc("/api-docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
		_, _ = w.Write(page)
	}).Methods(http.MethodGet)

	router.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	}).Methods(http.MethodGet)
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Receipt Points API Reference</title>
    <style>body{margin:0;padding:1rem 2rem;font-family:sans-serif}pre{background:#f6f8fa;padding:1rem;overflow:auto}</style>
  </head>
  <body>
    <h1>Receipt Points API Reference</h1>
    <p>Raw document: <a href="/openapi.yaml">/openapi.yaml</a></p>
    <pre id="openapi">{{.}}</pre>
  </body>
</html>
`))

func mustRenderIndex() []byte {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, string(OpenAPI)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
