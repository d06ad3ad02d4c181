package app

import (
	"embed"
	"html/template"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

// connectPageData feeds the popup controller page.
type connectPageData struct {
	Connected bool
}

// callbackSuccessData feeds the page rendered after a completed exchange.
// State carries pre-marshaled JSON: the quoted original state, or the
// literal null when the redirect carried none.
type callbackSuccessData struct {
	State template.JS
}
