// Package web serves the single page browser UI.
package web

import (
	_ "embed"
	"net/http"
)

//go:embed index.html
var index []byte

func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(index)
	})
}
