// Package web embeds the browser chat widget.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static/*
var files embed.FS

// Files returns the widget assets rooted at the static directory
func Files() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
