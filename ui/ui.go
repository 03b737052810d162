// File: ui/ui.go
// Package ui
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Embedded browser front end served by the HTTP subsystem.

package ui

import (
	"embed"
	"fmt"
)

//go:embed assets
var assets embed.FS

// Resource is one static file served at an exact path.
type Resource struct {
	Path        string
	ContentType string
	Body        []byte
}

var table = []struct {
	path, file, contentType string
}{
	{"/", "assets/index.html", "text/html; charset=utf-8"},
	{"/favicon.ico", "assets/favicon.ico", "image/x-icon"},
	{"/index.css", "assets/index.css", "text/css; charset=utf-8"},
	{"/index.js", "assets/index.js", "text/javascript; charset=utf-8"},
}

// Resources returns the default resource table.
func Resources() ([]Resource, error) {
	out := make([]Resource, 0, len(table))
	for _, e := range table {
		body, err := assets.ReadFile(e.file)
		if err != nil {
			return nil, fmt.Errorf("ui asset %s: %w", e.file, err)
		}
		out = append(out, Resource{Path: e.path, ContentType: e.contentType, Body: body})
	}
	return out, nil
}
