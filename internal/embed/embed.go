// Package embed carries the page served when no frontend build is present.
package embed

import (
	"embed"
	"io/fs"
)

//go:embed all:public
var publicFS embed.FS

// GetPublicFS returns the embedded fallback site rooted at its index.html.
func GetPublicFS() (fs.FS, error) {
	return fs.Sub(publicFS, "public")
}

// HasEmbeddedFiles reports whether the fallback site was compiled in.
func HasEmbeddedFiles() bool {
	entries, err := publicFS.ReadDir("public")
	return err == nil && len(entries) > 0
}
