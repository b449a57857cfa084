// Package e2e holds the BFD convergence scenarios and their fixtures.
package e2e

import (
	"embed"
	"io/fs"
)

//go:embed fixtures
var embedded embed.FS

// Fixtures is the fixture tree, rooted at the scenario directories.
var Fixtures fs.FS = mustSub(embedded, "fixtures")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
