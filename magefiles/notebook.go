//go:build mage

package main

import "github.com/magefile/mage/mg"

// Ingest rebuilds the planning notebook from extracted entries.
func Ingest() error {
	mg.Deps(Build)
	return cli("notebook", "store")
}

// Export writes the full notebook to planning/index/export.yaml.
func Export() error {
	mg.Deps(Build)
	return cli("notebook", "export")
}
