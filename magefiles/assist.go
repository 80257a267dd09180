//go:build mage

package main

import "github.com/magefile/mage/mg"

// Extract runs AI extraction over every plan document, skipping plans whose
// extraction output is current.
func Extract() error {
	mg.Deps(Build)
	return cli("assist", "extract", "--batch")
}
