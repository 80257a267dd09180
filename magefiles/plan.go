//go:build mage

package main

import "github.com/magefile/mage/mg"

// Validate checks every plan document for structural problems.
func Validate() error {
	mg.Deps(Build)
	return cli("plan", "validate")
}

// Plans lists the plan documents and their status.
func Plans() error {
	mg.Deps(Build)
	return cli("plan", "list")
}
