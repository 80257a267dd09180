// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns PDF source documents into Markdown so they can be
// imported as plan documents.
package convert

import "github.com/RadimMusalek/pv-planner/internal/container"

// Converter transforms a PDF file into Markdown text. The plan import path
// accepts any implementation, so tests substitute a fake.
type Converter interface {
	// Convert reads the PDF at pdfPath and returns its Markdown content.
	Convert(pdfPath string) (string, error)
}

// NewDefault detects a container runtime and returns a markitdown-backed
// converter. It fails when no runtime or no markitdown image is available.
func NewDefault() (Converter, error) {
	rt, err := container.DetectRuntime()
	if err != nil {
		return nil, err
	}
	return NewMarkitdownConverter(rt)
}
