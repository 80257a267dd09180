// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package plan parses, scaffolds, validates, and imports plan documents:
// Markdown files with YAML frontmatter, one project idea per file.
package plan

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/RadimMusalek/pv-planner/pkg/types"
)

// AtticDir is the subdirectory of the plans directory where imported
// originals are preserved verbatim.
const AtticDir = "attic"

// PromptHeadingPrefix marks sections that record a brainstorming exchange.
// The heading carries the exchange topic, e.g. "Prompt — grid constraints".
const PromptHeadingPrefix = "Prompt — "

// Section is a chunk of a plan document under one ## or ### heading.
type Section struct {
	// Heading is the heading text without the leading # markers.
	Heading string

	// Body is the section text up to the next heading.
	Body string
}

// Document is a parsed plan document.
type Document struct {
	Meta     types.PlanMeta
	Sections []Section
	Path     string
}

// Slug returns the identifier implied by the document's filename.
func (d *Document) Slug() string {
	return strings.TrimSuffix(filepath.Base(d.Path), filepath.Ext(d.Path))
}

// FindSection returns the first section with the given heading.
func (d *Document) FindSection(heading string) (Section, bool) {
	for _, sec := range d.Sections {
		if sec.Heading == heading {
			return sec, true
		}
	}
	return Section{}, false
}

// Headings returns the section headings in document order, skipping any
// preamble text before the first heading.
func (d *Document) Headings() []string {
	var headings []string
	for _, sec := range d.Sections {
		if sec.Heading != "" {
			headings = append(headings, sec.Heading)
		}
	}
	return headings
}

// Load reads and parses the plan document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse parses raw plan document bytes. The path is used only for error
// messages and the returned document's Path field.
func Parse(path string, data []byte) (*Document, error) {
	metaRaw, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var meta types.PlanMeta
	if err := yaml.Unmarshal([]byte(metaRaw), &meta); err != nil {
		return nil, fmt.Errorf("parsing frontmatter of %s: %w", path, err)
	}

	return &Document{
		Meta:     meta,
		Sections: parseSections(body),
		Path:     path,
	}, nil
}

// splitFrontmatter separates the YAML frontmatter block from the Markdown
// body. The frontmatter must open on the first line with --- and close with
// a --- line of its own.
func splitFrontmatter(content string) (meta, body string, err error) {
	if strings.TrimSpace(content) == "" {
		return "", "", fmt.Errorf("empty plan document")
	}
	if !strings.HasPrefix(content, "---\n") && content != "---" {
		return "", "", fmt.Errorf("missing frontmatter (expected opening --- on the first line)")
	}

	rest := strings.TrimPrefix(content, "---\n")
	if idx := strings.Index(rest, "\n---\n"); idx >= 0 {
		return rest[:idx+1], rest[idx+len("\n---\n"):], nil
	}
	if strings.HasSuffix(rest, "\n---") {
		return strings.TrimSuffix(rest, "---"), "", nil
	}
	return "", "", fmt.Errorf("unterminated frontmatter (missing closing ---)")
}

// parseSections splits a Markdown body into sections on ## and ### heading
// boundaries. Text before the first heading becomes a section with an empty
// heading.
func parseSections(body string) []Section {
	lines := strings.Split(body, "\n")
	var sections []Section
	currentHeading := ""
	var bodyLines []string

	flush := func() {
		text := strings.Join(bodyLines, "\n")
		if currentHeading != "" || strings.TrimSpace(text) != "" {
			sections = append(sections, Section{Heading: currentHeading, Body: text})
		}
		bodyLines = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isHeading(trimmed) {
			flush()
			currentHeading = stripHeadingPrefix(trimmed)
			continue
		}
		bodyLines = append(bodyLines, line)
	}

	flush()
	return sections
}

// isHeading returns true if the line starts with ## or ###.
func isHeading(line string) bool {
	return strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ")
}

// stripHeadingPrefix removes the leading # characters and whitespace.
func stripHeadingPrefix(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "#"))
}

// IsPromptSection reports whether the heading marks a recorded brainstorming
// exchange. Hand-written plans sometimes use a plain hyphen instead of the
// dash the tool writes, so both are accepted.
func IsPromptSection(heading string) bool {
	return heading == "Prompt" ||
		strings.HasPrefix(heading, "Prompt —") ||
		strings.HasPrefix(heading, "Prompt -")
}

// Files returns the plan document paths under plansDir, sorted by name.
// Subdirectories, including attic/, are skipped.
func Files(plansDir string) ([]string, error) {
	entries, err := os.ReadDir(plansDir)
	if err != nil {
		return nil, fmt.Errorf("reading plans directory %s: %w", plansDir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		paths = append(paths, filepath.Join(plansDir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Slugify converts a title into a filesystem-safe plan identifier:
// lowercased, with runs of non-alphanumeric characters collapsed into
// single hyphens.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// renderDocument serializes frontmatter and body into plan document bytes.
func renderDocument(meta types.PlanMeta, body string) ([]byte, error) {
	fm, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling frontmatter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.Bytes(), nil
}

// WriteAtomic writes data to path via a temporary file and rename, so an
// interrupted write never leaves a half-written plan document behind.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".plan-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}
