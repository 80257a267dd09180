package plan

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RadimMusalek/pv-planner/internal/convert"
	"github.com/RadimMusalek/pv-planner/pkg/types"
)

// ImportResult holds counts from a batch import run.
type ImportResult struct {
	Imported int
	Skipped  int
	Failed   int
}

// Total returns the number of source files processed.
func (r ImportResult) Total() int {
	return r.Imported + r.Skipped + r.Failed
}

// HasFailures reports whether any source files failed to import.
func (r ImportResult) HasFailures() bool {
	return r.Failed > 0
}

// Importer brings external documents into the plans directory. Converter is
// consulted only for PDF sources and may be nil when importing Markdown.
type Importer struct {
	Converter convert.Converter
	Config    types.PlanConfig
}

// ImportAll imports each source file in paths, printing per-file progress
// to w. Failures are counted and reported; the batch continues.
func (im *Importer) ImportAll(paths []string, w io.Writer) ImportResult {
	var result ImportResult

	for _, src := range paths {
		slug := Slugify(sourceStem(src))
		dest := filepath.Join(im.Config.PlansDir, slug+".md")
		if _, err := os.Stat(dest); err == nil {
			fmt.Fprintf(w, "skipped %s (plan %q already exists)\n", src, slug)
			result.Skipped++
			continue
		}

		path, err := im.Import(src)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", src, err)
			result.Failed++
			continue
		}
		fmt.Fprintf(w, "imported %s -> %s\n", src, path)
		result.Imported++
	}

	fmt.Fprintf(w, "\nImport summary: %d imported, %d skipped, %d failed (total: %d)\n",
		result.Imported, result.Skipped, result.Failed, result.Total())
	return result
}

// Import brings a single source document into the plans directory and
// returns the path of the created plan. Markdown sources are copied with
// frontmatter injected when missing; PDF sources are converted to Markdown
// first. The original file is preserved verbatim under plans/attic/.
func (im *Importer) Import(srcPath string) (string, error) {
	slug := Slugify(sourceStem(srcPath))
	if slug == "" {
		return "", fmt.Errorf("filename %q yields an empty plan identifier", filepath.Base(srcPath))
	}
	dest := filepath.Join(im.Config.PlansDir, slug+".md")
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("plan %q already exists at %s", slug, dest)
	}

	var content string
	switch strings.ToLower(filepath.Ext(srcPath)) {
	case ".md", ".markdown":
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", srcPath, err)
		}
		content = string(data)
	case ".pdf":
		if im.Converter == nil {
			return "", fmt.Errorf("importing %s: no PDF converter available (is the markitdown container image installed?)", srcPath)
		}
		markdown, err := im.Converter.Convert(srcPath)
		if err != nil {
			return "", fmt.Errorf("converting %s: %w", srcPath, err)
		}
		content = markdown
	default:
		return "", fmt.Errorf("unsupported source type %q (want .md or .pdf)", filepath.Ext(srcPath))
	}

	if err := im.preserveOriginal(srcPath); err != nil {
		return "", err
	}

	content, err := ensureFrontmatter(content, slug)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(im.Config.PlansDir, 0o755); err != nil {
		return "", fmt.Errorf("creating plans directory %s: %w", im.Config.PlansDir, err)
	}
	if err := WriteAtomic(dest, []byte(content)); err != nil {
		return "", err
	}
	return dest, nil
}

// preserveOriginal copies the source file into plans/attic/ without
// modification. An attic file that is already present stays untouched.
func (im *Importer) preserveOriginal(srcPath string) error {
	atticDir := filepath.Join(im.Config.PlansDir, AtticDir)
	if err := os.MkdirAll(atticDir, 0o755); err != nil {
		return fmt.Errorf("creating attic directory %s: %w", atticDir, err)
	}

	atticPath := filepath.Join(atticDir, filepath.Base(srcPath))
	if _, err := os.Stat(atticPath); err == nil {
		return nil
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.Create(atticPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", atticPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(atticPath)
		return fmt.Errorf("copying %s to attic: %w", srcPath, err)
	}
	return nil
}

// ensureFrontmatter injects frontmatter when the imported content carries
// none. Content that already opens with a frontmatter block is kept as-is;
// validation catches any mismatch with the filename slug later.
func ensureFrontmatter(content, slug string) (string, error) {
	if strings.HasPrefix(content, "---\n") {
		return content, nil
	}

	meta := types.PlanMeta{
		PlanID:  slug,
		Title:   titleFromContent(content, slug),
		Status:  types.StatusIdea,
		Tags:    []string{},
		Created: time.Now().Format("2006-01-02"),
	}
	doc, err := renderDocument(meta, content)
	if err != nil {
		return "", err
	}
	return string(doc), nil
}

// titleFromContent derives a plan title from the first Markdown heading,
// falling back to the slug with hyphens spaced out.
func titleFromContent(content, slug string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return strings.ReplaceAll(slug, "-", " ")
}

// sourceStem returns the filename without directory or extension.
func sourceStem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
