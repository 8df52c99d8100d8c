// Package layout implements the Derivatives Layout Manager: it normalizes a
// user-selected cohort root into derivatives/dcm-original (inputs) and
// derivatives/dcm-raw (outputs), migrating loose files into place on first
// run and reporting the resume state of a prior run.
package layout

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/NeuroGranberg/nils-core/internal/model"
)

func hasContents(path string) bool {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}
	return len(entries) > 0
}

// Prepare normalizes selectedRoot into a source/output pair and reports
// resume status (§4.1). It recognizes five shapes of selectedRoot: an
// already-selected dcm-original or dcm-raw directory, an already-selected
// derivatives directory, a cohort root that already contains both derived
// directories, and a fresh cohort root that needs migration.
func Prepare(selectedRoot string) (model.DerivativesLayout, error) {
	root, err := filepath.Abs(selectedRoot)
	if err != nil {
		return model.DerivativesLayout{}, fmt.Errorf("could not resolve cohort root: %w", err)
	}

	var derivativesRoot, sourcePath, outputPath string
	performMove := false

	switch {
	case filepath.Base(root) == "dcm-original":
		derivativesRoot = filepath.Dir(root)
		sourcePath = root
		outputPath = filepath.Join(derivativesRoot, "dcm-raw")
	case filepath.Base(root) == "dcm-raw":
		derivativesRoot = filepath.Dir(root)
		outputPath = root
		sourcePath = filepath.Join(derivativesRoot, "dcm-original")
	case filepath.Base(root) == "derivatives" && exists(filepath.Join(root, "dcm-original")):
		derivativesRoot = root
		sourcePath = filepath.Join(root, "dcm-original")
		outputPath = filepath.Join(root, "dcm-raw")
	case exists(filepath.Join(root, "derivatives", "dcm-original")):
		derivativesRoot = filepath.Join(root, "derivatives")
		sourcePath = filepath.Join(derivativesRoot, "dcm-original")
		outputPath = filepath.Join(derivativesRoot, "dcm-raw")
	case exists(filepath.Join(root, "dcm-original")) && exists(filepath.Join(root, "dcm-raw")):
		derivativesRoot = root
		sourcePath = filepath.Join(root, "dcm-original")
		outputPath = filepath.Join(root, "dcm-raw")
	default:
		derivativesRoot = filepath.Join(root, "derivatives")
		sourcePath = filepath.Join(derivativesRoot, "dcm-original")
		outputPath = filepath.Join(derivativesRoot, "dcm-raw")
		performMove = true
	}

	rawExisted := exists(outputPath)

	if err := os.MkdirAll(sourcePath, 0755); err != nil {
		return model.DerivativesLayout{}, fmt.Errorf("could not create source directory: %w", err)
	}
	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return model.DerivativesLayout{}, fmt.Errorf("could not create output directory: %w", err)
	}

	if performMove && !hasContents(sourcePath) {
		if err := migrateChildren(root, derivativesRoot, sourcePath); err != nil {
			return model.DerivativesLayout{}, err
		}
	}

	status := model.StatusFresh
	switch {
	case hasContents(outputPath):
		status = model.StatusRawExistsWithContent
	case rawExisted:
		status = model.StatusRawExistsEmpty
	}

	return model.DerivativesLayout{
		SourcePath: sourcePath,
		OutputPath: outputPath,
		Status:     status,
	}, nil
}

// migrateChildren moves every child of root other than derivativesRoot into
// sourcePath, skipping any child whose destination already exists.
func migrateChildren(root, derivativesRoot, sourcePath string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("could not list cohort root: %w", err)
	}
	for _, e := range entries {
		src := filepath.Join(root, e.Name())
		if src == derivativesRoot {
			continue
		}
		dst := filepath.Join(sourcePath, e.Name())
		if exists(dst) {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("could not migrate %s into dcm-original: %w", e.Name(), err)
		}
	}
	return nil
}

// CleanRaw empties the output directory non-destructively with respect to
// inputs: only outputPath's children are removed, never sourcePath.
func CleanRaw(outputPath string) error {
	if !exists(outputPath) {
		return os.MkdirAll(outputPath, 0755)
	}
	entries, err := os.ReadDir(outputPath)
	if err != nil {
		return fmt.Errorf("could not list output directory: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(outputPath, e.Name())); err != nil {
			return fmt.Errorf("could not remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
