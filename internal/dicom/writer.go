package dicom

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// SetString sets a string value for a tag in the dataset, adding the
// element if it is not already present.
func (d *Dataset) SetString(t tag.Tag, value string) error {
	newValue, err := dicom.NewValue([]string{value})
	if err != nil {
		return fmt.Errorf("could not create value: %w", err)
	}

	elem, err := d.Data.FindElementByTag(t)
	if err != nil {
		newElem, err := dicom.NewElement(t, value)
		if err != nil {
			// Tags whose VR the library can't infer from a bare string
			// (rare for the date/text tags this engine adds) are skipped
			// rather than failing the whole file.
			return nil
		}
		d.Data.Elements = append(d.Data.Elements, newElem)
		return nil
	}

	replacement := &dicom.Element{
		Tag:                    t,
		ValueRepresentation:    elem.ValueRepresentation,
		RawValueRepresentation: elem.RawValueRepresentation,
		ValueLength:            uint32(len(value)),
		Value:                  newValue,
	}

	for i, e := range d.Data.Elements {
		if e.Tag == t {
			d.Data.Elements[i] = replacement
			return nil
		}
	}

	return nil
}

// ClearTag removes a tag from the dataset entirely, matching the "removed"
// audit action (§4.4 step 4). Unlike the teacher's ClearTag (which set an
// empty string), scrubbed tags must actually disappear per §8 invariant 5.
func (d *Dataset) ClearTag(t tag.Tag) {
	out := d.Data.Elements[:0]
	for _, e := range d.Data.Elements {
		if e.Tag != t {
			out = append(out, e)
		}
	}
	d.Data.Elements = out
}

// HasTag reports whether a tag is present in the dataset.
func (d *Dataset) HasTag(t tag.Tag) bool {
	_, err := d.Data.FindElementByTag(t)
	return err == nil
}

// VRForTag returns the element's raw value representation string, or ""
// if the tag is absent.
func (d *Dataset) VRForTag(t tag.Tag) string {
	elem, err := d.Data.FindElementByTag(t)
	if err != nil {
		return ""
	}
	return elem.RawValueRepresentation
}

// Save writes the dataset atomically: to a ".tmp" sibling, then renamed
// into place (§4.4 step 6, §6 "atomically via temp-file rename").
func (d *Dataset) Save(outputPath string) error {
	return d.SaveWithOptions(outputPath, SaveOptions{})
}

// SaveOptions configures DICOM writing behavior.
type SaveOptions struct {
	// PreserveUIDs requires the output to remain a strictly valid
	// standalone DICOM file; when false (the teacher's default), VR and
	// value-type verification are skipped the way real-world DICOM
	// producers require (§4.4 "preserveUids selects...").
	PreserveUIDs bool
}

// SaveWithOptions writes the DICOM dataset to outputPath via an atomic
// temp-file rename.
func (d *Dataset) SaveWithOptions(outputPath string, opts SaveOptions) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}

	tmpPath := outputPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("could not create temp output file: %w", err)
	}

	writeOpts := []dicom.WriteOption{dicom.DefaultMissingTransferSyntax()}
	if !opts.PreserveUIDs {
		writeOpts = append(writeOpts, dicom.SkipVRVerification(), dicom.SkipValueTypeVerification())
	}

	if err := dicom.Write(file, d.Data, writeOpts...); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("could not write DICOM: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("could not close temp output file: %w", err)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("could not rename temp output file into place: %w", err)
	}

	return nil
}
