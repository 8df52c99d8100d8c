package stack

import (
	"math"
	"strconv"
	"strings"

	"github.com/NeuroGranberg/nils-core/internal/model"
)

// ParseOrientation derives the orientation category and confidence from a
// raw six-component DICOM ImageOrientationPatient string (§4.9). It
// normalizes the row and column direction cosines, crosses them to get the
// slice normal, and selects the axis of largest magnitude: X → Sagittal,
// Y → Coronal, Z → Axial. Confidence is that axis's magnitude, in [0,1].
// Any parse failure defaults to Axial with confidence 0.5.
func ParseOrientation(raw string) (model.OrientationCategory, float64) {
	parts := strings.Split(raw, "\\")
	if len(parts) != 6 {
		return model.OrientationAxial, 0.5
	}

	var v [6]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.OrientationAxial, 0.5
		}
		v[i] = f
	}

	row := v[0:3]
	col := v[3:6]
	unit := func(a []float64) bool {
		n := math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
		if n == 0 {
			return false
		}
		for i := range a {
			a[i] /= n
		}
		return true
	}
	if !unit(row) || !unit(col) {
		return model.OrientationAxial, 0.5
	}

	normal := [3]float64{
		row[1]*col[2] - row[2]*col[1],
		row[2]*col[0] - row[0]*col[2],
		row[0]*col[1] - row[1]*col[0],
	}

	mag := func(f float64) float64 {
		if f < 0 {
			return -f
		}
		return f
	}

	ax, ay, az := mag(normal[0]), mag(normal[1]), mag(normal[2])

	switch {
	case ax >= ay && ax >= az:
		return model.OrientationSagittal, clamp01(ax)
	case ay >= ax && ay >= az:
		return model.OrientationCoronal, clamp01(ay)
	default:
		return model.OrientationAxial, clamp01(az)
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
