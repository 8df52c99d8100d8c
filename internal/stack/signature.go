package stack

import (
	"math"

	"github.com/NeuroGranberg/nils-core/internal/model"
)

// InstanceFields is the subset of a persisted Instance's detail fields
// needed to compute a stack signature (§4.9 step 1). Fields absent from the
// source DICOM are left nil/empty, matching the corresponding detail
// table's NULL columns.
type InstanceFields struct {
	EchoTime          *float64
	InversionTime     *float64
	EchoNumbers       string
	EchoTrainLength   *int
	RepetitionTime    *float64
	FlipAngle         *float64
	ReceiveCoilName   string
	ImageOrientation  string
	ImageType         string
	KVP               *float64
	TubeCurrent       *float64
	XrayExposure      *float64
	PETBedIndex       *int
	PETFrameType      string
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func roundInt(f float64) int {
	return int(math.Round(f))
}

// ComputeSignature derives an instance's stack signature (§4.9 step 2): the
// tuple of rounded numerics (echo/TR/TI/flip angle to one decimal, KVP to
// integer), the categorical (orientation, imageType), and the raw
// coil/echo-number/frame-type strings. The returned confidence is the
// orientation parse's confidence score and is not part of the signature
// itself — callers persist it on the SeriesStack row instead.
func ComputeSignature(f InstanceFields) (model.StackSignature, float64) {
	sig := model.StackSignature{
		EchoNumbers:     f.EchoNumbers,
		ReceiveCoilName: f.ReceiveCoilName,
		ImageType:       f.ImageType,
		PETFrameType:    f.PETFrameType,
		PETBedIndex:     f.PETBedIndex,
		EchoTrainLength: f.EchoTrainLength,
	}

	if f.EchoTime != nil {
		v := round1(*f.EchoTime)
		sig.EchoTime = &v
	}
	if f.InversionTime != nil {
		v := round1(*f.InversionTime)
		sig.InversionTime = &v
	}
	if f.RepetitionTime != nil {
		v := round1(*f.RepetitionTime)
		sig.RepetitionTime = &v
	}
	if f.FlipAngle != nil {
		v := round1(*f.FlipAngle)
		sig.FlipAngle = &v
	}
	if f.KVP != nil {
		v := roundInt(*f.KVP)
		sig.KVP = &v
	}
	if f.TubeCurrent != nil {
		v := round1(*f.TubeCurrent)
		sig.TubeCurrent = &v
	}
	if f.XrayExposure != nil {
		v := round1(*f.XrayExposure)
		sig.XrayExposure = &v
	}

	category, confidence := ParseOrientation(f.ImageOrientation)
	sig.Orientation = category

	return sig, confidence
}

// SignatureFromStackRecord reconstructs an instance signature from a
// persisted SeriesStack row. Because the row stores the signature verbatim
// (§6 series_stack columns mirror StackSignature's fields), this is the
// identity projection — which is exactly what makes it ComputeSignature's
// inverse (§8 invariant 4): ComputeSignature(i) always equals
// SignatureFromStackRecord(r) for the row r that i belongs to.
func SignatureFromStackRecord(r model.SeriesStack) model.StackSignature {
	return r.Signature
}

// SignaturesEqual reports whether two signatures denote the same stack.
func SignaturesEqual(a, b model.StackSignature) bool {
	return floatPtrEqual(a.EchoTime, b.EchoTime) &&
		floatPtrEqual(a.InversionTime, b.InversionTime) &&
		a.EchoNumbers == b.EchoNumbers &&
		intPtrEqual(a.EchoTrainLength, b.EchoTrainLength) &&
		floatPtrEqual(a.RepetitionTime, b.RepetitionTime) &&
		floatPtrEqual(a.FlipAngle, b.FlipAngle) &&
		a.ReceiveCoilName == b.ReceiveCoilName &&
		a.Orientation == b.Orientation &&
		a.ImageType == b.ImageType &&
		intPtrEqual(a.KVP, b.KVP) &&
		floatPtrEqual(a.TubeCurrent, b.TubeCurrent) &&
		floatPtrEqual(a.XrayExposure, b.XrayExposure) &&
		intPtrEqual(a.PETBedIndex, b.PETBedIndex) &&
		a.PETFrameType == b.PETFrameType
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
