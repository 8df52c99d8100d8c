package stack

import (
	"testing"

	"github.com/NeuroGranberg/nils-core/internal/model"
)

func TestParseOrientationPerfectAxial(t *testing.T) {
	cat, conf := ParseOrientation(`1\0\0\0\1\0`)
	if cat != model.OrientationAxial {
		t.Errorf("category = %v, want Axial", cat)
	}
	if conf < 0.999 {
		t.Errorf("confidence = %v, want ~1.0", conf)
	}
}

func TestParseOrientationPerfectCoronal(t *testing.T) {
	cat, conf := ParseOrientation(`1\0\0\0\0\-1`)
	if cat != model.OrientationCoronal {
		t.Errorf("category = %v, want Coronal", cat)
	}
	if conf < 0.999 {
		t.Errorf("confidence = %v, want ~1.0", conf)
	}
}

func TestParseOrientationPerfectSagittal(t *testing.T) {
	cat, conf := ParseOrientation(`0\1\0\0\0\-1`)
	if cat != model.OrientationSagittal {
		t.Errorf("category = %v, want Sagittal", cat)
	}
	if conf < 0.999 {
		t.Errorf("confidence = %v, want ~1.0", conf)
	}
}

func TestParseOrientationMalformedDefaultsToAxial(t *testing.T) {
	cat, conf := ParseOrientation("garbage")
	if cat != model.OrientationAxial || conf != 0.5 {
		t.Errorf("got (%v, %v), want (Axial, 0.5)", cat, conf)
	}
}

func TestParseOrientationNoiseStable(t *testing.T) {
	a, _ := ParseOrientation(`0.9997427\-0.02221026\-0.004605665\-0.007560507\-0.1348471\-0.9908376`)
	b, _ := ParseOrientation(`0.9997427\-0.02221027\-0.004605665\-0.007560507\-0.1348471\-0.9908376`)
	if a != b {
		t.Errorf("near-identical orientation vectors produced different categories: %v vs %v", a, b)
	}
}

func TestComputeSignatureRoundsNumerics(t *testing.T) {
	echo := 5.04
	sig, _ := ComputeSignature(InstanceFields{
		EchoTime:         &echo,
		ImageOrientation: `1\0\0\0\1\0`,
		ImageType:        "ORIGINAL\\PRIMARY",
	})
	if sig.EchoTime == nil || *sig.EchoTime != 5.0 {
		t.Errorf("EchoTime = %v, want 5.0", sig.EchoTime)
	}
	if sig.Orientation != model.OrientationAxial {
		t.Errorf("Orientation = %v, want Axial", sig.Orientation)
	}
}

func TestGroupMultiEchoSortsAscendingByEchoTime(t *testing.T) {
	mk := func(te float64, id int64) InstanceSignature {
		sig, conf := ComputeSignature(InstanceFields{EchoTime: &te, ImageOrientation: `1\0\0\0\1\0`})
		return InstanceSignature{InstanceID: id, Signature: sig, Confidence: conf}
	}
	stacks, assignment := Group([]InstanceSignature{
		mk(15.0, 3),
		mk(5.0, 1),
		mk(10.0, 2),
	})

	if len(stacks) != 3 {
		t.Fatalf("got %d stacks, want 3", len(stacks))
	}
	if stacks[0].StackKey != model.StackKeyMultiEcho {
		t.Errorf("stack_key = %v, want multi_echo", stacks[0].StackKey)
	}
	want := []float64{5.0, 10.0, 15.0}
	for i, s := range stacks {
		if s.Signature.EchoTime == nil || *s.Signature.EchoTime != want[i] {
			t.Errorf("stack[%d].EchoTime = %v, want %v", i, s.Signature.EchoTime, want[i])
		}
		if s.StackNInstances != 1 {
			t.Errorf("stack[%d].StackNInstances = %d, want 1", i, s.StackNInstances)
		}
	}
	if assignment[1] != 0 || assignment[2] != 1 || assignment[3] != 2 {
		t.Errorf("unexpected assignment: %+v", assignment)
	}
}

func TestGroupSingleStackHasNilKey(t *testing.T) {
	te := 30.0
	sig, conf := ComputeSignature(InstanceFields{EchoTime: &te, ImageOrientation: `1\0\0\0\1\0`})
	stacks, _ := Group([]InstanceSignature{
		{InstanceID: 1, Signature: sig, Confidence: conf},
		{InstanceID: 2, Signature: sig, Confidence: conf},
	})
	if len(stacks) != 1 {
		t.Fatalf("got %d stacks, want 1", len(stacks))
	}
	if stacks[0].StackKey != model.StackKeyNone {
		t.Errorf("stack_key = %v, want none", stacks[0].StackKey)
	}
	if stacks[0].StackNInstances != 2 {
		t.Errorf("stack_n_instances = %d, want 2", stacks[0].StackNInstances)
	}
}

func TestSignatureFromStackRecordIsInverseOfCompute(t *testing.T) {
	te := 7.25
	sig, _ := ComputeSignature(InstanceFields{EchoTime: &te, ImageOrientation: `1\0\0\0\1\0`, ImageType: "M"})
	row := model.SeriesStack{Signature: sig}
	if !SignaturesEqual(sig, SignatureFromStackRecord(row)) {
		t.Errorf("SignatureFromStackRecord did not invert ComputeSignature")
	}
}

func TestBuildFKUpdatesSkipsUnassignedStacks(t *testing.T) {
	updates := BuildFKUpdates(map[int64]int{10: 0, 11: 1}, map[int]int64{0: 100})
	if len(updates) != 1 || updates[0].InstanceID != 10 || updates[0].SeriesStackID != 100 {
		t.Errorf("unexpected updates: %+v", updates)
	}
}
