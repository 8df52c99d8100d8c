package stack

import (
	"fmt"
	"sort"

	"github.com/NeuroGranberg/nils-core/internal/model"
)

// InstanceSignature pairs an instance ID with its computed signature and
// orientation confidence, the unit Group and AssignStackKey operate on.
type InstanceSignature struct {
	InstanceID int64
	Signature  model.StackSignature
	Confidence float64
}

// Group groups instances by signature and assigns stack_index in sort
// order (§4.9 step 3): primary echo_time ascending, secondary
// inversion_time, tertiary orientation category, final lexicographic tuple
// on the remaining fields. Returns the ordered stacks and, for each input
// instance ID, the stack_index it belongs to.
func Group(instances []InstanceSignature) ([]model.SeriesStack, map[int64]int) {
	type bucket struct {
		sig           model.StackSignature
		instances     []int64
		confidenceSum float64
		confidenceN   int
	}

	var buckets []*bucket
	for _, inst := range instances {
		var found *bucket
		for _, b := range buckets {
			if SignaturesEqual(b.sig, inst.Signature) {
				found = b
				break
			}
		}
		if found == nil {
			found = &bucket{sig: inst.Signature}
			buckets = append(buckets, found)
		}
		found.instances = append(found.instances, inst.InstanceID)
		found.confidenceSum += inst.Confidence
		found.confidenceN++
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return signatureLess(buckets[i].sig, buckets[j].sig)
	})

	stacks := make([]model.SeriesStack, len(buckets))
	assignment := make(map[int64]int, len(instances))
	for idx, b := range buckets {
		stacks[idx] = model.SeriesStack{
			StackIndex:            idx,
			Signature:             b.sig,
			StackNInstances:       len(b.instances),
			OrientationConfidence: b.confidenceSum / float64(b.confidenceN),
		}
		for _, id := range b.instances {
			assignment[id] = idx
		}
	}

	key := AssignStackKey(stacks)
	for i := range stacks {
		stacks[i].StackKey = key
	}

	return stacks, assignment
}

func signatureLess(a, b model.StackSignature) bool {
	af, bf := floatPtrOrZero(a.EchoTime), floatPtrOrZero(b.EchoTime)
	if af != bf {
		return af < bf
	}
	ai, bi := floatPtrOrZero(a.InversionTime), floatPtrOrZero(b.InversionTime)
	if ai != bi {
		return ai < bi
	}
	if a.Orientation != b.Orientation {
		return a.Orientation < b.Orientation
	}
	return signatureKey(a) < signatureKey(b)
}

func floatPtrOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func signatureKey(s model.StackSignature) string {
	f := func(p *float64) string {
		if p == nil {
			return ""
		}
		return fmt.Sprint(*p)
	}
	n := func(p *int) string {
		if p == nil {
			return ""
		}
		return fmt.Sprint(*p)
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		f(s.RepetitionTime), f(s.FlipAngle), s.ReceiveCoilName, s.EchoNumbers,
		n(s.EchoTrainLength), s.ImageType, s.Orientation, n(s.KVP), f(s.TubeCurrent),
		f(s.XrayExposure), n(s.PETBedIndex), s.PETFrameType)
}

// AssignStackKey chooses stack_key by inspecting which dimensions vary
// across a Series' stacks (§4.9 step 4).
func AssignStackKey(stacks []model.SeriesStack) model.StackKey {
	if len(stacks) <= 1 {
		return model.StackKeyNone
	}

	echoes := make(map[float64]bool)
	tis := make(map[float64]bool)
	orientations := make(map[model.OrientationCategory]bool)
	imageTypes := make(map[string]bool)

	for _, s := range stacks {
		if s.Signature.EchoTime != nil {
			echoes[*s.Signature.EchoTime] = true
		}
		if s.Signature.InversionTime != nil {
			tis[*s.Signature.InversionTime] = true
		}
		orientations[s.Signature.Orientation] = true
		imageTypes[s.Signature.ImageType] = true
	}

	switch {
	case len(echoes) > 1:
		return model.StackKeyMultiEcho
	case len(tis) > 1:
		return model.StackKeyMultiTI
	case len(orientations) > 1:
		return model.StackKeyMultiOrientation
	case len(imageTypes) > 1:
		return model.StackKeyImageTypeVariation
	default:
		return model.StackKeyNone
	}
}

// FKUpdate is one row of the temporary join table used to bulk-update
// instance.series_stack_id (§4.9 step 5) instead of one-row-at-a-time
// writes.
type FKUpdate struct {
	InstanceID    int64
	SeriesStackID int64
}

// BuildFKUpdates turns a stack_index assignment plus the persisted stack
// IDs (keyed by stack_index) into the join-table rows the writer bulk
// upserts against instance.series_stack_id.
func BuildFKUpdates(assignment map[int64]int, stackIDsByIndex map[int]int64) []FKUpdate {
	updates := make([]FKUpdate, 0, len(assignment))
	for instanceID, stackIndex := range assignment {
		stackID, ok := stackIDsByIndex[stackIndex]
		if !ok {
			continue
		}
		updates = append(updates, FKUpdate{InstanceID: instanceID, SeriesStackID: stackID})
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].InstanceID < updates[j].InstanceID })
	return updates
}
