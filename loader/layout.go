package loader

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
)

// BindingKind is the kind of resource a binding slot expects.
type BindingKind int

const (
	StorageImage BindingKind = iota
	StorageBuffer
	SampledImageArray
)

func (k BindingKind) String() string {
	switch k {
	case StorageImage:
		return "StorageImage"
	case StorageBuffer:
		return "StorageBuffer"
	case SampledImageArray:
		return "SampledImageArray"
	default:
		return "Unknown"
	}
}

// DescriptorType is the Vulkan descriptor type backing the binding kind.
func (k BindingKind) DescriptorType() core1_0.DescriptorType {
	switch k {
	case StorageBuffer:
		return core1_0.DescriptorTypeStorageBuffer
	case SampledImageArray:
		return core1_0.DescriptorTypeCombinedImageSampler
	default:
		return core1_0.DescriptorTypeStorageImage
	}
}

// Binding is one declared slot of a descriptor set.
type Binding struct {
	Kind     BindingKind
	ReadOnly bool
	// Count is the number of array elements, 1 for anything but arrays.
	Count  int
	Stages core1_0.ShaderStageFlags
}

// PushConstantRange is a byte range of the push constant block.
type PushConstantRange struct {
	Offset int
	Size   int
	Stages core1_0.ShaderStageFlags
}

// Layout is the ordered list of bindings and push constant ranges a compute program
// expects. Bindings must be added in the order the shader declares them within each
// set; nothing is checked against the shader itself.
//
// Invalid additions are dropped and the first of them is reported by Err.
type Layout struct {
	Stages     core1_0.ShaderStageFlags
	Sets       [][]Binding
	PushRanges []PushConstantRange

	err error
}

// NewLayout returns an empty layout whose bindings are visible to compute only.
func NewLayout() *Layout {
	return &Layout{Stages: core1_0.StageCompute}
}

// AddImage appends a storage image binding to set.
func (l *Layout) AddImage(set int) *Layout {
	return l.AddBinding(set, Binding{Kind: StorageImage, Count: 1, Stages: l.Stages})
}

// AddBuffer appends a storage buffer binding to set.
func (l *Layout) AddBuffer(set int, readonly bool) *Layout {
	return l.AddBinding(set, Binding{Kind: StorageBuffer, ReadOnly: readonly, Count: 1, Stages: l.Stages})
}

// AddSampledImageArray appends an array of count sampled images to set. A shared
// array is visible to every stage.
func (l *Layout) AddSampledImageArray(set int, count int, shared bool) *Layout {
	stages := l.Stages
	if shared {
		stages = core1_0.StageAll
	}
	return l.AddBinding(set, Binding{Kind: SampledImageArray, ReadOnly: true, Count: count, Stages: stages})
}

// AddBinding appends b at the next binding index of set, growing Sets with empty
// sets as needed.
func (l *Layout) AddBinding(set int, b Binding) *Layout {
	if set < 0 {
		l.fail(errors.Newf("negative descriptor set index %d", set))
		return l
	}
	if b.Count < 1 {
		l.fail(errors.Newf("%s binding in set %d has %d descriptors", b.Kind, set, b.Count))
		return l
	}
	for len(l.Sets) <= set {
		l.Sets = append(l.Sets, nil)
	}
	l.Sets[set] = append(l.Sets[set], b)
	return l
}

// AddPushConstantRange declares size bytes of push constants at offset.
func (l *Layout) AddPushConstantRange(offset, size int) *Layout {
	if offset < 0 || size <= 0 || offset%4 != 0 || size%4 != 0 {
		l.fail(errors.Newf("push constant range (offset %d, size %d) is not a positive multiple of 4 bytes", offset, size))
		return l
	}
	l.PushRanges = append(l.PushRanges, PushConstantRange{Offset: offset, Size: size, Stages: core1_0.StageCompute})
	return l
}

func (l *Layout) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

// Err returns the first invalid addition, or nil.
func (l *Layout) Err() error {
	return l.err
}

// NumSets is the number of descriptor sets, including empty ones.
func (l *Layout) NumSets() int {
	return len(l.Sets)
}

// NumBindings is the number of bindings in set, or -1 if set does not exist.
func (l *Layout) NumBindings(set int) int {
	if set < 0 || set >= len(l.Sets) {
		return -1
	}
	return len(l.Sets[set])
}

// Binding returns the binding at index i of set.
func (l *Layout) Binding(set, i int) (Binding, bool) {
	if set < 0 || set >= len(l.Sets) || i < 0 || i >= len(l.Sets[set]) {
		return Binding{}, false
	}
	return l.Sets[set][i], true
}

// DescriptorSetLayoutInfo describes set for descriptor set layout creation.
func (l *Layout) DescriptorSetLayoutInfo(set int) core1_0.DescriptorSetLayoutCreateInfo {
	info := core1_0.DescriptorSetLayoutCreateInfo{}
	if set < 0 || set >= len(l.Sets) {
		return info
	}

	for i, b := range l.Sets[set] {
		info.Bindings = append(info.Bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         i,
			DescriptorType:  b.Kind.DescriptorType(),
			DescriptorCount: b.Count,
			StageFlags:      b.Stages,
		})
	}
	return info
}

// PushConstantRanges describes the push constant ranges for pipeline layout creation.
func (l *Layout) PushConstantRanges() []core1_0.PushConstantRange {
	var ranges []core1_0.PushConstantRange
	for _, r := range l.PushRanges {
		ranges = append(ranges, core1_0.PushConstantRange{
			StageFlags: r.Stages,
			Offset:     r.Offset,
			Size:       r.Size,
		})
	}
	return ranges
}

// ValidatePushConstants checks that a payload of n bytes exactly fills the first
// declared push constant range.
func (l *Layout) ValidatePushConstants(n int) error {
	if len(l.PushRanges) == 0 {
		if n == 0 {
			return nil
		}
		return errors.Newf("push constant payload of %d bytes but no range was declared", n)
	}

	r := l.PushRanges[0]
	if n != r.Size {
		return errors.Newf("push constant payload of %d bytes does not match the declared range (offset %d, size %d)", n, r.Offset, r.Size)
	}
	return nil
}
