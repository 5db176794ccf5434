package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
)

type descriptorEntry struct {
	descriptorType core1_0.DescriptorType
	images         []core1_0.DescriptorImageInfo
	buffers        []core1_0.DescriptorBufferInfo
}

// DescriptorSetBuilder fills one descriptor set binding by binding, in the order the
// shader declares them. Errors are collected and reported by Build.
type DescriptorSetBuilder struct {
	ctx    *Context
	layout core1_0.DescriptorSetLayout

	entries []descriptorEntry
	array   *descriptorEntry
	owned   []*Buffer
	err     error
}

// NewDescriptorSetBuilder starts a set for layout.
func NewDescriptorSetBuilder(ctx *Context, layout core1_0.DescriptorSetLayout) *DescriptorSetBuilder {
	return &DescriptorSetBuilder{ctx: ctx, layout: layout}
}

func (b *DescriptorSetBuilder) add(entry descriptorEntry) {
	if b.array != nil {
		b.fail(errors.New("only sampled images can be added inside an array"))
		return
	}
	b.entries = append(b.entries, entry)
}

func (b *DescriptorSetBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// AddImage binds a storage image in the general layout.
func (b *DescriptorSetBuilder) AddImage(image *Image) *DescriptorSetBuilder {
	b.add(descriptorEntry{
		descriptorType: core1_0.DescriptorTypeStorageImage,
		images: []core1_0.DescriptorImageInfo{
			{
				ImageView:   image.view,
				ImageLayout: core1_0.ImageLayoutGeneral,
			},
		},
	})
	return b
}

// AddBuffer binds a whole storage buffer.
func (b *DescriptorSetBuilder) AddBuffer(buffer *Buffer) *DescriptorSetBuilder {
	b.add(descriptorEntry{
		descriptorType: core1_0.DescriptorTypeStorageBuffer,
		buffers: []core1_0.DescriptorBufferInfo{
			{
				Buffer: buffer.handle,
				Offset: 0,
				Range:  buffer.Size(),
			},
		},
	})
	b.owned = append(b.owned, buffer)
	return b
}

// EnterArray opens an array binding. Every AddSampledImage until LeaveArray becomes
// one element of it.
func (b *DescriptorSetBuilder) EnterArray() *DescriptorSetBuilder {
	if b.array != nil {
		b.fail(errors.New("array bindings cannot be nested"))
		return b
	}
	b.array = &descriptorEntry{descriptorType: core1_0.DescriptorTypeCombinedImageSampler}
	return b
}

// AddSampledImage appends a texture to the open array.
func (b *DescriptorSetBuilder) AddSampledImage(texture *Texture) *DescriptorSetBuilder {
	if b.array == nil {
		b.fail(errors.New("sampled images must be added inside an array"))
		return b
	}
	b.array.images = append(b.array.images, core1_0.DescriptorImageInfo{
		Sampler:     texture.Sampler,
		ImageView:   texture.view,
		ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
	})
	return b
}

// LeaveArray closes the open array binding.
func (b *DescriptorSetBuilder) LeaveArray() *DescriptorSetBuilder {
	if b.array == nil {
		b.fail(errors.New("no array binding is open"))
		return b
	}
	if len(b.array.images) == 0 {
		b.fail(errors.New("array bindings need at least one element"))
	}
	entry := *b.array
	b.array = nil
	b.entries = append(b.entries, entry)
	return b
}

func (b *DescriptorSetBuilder) poolSizes() []core1_0.DescriptorPoolSize {
	counts := map[core1_0.DescriptorType]int{}
	var order []core1_0.DescriptorType
	for _, entry := range b.entries {
		n := len(entry.images) + len(entry.buffers)
		if _, seen := counts[entry.descriptorType]; !seen {
			order = append(order, entry.descriptorType)
		}
		counts[entry.descriptorType] += n
	}

	sizes := make([]core1_0.DescriptorPoolSize, 0, len(order))
	for _, t := range order {
		sizes = append(sizes, core1_0.DescriptorPoolSize{Type: t, DescriptorCount: counts[t]})
	}
	return sizes
}

// Build allocates the set from a pool of its own and writes every binding.
func (b *DescriptorSetBuilder) Build() (*DescriptorSet, error) {
	if b.array != nil {
		b.fail(errors.New("array binding was never closed"))
	}
	if b.err != nil {
		return nil, errors.Wrap(b.err, "invalid descriptor set")
	}
	if len(b.entries) == 0 {
		return nil, errors.New("descriptor set has no bindings")
	}

	pool, _, err := b.ctx.Device.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   1,
		PoolSizes: b.poolSizes(),
	})
	if err != nil {
		return nil, err
	}

	sets, _, err := b.ctx.Device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: pool,
		SetLayouts:     []core1_0.DescriptorSetLayout{b.layout},
	})
	if err != nil {
		pool.Destroy(nil)
		return nil, err
	}

	writes := make([]core1_0.WriteDescriptorSet, 0, len(b.entries))
	for binding, entry := range b.entries {
		writes = append(writes, core1_0.WriteDescriptorSet{
			DstSet:          sets[0],
			DstBinding:      binding,
			DstArrayElement: 0,

			DescriptorType: entry.descriptorType,

			ImageInfo:  entry.images,
			BufferInfo: entry.buffers,
		})
	}

	err = b.ctx.Device.UpdateDescriptorSets(writes, nil)
	if err != nil {
		pool.Destroy(nil)
		return nil, err
	}

	return &DescriptorSet{
		handle:  sets[0],
		pool:    pool,
		buffers: b.owned,
	}, nil
}

// DescriptorSet is a built set. Destroying it frees its pool but not the bound
// resources.
type DescriptorSet struct {
	handle  core1_0.DescriptorSet
	pool    core1_0.DescriptorPool
	buffers []*Buffer
}

// Handle returns the Vulkan descriptor set.
func (s *DescriptorSet) Handle() core1_0.DescriptorSet {
	return s.handle
}

// Buffers returns the storage buffers bound into the set.
func (s *DescriptorSet) Buffers() []*Buffer {
	return s.buffers
}

// Retain marks every bound buffer as in use until signal completes.
func (s *DescriptorSet) Retain(signal Signal) {
	for _, buffer := range s.buffers {
		buffer.Retain(signal)
	}
}

// Destroy frees the pool the set was allocated from.
func (s *DescriptorSet) Destroy() {
	if s.pool != nil {
		s.pool.Destroy(nil)
		s.pool = nil
	}
}
