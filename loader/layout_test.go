package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/core1_0"
)

func TestLayoutGapFilling(t *testing.T) {
	layout := NewLayout().
		AddImage(2).
		AddBuffer(0, true).
		AddBuffer(2, false).
		AddSampledImageArray(4, 3, false)

	require.Equal(t, 5, layout.NumSets())
	assert.Equal(t, 1, layout.NumBindings(0))
	assert.Equal(t, 0, layout.NumBindings(1))
	assert.Equal(t, 2, layout.NumBindings(2))
	assert.Equal(t, 0, layout.NumBindings(3))
	assert.Equal(t, 1, layout.NumBindings(4))
	assert.Equal(t, -1, layout.NumBindings(5))

	b, ok := layout.Binding(2, 0)
	require.True(t, ok)
	assert.Equal(t, StorageImage, b.Kind)

	b, ok = layout.Binding(2, 1)
	require.True(t, ok)
	assert.Equal(t, StorageBuffer, b.Kind)
	assert.False(t, b.ReadOnly)

	_, ok = layout.Binding(1, 0)
	assert.False(t, ok)
}

func TestLayoutBindingCountsMatchCalls(t *testing.T) {
	sequences := [][]int{
		{0},
		{0, 0, 0},
		{3},
		{1, 0, 1, 5, 0},
		{7, 7, 2, 0, 7},
	}

	for _, seq := range sequences {
		layout := NewLayout()
		counts := map[int]int{}
		maxSet := -1
		for i, set := range seq {
			if i%2 == 0 {
				layout.AddImage(set)
			} else {
				layout.AddBuffer(set, i%3 == 0)
			}
			counts[set]++
			if set > maxSet {
				maxSet = set
			}
		}

		require.Equal(t, maxSet+1, layout.NumSets(), "sequence %v", seq)
		for set := 0; set < layout.NumSets(); set++ {
			assert.Equal(t, counts[set], layout.NumBindings(set), "sequence %v set %d", seq, set)
		}
	}
}

func TestLayoutStages(t *testing.T) {
	layout := NewLayout().
		AddImage(0).
		AddSampledImageArray(0, 2, false).
		AddSampledImageArray(0, 2, true)

	info := layout.DescriptorSetLayoutInfo(0)
	require.Len(t, info.Bindings, 3)

	assert.Equal(t, core1_0.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  core1_0.DescriptorTypeStorageImage,
		DescriptorCount: 1,
		StageFlags:      core1_0.StageCompute,
	}, info.Bindings[0])

	assert.Equal(t, 1, info.Bindings[1].Binding)
	assert.Equal(t, core1_0.DescriptorTypeCombinedImageSampler, info.Bindings[1].DescriptorType)
	assert.Equal(t, 2, info.Bindings[1].DescriptorCount)
	assert.Equal(t, core1_0.StageCompute, info.Bindings[1].StageFlags)
	assert.Equal(t, core1_0.StageAll, info.Bindings[2].StageFlags)

	assert.Empty(t, layout.DescriptorSetLayoutInfo(3).Bindings)
}

func TestValidatePushConstants(t *testing.T) {
	assert.NoError(t, NewLayout().ValidatePushConstants(0))
	assert.Error(t, NewLayout().ValidatePushConstants(4))

	layout := NewLayout().AddPushConstantRange(0, 32)
	assert.NoError(t, layout.ValidatePushConstants(32))
	assert.Error(t, layout.ValidatePushConstants(16))
	assert.Error(t, layout.ValidatePushConstants(36))

	ranges := layout.PushConstantRanges()
	require.Len(t, ranges, 1)
	assert.Equal(t, core1_0.PushConstantRange{StageFlags: core1_0.StageCompute, Offset: 0, Size: 32}, ranges[0])
}

func TestLayoutRecordsInvalidAdditions(t *testing.T) {
	tests := []struct {
		name  string
		build func(*Layout)
	}{
		{"negative set", func(l *Layout) { l.AddImage(-1) }},
		{"empty array", func(l *Layout) { l.AddSampledImageArray(0, 0, false) }},
		{"zero binding count", func(l *Layout) { l.AddBinding(1, Binding{Kind: StorageBuffer}) }},
		{"empty push range", func(l *Layout) { l.AddPushConstantRange(0, 0) }},
		{"unaligned push range", func(l *Layout) { l.AddPushConstantRange(2, 8) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := NewLayout().AddImage(0)
			require.NotPanics(t, func() { tt.build(layout) })
			assert.Error(t, layout.Err())

			// The invalid addition is dropped and later ones still apply.
			assert.Equal(t, 1, layout.NumSets())
			assert.Empty(t, layout.PushRanges)
			layout.AddBuffer(0, true)
			assert.Equal(t, 2, layout.NumBindings(0))
		})
	}

	assert.NoError(t, NewLayout().AddImage(0).AddPushConstantRange(0, 32).Err())
}

func TestLayoutErrorKeepsFirst(t *testing.T) {
	layout := NewLayout().AddImage(-1).AddImage(-2)
	assert.Contains(t, layout.Err().Error(), "-1")
}
