package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"
)

// ColorRange covers the single mip level and layer of a color image.
var ColorRange = core1_0.ImageSubresourceRange{
	AspectMask:     core1_0.ImageAspectColor,
	BaseMipLevel:   0,
	LevelCount:     1,
	BaseArrayLayer: 0,
	LayerCount:     1,
}

// ColorLayers addresses the single layer of a color image in copies and blits.
var ColorLayers = core1_0.ImageSubresourceLayers{
	AspectMask:     core1_0.ImageAspectColor,
	MipLevel:       0,
	BaseArrayLayer: 0,
	LayerCount:     1,
}

// Transition describes a layout change and memory dependency for one image.
type Transition struct {
	Image     core1_0.Image
	OldLayout core1_0.ImageLayout
	NewLayout core1_0.ImageLayout

	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
	SrcStage  core1_0.PipelineStageFlags
	DstStage  core1_0.PipelineStageFlags
}

// RecordTransition records an image memory barrier for t into buffer.
func RecordTransition(buffer core1_0.CommandBuffer, t Transition) error {
	return buffer.CmdPipelineBarrier(t.SrcStage, t.DstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           t.OldLayout,
			NewLayout:           t.NewLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               t.Image,
			SubresourceRange:    ColorRange,
			SrcAccessMask:       t.SrcAccess,
			DstAccessMask:       t.DstAccess,
		},
	})
}

// RunOnce records a one-time command buffer with record, submits it to the queue and
// blocks until the queue is idle.
func (c *Context) RunOnce(record func(buffer core1_0.CommandBuffer) error) error {
	buffers, _, err := c.Device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        c.CommandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return err
	}

	buffer := buffers[0]
	defer c.Device.FreeCommandBuffers([]core1_0.CommandBuffer{buffer})

	_, err = buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return err
	}

	err = record(buffer)
	if err != nil {
		return err
	}

	_, err = buffer.End()
	if err != nil {
		return err
	}

	_, err = c.Queue.Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	})
	if err != nil {
		return err
	}

	_, err = c.Queue.WaitIdle()
	return err
}

// FindMemoryType returns the index of a memory type allowed by typeFilter that has
// all of properties.
func (c *Context) FindMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := c.PhysicalDevice.MemoryProperties()
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Newf("failed to find any suitable memory type for %s", properties)
}

func (c *Context) allocate(reqs *core1_0.MemoryRequirements, properties core1_0.MemoryPropertyFlags) (core1_0.DeviceMemory, error) {
	memoryTypeIndex, err := c.FindMemoryType(reqs.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}

	memory, _, err := c.Device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	return memory, err
}
