package gpu

import (
	"bytes"
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
)

// Signal reports whether the GPU work it stands for has completed.
type Signal interface {
	Signaled() bool
}

type fenceSignal struct {
	fence core1_0.Fence
}

// FenceSignal adapts a fence to Signal.
func FenceSignal(fence core1_0.Fence) Signal {
	return fenceSignal{fence: fence}
}

func (s fenceSignal) Signaled() bool {
	res, err := s.fence.Status()
	return err == nil && res == core1_0.VKSuccess
}

// mappable is the part of core1_0.DeviceMemory used for host access.
type mappable interface {
	Map(offset int, size int, flags core1_0.MemoryMapFlags) (unsafe.Pointer, common.VkResult, error)
	Unmap()
}

// Buffer is a storage buffer holding Count elements of Stride bytes each.
type Buffer struct {
	Count  int
	Stride int

	handle      core1_0.Buffer
	memory      mappable
	hostVisible bool
	release     func()

	mu     sync.Mutex
	mapped bool
	owner  Signal
}

// Size is the buffer size in bytes.
func (b *Buffer) Size() int {
	return b.Count * b.Stride
}

// Handle returns the Vulkan buffer.
func (b *Buffer) Handle() core1_0.Buffer {
	return b.handle
}

// HostVisible reports whether the buffer can be mapped.
func (b *Buffer) HostVisible() bool {
	return b.hostVisible
}

// Retain ties the buffer to a submission. Until signal reports completion, every
// mapping attempt fails with ErrBufferBusy.
func (b *Buffer) Retain(signal Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.owner = signal
}

func (b *Buffer) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hostVisible {
		return errors.New("buffer memory is not host visible")
	}
	if b.mapped {
		return errors.Wrap(ErrBufferBusy, "buffer is already mapped")
	}
	if b.owner != nil {
		if !b.owner.Signaled() {
			return errors.Wrap(ErrBufferBusy, "buffer is referenced by unfinished gpu work")
		}
		b.owner = nil
	}

	b.mapped = true
	return nil
}

func (b *Buffer) releaseMapping() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mapped = false
}

// Write maps the whole buffer, hands its bytes to fn and unmaps it when fn returns.
// It fails with ErrBufferBusy instead of blocking when the GPU still owns the buffer
// or a mapping is already held; callers should skip the update and retry later.
func (b *Buffer) Write(fn func(data []byte) error) error {
	err := b.acquire()
	if err != nil {
		return err
	}
	defer b.releaseMapping()

	size := b.Size()
	ptr, _, err := b.memory.Map(0, size, 0)
	if err != nil {
		return err
	}
	defer b.memory.Unmap()

	return fn(unsafe.Slice((*byte)(ptr), size))
}

// Read is Write for callers that only look at the contents.
func (b *Buffer) Read(fn func(data []byte) error) error {
	return b.Write(fn)
}

// WriteSlice is Write with the mapping viewed as a slice of T. T must be a
// fixed-size type whose in-memory layout has no implicit padding.
func WriteSlice[T any](b *Buffer, fn func(elems []T) error) error {
	var zero T
	if int(unsafe.Sizeof(zero)) != b.Stride {
		return errors.Newf("element size %d does not match buffer stride %d", unsafe.Sizeof(zero), b.Stride)
	}

	return b.Write(func(data []byte) error {
		if b.Count == 0 {
			return fn(nil)
		}
		return fn(unsafe.Slice((*T)(unsafe.Pointer(&data[0])), b.Count))
	})
}

// ReadSlice is WriteSlice for read-only access.
func ReadSlice[T any](b *Buffer, fn func(elems []T) error) error {
	return WriteSlice(b, fn)
}

// Destroy frees the buffer and its memory.
func (b *Buffer) Destroy() {
	if b.release != nil {
		b.release()
		b.release = nil
	}
}

func writeData(memory mappable, offset int, data any) error {
	bufferSize := binary.Size(data)

	memoryPtr, _, err := memory.Map(offset, bufferSize, 0)
	if err != nil {
		return err
	}
	defer memory.Unmap()

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), bufferSize)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return err
	}

	copy(dataBuffer, buf.Bytes())
	return nil
}

func (c *Context) createBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (core1_0.Buffer, core1_0.DeviceMemory, error) {
	buffer, _, err := c.Device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, nil, err
	}

	memory, err := c.allocate(buffer.MemoryRequirements(), properties)
	if err != nil {
		buffer.Destroy(nil)
		return nil, nil, err
	}

	_, err = buffer.BindBufferMemory(memory, 0)
	if err != nil {
		buffer.Destroy(nil)
		memory.Free(nil)
		return nil, nil, err
	}

	return buffer, memory, nil
}

func (c *Context) copyBuffer(srcBuffer core1_0.Buffer, dstBuffer core1_0.Buffer, size int) error {
	return c.RunOnce(func(buffer core1_0.CommandBuffer) error {
		return buffer.CmdCopyBuffer(srcBuffer, dstBuffer, []core1_0.BufferCopy{
			{
				SrcOffset: 0,
				DstOffset: 0,
				Size:      size,
			},
		})
	})
}

// NewHostBuffer allocates an uninitialized host-visible, host-coherent buffer of
// count elements of stride bytes.
func (c *Context) NewHostBuffer(usage core1_0.BufferUsageFlags, count, stride int) (*Buffer, error) {
	if count <= 0 || stride <= 0 {
		return nil, errors.Newf("cannot create a buffer of %d elements of %d bytes", count, stride)
	}

	buffer, memory, err := c.createBuffer(count*stride, usage, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}

	return &Buffer{
		Count:       count,
		Stride:      stride,
		handle:      buffer,
		memory:      memory,
		hostVisible: true,
		release: func() {
			buffer.Destroy(nil)
			memory.Free(nil)
		},
	}, nil
}

// BuildBuffer creates a buffer holding data. A host-visible buffer stays mappable
// through Write; otherwise the data is uploaded once through a staging buffer into
// device-local memory. T must be fixed-size and free of implicit padding.
func BuildBuffer[T any](c *Context, usage core1_0.BufferUsageFlags, data []T, hostVisible bool) (*Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("cannot build an empty buffer")
	}

	var zero T
	stride := int(unsafe.Sizeof(zero))
	if binary.Size(zero) != stride {
		return nil, errors.Newf("element type %T has implicit padding or is not fixed-size", zero)
	}

	if hostVisible {
		b, err := c.NewHostBuffer(usage, len(data), stride)
		if err != nil {
			return nil, err
		}

		err = writeData(b.memory, 0, data)
		if err != nil {
			b.Destroy()
			return nil, err
		}
		return b, nil
	}

	size := len(data) * stride
	stagingBuffer, stagingMemory, err := c.createBuffer(size, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}
	defer stagingBuffer.Destroy(nil)
	defer stagingMemory.Free(nil)

	err = writeData(stagingMemory, 0, data)
	if err != nil {
		return nil, err
	}

	buffer, memory, err := c.createBuffer(size, usage|core1_0.BufferUsageTransferDst, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	err = c.copyBuffer(stagingBuffer, buffer, size)
	if err != nil {
		buffer.Destroy(nil)
		memory.Free(nil)
		return nil, err
	}

	return &Buffer{
		Count:  len(data),
		Stride: stride,
		handle: buffer,
		memory: memory,
		release: func() {
			buffer.Destroy(nil)
			memory.Free(nil)
		},
	}, nil
}
