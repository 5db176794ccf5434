package gpu

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
)

type fakeMemory struct {
	data   []byte
	maps   int
	unmaps int
}

func (m *fakeMemory) Map(offset int, size int, flags core1_0.MemoryMapFlags) (unsafe.Pointer, common.VkResult, error) {
	if offset+size > len(m.data) {
		return nil, 0, errors.New("mapping out of range")
	}
	m.maps++
	return unsafe.Pointer(&m.data[offset]), core1_0.VKSuccess, nil
}

func (m *fakeMemory) Unmap() {
	m.unmaps++
}

type fakeSignal struct {
	done bool
}

func (s *fakeSignal) Signaled() bool {
	return s.done
}

type vec4 struct {
	X, Y, Z, W float32
}

func newFakeBuffer(count, stride int) (*Buffer, *fakeMemory) {
	memory := &fakeMemory{data: make([]byte, count*stride)}
	return &Buffer{
		Count:       count,
		Stride:      stride,
		memory:      memory,
		hostVisible: true,
	}, memory
}

func TestWriteSliceRoundTrip(t *testing.T) {
	buffer, memory := newFakeBuffer(3, 16)

	err := WriteSlice(buffer, func(elems []vec4) error {
		require.Len(t, elems, 3)
		elems[1] = vec4{1, 2, 3, 4}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, memory.maps)
	assert.Equal(t, 1, memory.unmaps)

	var got []vec4
	err = ReadSlice(buffer, func(elems []vec4) error {
		got = append(got, elems...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []vec4{{}, {1, 2, 3, 4}, {}}, got)
}

func TestWriteSliceStrideMismatch(t *testing.T) {
	buffer, memory := newFakeBuffer(4, 12)

	err := WriteSlice(buffer, func(elems []vec4) error {
		t.Fatal("callback must not run")
		return nil
	})
	assert.Error(t, err)
	assert.Zero(t, memory.maps)
}

func TestWriteBusyWhileOwnerRunning(t *testing.T) {
	buffer, memory := newFakeBuffer(1, 16)
	signal := &fakeSignal{}
	buffer.Retain(signal)

	called := false
	err := buffer.Write(func(data []byte) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, ErrBufferBusy))
	assert.False(t, called)
	assert.Zero(t, memory.maps)

	signal.done = true
	err = buffer.Write(func(data []byte) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestWriteBusyWhileMapped(t *testing.T) {
	buffer, memory := newFakeBuffer(1, 16)

	err := buffer.Write(func(data []byte) error {
		inner := buffer.Write(func(data []byte) error { return nil })
		assert.True(t, errors.Is(inner, ErrBufferBusy))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, memory.maps)

	// The mapping is released once the outer scope returns.
	require.NoError(t, buffer.Write(func(data []byte) error { return nil }))
}

func TestWriteReleasesMappingOnError(t *testing.T) {
	buffer, memory := newFakeBuffer(1, 16)
	boom := errors.New("boom")

	err := buffer.Write(func(data []byte) error { return boom })
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, memory.maps, memory.unmaps)

	require.NoError(t, buffer.Write(func(data []byte) error { return nil }))
}

func TestWriteDeviceLocalBuffer(t *testing.T) {
	buffer, _ := newFakeBuffer(1, 16)
	buffer.hostVisible = false

	err := buffer.Write(func(data []byte) error { return nil })
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBufferBusy))
}

func TestWriteData(t *testing.T) {
	memory := &fakeMemory{data: make([]byte, 32)}

	err := writeData(memory, 0, []vec4{{1, 2, 3, 4}, {5, 6, 7, 8}})
	require.NoError(t, err)
	assert.Equal(t, 1, memory.unmaps)

	assert.Equal(t, uint32(0x3f800000), common.ByteOrder.Uint32(memory.data[0:4]))
	assert.Equal(t, uint32(0x41000000), common.ByteOrder.Uint32(memory.data[28:32]))
}

func TestDescriptorSetRetain(t *testing.T) {
	a, _ := newFakeBuffer(1, 16)
	b, _ := newFakeBuffer(1, 16)
	set := &DescriptorSet{buffers: []*Buffer{a, b}}

	signal := &fakeSignal{}
	set.Retain(signal)

	for _, buffer := range set.Buffers() {
		err := buffer.Write(func(data []byte) error { return nil })
		assert.True(t, errors.Is(err, ErrBufferBusy))
	}

	signal.done = true
	for _, buffer := range set.Buffers() {
		assert.NoError(t, buffer.Write(func(data []byte) error { return nil }))
	}
}
