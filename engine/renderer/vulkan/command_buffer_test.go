package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsAcquire_OnlyBatchesWritingTheBackBuffer(t *testing.T) {
	backBuffer := &VulkanImage{owned: false}
	texture := &VulkanImage{owned: true}

	setup := &CommandList{}
	setup.touch(texture)
	assert.False(t, needsAcquire([]*CommandList{setup}))

	frame := &CommandList{}
	frame.touch(texture)
	frame.touch(backBuffer)
	assert.True(t, needsAcquire([]*CommandList{frame}))
	assert.True(t, needsAcquire([]*CommandList{setup, frame}))
	assert.False(t, needsAcquire(nil))
}
