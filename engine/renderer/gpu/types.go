package gpu

import "fmt"

// ResourceState is the declared usage mode of a GPU resource. Moving between
// states requires an explicit barrier recorded into a command list.
type ResourceState uint32

const (
	ResourceStateCommon ResourceState = iota
	ResourceStateCopyDest
	ResourceStateCopySource
	ResourceStateGenericRead
	ResourceStateVertexAndConstantBuffer
	ResourceStateIndexBuffer
	ResourceStatePixelShaderResource
	ResourceStateRenderTarget
	ResourceStateResolveSource
	ResourceStateResolveDest
	ResourceStateDepthWrite
	ResourceStatePresent
)

var resourceStateNames = map[ResourceState]string{
	ResourceStateCommon:                  "COMMON",
	ResourceStateCopyDest:                "COPY_DEST",
	ResourceStateCopySource:              "COPY_SOURCE",
	ResourceStateGenericRead:             "GENERIC_READ",
	ResourceStateVertexAndConstantBuffer: "VERTEX_AND_CONSTANT_BUFFER",
	ResourceStateIndexBuffer:             "INDEX_BUFFER",
	ResourceStatePixelShaderResource:     "PIXEL_SHADER_RESOURCE",
	ResourceStateRenderTarget:            "RENDER_TARGET",
	ResourceStateResolveSource:           "RESOLVE_SOURCE",
	ResourceStateResolveDest:             "RESOLVE_DEST",
	ResourceStateDepthWrite:              "DEPTH_WRITE",
	ResourceStatePresent:                 "PRESENT",
}

func (s ResourceState) String() string {
	if name, ok := resourceStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ResourceState(%d)", uint32(s))
}

type HeapType uint8

const (
	// Device local memory, not CPU visible.
	HeapTypeDefault HeapType = iota
	// Host visible memory, persistently mappable.
	HeapTypeUpload
)

type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageConstant
	BufferUsageCopySrc
	BufferUsageCopyDst
)

type Format uint32

const (
	FormatUnknown Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatD24UnormS8Uint
	FormatR32Float
	FormatR32G32Float
	FormatR32G32B32Float
	FormatR32G32B32A32Float
	FormatR16Uint
	FormatR32Uint
)

// Size in bytes of one element of the format.
func (f Format) Size() uint32 {
	switch f {
	case FormatR16Uint:
		return 2
	case FormatR8G8B8A8Unorm, FormatB8G8R8A8Unorm, FormatD24UnormS8Uint, FormatR32Float, FormatR32Uint:
		return 4
	case FormatR32G32Float:
		return 8
	case FormatR32G32B32Float:
		return 12
	case FormatR32G32B32A32Float:
		return 16
	}
	return 0
}

// FloatFormat returns the vertex format for a float attribute with the given component count.
func FloatFormat(components uint32) Format {
	switch components {
	case 1:
		return FormatR32Float
	case 2:
		return FormatR32G32Float
	case 3:
		return FormatR32G32B32Float
	case 4:
		return FormatR32G32B32A32Float
	}
	return FormatUnknown
}

type BufferDesc struct {
	Label        string
	Size         uint64
	Heap         HeapType
	Usage        BufferUsage
	InitialState ResourceState
}

type TextureDesc struct {
	Label        string
	Width        uint32
	Height       uint32
	MipLevels    uint32
	ArrayLayers  uint32
	Cube         bool
	SampleCount  uint32
	Format       Format
	RenderTarget bool
	DepthStencil bool
	InitialState ResourceState
}

// Resource is anything a barrier can be recorded against.
type Resource interface {
	Label() string
	Destroy()
}

type Buffer interface {
	Resource
	Size() uint64
	Heap() HeapType
	// Map returns the CPU view of an upload heap buffer. The mapping stays
	// valid until the buffer is destroyed.
	Map() ([]byte, error)
}

type Texture interface {
	Resource
	Desc() TextureDesc
}

type DescriptorKind uint8

const (
	DescriptorKindCBV DescriptorKind = iota
	DescriptorKindSRV
)

// ViewDesc describes what a descriptor slot points at.
type ViewDesc struct {
	Kind    DescriptorKind
	Buffer  Buffer
	Offset  uint64
	Size    uint64
	Texture Texture
}

type DescriptorHeap interface {
	Capacity() uint32
	// Write stores a view description at the given slot.
	Write(index uint32, view ViewDesc) error
	View(index uint32) (ViewDesc, bool)
	Destroy()
}

type ShaderVisibility uint8

const (
	VisibilityAll ShaderVisibility = iota
	VisibilityVertex
	VisibilityPixel
)

type BindingKind uint8

const (
	// A contiguous run of descriptors in the shader-visible heap.
	BindingKindTable BindingKind = iota
	// A constant buffer bound directly by address.
	BindingKindConstantBuffer
)

type DescriptorRange struct {
	Kind         DescriptorKind
	Count        uint32
	BaseRegister uint32
}

type BindingParam struct {
	Kind       BindingKind
	Visibility ShaderVisibility
	Register   uint32
	Ranges     []DescriptorRange
}

type Filter uint8

const (
	FilterLinear Filter = iota
	FilterMinMagLinearMipPoint
	FilterPoint
)

type AddressMode uint8

const (
	AddressModeWrap AddressMode = iota
	AddressModeMirror
	AddressModeClamp
)

type StaticSampler struct {
	Register    uint32
	Filter      Filter
	AddressMode AddressMode
	Visibility  ShaderVisibility
}

type BindingLayoutDesc struct {
	Label    string
	Params   []BindingParam
	Samplers []StaticSampler
}

type BindingLayout interface {
	Desc() BindingLayoutDesc
	Destroy()
}

type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
)

type ShaderModule interface {
	Stage() ShaderStage
	Destroy()
}

type VertexAttribute struct {
	Semantic      string
	SemanticIndex uint32
	Format        Format
	Slot          uint32
	Offset        uint32
	PerInstance   bool
}

type PipelineDesc struct {
	Label        string
	Layout       BindingLayout
	Vertex       ShaderModule
	Fragment     ShaderModule
	Attributes   []VertexAttribute
	Strides      []uint32
	Blend        bool
	SampleCount  uint32
	ColorFormat  Format
	DepthFormat  Format
	CullBack     bool
	FrontCCW     bool
	DepthLess    bool
	DepthEnabled bool
}

type Pipeline interface {
	Desc() PipelineDesc
	Destroy()
}

type IndexFormat uint8

const (
	IndexFormatUint16 IndexFormat = iota
	IndexFormatUint32
)

type VertexBufferView struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
	Stride uint32
}

type IndexBufferView struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
	Format IndexFormat
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// RenderPassDesc names the attachments drawn into between BeginRenderPass and
// EndRenderPass. Attachments must already be in the render target and depth
// write states.
type RenderPassDesc struct {
	Color      Texture
	Depth      Texture
	ClearColor [4]float32
	ClearDepth float32
	// Clear the color attachment as well as the depth attachment.
	ClearColorAttachment bool
}
