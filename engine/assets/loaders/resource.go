package loaders

type ResourceType int

/** @brief Asset types known to the loaders. */
const (
	ResourceTypeNone ResourceType = iota
	/** @brief Model geometry and texture names, one <Name>.js file per model. */
	ResourceTypeModel
	/** @brief World matrices of every placed model. */
	ResourceTypePlacement
	/** @brief A single decoded image. */
	ResourceTypeImage
	/** @brief A sampled texture: a 2D mip chain or six cube faces. */
	ResourceTypeTexture
	/** @brief WGSL shader source text. */
	ResourceTypeShader
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeModel:
		return "model"
	case ResourceTypePlacement:
		return "placement"
	case ResourceTypeImage:
		return "image"
	case ResourceTypeTexture:
		return "texture"
	case ResourceTypeShader:
		return "shader"
	}
	return "none"
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}
