package assets

import "github.com/spaghettifunk/aquarium/engine/assets/loaders"

type Loader interface {
	Load(path string, params interface{}) (*loaders.Resource, error) // `interface{}` here allows loaders to take type specific parameters
	Unload(*loaders.Resource) error
}
