package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/aquarium/engine/assets/loaders"
	"github.com/spaghettifunk/aquarium/engine/core"
)

const (
	PlacementFile = "PropPlacement.js"
	ShaderDir     = "shaders"
)

// SkyboxFaces are the cube faces of the skybox in +x, -x, +y, -y, +z, -z order.
var SkyboxFaces = []string{
	"GlobeOuter_EM_positive_x.jpg", "GlobeOuter_EM_negative_x.jpg",
	"GlobeOuter_EM_positive_y.jpg", "GlobeOuter_EM_negative_y.jpg",
	"GlobeOuter_EM_positive_z.jpg", "GlobeOuter_EM_negative_z.jpg",
}

type AssetInfo struct {
	Path       string
	Type       loaders.ResourceType
	LastLoaded time.Time
}

// AssetManager indexes the asset tree, keeps the index current while files
// change and loads assets through the loader of their type.
type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[loaders.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	events   chan fsnotify.Event
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[loaders.ResourceType]Loader),
		fsnotify: fsWatch,
		events:   make(chan fsnotify.Event, 64),
		done:     make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize(assetsDir string) error {
	am.root = filepath.Clean(assetsDir)
	if s, err := os.Stat(am.root); err != nil || !s.IsDir() {
		err = fmt.Errorf("%w: asset directory %s", core.ErrMissingResource, am.root)
		core.LogError("%s", err)
		return err
	}

	go am.start()

	if err := am.addRecursive(am.root); err != nil {
		return err
	}

	// Register loaders
	am.registerLoader(loaders.ResourceTypeModel, &loaders.ModelLoader{})
	am.registerLoader(loaders.ResourceTypePlacement, &loaders.PlacementLoader{})
	am.registerLoader(loaders.ResourceTypeImage, &loaders.ImageLoader{})
	am.registerLoader(loaders.ResourceTypeTexture, &loaders.TextureLoader{})
	am.registerLoader(loaders.ResourceTypeShader, &loaders.ShaderLoader{})

	core.LogInfo("indexed %d assets under %s", am.Len(), am.root)
	return nil
}

// Shutdown stops watching the asset tree.
func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	close(am.done)
	return nil
}

// Events reports file changes under the asset tree. Changes are dropped
// while nobody reads.
func (am *AssetManager) Events() <-chan fsnotify.Event {
	return am.events
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name, false)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType loaders.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// resolve maps an asset name to the path it is indexed under.
func (am *AssetManager) resolve(name string, resourceType loaders.ResourceType) (string, error) {
	switch resourceType {
	case loaders.ResourceTypeModel:
		return filepath.Join(am.root, name+".js"), nil
	case loaders.ResourceTypePlacement:
		return filepath.Join(am.root, PlacementFile), nil
	case loaders.ResourceTypeImage, loaders.ResourceTypeTexture:
		return filepath.Join(am.root, name), nil
	case loaders.ResourceTypeShader:
		return filepath.Join(am.root, ShaderDir, name+".wgsl"), nil
	}
	return "", fmt.Errorf("unknown resource type %d", resourceType)
}

// Has reports whether the named asset is in the index.
func (am *AssetManager) Has(name string, resourceType loaders.ResourceType) bool {
	path, err := am.resolve(name, resourceType)
	if err != nil {
		return false
	}
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	_, ok := am.assets[path]
	return ok
}

func (am *AssetManager) Len() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// Load an asset using the appropriate loader
func (am *AssetManager) LoadAsset(name string, resourceType loaders.ResourceType, params interface{}) (*loaders.Resource, error) {
	path, err := am.resolve(name, resourceType)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	if err := am.touch(path); err != nil {
		return nil, err
	}

	loader, loaderExists := am.loaders[resourceType]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", resourceType)
	}
	return loader.Load(path, params)
}

// touch checks path is indexed and updates its load time.
func (am *AssetManager) touch(path string) error {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	asset, exists := am.assets[path]
	if !exists {
		err := fmt.Errorf("%w: asset not found: %s", core.ErrMissingResource, path)
		core.LogError("%s", err)
		return err
	}
	asset.LastLoaded = time.Now()
	am.assets[path] = asset
	return nil
}

func (am *AssetManager) UnloadAsset(resource *loaders.Resource) error {
	return nil
}

func (am *AssetManager) LoadModel(name string) (*loaders.ModelData, error) {
	res, err := am.LoadAsset(name, loaders.ResourceTypeModel, nil)
	if err != nil {
		return nil, err
	}
	return res.Data.(*loaders.ModelData), nil
}

func (am *AssetManager) LoadPlacement() ([]loaders.Placement, error) {
	res, err := am.LoadAsset(PlacementFile, loaders.ResourceTypePlacement, nil)
	if err != nil {
		return nil, err
	}
	return res.Data.([]loaders.Placement), nil
}

// LoadTexture loads a 2D texture with its mip chain.
func (am *AssetManager) LoadTexture(file string) (*loaders.TextureData, error) {
	res, err := am.LoadAsset(file, loaders.ResourceTypeTexture, nil)
	if err != nil {
		return nil, err
	}
	return res.Data.(*loaders.TextureData), nil
}

func (am *AssetManager) LoadSkybox() (*loaders.TextureData, error) {
	faces := make([]string, len(SkyboxFaces))
	for i, face := range SkyboxFaces {
		path, _ := am.resolve(face, loaders.ResourceTypeImage)
		if err := am.touch(path); err != nil {
			return nil, err
		}
		faces[i] = path
	}
	res, err := am.loaders[loaders.ResourceTypeTexture].Load(faces[0], &loaders.TextureParams{Cube: true, Faces: faces})
	if err != nil {
		return nil, err
	}
	return res.Data.(*loaders.TextureData), nil
}

// Source returns the WGSL text of the named shader.
func (am *AssetManager) Source(name string) (string, error) {
	res, err := am.LoadAsset(name, loaders.ResourceTypeShader, nil)
	if err != nil {
		return "", err
	}
	return res.Data.(string), nil
}

func (am *AssetManager) start() {
	for {
		select {

		case e := <-am.fsnotify.Events:
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			// A removed path cannot be stat'ed, so it is dropped from the index
			// and the watch list whatever it was.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
				_ = am.fsnotify.Remove(e.Name)
			}
			select {
			case am.events <- e:
			default:
			}

		case e := <-am.fsnotify.Errors:
			if e != nil {
				core.LogError("%s", e)
			}

		case <-am.done:
			am.fsnotify.Close()
			close(am.events)
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes every file found.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) {
	path = filepath.Clean(path)
	assetType := determineAssetType(path)
	if assetType == loaders.ResourceTypeNone {
		return
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path: path,
		Type: assetType,
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, filepath.Clean(path))
}

func determineAssetType(path string) loaders.ResourceType {
	if filepath.Base(path) == PlacementFile {
		return loaders.ResourceTypePlacement
	}
	switch filepath.Ext(path) {
	case ".wgsl":
		return loaders.ResourceTypeShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".webp":
		return loaders.ResourceTypeImage
	case ".js":
		return loaders.ResourceTypeModel
	default:
		return loaders.ResourceTypeNone
	}
}
