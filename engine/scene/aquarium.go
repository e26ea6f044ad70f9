// Package scene is the aquarium: it loads the models of the catalog into the
// renderer and moves the camera and every fish from frame to frame.
package scene

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/aquarium/engine/assets/loaders"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/jobs"
	"github.com/spaghettifunk/aquarium/engine/math"
	"github.com/spaghettifunk/aquarium/engine/renderer"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
	"github.com/spaghettifunk/aquarium/engine/renderer/models"
	"github.com/spaghettifunk/aquarium/engine/renderer/staging"
	"github.com/spaghettifunk/aquarium/engine/renderer/uniforms"
)

const (
	// Scale of the scene clock against wall time.
	speed float32 = 1
	// Seconds between two samples of the FPS timer.
	fpsUpdateInterval = 0.05
)

var (
	sceneLight = uniforms.Light{
		LightColor: [4]float32{1, 1, 1, 1},
		Specular:   [4]float32{1, 1, 1, 1},
		Ambient:    [4]float32{0.218, 0.502, 0.706, 1},
	}
	sceneFog = uniforms.Fog{
		FogPower:  16.5,
		FogMult:   1.5,
		FogOffset: 0.738,
		FogColor:  [4]float32{0.338, 0.81, 1, 1},
	}
)

// Assets is where the scene reads its content from. LoadModel and
// LoadTexture are called from several goroutines at once.
type Assets interface {
	LoadModel(name string) (*loaders.ModelData, error)
	LoadPlacement() ([]loaders.Placement, error)
	LoadTexture(file string) (*loaders.TextureData, error)
	LoadSkybox() (*loaders.TextureData, error)
}

type Options struct {
	NumFish int
	// Draw each fish species with one instanced draw.
	Instanced bool
	// Draw every fish as soon as it is updated. Ignored when instanced.
	UpdateAndDrawForEachFish bool
	// Record the average FPS every that many FPS samples; 0 disables it.
	RecordFPSFrequency int
	// Defaults to the shipped catalog.
	Catalog *Catalog
}

type placedModel struct {
	model  *models.Model
	worlds []mgl32.Mat4
}

type fishModel struct {
	model   *models.Model
	species Species
	count   int
}

type Aquarium struct {
	renderer *renderer.Context
	catalog  *Catalog
	opts     Options

	camera *Camera
	random math.PseudoRandom
	fps    *core.FPSTimer
	mclock float32

	renderingTime float64
	sinceFPS      float64
	framesSince   int

	skybox   *staging.GPUTexture
	textures map[string]*staging.GPUTexture
	owned    []interface{ Destroy() }

	fishCount  [len(FishTable)]int
	background []*placedModel
	fishes     []*fishModel
	inner      []*placedModel
	seaweed    []*placedModel
	outside    []*placedModel
}

func New(r *renderer.Context, opts Options) (*Aquarium, error) {
	if opts.NumFish < 0 {
		err := fmt.Errorf("%w: %d fish", core.ErrInvalidConfig, opts.NumFish)
		core.LogError("%s", err)
		return nil, err
	}
	if opts.Instanced {
		opts.UpdateAndDrawForEachFish = false
	}
	catalog := opts.Catalog
	if catalog == nil {
		var err error
		if catalog, err = DefaultCatalog(); err != nil {
			return nil, err
		}
	}
	width, height := r.Device().Swapchain().Extent()
	return &Aquarium{
		renderer:  r,
		catalog:   catalog,
		opts:      opts,
		camera:    NewCamera(width, height),
		fps:       core.NewFPSTimer(),
		textures:  make(map[string]*staging.GPUTexture),
		fishCount: CalculateFishCount(opts.NumFish),
	}, nil
}

// FishCount is the number of fish of every species, in table order.
func (a *Aquarium) FishCount() [len(FishTable)]int {
	return a.fishCount
}

func (a *Aquarium) Camera() *Camera {
	return a.camera
}

// Load uploads every model of the catalog and waits for the uploads.
func (a *Aquarium) Load(ctx context.Context, assets Assets) error {
	start := core.NewClock()
	start.Start()

	sky, err := assets.LoadSkybox()
	if err != nil {
		return err
	}
	if a.skybox, err = a.createTexture("skybox", sky); err != nil {
		return err
	}

	placements, err := assets.LoadPlacement()
	if err != nil {
		return err
	}
	worlds := make(map[string][]mgl32.Mat4)
	for _, p := range placements {
		worlds[p.Name] = append(worlds[p.Name], mgl32.Mat4(p.World))
	}

	decoded, err := a.decode(assets)
	if err != nil {
		return err
	}
	for i, info := range a.catalog.Models {
		if err := a.loadModel(decoded, info, decoded.models[i], worlds[info.Name]); err != nil {
			return err
		}
	}

	if err := a.renderer.SetLight(sceneLight); err != nil {
		return err
	}
	if err := a.renderer.SetFog(sceneFog); err != nil {
		return err
	}
	if err := a.renderer.FlushSetup(ctx); err != nil {
		return err
	}

	start.Update()
	core.LogInfo("aquarium loaded in %.2fs: %d models, %d textures, fish %v",
		start.Elapsed(), len(a.catalog.Models), len(a.textures)+1, a.fishCount)
	return nil
}

// decodedAssets holds the CPU side of every model and texture of the catalog.
type decodedAssets struct {
	models []*loaders.ModelData

	mu     sync.Mutex
	images map[string]*loaders.TextureData
}

// decode reads the models and then their textures on a worker pool. Each
// texture file is decoded once.
func (a *Aquarium) decode(assets Assets) (*decodedAssets, error) {
	d := &decodedAssets{
		models: make([]*loaders.ModelData, len(a.catalog.Models)),
		images: make(map[string]*loaders.TextureData),
	}

	err := runJobs(len(a.catalog.Models), func(js *jobs.JobSystem) error {
		for i, info := range a.catalog.Models {
			err := js.Submit(jobs.Task{
				Name: info.Name,
				Run: func() error {
					data, err := assets.LoadModel(info.Name)
					d.models[i] = data
					return err
				},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var files []string
	seen := make(map[string]bool)
	for _, m := range d.models {
		for _, file := range m.Textures {
			if !seen[file] {
				seen[file] = true
				files = append(files, file)
			}
		}
	}
	err = runJobs(len(files), func(js *jobs.JobSystem) error {
		for _, file := range files {
			err := js.Submit(jobs.Task{
				Name: file,
				Run: func() error {
					data, err := assets.LoadTexture(file)
					if err != nil {
						return err
					}
					d.mu.Lock()
					d.images[file] = data
					d.mu.Unlock()
					return nil
				},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// runJobs runs the tasks submitted by submit on a pool sized for n tasks.
func runJobs(n int, submit func(js *jobs.JobSystem) error) error {
	workers := min(runtime.NumCPU(), max(n, 1))
	js, err := jobs.NewJobSystem(workers, n)
	if err != nil {
		return err
	}
	submitErr := submit(js)
	return errors.Join(submitErr, js.Shutdown())
}

func (a *Aquarium) loadModel(decoded *decodedAssets, info ModelInfo, data *loaders.ModelData, worlds []mgl32.Mat4) error {
	kind, err := info.Group.Kind(a.opts.Instanced)
	if err != nil {
		return err
	}
	desc := models.Desc{Kind: kind, Name: info.Name, Blend: info.Blend}

	var species Species
	if info.Group == GroupFish {
		index, _ := SpeciesIndex(info.Name)
		species = FishTable[index]
		desc.Instances = a.fishCount[index]
		desc.Fish = species.Vertex()
	} else if worlds, err = checkPlacements(kind, info.Name, worlds); err != nil {
		return err
	}

	m, err := a.renderer.CreateModel(desc)
	if err != nil {
		return err
	}
	for name, field := range data.Fields {
		b, err := a.createBuffer(info.Name+"-"+name, name, field)
		if err != nil {
			return err
		}
		m.SetBuffer(name, b)
	}
	for name, file := range data.Textures {
		t, err := a.texture(file, decoded.images[file])
		if err != nil {
			return err
		}
		m.SetTexture(name, t)
	}
	vs, fs, sky := programFor(info, data.Textures)
	if sky {
		m.SetTexture("skybox", a.skybox)
	}
	p, err := a.renderer.CreateProgram(vs, fs)
	if err != nil {
		return err
	}
	m.SetProgram(p)
	if err := m.Init(a.renderer); err != nil {
		return err
	}

	switch info.Group {
	case GroupFish:
		a.fishes = append(a.fishes, &fishModel{model: m, species: species, count: desc.Instances})
	case GroupGeneric:
		a.background = append(a.background, &placedModel{model: m, worlds: worlds})
	case GroupInner:
		a.inner = append(a.inner, &placedModel{model: m, worlds: worlds})
	case GroupSeaweed:
		a.seaweed = append(a.seaweed, &placedModel{model: m, worlds: worlds})
	case GroupOutside:
		a.outside = append(a.outside, &placedModel{model: m, worlds: worlds})
	}
	return nil
}

// checkPlacements bounds the placements of a model by what its kind draws
// in one frame. A single object without placement sits at the origin.
func checkPlacements(kind models.Kind, name string, worlds []mgl32.Mat4) ([]mgl32.Mat4, error) {
	caps := kind.Capabilities()
	switch {
	case caps.Batched && len(worlds) > caps.MaxInstances:
		err := fmt.Errorf("%w: %s has %d placements, %d fit in a draw",
			core.ErrInstanceCapExceeded, name, len(worlds), caps.MaxInstances)
		core.LogError("%s", err)
		return nil, err
	case !caps.Batched && len(worlds) > 1:
		err := fmt.Errorf("%w: %s is drawn once but has %d placements", core.ErrInvalidConfig, name, len(worlds))
		core.LogError("%s", err)
		return nil, err
	case !caps.Batched && len(worlds) == 0:
		return []mgl32.Mat4{mgl32.Ident4()}, nil
	}
	return worlds, nil
}

func (a *Aquarium) createBuffer(label, name string, field loaders.ModelField) (*staging.GPUBuffer, error) {
	var (
		b   *staging.GPUBuffer
		err error
	)
	if name == "indices" {
		b, err = a.renderer.CreateBuffer(label, gpu.RawBytes(field.Indices), staging.RoleIndex, 2)
	} else {
		b, err = a.renderer.CreateBuffer(label, gpu.RawBytes(field.Floats), staging.RoleVertex, uint32(field.NumComponents)*4)
	}
	if err != nil {
		return nil, err
	}
	a.owned = append(a.owned, b)
	return b, nil
}

// texture returns the texture of file, uploading it the first time.
func (a *Aquarium) texture(file string, data *loaders.TextureData) (*staging.GPUTexture, error) {
	if t, ok := a.textures[file]; ok {
		return t, nil
	}
	t, err := a.createTexture(file, data)
	if err != nil {
		return nil, err
	}
	a.textures[file] = t
	return t, nil
}

func (a *Aquarium) createTexture(label string, data *loaders.TextureData) (*staging.GPUTexture, error) {
	t, err := a.renderer.CreateTexture(label, staging.TextureData{
		Width:  data.Width,
		Height: data.Height,
		Format: gpu.FormatR8G8B8A8Unorm,
		Cube:   data.Cube,
		Levels: data.Levels,
	})
	if err != nil {
		return nil, err
	}
	a.owned = append(a.owned, t)
	return t, nil
}

// Update advances the scene clocks by elapsed seconds of wall time.
func (a *Aquarium) Update(elapsed float64) {
	a.renderingTime += elapsed
	a.sinceFPS += elapsed
	a.framesSince++
	if a.sinceFPS > fpsUpdateInterval {
		a.fps.Update(a.sinceFPS/float64(a.framesSince), a.renderingTime, a.opts.RecordFPSFrequency)
		a.sinceFPS, a.framesSince = 0, 0
	}

	a.mclock += float32(elapsed) * speed
	a.camera.SetViewport(a.renderer.Device().Swapchain().Extent())
	a.camera.Advance(float32(elapsed))
}

// Render records the whole scene into list: background, fishes, the tank
// glass, seaweed and the outer frame, in that order.
func (a *Aquarium) Render(list gpu.CommandList) error {
	a.random.Reset()
	if err := a.renderer.SetLightWorldPosition(a.camera.LightWorldPosition()); err != nil {
		return err
	}
	if err := a.drawPlaced(list, a.background); err != nil {
		return err
	}
	for _, f := range a.fishes {
		if err := a.drawFish(list, f); err != nil {
			return err
		}
	}
	for _, group := range [][]*placedModel{a.inner, a.seaweed, a.outside} {
		if err := a.drawPlaced(list, group); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aquarium) drawPlaced(list gpu.CommandList, group []*placedModel) error {
	for _, p := range group {
		if err := p.model.PrepareForDraw(); err != nil {
			return err
		}
		for i, world := range p.worlds {
			inst := models.Instance{
				World: a.camera.WorldUniforms(world),
				Time:  a.mclock + float32(i),
			}
			if err := p.model.UpdatePerInstanceUniforms(&inst); err != nil {
				return err
			}
		}
		if err := p.model.Draw(list); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aquarium) drawFish(list gpu.CommandList, f *fishModel) error {
	if err := f.model.PrepareForDraw(); err != nil {
		return err
	}
	for i := 0; i < f.count; i++ {
		per := FishPath(f.species, i, a.mclock, &a.random)
		if err := f.model.UpdateFishPerUniforms(i, per); err != nil {
			return err
		}
		if a.opts.UpdateAndDrawForEachFish {
			if err := f.model.Draw(list); err != nil {
				return err
			}
		}
	}
	if a.opts.UpdateAndDrawForEachFish {
		return nil
	}
	return f.model.Draw(list)
}

func (a *Aquarium) FPS() *core.FPSTimer {
	return a.fps
}

// PrintRecordedFPS logs the FPS recorded while running, if any.
func (a *Aquarium) PrintRecordedFPS() {
	recorded := a.fps.Recorded()
	if len(recorded) == 0 {
		return
	}
	var sum float64
	for _, v := range recorded {
		sum += v
	}
	core.LogInfo("average FPS %.1f over %d samples: %v", sum/float64(len(recorded)), len(recorded), recorded)
}

// Destroy releases the buffers and textures of the scene. The renderer must
// be terminated first.
func (a *Aquarium) Destroy() {
	for _, o := range a.owned {
		o.Destroy()
	}
	a.owned = nil
	a.textures = make(map[string]*staging.GPUTexture)
	a.skybox = nil
}
