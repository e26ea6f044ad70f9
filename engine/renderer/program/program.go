// Package program turns WGSL shader sources into device shader modules.
package program

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gogpu/naga"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/engine/renderer/gpu"
)

const spirvMagic uint32 = 0x07230203

var ErrCompile = errors.New("shader compilation failed")

// Source supplies shader source text by identifier.
type Source interface {
	Source(name string) (string, error)
}

// DirSource reads <Dir>/<name>.wgsl.
type DirSource struct {
	Dir string
}

func (s DirSource) Source(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, name+".wgsl"))
	if err != nil {
		return "", fmt.Errorf("%w: shader %s: %w", core.ErrMissingResource, name, err)
	}
	return string(data), nil
}

// MapSource serves shaders held in memory.
type MapSource map[string]string

func (s MapSource) Source(name string) (string, error) {
	src, ok := s[name]
	if !ok {
		return "", fmt.Errorf("%w: shader %s", core.ErrMissingResource, name)
	}
	return src, nil
}

// Compiler translates WGSL to SPIR-V bytes.
type Compiler func(source string) ([]byte, error)

// Compile is the default Compiler.
func Compile(source string) ([]byte, error) {
	return naga.Compile(source)
}

// Validate checks that code looks like a SPIR-V module.
func Validate(code []byte) error {
	if len(code) < 20 || len(code)%4 != 0 {
		return fmt.Errorf("%w: %d bytes is not a SPIR-V module", ErrCompile, len(code))
	}
	if magic := binary.LittleEndian.Uint32(code); magic != spirvMagic {
		return fmt.Errorf("%w: bad SPIR-V magic 0x%08x", ErrCompile, magic)
	}
	return nil
}

// Program is a linked vertex and fragment shader pair.
type Program struct {
	Name     string
	Vertex   gpu.ShaderModule
	Fragment gpu.ShaderModule
	// Diagnostic text reported while compiling, empty on a clean build.
	Diagnostics []string
}

func (p *Program) Destroy() {
	if p.Vertex != nil {
		p.Vertex.Destroy()
	}
	if p.Fragment != nil {
		p.Fragment.Destroy()
	}
}

// Cache compiles each program once and hands out the same instance for
// every model sharing the vertex and fragment pair.
type Cache struct {
	mu       sync.Mutex
	device   gpu.Device
	source   Source
	compile  Compiler
	programs map[string]*Program
}

func NewCache(device gpu.Device, source Source, compile Compiler) *Cache {
	if compile == nil {
		compile = Compile
	}
	return &Cache{
		device:   device,
		source:   source,
		compile:  compile,
		programs: make(map[string]*Program),
	}
}

func key(vs, fs string) string {
	return vs + "|" + fs
}

// Get returns the program built from the vertex shader vs and fragment shader fs.
func (c *Cache) Get(vs, fs string) (*Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.programs[key(vs, fs)]; ok {
		return p, nil
	}

	p := &Program{Name: key(vs, fs)}
	vertex, err := c.build(p, gpu.ShaderStageVertex, vs)
	if err != nil {
		return nil, err
	}
	fragment, err := c.build(p, gpu.ShaderStageFragment, fs)
	if err != nil {
		vertex.Destroy()
		return nil, err
	}
	p.Vertex, p.Fragment = vertex, fragment
	c.programs[p.Name] = p
	core.LogDebug("program %s compiled", p.Name)
	return p, nil
}

func (c *Cache) build(p *Program, stage gpu.ShaderStage, name string) (gpu.ShaderModule, error) {
	src, err := c.source.Source(name)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	code, err := c.compile(src)
	if err != nil {
		// the compiler error text is the diagnostic
		p.Diagnostics = append(p.Diagnostics, fmt.Sprintf("%s: %s", name, err))
		core.LogWarn("shader %s: %s", name, err)
		err = fmt.Errorf("%w: %s", ErrCompile, name)
		core.LogError("%s", err)
		return nil, err
	}
	if err := Validate(code); err != nil {
		p.Diagnostics = append(p.Diagnostics, fmt.Sprintf("%s: %s", name, err))
		core.LogError("%s", err)
		return nil, err
	}
	module, err := c.device.CreateShaderModule(stage, code)
	if err != nil {
		err = fmt.Errorf("failed to create shader module %s: %w", name, err)
		core.LogError("%s", err)
		return nil, err
	}
	return module, nil
}

// Len returns the number of cached programs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.programs)
}

func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, p := range c.programs {
		p.Destroy()
		delete(c.programs, name)
	}
}
