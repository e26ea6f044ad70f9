//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/spaghettifunk/aquarium/engine/renderer/program"
)

const (
	shaderDir = "assets/shaders"
	binary    = "bin/aquarium"
)

type Build mg.Namespace

// Compiles every WGSL shader with naga and writes the SPIR-V next to it.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the aquarium binary into bin/.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", binary, "."), withStream())
	return err
}

// Runs the unit tests of every package.
func (Build) Test() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

func buildShaders() error {
	files, err := filepath.Glob(filepath.Join(shaderDir, "*.wgsl"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no shaders found in %s", shaderDir)
	}
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		code, err := program.Compile(string(src))
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		if err := program.Validate(code); err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		out := f[:len(f)-len(filepath.Ext(f))] + ".spv"
		if err := os.WriteFile(out, code, 0o644); err != nil {
			return err
		}
		if mg.Verbose() {
			fmt.Printf("%s -> %s (%d bytes)\n", f, out, len(code))
		}
	}
	return nil
}
