//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the aquarium in a window on the Vulkan backend.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", "main.go"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the aquarium on the software backend for ten seconds and prints the FPS.
func (Run) Headless() error {
	fmt.Println("Run headless...")
	_, err := executeCmd("go", withArgs("run", "main.go",
		"--backend=software",
		"--test-time=10",
		"--record-fps-frequency=20",
		"--num-fish=1000",
	), withStream())
	return err
}
