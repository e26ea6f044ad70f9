/*
The aquarium renders a tank of fish with the engine package until the window
closes, ESC is pressed or the test time runs out.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spaghettifunk/aquarium/engine"
	"github.com/spaghettifunk/aquarium/engine/config"
	"github.com/spaghettifunk/aquarium/engine/core"
	"github.com/spaghettifunk/aquarium/testbed"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	aquarium, err := engine.New(testbed.NewAquariumGame(cfg).Game)
	if err != nil {
		core.LogFatal("%s", err)
	}

	// capture sigterm and other system call here
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	runErr := aquarium.Initialize(ctx)
	if runErr == nil {
		runErr = aquarium.Run(ctx)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := aquarium.Shutdown(shutdownCtx); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("%s", runErr)
	}
}

func parseFlags(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("aquarium", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "TOML configuration file")
		backend    = fs.String("backend", "", "vulkan or software")
		logLevel   = fs.String("log-level", "", "debug, info, warn or error")
		numFish    = fs.Int("num-fish", -1, "number of fish")
		msaa       = fs.Bool("enable-msaa", false, "4x multisampling")
		instanced  = fs.Bool("enable-instanced-draws", false, "one instanced draw per fish species")
		eachFish   = fs.Bool("update-and-draw-for-each-fish", false, "one draw per fish")
		discrete   = fs.Bool("discrete-gpu", false, "prefer a discrete gpu")
		integrated = fs.Bool("integrated-gpu", false, "prefer an integrated gpu")
		fullscreen = fs.Bool("enable-full-screen-mode", false, "fullscreen on the primary monitor")
		noVSync    = fs.Bool("turn-off-vsync", false, "present without waiting for vblank")
		validation = fs.Bool("enable-validation", false, "Vulkan validation layers")
		recordFPS  = fs.Int("record-fps-frequency", -1, "record the average FPS every N samples")
		testTime   = fs.Int("test-time", -1, "stop after that many seconds")
		windowSize = fs.String("window-size", "", "window size as W,H")
		assetPath  = fs.String("asset-path", "", "directory of models, textures and shaders")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// only the flags given on the command line override the file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backend
		case "log-level":
			cfg.LogLevel = *logLevel
		case "num-fish":
			cfg.NumFish = *numFish
		case "enable-msaa":
			cfg.MSAA = *msaa
		case "enable-instanced-draws":
			cfg.InstancedDraws = *instanced
		case "update-and-draw-for-each-fish":
			cfg.UpdateAndDrawForEachFish = *eachFish
		case "enable-full-screen-mode":
			cfg.Fullscreen = *fullscreen
		case "turn-off-vsync":
			cfg.VSync = !*noVSync
		case "enable-validation":
			cfg.Validation = *validation
		case "record-fps-frequency":
			cfg.RecordFPSFrequency = *recordFPS
		case "test-time":
			cfg.TestTimeSeconds = *testTime
		case "asset-path":
			cfg.AssetPath = *assetPath
		}
	})
	if err := cfg.SetGPU(*discrete, *integrated); err != nil {
		return nil, err
	}
	if *windowSize != "" {
		w, h, err := parseWindowSize(*windowSize)
		if err != nil {
			return nil, err
		}
		cfg.WindowWidth, cfg.WindowHeight = w, h
	}
	return cfg, cfg.Validate()
}

func parseWindowSize(s string) (int, int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: window size %q is not W,H", core.ErrInvalidConfig, s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: window width: %w", core.ErrInvalidConfig, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: window height: %w", core.ErrInvalidConfig, err)
	}
	return w, h, nil
}
