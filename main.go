// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"amplifier/cmd"
	"amplifier/internal/audio"
	"amplifier/internal/config"
	"amplifier/internal/log"
	"amplifier/internal/tui"
	"amplifier/pkg/build"
)

// main is the entry point for the amplifier controller audio core.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Configure runtime settings
//   - Parse command line arguments and load the configuration
//   - Execute one-off commands if requested
//   - Initialize PortAudio when capturing from hardware
//
// 2. Concurrent Phase (Hot Path):
//   - Start the capture source and the per-block pipeline
//   - Start recording if enabled
//   - Start the telemetry publishers
//   - Run the dashboard, or wait for a signal when headless
//
// 3. Shutdown Phase (Cold Path):
//   - Stop publishers and close transports
//   - Stop capture and finalize any recording
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Initialize build information including version, commit hash, and build time
	if err := build.Initialize(); err != nil {
		log.Fatalf("%v", err)
	}

	// Limit OS threads: one for the capture callback, one for
	// housekeeping, publishing and the UI.
	runtime.GOMAXPROCS(2)

	inv, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if inv == nil {
		return
	}
	cfg := inv.Config
	if level, ok := log.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(level)
	}

	// Handle one-off commands that don't need the pipeline running
	if inv.Command != cmd.CommandRun {
		if err := executeCommand(inv); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if cfg.Audio.Source == config.SourcePortAudio {
		if err := audio.Initialize(); err != nil {
			log.Fatalf("%v", err)
		}
		defer audio.Terminate()
	}

	rt, err := cmd.NewRuntime(cfg, cmd.RuntimeOptions{Headless: inv.Headless})
	if err != nil {
		log.Fatalf("%v", err)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// Setup signal handling for graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	// CRITICAL: Start of real-time audio processing. Once the source is
	// started its goroutine (or PortAudio's callback) drives the pipeline.
	if err := rt.Start(); err != nil {
		log.Fatalf("%v", err)
	}

	if inv.Headless {
		log.Infof("running headless; Ctrl+C to stop")
		<-done
	} else {
		title := build.GetBuildFlags().Name
		if err := tui.RunDashboard(title, rt.Engine, rt.Controls()); err != nil {
			log.Errorf("dashboard: %v", err)
		}
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if err := rt.Stop(); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	if name := rt.Recording(); name != "" {
		fmt.Printf("\nRecording saved to: %s\n", name)
	}
}

// executeCommand handles one-off commands that don't keep the pipeline
// running.
func executeCommand(inv *cmd.Invocation) error {
	switch inv.Command {
	case cmd.CommandVersion:
		fmt.Println(build.GetBuildFlags())
		return nil

	case cmd.CommandConfig:
		data, err := inv.Config.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err

	case cmd.CommandList:
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
		if !inv.Interactive {
			return audio.ListDevices(os.Stdout)
		}
		id, err := tui.PickDevice(inv.Config.Audio.InputChannels)
		if err != nil {
			return err
		}
		if id >= 0 {
			fmt.Printf("--device %d\n", id)
		}
		return nil

	case cmd.CommandReplay:
		return cmd.Replay(inv.Config, os.Stdout)
	}
	return fmt.Errorf("unknown command %q", inv.Command)
}
