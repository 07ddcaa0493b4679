// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"tinnitus/cmd"
	applog "tinnitus/internal/log"
	"tinnitus/pkg/build"
)

// main is the entry point for the therapy processing application.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase:
//   - Initialize build information
//   - Parse command line arguments
//
// 2. Processing Phase:
//   - Load configuration and apply flags
//   - Run the selected command (process, design, play, devices)
//
// 3. Shutdown Phase:
//   - Handle termination signals by cancelling files not yet started
//   - Close publishers and release audio devices
func main() {
	// ==================== STARTUP PHASE ====================

	// Initialize build information including version, commit hash, and build time.
	// Development builds run without ldflags and keep the defaults.
	if err := build.Initialize(); err != nil {
		applog.Warnf("Build: %v, using defaults", err)
	}

	// Parse command line arguments
	options, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}

	// ==================== PROCESSING PHASE ====================

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = cmd.Execute(ctx, options, os.Stdout)

	// ==================== SHUTDOWN PHASE ====================

	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			applog.Warnf("Interrupted: %v", err)
			stop()
			os.Exit(130)
		}
		applog.Fatalf("%v", err)
	}
}
