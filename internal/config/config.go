// SPDX-License-Identifier: MIT
package config

// Defaults applied before the config file and environment are read.
const (
	DefaultConfigFileName      = "config.yaml"
	DefaultLogLevel            = "info"
	DefaultMode                = "notched-music"
	DefaultNotchFrequencyHz    = 4000.0 // Most common tinnitus pitch.
	DefaultQualityFactor       = 30.0
	DefaultTinnitusFrequencyHz = 4000.0
	DefaultOutputDir           = "."
	DefaultWorkers             = 0  // One per CPU.
	DefaultOutputDevice        = -1 // System default device.
	DefaultFramesPerBuffer     = 512
	DefaultWebSocketAddress    = "127.0.0.1:8080"
	DefaultUDPTargetAddress    = "127.0.0.1:9090"
	DefaultAnalysisWindow      = "Hann"
)

// Bounds enforced by Validate.
const (
	MinNotchFrequencyHz    = 250.0
	MaxNotchFrequencyHz    = 20000.0
	MinTinnitusFrequencyHz = 250.0
	MaxTinnitusFrequencyHz = 8000.0
	MinOutputDeviceID      = -1
	MaxFramesPerBuffer     = 8192 // Maximum frames per buffer (power of 2)
)
