// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tinnitus/internal/audio"
	"tinnitus/internal/config"
	"tinnitus/pkg/build"
)

// Commands selected on the command line.
const (
	CommandProcess = "process"
	CommandDesign  = "design"
	CommandPlay    = "play"
	CommandDevices = "devices"
	CommandWatch   = "watch"
	CommandHelp    = "help"
)

// Options holds everything parsed from the command line. Flags left unset do
// not override the config file; see Apply.
type Options struct {
	Command    string
	Files      []string
	ConfigPath string

	Mode                   string
	NotchFrequencyHz       float64
	QualityFactor          float64
	TinnitusFrequencyHz    float64
	OutputDir              string
	Workers                int
	Window                 string
	Play                   bool
	Report                 bool
	Serve                  bool
	WebSocketAddress       string
	UDPTargetAddress       string
	TUI                    bool
	Verbose                bool
	OutputDevice           int
	FramesPerBuffer        int
	WatchAddress           string
	DesignSampleRateHz     int
	DesignNotchFrequencyHz float64
	DesignQualityFactor    float64

	changed map[string]bool
}

var errNoFiles = errors.New("no input files given")

// ParseArgs parses args (without the program name).
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{changed: map[string]bool{}}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.Flags().Visit(func(f *pflag.Flag) {
				options.changed[f.Name] = true
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandHelp
			return cmd.Help()
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Process command
	processCmd := &cobra.Command{
		Use:   "process [flags] file...",
		Short: "Apply the selected therapy to audio files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errNoFiles
			}
			options.Command = CommandProcess
			options.Files = args
			return nil
		},
	}
	processCmd.Flags().StringVarP(&options.Mode, "mode", "m", config.DefaultMode,
		"Therapy: notched-music (nmt) or tinnitus-retraining (trt)")
	processCmd.Flags().Float64VarP(&options.NotchFrequencyHz, "notch", "f", config.DefaultNotchFrequencyHz,
		"Notch center frequency, measured in Hertz (Hz)")
	processCmd.Flags().Float64VarP(&options.QualityFactor, "q", "q", config.DefaultQualityFactor,
		"Notch quality factor (higher is narrower)")
	processCmd.Flags().Float64VarP(&options.TinnitusFrequencyHz, "tinnitus", "t", config.DefaultTinnitusFrequencyHz,
		"Tinnitus frequency reported with retraining results (Hz)")
	processCmd.Flags().StringVarP(&options.OutputDir, "output-dir", "o", config.DefaultOutputDir,
		"Directory for processed files")
	processCmd.Flags().IntVarP(&options.Workers, "workers", "w", config.DefaultWorkers,
		"Files processed concurrently (0 = one per CPU)")
	processCmd.Flags().StringVar(&options.Window, "window", config.DefaultAnalysisWindow,
		"FFT window for the notch depth report")
	processCmd.Flags().BoolVarP(&options.Report, "report", "r", false,
		"Measure and log the notch depth of each result")
	processCmd.Flags().BoolVarP(&options.Play, "play", "p", false,
		"Play each result after the batch")
	processCmd.Flags().BoolVar(&options.Serve, "serve", false,
		"Broadcast processing events to WebSocket clients on /ws")
	processCmd.Flags().StringVar(&options.WebSocketAddress, "addr", config.DefaultWebSocketAddress,
		"Listen address for --serve")
	processCmd.Flags().StringVar(&options.UDPTargetAddress, "udp", "",
		"Also send processing events as UDP datagrams to this address")
	processCmd.Flags().BoolVar(&options.TUI, "tui", false,
		"Show a terminal progress view")
	addPlaybackFlags(processCmd, options)
	rootCmd.AddCommand(processCmd)

	// Design command
	designCmd := &cobra.Command{
		Use:   "design",
		Short: "Print notch filter coefficients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandDesign
			return nil
		},
	}
	designCmd.Flags().Float64VarP(&options.DesignNotchFrequencyHz, "notch", "f", config.DefaultNotchFrequencyHz,
		"Notch center frequency, measured in Hertz (Hz)")
	designCmd.Flags().Float64VarP(&options.DesignQualityFactor, "q", "q", config.DefaultQualityFactor,
		"Notch quality factor")
	designCmd.Flags().IntVarP(&options.DesignSampleRateHz, "rate", "s", 44100,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.AddCommand(designCmd)

	// Play command
	playCmd := &cobra.Command{
		Use:   "play file...",
		Short: "Play WAV files on an output device",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errNoFiles
			}
			options.Command = CommandPlay
			options.Files = args
			return nil
		},
	}
	addPlaybackFlags(playCmd, options)
	rootCmd.AddCommand(playCmd)

	// Devices command
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List available audio output devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandDevices
		},
	}
	rootCmd.AddCommand(devicesCmd)

	// Watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Print processing events received over UDP",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandWatch
		},
	}
	watchCmd.Flags().StringVarP(&options.WatchAddress, "listen", "l", config.DefaultUDPTargetAddress,
		"UDP address to listen on (default: transport.udp_target_address)")
	rootCmd.AddCommand(watchCmd)

	// Shared configuration
	rootCmd.PersistentFlags().StringVarP(&options.ConfigPath, "config", "c", "",
		"Path to a YAML config file (default: ./config.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&options.Verbose, "verbose", "v", false,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if options.Command == "" {
		// --help and --version end here.
		options.Command = CommandHelp
	}
	return options, nil
}

func addPlaybackFlags(c *cobra.Command, options *Options) {
	c.Flags().IntVarP(&options.OutputDevice, "device", "d", audio.DefaultDeviceID,
		"Output device ID. Use 'devices' command to see available devices.")
	c.Flags().IntVarP(&options.FramesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
}

// Changed reports whether the named flag was set on the command line.
func (o *Options) Changed(name string) bool {
	return o.changed[name]
}

// Apply overrides cfg with every flag set on the command line.
func (o *Options) Apply(cfg *config.Config) {
	if o.Changed("mode") {
		cfg.Therapy.Mode = o.Mode
	}
	if o.Changed("notch") {
		cfg.Therapy.NotchFrequencyHz = o.NotchFrequencyHz
	}
	if o.Changed("q") {
		cfg.Therapy.QualityFactor = o.QualityFactor
	}
	if o.Changed("tinnitus") {
		cfg.Therapy.TinnitusFrequencyHz = o.TinnitusFrequencyHz
	}
	if o.Changed("output-dir") {
		cfg.Processing.OutputDir = o.OutputDir
	}
	if o.Changed("workers") {
		cfg.Processing.Workers = o.Workers
	}
	if o.Changed("report") {
		cfg.Processing.Report = o.Report
	}
	if o.Changed("window") {
		cfg.Analysis.Window = o.Window
	}
	if o.Changed("play") {
		cfg.Playback.Enabled = o.Play
	}
	if o.Changed("device") {
		cfg.Playback.OutputDevice = o.OutputDevice
	}
	if o.Changed("frames-per-buffer") {
		cfg.Playback.FramesPerBuffer = o.FramesPerBuffer
	}
	if o.Changed("serve") {
		cfg.Transport.WebSocketEnabled = o.Serve
	}
	if o.Changed("addr") {
		cfg.Transport.WebSocketAddress = o.WebSocketAddress
	}
	if o.Changed("udp") {
		cfg.Transport.UDPEnabled = o.UDPTargetAddress != ""
		cfg.Transport.UDPTargetAddress = o.UDPTargetAddress
	}
	if o.Changed("listen") {
		cfg.Transport.UDPTargetAddress = o.WatchAddress
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
}

// LoadConfig reads the config file and applies the command line on top.
func (o *Options) LoadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	o.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
