// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"amplifier/internal/config"
	"amplifier/internal/log"
	"amplifier/pkg/build"
)

// Commands selected by ParseArgs. The empty command runs the engine.
const (
	CommandRun     = ""
	CommandList    = "list"
	CommandReplay  = "replay"
	CommandVersion = "version"
	CommandConfig  = "config"
)

// Invocation is the parsed command line with the effective configuration.
type Invocation struct {
	Command     string
	Config      *config.Config
	Headless    bool
	Record      bool
	Interactive bool   // list: browse devices and select one
	ReplayPath  string // replay: the WAV file

	selected bool
}

// flagValues holds the raw flag targets. Only flags the user actually
// set are applied over the loaded configuration.
type flagValues struct {
	configPath  string
	device      int
	channels    int
	sampleRate  float64
	frames      int
	lowLatency  bool
	source      string
	wavPath     string
	outputDir   string
	usbPriority bool
	siggen      bool
	logLevel    string
	verbose     bool
}

// ParseArgs parses args (without the program name), loads the
// configuration named by --config and applies the flags over it. It
// returns a nil Invocation when cobra already handled --help or
// --version.
func ParseArgs(args []string) (*Invocation, error) {
	buildInfo := build.GetBuildFlags()
	inv := &Invocation{}
	var fv flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Amplifier controller audio core: metering, analysis and DSP state",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv.selected, inv.Command = true, CommandRun
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			inv.selected, inv.Command = true, CommandList
		},
	}
	listCmd.Flags().BoolVarP(&inv.Interactive, "interactive", "i", false,
		"Browse devices and print the ID of the selected one")

	replayCmd := &cobra.Command{
		Use:   "replay <file.wav>",
		Short: "Run the analysis pipeline over a WAV file and print a summary",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			inv.selected, inv.Command = true, CommandReplay
			inv.ReplayPath = args[0]
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			inv.selected, inv.Command = true, CommandVersion
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			inv.selected, inv.Command = true, CommandConfig
		},
	}
	rootCmd.AddCommand(listCmd, replayCmd, versionCmd, configCmd)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&fv.configPath, "config", "f", "",
		"Configuration file (default: ./"+config.DefaultPath+" if present)")

	// Capture source
	flags.StringVar(&fv.source, "source", config.SourcePortAudio,
		"Capture source: portaudio, wav or siggen")
	flags.StringVar(&fv.wavPath, "wav", "",
		"WAV file for the wav source")
	flags.IntVarP(&fv.device, "device", "d", config.MinDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	flags.IntVarP(&fv.channels, "channels", "c", 4,
		"Input channels (2 = one ADC, 4 = two ADCs)")
	flags.Float64VarP(&fv.sampleRate, "sample-rate", "s", 48000,
		"Sample rate, measured in Hertz (Hz)")
	flags.IntVarP(&fv.frames, "frames-per-buffer", "b", 256,
		"The number of frames per buffer (affects latency)")
	flags.BoolVarP(&fv.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")

	// Features
	flags.BoolVar(&fv.usbPriority, "usb-priority", false,
		"Enable USB auto-priority routing")
	flags.BoolVar(&fv.siggen, "siggen", false,
		"Start with the test-signal generator on")
	flags.BoolVarP(&inv.Record, "record", "r", false,
		"Record the routed capture to WAV")
	flags.StringVarP(&fv.outputDir, "output", "o", "",
		"Recording directory")

	// Output
	flags.BoolVar(&inv.Headless, "headless", false,
		"Run without the dashboard and log telemetry instead")
	flags.StringVar(&fv.logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	flags.BoolVarP(&fv.verbose, "verbose", "v", false,
		"Show verbose output (same as --log-level debug)")

	// cobra falls back to os.Args for a nil slice.
	if args == nil {
		args = []string{}
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	// --help and --version return through cobra without running a command.
	if !inv.selected {
		return nil, nil
	}

	cfg, err := config.LoadConfig(fv.configPath)
	if err != nil {
		return nil, err
	}
	fv.apply(cfg, flags.Changed)
	if inv.Command == CommandReplay {
		cfg.Audio.Source = config.SourceWAV
		cfg.Audio.WAVPath = inv.ReplayPath
	}
	if inv.Record {
		cfg.Recording.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	inv.Config = cfg
	return inv, nil
}

func (fv *flagValues) apply(cfg *config.Config, changed func(string) bool) {
	if changed("source") {
		cfg.Audio.Source = fv.source
	}
	if changed("wav") {
		cfg.Audio.WAVPath = fv.wavPath
		if !changed("source") {
			cfg.Audio.Source = config.SourceWAV
		}
	}
	if changed("device") {
		cfg.Audio.InputDevice = fv.device
	}
	if changed("channels") {
		cfg.Audio.InputChannels = fv.channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = fv.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = fv.frames
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = fv.lowLatency
	}
	if changed("usb-priority") {
		cfg.USBPriority.Enabled = fv.usbPriority
	}
	if changed("siggen") {
		cfg.SigGen.Enabled = fv.siggen
	}
	if changed("output") {
		cfg.Recording.OutputDir = fv.outputDir
	}
	if changed("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if fv.verbose {
		cfg.LogLevel = log.LevelDebug.String()
	}
}
