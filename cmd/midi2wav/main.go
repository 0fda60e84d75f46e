// Package main is the entry point for the midi2wav CLI
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/james-see/midi2wav/pkg/api"
	"github.com/james-see/midi2wav/pkg/config"
	"github.com/james-see/midi2wav/pkg/logging"
	"github.com/james-see/midi2wav/pkg/midiinfo"
	"github.com/james-see/midi2wav/pkg/tui"
	"github.com/james-see/midi2wav/pkg/ui"
	"github.com/james-see/midi2wav/pkg/upload"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfg *config.Config

	envFile    string
	serverURL  string
	timeout    time.Duration
	logLevel   string
	outputName string
	waveform   string
	outputDir  string
	fetch      bool
	serverPort int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "midi2wav",
	Short: "Convert MIDI melodies to WAV through a conversion service",
	Long: `midi2wav uploads a MIDI file to a conversion service and fetches the
rendered WAV file.

Examples:
  midi2wav submit song.mid -n "My Track" -w sine --download
  midi2wav download /download/abc123_My%20Track.wav -o ./renders
  midi2wav info song.mid
  midi2wav tui
  midi2wav serve --port 8080`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var submitCmd = &cobra.Command{
	Use:   "submit <input.mid>",
	Short: "Upload a MIDI file for conversion",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

var downloadCmd = &cobra.Command{
	Use:   "download <url>",
	Short: "Download a converted file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

var infoCmd = &cobra.Command{
	Use:   "info <input.mid>",
	Short: "Summarise a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a local development conversion server",
	RunE:  runServe,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Conversion service base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Per request timeout")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn, error or none")

	// submit command
	submitCmd.Flags().StringVarP(&outputName, "name", "n", "", "Output file name (defaults to the input name)")
	submitCmd.Flags().StringVarP(&waveform, "waveform", "w", string(upload.DefaultWaveform), "sine, triangle, square or saw")
	submitCmd.Flags().BoolVar(&fetch, "download", false, "Download the converted file")
	submitCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Download directory")

	// download command
	downloadCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Download directory")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port")

	// Add commands
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(envFile)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.Server = serverURL
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if outputDir != "" {
		cfg.DownloadDir = outputDir
	}
	if serverPort > 0 {
		cfg.Port = serverPort
	}
	return nil
}

func newClient(logger kitlog.Logger) (*upload.Client, error) {
	return upload.New(upload.Options{
		Server:  cfg.Server,
		Timeout: cfg.Timeout,
		Fields: upload.Fields{
			OutputName: cfg.OutputField,
			Waveform:   cfg.WaveformField,
		},
		Logger: logger,
	})
}

func runSubmit(cmd *cobra.Command, args []string) error {
	wave, err := upload.ParseWaveform(waveform)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)
	client, err := newClient(logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	view := ui.NewConsoleView(cmd.OutOrStdout())
	controller := ui.NewController(view, client, logger)
	controller.SelectFile(args[0])
	controller.SetOutputName(outputName)
	if err := controller.SetWaveform(wave); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Submitting %s to %s\n", args[0], client.Endpoint())
	state, err := controller.Submit(ctx)
	if err != nil {
		return err
	}
	if state != ui.StateDownloadReady {
		return errors.New(view.LastAlert)
	}

	if !fetch {
		return nil
	}
	path, err := client.Download(ctx, view.DownloadURL, cfg.DownloadDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	client, err := newClient(logging.New(os.Stderr, cfg.LogLevel))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	path, err := client.Download(ctx, args[0], cfg.DownloadDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	sum, err := midiinfo.InspectFile(args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), sum.String())
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	// the alt screen owns the terminal, so logs go to a file or nowhere
	logger, closer, err := logging.ToFile(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	client, err := newClient(logger)
	if err != nil {
		return err
	}
	return tui.Run(tui.Options{
		Submitter:   client,
		Downloader:  client,
		DownloadDir: cfg.DownloadDir,
		Logger:      logger,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Printf("Starting development server on port %d...\n", cfg.Port)
	return api.StartServer(cfg.Port, api.Options{
		UploadDir: cfg.UploadDir,
		TTL:       cfg.TTL,
		Fields: upload.Fields{
			OutputName: cfg.OutputField,
			Waveform:   cfg.WaveformField,
		},
		Logger: logging.New(os.Stderr, cfg.LogLevel),
	})
}
