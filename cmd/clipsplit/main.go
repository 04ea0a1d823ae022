package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/clipsplit/internal/config"
	"github.com/kikiluvv/clipsplit/internal/ffmpeg"
	"github.com/kikiluvv/clipsplit/internal/logging"
	"github.com/kikiluvv/clipsplit/internal/pipeline"
	"github.com/kikiluvv/clipsplit/pkg/util"
)

var (
	cfgFile   string
	verbose   bool
	logFormat string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, diagnostic(err))
		stop()
		os.Exit(1)
	}
}

// diagnostic renders err as the single line printed on failure.
func diagnostic(err error) string {
	var se *pipeline.StageError
	if errors.As(err, &se) {
		return "clipsplit: " + se.Error()
	}
	return "clipsplit: " + err.Error()
}

var rootCmd = &cobra.Command{
	Use:           "clipsplit",
	Short:         "clipsplit - split long videos into thumbnailed clips",
	Long:          "Trims a source video, optionally lays looped background music under it, and cuts it into fixed-length clips with generated thumbnails.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(verbose, logFormat)

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./clipsplit.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format: console or json")

	registerSplitFlags(splitCmd)
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")

	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

var splitCmd = &cobra.Command{
	Use:   "split [input video]",
	Short: "Split a video into thumbnailed clips",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		applySplitFlags(cmd, cfg, args)
		if cfg.Input == "" {
			return errors.New("an input video is required (argument or --input)")
		}

		opts, err := pipeline.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}

		pipe, err := pipeline.NewDefault(cmd.Context(), log.Logger, cfg)
		if err != nil {
			return err
		}

		res, err := pipe.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}

		if !res.Retained {
			fmt.Fprintf(cmd.OutOrStdout(), "%d segments generated and discarded (set --video-name or --retain to keep them)\n", len(res.Segments))
			return nil
		}
		for _, path := range res.Finals() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", path, humanize.Bytes(uint64(util.FileSize(path))))
		}
		return nil
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ffmpeg and ffprobe are installed and runnable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		exec, err := ffmpeg.New(log.Logger, ffmpeg.Options{
			FFmpegPath:  cfg.FFmpeg.BinaryPath,
			FFprobePath: cfg.FFmpeg.ProbePath,
			Timeout:     cfg.FFmpeg.Timeout,
		})
		if err != nil {
			return err
		}

		tools, err := exec.Check(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOOL\tPATH\tVERSION")
		for _, t := range tools {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.Path, t.Version)
		}
		return w.Flush()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "clipsplit.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		force, _ := cmd.Flags().GetBool("force")
		if util.FileExists(path) && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}
