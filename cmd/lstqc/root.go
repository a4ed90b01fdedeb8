package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lstqc/internal/logging"
	"lstqc/pkg/config"
	"lstqc/pkg/report"
	"lstqc/pkg/roster"
	"lstqc/pkg/screenshot"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootFlags struct {
	configPath  string
	manifest    string
	iteration   string
	writeConfig string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "lstqc <input_dir> <output_dir> <roster_file>",
		Short: "Render QC screenshots of lesion-filled T1w scans and lesion masks",
		Long: "lstqc reads a comma-separated roster of <subject>_<session> tokens and, for each\n" +
			"session, renders a mosaic of the lesion-filled T1w scan and a mosaic of the raw\n" +
			"T1w scan with the lesion mask overlaid.",
		Args: func(cmd *cobra.Command, args []string) error {
			if flags.writeConfig != "" && len(args) == 0 {
				return nil
			}
			return exactArgs(cmd, args)
		},
		SilenceErrors: true,
		Version:       version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.writeConfig != "" {
				return writeConfig(cmd, flags.writeConfig)
			}
			return run(cmd, args, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "Path to a YAML configuration file")
	f.StringVar(&flags.manifest, "manifest", "", "Write a YAML manifest of the written screenshots to this path")
	f.StringVar(&flags.iteration, "iteration", "", "Roster iteration: paired (roster pairs only) or cross (every session for every subject)")
	f.StringVar(&flags.writeConfig, "write-config", "", "Write the default configuration to this path and exit")

	return cmd
}

func exactArgs(_ *cobra.Command, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("expected 3 arguments <input_dir> <output_dir> <roster_file>, got %d", len(args))
	}
	return nil
}

func writeConfig(cmd *cobra.Command, path string) error {
	cmd.SilenceUsage = true
	if err := config.WriteDefault(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to: %s\n", path)
	return nil
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if flags.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(flags.configPath); err != nil {
			return nil, err
		}
	}
	if flags.iteration != "" {
		cfg.Batch.Iteration = flags.iteration
	}
	if flags.manifest != "" {
		cfg.Output.Manifest = flags.manifest
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string, flags *rootFlags) error {
	// Arguments are valid from here on; later errors are not usage errors
	cmd.SilenceUsage = true

	inputDir, outputDir, rosterPath := args[0], args[1], args[2]
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "The base directory provided is: %s\n", inputDir)
	fmt.Fprintf(out, "The output directory provided is: %s\n", outputDir)
	fmt.Fprintf(out, "The subject session ID list provided is: %s\n", rosterPath)

	cfg, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Level(cfg.Output.Verbose), cfg.Output.LogFormat, out)
	logger := logging.New("lstqc")

	tokens, err := roster.Load(rosterPath)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}
	sessions, errs := roster.Parse(tokens)
	for _, err := range errs {
		logger.Error("skipping roster entry", "error", err)
	}
	logger.Debug("roster loaded", "tokens", len(tokens), "sessions", len(sessions))

	fmt.Fprintf(out, "The output images will be stored in: %s\n", outputDir)

	renderer := screenshot.NewImageRenderer(cfg.MosaicOptions(""))
	driver := screenshot.NewDriver(renderer, screenshot.Options{
		Naming:    cfg.Naming,
		InputDir:  inputDir,
		OutputDir: outputDir,
		Cuts:      cfg.Render.Cuts,
		Overlay:   cfg.OverlayOptions(),
		Cross:     cfg.Batch.Iteration == config.IterationCross,
	}, logging.New("screenshot"))

	result := driver.Run(sessions)

	if cfg.Output.Manifest != "" {
		builder := report.ManifestWriter{Path: cfg.Output.Manifest}
		if err := builder.Build(result.Artifacts); err != nil {
			logger.Error("error writing manifest", "path", cfg.Output.Manifest, "error", err)
		} else {
			logger.Info("wrote manifest", "path", cfg.Output.Manifest, "artifacts", len(result.Artifacts))
		}
	}

	if cfg.Output.Summary {
		fmt.Fprintln(out, report.Summary(result.Outcomes))
	}

	// Per-session failures are only visible in the log and summary
	return nil
}
