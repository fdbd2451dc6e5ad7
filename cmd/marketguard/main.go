// Command marketguard trains and scores the dual-model hourly anomaly
// detector over aligned sentiment and blockchain activity.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hed1ad/marketguard/pkg/pipeline"
)

const (
	appName = "marketguard"
	version = "v0.3.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var configPath string
	var debug bool

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Dual-model hourly anomaly detection over market sentiment and on-chain activity",
		Version: version,
		Long: `marketguard aligns social-sentiment and blockchain transaction streams onto
an hourly grid and scores every aligned hour with two independent detectors:
an isolation forest and a bottlenecked autoencoder. Their verdicts are fused
into a single per-hour anomaly report.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to YAML configuration")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Align the streams and fit both detector bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pipeline.LoadConfig(configPath)
			if err != nil {
				return err
			}
			applyOverrides(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return pipeline.Train(cfg)
		},
	}
	trainCmd.Flags().Float64("contamination", 0, "Override expected anomalous fraction in (0,1)")
	trainCmd.Flags().Int64("seed", 0, "Override the training random seed")

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Score every aligned hour with both bundles and fuse the verdicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pipeline.LoadConfig(configPath)
			if err != nil {
				return err
			}
			applyOverrides(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			verdicts, err := pipeline.Score(cfg)
			if err != nil {
				return err
			}

			for _, v := range verdicts {
				if v.DensityFlag == 1 || v.ReconstructionFlag == 1 {
					fmt.Printf("%s  density=%.3f/%d  reconstruction=%.5f/%d\n",
						v.Bucket.Format(time.RFC3339),
						v.DensityScore, v.DensityFlag,
						v.ReconstructionError, v.ReconstructionFlag)
				}
			}
			return nil
		},
	}
	scoreCmd.Flags().String("threshold-mode", "", "Override reconstruction threshold mode (batch|fixed)")
	scoreCmd.Flags().String("fusion", "", "Override fusion policy (or|and|none)")

	rootCmd.AddCommand(trainCmd, scoreCmd, newDemoCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

// applyOverrides folds explicitly set flags over the loaded config.
func applyOverrides(cmd *cobra.Command, cfg *pipeline.Config) {
	if cmd.Flags().Changed("contamination") {
		cfg.Training.Contamination, _ = cmd.Flags().GetFloat64("contamination")
	}
	if cmd.Flags().Changed("seed") {
		cfg.Training.Seed, _ = cmd.Flags().GetInt64("seed")
	}
	if cmd.Flags().Changed("threshold-mode") {
		cfg.Scoring.ThresholdMode, _ = cmd.Flags().GetString("threshold-mode")
	}
	if cmd.Flags().Changed("fusion") {
		cfg.Scoring.FusionPolicy, _ = cmd.Flags().GetString("fusion")
	}
}
