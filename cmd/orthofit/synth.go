package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/orthofit/internal/atomicio"
	"github.com/sawpanic/orthofit/internal/config"
	"github.com/sawpanic/orthofit/internal/volume"
)

func newSynthCmd(root *rootOptions) *cobra.Command {
	var (
		outDir string
		opts   volume.SynthOptions
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic dataset with known coefficients",
		Long: `Writes a signal cube, one cube per basis field, a truth cube holding the
generating coefficients, a zones file and an orthofit.yaml that runs over
the generated data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return fail(err, "Failed to load config")
			}
			cfg, err = writeSynthetic(outDir, cfg, opts)
			if err != nil {
				return fail(err, "Failed to write synthetic dataset")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d fields, %dx%d, T=%d)\n",
				filepath.Join(outDir, "orthofit.yaml"), len(cfg.Dataset.BasisFields), opts.Cols, opts.Rows, opts.T)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&outDir, "out", "o", "synthetic", "Output directory")
	f.IntVar(&opts.T, "t", 120, "Time samples")
	f.IntVar(&opts.Rows, "rows", 64, "Grid rows")
	f.IntVar(&opts.Cols, "cols", 48, "Grid columns")
	f.IntVar(&opts.Fields, "fields", 6, "Basis fields")
	f.Float64Var(&opts.Noise, "noise", 0, "Signal noise standard deviation")
	f.Int64Var(&opts.Seed, "seed", 1, "Random seed")
	return cmd
}

// writeSynthetic generates a dataset under dir laid out as cfg expects and
// returns cfg pointed at it. The region covers the whole grid.
func writeSynthetic(dir string, cfg *config.Config, opts volume.SynthOptions) (*config.Config, error) {
	if opts.T <= 0 || opts.Rows <= 0 || opts.Cols <= 0 || opts.Fields <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	s := volume.Synthesize(opts)

	cfg.Dataset.Root = dir
	cfg.Dataset.BasisFields = make([]string, opts.Fields)
	for k := range cfg.Dataset.BasisFields {
		cfg.Dataset.BasisFields[k] = fmt.Sprintf("basis_%d", k+1)
	}
	cfg.Area = config.AreaConfig{ZonesFile: filepath.Join(dir, "zones.json")}
	cfg.Region.StartRow = 0
	cfg.Region.RowLimit = opts.Rows
	cfg.Region.ColumnLimit = opts.Cols
	cfg.Output.JSON.Path = filepath.Join(dir, "coefficients.json")

	if err := volume.WriteCube(cfg.Dataset.SignalPath(), s.Signal); err != nil {
		return nil, err
	}
	for k, path := range cfg.Dataset.BasisPaths() {
		if err := volume.WriteCube(path, s.Basis[k]); err != nil {
			return nil, err
		}
	}
	if err := volume.WriteCube(filepath.Join(dir, "truth.cube"), s.Truth); err != nil {
		return nil, err
	}
	zones := map[string][]int{"all": {opts.Cols, opts.Rows}}
	if err := atomicio.WriteJSON(cfg.Area.ZonesFile, zones, 0); err != nil {
		return nil, err
	}
	if err := config.Save(cfg, filepath.Join(dir, "orthofit.yaml")); err != nil {
		return nil, err
	}

	log.Info().
		Str("dir", dir).
		Int("fields", opts.Fields).
		Int("rows", opts.Rows).
		Int("cols", opts.Cols).
		Int("t", opts.T).
		Msg("Synthetic dataset written")
	return cfg, nil
}
