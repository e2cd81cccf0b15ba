// dhdmgen - multi-resolution displacement generator
// Subdivide base meshes, extract sculpted detail from hd meshes into .dhdm
// displacement files and build vertex matching files.
//
// Commands:
//
//	subdivide  Write a Catmull-Clark subdivided copy of a base mesh
//	generate   Compute a .dhdm file from a base mesh and a sculpted hd mesh
//	match      Write matching files pairing refined and foreign hd vertices
//	inspect    Print the levels and record counts of a .dhdm file
//	batch      Run the [[job]] entries of a config file concurrently
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/taigrr/dhdmgen/pkg/config"
	"github.com/taigrr/dhdmgen/pkg/dhdm"
	"github.com/taigrr/dhdmgen/pkg/logging"
	"github.com/taigrr/dhdmgen/pkg/match"
	"github.com/taigrr/dhdmgen/pkg/pipeline"
)

var version = "dev"

var methodHelp = fmt.Sprintf("matching file method, %s or %s", match.MethodMultires, match.MethodMultiresRec)

type globalFlags struct {
	configPath string
	flags      config.Flags
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, newRootCmd(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "dhdmgen",
		Short:         "Generate multi-resolution displacement files from sculpted meshes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "TOML configuration file")
	pf.StringVar(&g.flags.LogFile, "log-file", "", "write logs to a rotating file")
	pf.StringVar(&g.flags.LogLevel, "log-level", "", "debug, info, warning, error or silent")
	pf.Float64Var(&g.flags.Scale, "scale", 0, "divide positions by this factor on load (default 1)")

	root.AddCommand(
		newSubdivideCmd(g),
		newGenerateCmd(g),
		newMatchCmd(g),
		newInspectCmd(),
		newBatchCmd(g),
	)
	return root
}

// setup loads the config file, applies flag overrides and opens the logger.
func (g *globalFlags) setup() (*config.Config, logging.Logger, error) {
	c := &config.Config{}
	if g.configPath != "" {
		var err error
		if c, err = config.Load(g.configPath); err != nil {
			return nil, nil, err
		}
	}
	c.Resolve(g.flags)

	log, err := logging.New(c.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}
	return c, log, nil
}

func newSubdivideCmd(g *globalFlags) *cobra.Command {
	var (
		level  int
		output string
		uvSet  string
	)
	cmd := &cobra.Command{
		Use:   "subdivide <base mesh>",
		Short: "Write a subdivided copy of a base mesh (.obj, .glb or .stl output)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, log, err := g.setup()
			if err != nil {
				return err
			}
			defer log.Shutdown()

			return pipeline.GenerateHDMesh(cmd.Context(), &pipeline.HDMeshJob{
				Base:   pipeline.MeshSource{Path: args[0], UVSet: uvSet},
				Output: output,
				Level:  level,
				Scale:  c.Mesh.Scale,
				Logger: log,
			})
		},
	}
	cmd.Flags().IntVarP(&level, "level", "l", 1, "subdivision level")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output mesh path")
	cmd.Flags().StringVar(&uvSet, "uv-set", "", "uv set file for DSF geometry")
	cmd.MarkFlagRequired("output")
	return cmd
}

func newGenerateCmd(g *globalFlags) *cobra.Command {
	var (
		output       string
		reference    string
		method       string
		translations []string
		level        int
	)
	cmd := &cobra.Command{
		Use:   "generate <base mesh> <hd mesh>",
		Short: "Compute a .dhdm file from a base mesh and a sculpted hd mesh",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, log, err := g.setup()
			if err != nil {
				return err
			}
			defer log.Shutdown()

			if method == "" {
				method = c.DHDM.Method
			}
			return pipeline.GenerateDHDM(cmd.Context(), &pipeline.DHDMJob{
				Base:             pipeline.MeshSource{Path: args[0]},
				HD:               pipeline.MeshSource{Path: args[1]},
				Reference:        pipeline.MeshSource{Path: reference},
				Output:           output,
				TranslationFiles: translations,
				MatchingDir:      c.DHDM.MatchingDir,
				Method:           method,
				ExpectedLevel:    level,
				Threshold:        c.DHDM.Threshold,
				Scale:            c.Mesh.Scale,
				Logger:           log,
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "output .dhdm path")
	f.StringVar(&reference, "reference", "", "unedited hd mesh; only vertices that differ from it are stored")
	f.StringSliceVar(&translations, "translation", nil, "matching file per level, coarsest first")
	f.StringVar(&g.flags.MatchingDir, "matching-dir", "", "directory searched for matching files")
	f.StringVar(&method, "method", "", methodHelp)
	f.IntVar(&level, "level", 0, "expected subdivision level, 0 to derive it from face counts")
	f.Float64Var(&g.flags.Threshold, "threshold", 0, "minimum displacement length (default 0.01)")
	cmd.MarkFlagRequired("output")
	return cmd
}

func newMatchCmd(g *globalFlags) *cobra.Command {
	var (
		method    string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "match <base mesh> <level 1 target> [level 2 target ...]",
		Short: "Write matching files for a base mesh",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, log, err := g.setup()
			if err != nil {
				return err
			}
			defer log.Shutdown()

			if method == "" {
				method = c.DHDM.Method
			}
			return pipeline.GenerateMatches(cmd.Context(), &pipeline.MatchJob{
				Base:      pipeline.MeshSource{Path: args[0]},
				Targets:   args[1:],
				OutputDir: c.DHDM.MatchingDir,
				Method:    method,
				Overwrite: overwrite,
				Scale:     c.Mesh.Scale,
				Logger:    log,
			})
		},
	}
	cmd.Flags().StringVar(&g.flags.MatchingDir, "dir", "", "directory the matching files are written to")
	cmd.Flags().StringVar(&method, "method", "", methodHelp)
	cmd.Flags().BoolVar(&overwrite, "force", false, "regenerate files that already exist")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.dhdm>",
		Short: "Print the levels and record counts of a .dhdm file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := dhdm.ReadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d levels, %d displacements, %s\n", args[0],
				len(f.Levels), f.NumDisplacements(), humanize.Bytes(uint64(f.Size())))
			for _, l := range f.Levels {
				fmt.Fprintf(out, "  level %d: %d base faces, %d with displacements, %d records, %s\n",
					l.Level, l.NumFaces, len(l.Faces), l.NumDisplacements(), humanize.Bytes(uint64(l.DataSize())))
			}
			return nil
		},
	}
}

func newBatchCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the [[job]] entries of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.configPath == "" {
				return fmt.Errorf("batch needs --config")
			}
			c, log, err := g.setup()
			if err != nil {
				return err
			}
			defer log.Shutdown()

			jobs, err := pipeline.JobsFromConfig(c, log)
			if err != nil {
				return err
			}
			log.Infof("running %d jobs on %d workers", len(jobs), c.Workers)
			if err := pipeline.RunBatch(cmd.Context(), jobs, c.Workers); err != nil {
				log.Errorf("batch failed: %v", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&g.flags.Workers, "workers", 0, "concurrent jobs (default: number of CPUs)")
	return cmd
}
