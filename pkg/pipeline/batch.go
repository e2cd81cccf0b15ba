package pipeline

import (
	"context"
	"fmt"

	"github.com/taigrr/dhdmgen/pkg/config"
	"github.com/taigrr/dhdmgen/pkg/logging"
	"golang.org/x/sync/errgroup"
)

// Job is one independent unit of batch work. Jobs own their meshes and
// share no state.
type Job interface {
	Run(ctx context.Context) error
}

// RunBatch runs jobs with at most workers running at once. The first
// failure cancels the jobs that have not finished yet.
func RunBatch(ctx context.Context, jobs []Job, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, job := range jobs {
		g.Go(func() error {
			if err := job.Run(ctx); err != nil {
				return fmt.Errorf("job %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// JobsFromConfig builds the jobs listed in c. c must be resolved.
func JobsFromConfig(c *config.Config, log logging.Logger) ([]Job, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(c.Jobs))
	for _, cj := range c.Jobs {
		base := MeshSource{Path: cj.Base, UVSet: cj.UVSet}
		switch cj.Kind {
		case config.KindSubdivide:
			jobs = append(jobs, &HDMeshJob{
				Base:   base,
				Output: cj.Output,
				Level:  cj.Level,
				Scale:  c.Mesh.Scale,
				Logger: log,
			})
		case config.KindGenerate:
			jobs = append(jobs, &DHDMJob{
				Base:          base,
				HD:            MeshSource{Path: cj.HD},
				Reference:     MeshSource{Path: cj.Reference},
				Output:        cj.Output,
				MatchingDir:   c.DHDM.MatchingDir,
				Method:        c.DHDM.Method,
				ExpectedLevel: cj.Level,
				Threshold:     c.DHDM.Threshold,
				Scale:         c.Mesh.Scale,
				Logger:        log,
			})
		case config.KindMatch:
			jobs = append(jobs, &MatchJob{
				Base:      base,
				Targets:   cj.Targets,
				OutputDir: c.DHDM.MatchingDir,
				Method:    c.DHDM.Method,
				Scale:     c.Mesh.Scale,
				Logger:    log,
			})
		}
	}
	return jobs, nil
}
