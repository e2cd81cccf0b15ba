// Package pipeline runs the file level operations of dhdmgen: writing
// subdivided meshes, generating displacement files and generating matching
// files, alone or as a concurrent batch.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/taigrr/dhdmgen/pkg/dhdm"
	"github.com/taigrr/dhdmgen/pkg/logging"
	"github.com/taigrr/dhdmgen/pkg/match"
	"github.com/taigrr/dhdmgen/pkg/subd"
)

// Status converts the outcome of an operation to an integer status: 0 on
// success, -1 on failure.
func Status(err error) int {
	if err != nil {
		return -1
	}
	return 0
}

// HDMeshJob subdivides a base mesh and writes the result.
type HDMeshJob struct {
	Base   MeshSource
	Output string // .obj, .glb or .stl
	Level  int
	Scale  float64
	Logger logging.Logger
}

// Run implements Job.
func (j *HDMeshJob) Run(ctx context.Context) error {
	return GenerateHDMesh(ctx, j)
}

// GenerateHDMesh loads the base mesh, subdivides it to the job's level and
// writes it.
func GenerateHDMesh(ctx context.Context, j *HDMeshJob) error {
	log := logging.OrDiscard(j.Logger)
	tl := logging.NewTimeLog(log)

	m, err := loadMesh(j.Base, j.Scale, false)
	if err != nil {
		return fmt.Errorf("generate hd mesh: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := subd.Subdivide(m, j.Level); err != nil {
		return fmt.Errorf("generate hd mesh: %w", err)
	}
	tl.Infof("subdivided %s to level %d: %d vertices, %d faces", m.Name, j.Level, len(m.Vertices), len(m.Faces))

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := saveMesh(m, j.Output, j.Scale); err != nil {
		return fmt.Errorf("generate hd mesh: %w", err)
	}
	logWritten(log, j.Output)
	return nil
}

// DHDMJob computes a displacement file from a base mesh and a sculpted hd
// mesh.
type DHDMJob struct {
	Base   MeshSource
	HD     MeshSource
	Output string

	// Reference is an optional unedited hd mesh. When set, only hd vertices
	// that moved away from it get records.
	Reference MeshSource

	// TranslationFiles are matching files for levels 1..N. When empty and
	// MatchingDir is set, the directory is searched for files matching the
	// base mesh.
	TranslationFiles []string
	MatchingDir      string
	Method           string

	ExpectedLevel int
	Threshold     float64
	Scale         float64
	Logger        logging.Logger
}

// Run implements Job.
func (j *DHDMJob) Run(ctx context.Context) error {
	return GenerateDHDM(ctx, j)
}

// GenerateDHDM computes the displacements and writes the file. Nothing is
// written unless the computation succeeds.
func GenerateDHDM(ctx context.Context, j *DHDMJob) error {
	log := logging.OrDiscard(j.Logger)
	tl := logging.NewTimeLog(log)

	base, err := loadPolygonMesh(j.Base, j.Scale)
	if err != nil {
		return fmt.Errorf("generate dhdm: base: %w", err)
	}
	hd, err := loadPolygonMesh(j.HD, j.Scale)
	if err != nil {
		return fmt.Errorf("generate dhdm: hd: %w", err)
	}

	opts := dhdm.Options{
		Threshold:     j.Threshold,
		ExpectedLevel: j.ExpectedLevel,
		Logger:        log,
	}

	if j.Reference.Path != "" {
		ref, err := loadPolygonMesh(j.Reference, j.Scale)
		if err != nil {
			return fmt.Errorf("generate dhdm: reference: %w", err)
		}
		if opts.EditedMask, err = dhdm.EditedMaskFromReference(hd, ref, 1e-6); err != nil {
			return fmt.Errorf("generate dhdm: %w", err)
		}
		log.Infof("%d of %d hd vertices edited", len(opts.EditedMask), len(hd.Vertices))
	}

	level, err := dhdm.RelativeSubdLevel(len(base.Faces), len(hd.Faces))
	if err != nil {
		return fmt.Errorf("generate dhdm: %w", err)
	}
	paths := j.TranslationFiles
	if len(paths) == 0 && j.MatchingDir != "" && level > 0 {
		cat, err := match.Scan(j.MatchingDir, base.Fingerprint())
		if err != nil {
			return fmt.Errorf("generate dhdm: %w", err)
		}
		method := j.Method
		if method == "" {
			method = match.MethodMultires
		}
		if paths, err = cat.Paths(level, method); err != nil {
			return fmt.Errorf("generate dhdm: %w", err)
		}
	}
	if len(paths) > 0 {
		if opts.Translations, err = match.LoadTables(paths); err != nil {
			return fmt.Errorf("generate dhdm: %w", err)
		}
	}

	calc, err := dhdm.NewCalculator(base, hd, opts)
	if err != nil {
		return fmt.Errorf("generate dhdm: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := calc.Calculate()
	if err != nil {
		return fmt.Errorf("generate dhdm: %w", err)
	}
	tl.Infof("computed %d displacements over %d levels", f.NumDisplacements(), len(f.Levels))

	if len(f.Levels) == 0 {
		log.Infof("hd mesh is not subdivided, %s not written", j.Output)
		return nil
	}
	if err := dhdm.WriteFile(j.Output, f); err != nil {
		return fmt.Errorf("generate dhdm: %w", err)
	}
	logWritten(log, j.Output)
	return nil
}

// MatchJob writes matching files for a base mesh. Targets[k] is the hd mesh
// of level k+1 produced by the other subdivider.
type MatchJob struct {
	Base      MeshSource
	Targets   []string
	OutputDir string
	Method    string
	Overwrite bool
	Scale     float64
	Logger    logging.Logger
}

// Run implements Job.
func (j *MatchJob) Run(ctx context.Context) error {
	return GenerateMatches(ctx, j)
}

// GenerateMatches subdivides the base mesh to every level and matches each
// level against its target. Levels that already have a file are skipped
// unless Overwrite is set.
func GenerateMatches(ctx context.Context, j *MatchJob) error {
	log := logging.OrDiscard(j.Logger)
	method := j.Method
	if method == "" {
		method = match.MethodMultires
	}
	maxLevel := len(j.Targets)
	if maxLevel == 0 {
		return fmt.Errorf("generate matches: no target meshes")
	}
	if info, err := os.Stat(j.OutputDir); err != nil || !info.IsDir() {
		return fmt.Errorf("generate matches: directory %q not found", j.OutputDir)
	}

	base, err := loadPolygonMesh(j.Base, j.Scale)
	if err != nil {
		return fmt.Errorf("generate matches: %w", err)
	}
	fingerprint := base.Fingerprint()

	missing := make(map[int]bool, maxLevel)
	if j.Overwrite {
		for level := 1; level <= maxLevel; level++ {
			missing[level] = true
		}
	} else {
		cat, err := match.Scan(j.OutputDir, fingerprint)
		if err != nil {
			return fmt.Errorf("generate matches: %w", err)
		}
		for _, level := range cat.MissingLevels(maxLevel, method) {
			missing[level] = true
		}
	}
	if len(missing) == 0 {
		log.Infof("matching files for %s already exist", fingerprint)
		return nil
	}

	for level := 1; level <= maxLevel; level++ {
		if !missing[level] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		// Each level is refined from the base so vertex ids follow the
		// same numbering the calculator sees.
		refined := base.Clone()
		if err := subd.Subdivide(refined, level); err != nil {
			return fmt.Errorf("generate matches: level %d: %w", level, err)
		}

		target, err := loadMesh(MeshSource{Path: j.Targets[level-1]}, j.Scale, true)
		if err != nil {
			return fmt.Errorf("generate matches: level %d: %w", level, err)
		}
		table, err := match.Build(refined, target, match.Options{Logger: log})
		if err != nil {
			return fmt.Errorf("generate matches: level %d: %w", level, err)
		}
		path := filepath.Join(j.OutputDir, match.FileName(fingerprint, level, method))
		if err := table.Save(path); err != nil {
			return fmt.Errorf("generate matches: %w", err)
		}
		logWritten(log, path)
	}
	return nil
}
