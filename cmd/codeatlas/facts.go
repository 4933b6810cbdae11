package main

import (
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeatlas/internal/analysis"
	"github.com/fyrsmithlabs/codeatlas/internal/config"
	"github.com/fyrsmithlabs/codeatlas/internal/packing"
	"github.com/fyrsmithlabs/codeatlas/internal/pipeline"
	"github.com/fyrsmithlabs/codeatlas/internal/tokens"
)

// maxFallbackEdges caps the import edges carried for the data flow fallback.
const maxFallbackEdges = 100

// buildFacts scans the repository and assembles the fact base the rounds
// consume: the file inventory, the packed prompt bundle, and the ground truth
// that model claims are checked against.
func buildFacts(root string, cfg *config.Config, est tokens.Estimator, log *zap.Logger) (pipeline.Facts, error) {
	snap, err := analysis.Scan(root, analysis.Options{
		IgnoreGlobs:  cfg.Analysis.IgnoreGlobs,
		MaxFileBytes: cfg.Analysis.MaxFileBytes,
	})
	if err != nil {
		return pipeline.Facts{}, err
	}

	// Files other files import pack first: they anchor the most claims.
	inDegree := make(map[string]int)
	for _, path := range snap.Paths() {
		f, _ := snap.File(path)
		for _, imp := range f.ResolvedImports {
			inDegree[imp]++
		}
	}

	sources := make([]packing.Source, 0, len(snap.Paths()))
	for _, path := range snap.Paths() {
		f, _ := snap.File(path)
		sources = append(sources, packing.Source{
			Path:    path,
			Content: f.Content,
			Score:   float64(inDegree[path]),
		})
	}
	bundle := packing.Render(packing.NewPacker(est).Pack(sources, cfg.Budget.FileTokens))

	modules := make([]pipeline.ModuleInfo, 0)
	for _, m := range snap.Modules() {
		modules = append(modules, pipeline.ModuleInfo{Name: m.Name, Path: m.Path, Files: m.Files})
	}

	var edges []pipeline.Flow
	for _, path := range snap.Paths() {
		f, _ := snap.File(path)
		for _, imp := range f.ResolvedImports {
			if len(edges) == maxFallbackEdges {
				break
			}
			edges = append(edges, pipeline.Flow{From: path, To: imp, Description: "declared import"})
		}
	}

	log.Info("repository scanned",
		zap.Int("files", len(snap.Paths())),
		zap.Int("modules", len(modules)),
		zap.String("commit", snap.Commit),
		zap.String("branch", snap.Branch))

	return pipeline.Facts{
		Files:      snap.Paths(),
		Modules:    modules,
		Bundle:     bundle,
		FileTokens: est.Estimate(bundle),
		Commit:     snap.Commit,
		Branch:     snap.Branch,
		Ground:     snap,
		Edges:      edges,
	}, nil
}
