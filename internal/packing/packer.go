// Package packing selects and tiers file content for round prompts under a
// token budget. Higher-scored files are included in full, mid-tier files are
// truncated, and the remainder is listed by path only so the model still sees
// the full layout.
package packing

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/codeatlas/internal/tokens"
)

// Tier describes how much of a file made it into the bundle.
type Tier string

const (
	// TierFull includes the whole file.
	TierFull Tier = "full"
	// TierTruncated includes the head of the file.
	TierTruncated Tier = "truncated"
	// TierListed includes the path only.
	TierListed Tier = "listed"
)

// Source is a candidate file for packing.
type Source struct {
	Path    string
	Content string
	// Score orders candidates; higher packs first.
	Score float64
}

// PackedFile is one bundle entry.
type PackedFile struct {
	Path    string
	Content string
	Tier    Tier
}

// Fraction of the budget spent on full files before truncation kicks in.
const fullTierFraction = 0.6

// Lines kept for truncated files.
const truncatedLines = 40

// Packer builds prompt bundles.
type Packer struct {
	est tokens.Estimator
}

// NewPacker creates a packer using the given estimator.
func NewPacker(est tokens.Estimator) *Packer {
	return &Packer{est: est}
}

// Pack tiers sources into a bundle within budget tokens. Sources are
// processed in descending score order; ties break on path for determinism.
func (p *Packer) Pack(sources []Source, budget int) []PackedFile {
	ordered := make([]Source, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Path < ordered[j].Path
	})

	var bundle []PackedFile
	used := 0
	fullBudget := int(float64(budget) * fullTierFraction)

	for _, src := range ordered {
		cost := p.est.Estimate(src.Content)

		switch {
		case src.Content != "" && used+cost <= fullBudget:
			bundle = append(bundle, PackedFile{Path: src.Path, Content: src.Content, Tier: TierFull})
			used += cost
		case src.Content != "":
			head := truncate(src.Content, truncatedLines)
			headCost := p.est.Estimate(head)
			if used+headCost <= budget {
				bundle = append(bundle, PackedFile{Path: src.Path, Content: head, Tier: TierTruncated})
				used += headCost
				continue
			}
			bundle = append(bundle, PackedFile{Path: src.Path, Tier: TierListed})
		default:
			bundle = append(bundle, PackedFile{Path: src.Path, Tier: TierListed})
		}
	}
	return bundle
}

// Render formats a bundle as prompt text.
func Render(bundle []PackedFile) string {
	var b strings.Builder
	var listed []string

	for _, f := range bundle {
		switch f.Tier {
		case TierListed:
			listed = append(listed, f.Path)
		case TierTruncated:
			b.WriteString("### " + f.Path + " (truncated)\n```\n" + f.Content + "\n```\n\n")
		default:
			b.WriteString("### " + f.Path + "\n```\n" + f.Content + "\n```\n\n")
		}
	}

	if len(listed) > 0 {
		b.WriteString("### Other files (paths only)\n")
		for _, path := range listed {
			b.WriteString("- " + path + "\n")
		}
	}
	return b.String()
}

func truncate(content string, lines int) string {
	split := strings.SplitN(content, "\n", lines+1)
	if len(split) <= lines {
		return content
	}
	return strings.Join(split[:lines], "\n") + "\n// ..."
}
