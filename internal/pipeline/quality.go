package pipeline

import "regexp"

// qualityThreshold holds the per-round acceptance floor.
type qualityThreshold struct {
	MinLength int
	MinRefs   int
}

// Per-round thresholds. Round 2 (architecture) and round 5 (module deep
// dive) must be the most specific; round 1 is prose-heavy by nature.
var defaultThresholds = map[int]qualityThreshold{
	1: {MinLength: 800, MinRefs: 3},
	2: {MinLength: 1200, MinRefs: 8},
	3: {MinLength: 1000, MinRefs: 6},
	4: {MinLength: 800, MinRefs: 4},
	5: {MinLength: 1000, MinRefs: 6},
	6: {MinLength: 800, MinRefs: 3},
}

// codeIdentifier matches function-call-shaped and backtick-quoted tokens.
var codeIdentifier = regexp.MustCompile("`[^`]+`" + `|\b[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*\(|\b[A-Za-z_][A-Za-z0-9_]*\(\)`)

// QualityGate scores round output against per-round heuristic thresholds.
type QualityGate struct {
	thresholds map[int]qualityThreshold
}

// NewQualityGate creates a gate with the default threshold table.
func NewQualityGate() *QualityGate {
	return &QualityGate{thresholds: defaultThresholds}
}

// Check scores serialized round output. Output fails when length or
// code-reference count are below the round's floor, or when no
// file-path-shaped token appears at all, regardless of the other two.
func (g *QualityGate) Check(round int, serialized []byte) QualityMetrics {
	threshold, ok := g.thresholds[round]
	if !ok {
		threshold = qualityThreshold{MinLength: 800, MinRefs: 3}
	}

	pathRefs := len(ExtractPathClaims(serialized))
	refs := pathRefs + len(codeIdentifier.FindAllString(string(serialized), -1))
	length := len(serialized)

	divisor := float64(length) / 100
	if divisor < 1 {
		divisor = 1
	}

	return QualityMetrics{
		TextLength:     length,
		CodeReferences: refs,
		Specificity:    float64(refs) / divisor,
		IsAcceptable:   length >= threshold.MinLength && refs >= threshold.MinRefs && pathRefs > 0,
	}
}
