package pipeline

import "regexp"

// pathClaim matches file-path-shaped tokens: at least one path separator and
// a known source-file extension. This deliberately scans the serialized
// output text rather than walking typed fields, so it stays schema-agnostic
// across round shapes.
var pathClaim = regexp.MustCompile(`[A-Za-z0-9_\-./]+/[A-Za-z0-9_\-.]+\.(?:go|ts|tsx|js|jsx|mjs|py|rb|rs|java|kt|c|h|cpp|cs|sh)\b`)

// flowClaim matches serialized from/to pairs emitted by flow-bearing rounds.
var flowClaim = regexp.MustCompile(`"from"\s*:\s*"([^"]+)"\s*,\s*"to"\s*:\s*"([^"]+)"`)

// flowRounds are the rounds whose schema includes relationship claims.
var flowRounds = map[int]bool{
	3: true,
	4: true,
}

// Validator checks claims extracted from round output against ground truth.
type Validator struct {
	ground GroundTruth
}

// NewValidator creates a validator over the given fact base.
func NewValidator(ground GroundTruth) *Validator {
	return &Validator{ground: ground}
}

// ValidateClaims scans serialized round output for path claims and, for
// flow-bearing rounds, import-edge claims. Dropped claims are data, not
// errors: they feed the drop-rate retry trigger. Zero extractable claims
// yields Total 0 and DropRate 0.
func (v *Validator) ValidateClaims(round int, serialized []byte) ValidationResult {
	var result ValidationResult

	for _, claim := range ExtractPathClaims(serialized) {
		result.Total++
		if v.ground.HasFile(claim) {
			result.Validated++
		} else {
			result.Corrected++
		}
	}

	if flowRounds[round] {
		for _, pair := range flowClaim.FindAllStringSubmatch(string(serialized), -1) {
			from, to := pair[1], pair[2]
			result.Total++
			if v.ground.HasImport(from, to) {
				result.Validated++
			} else {
				result.Corrected++
			}
		}
	}

	if result.Total > 0 {
		result.DropRate = float64(result.Corrected) / float64(result.Total)
	}
	return result
}

// ExtractPathClaims returns the deduplicated path-shaped tokens in serialized
// output, in first-seen order.
func ExtractPathClaims(serialized []byte) []string {
	matches := pathClaim.FindAllString(string(serialized), -1)
	seen := make(map[string]bool, len(matches))
	var claims []string
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			claims = append(claims, m)
		}
	}
	return claims
}
