package claude

import "regexp"

// Secret patterns scrubbed from prompt content before it leaves the process.
// Order matters: specific patterns first.
var scrubPatterns = []struct {
	regex       *regexp.Regexp
	replacement string
}{
	{
		regexp.MustCompile(`(OPENAI_API_KEY|ANTHROPIC_API_KEY|GITHUB_TOKEN|AWS_SECRET_ACCESS_KEY)\s*=\s*\S+`),
		"$1=[REDACTED]",
	},
	{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{80,}`),
		"[REDACTED:ANTHROPIC_KEY]",
	},
	{
		regexp.MustCompile(`sk-[a-zA-Z0-9]{48}`),
		"[REDACTED:API_KEY]",
	},
	{
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.=]+`),
		"[REDACTED:BEARER_TOKEN]",
	},
	{
		regexp.MustCompile(`(?i)(api[_-]?key|token|password|passwd)\s*[:=]\s*["']?[^"'\s]+["']?`),
		"$1=[REDACTED]",
	},
}

// ScrubSecrets removes common secret patterns from content before it is sent
// to the API. Repository snapshots routinely contain .env files and config
// samples; those must never reach the wire verbatim.
func ScrubSecrets(content string) string {
	result := content
	for _, p := range scrubPatterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}
