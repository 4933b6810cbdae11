package pipeline

// Prompt temperatures. Retries run colder to pull the model toward the
// ground truth it drifted from.
const (
	baseTemperature  = 0.4
	retryTemperature = 0.2
)

// maxOutputTokens bounds every round's completion length.
const maxOutputTokens = 8192

// retryPreamble is prepended to the system prompt on the single retry attempt.
const retryPreamble = `IMPORTANT: your previous answer referenced files or relationships that do not exist in this repository. Only mention file paths you can see in the provided file content, and only describe data flows between components whose import relationship is visible in the code. If you are not certain, omit the claim.

`

const jsonOnlyRule = `Respond with a single JSON object and nothing else. No markdown fences, no prose before or after.`

const overviewSystemPrompt = `You are a senior engineer producing the first-pass overview of an unfamiliar codebase. Identify what the repository is for, the languages in use, where execution starts, and anything surprising.

` + jsonOnlyRule + `

JSON shape:
{
  "purpose": "one paragraph",
  "languages": ["go", "..."],
  "entry_points": ["cmd/app/main.go", "..."],
  "key_observations": ["...", "..."],
  "open_questions": ["...", "..."]
}`

const architectureSystemPrompt = `You are mapping the module structure of a codebase. Name each top-level module, its purpose, and its most important files. Describe how the modules layer on each other.

` + jsonOnlyRule + `

JSON shape:
{
  "modules": [{"name": "...", "path": "...", "purpose": "...", "key_files": ["..."]}],
  "layering": ["...", "..."],
  "open_questions": ["..."]
}`

const dataFlowSystemPrompt = `You are tracing how data moves through a codebase. Describe the flows between components, naming the source and destination as file paths or module paths that exist in the repository. Only claim a flow when the import relationship is visible.

` + jsonOnlyRule + `

JSON shape:
{
  "flows": [{"from": "path/in/repo", "to": "path/in/repo", "description": "..."}],
  "stores": ["...", "..."],
  "open_questions": ["..."]
}`

const interfacesSystemPrompt = `You are documenting the key interfaces and public contracts of a codebase, building on the data flows already identified. For each interface name the file that defines it and who consumes it.

` + jsonOnlyRule + `

JSON shape:
{
  "interfaces": [{"name": "...", "file": "path/in/repo", "kind": "interface|struct|function", "description": "...", "consumers": ["path/in/repo"]}],
  "open_questions": ["..."]
}`

const moduleDeepDiveSystemPrompt = `You are doing a focused deep dive on one module of a larger codebase. Explain its purpose, its most important files, concrete findings about how it works, and any recurring patterns you notice inside it.

` + jsonOnlyRule + `

JSON shape:
{
  "name": "...",
  "purpose": "...",
  "key_files": ["path/in/repo"],
  "findings": ["...", "..."],
  "patterns": ["...", "..."]
}`

const conventionsSystemPrompt = `You are cataloguing the coding conventions of a codebase: naming, error handling, and testing practice. Cite concrete files where each convention is visible.

` + jsonOnlyRule + `

JSON shape:
{
  "naming": ["...", "..."],
  "error_handling": ["...", "..."],
  "testing": ["...", "..."],
  "open_questions": ["..."]
}`

func systemPromptFor(base string, isRetry bool) string {
	if isRetry {
		return retryPreamble + base
	}
	return base
}

func temperatureFor(isRetry bool) float64 {
	if isRetry {
		return retryTemperature
	}
	return baseTemperature
}
