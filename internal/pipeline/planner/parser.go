package planner

import (
	"strings"

	"github.com/nexuscore/core/internal/pipeline/types"
)

// SplitParser is the default fallback parser (spec.md §4.5 step 1): it
// splits a command line on every pipe character (quotes are not
// interpreted), matching original_source's SimpleCommandParser behavior for
// quote-free, subshell-free input.
type SplitParser struct{}

// Parse implements types.Parser.
func (SplitParser) Parse(commandLine string) ([]types.ParsedCommand, error) {
	var tokens []types.ParsedCommand
	parts := strings.Split(commandLine, "|")
	for i, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			tokens = append(tokens, types.ParsedCommand{Kind: types.ParsedSimple, Text: trimmed})
		}
		if i < len(parts)-1 {
			tokens = append(tokens, types.ParsedCommand{Kind: types.ParsedPipe})
		}
	}
	return tokens, nil
}
