// Package prompts embeds the system prompts used for query generation,
// result narration and failure explanation.
package prompts

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed *.md
var PromptsFS embed.FS

const (
	Generate = "GENERATE.md"
	Narrate  = "NARRATE.md"
	Explain  = "EXPLAIN.md"
)

// Load returns the trimmed contents of an embedded prompt.
func Load(name string) (string, error) {
	data, err := PromptsFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// MustLoad is Load for prompts that are known to be embedded.
func MustLoad(name string) string {
	p, err := Load(name)
	if err != nil {
		panic(err)
	}
	return p
}
