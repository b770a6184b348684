package catering

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/scttfrdmn/catering-agent-go/session"
)

//go:embed instructions.yaml
var instructionsYAML []byte

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

type instructionEntry struct {
	Description string `yaml:"description"`
	Instruction string `yaml:"instruction"`
}

// Instructions is the catalog of agent instructions.
type Instructions struct {
	agents map[string]instructionEntry
}

// LoadInstructions parses the built-in instruction catalog.
func LoadInstructions() (*Instructions, error) {
	return ParseInstructions(instructionsYAML)
}

// ParseInstructions parses an instruction catalog in the built-in YAML
// layout.
func ParseInstructions(data []byte) (*Instructions, error) {
	var doc struct {
		Agents map[string]instructionEntry `yaml:"agents"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse instructions: %w", err)
	}
	if len(doc.Agents) == 0 {
		return nil, fmt.Errorf("instruction catalog has no agents")
	}
	return &Instructions{agents: doc.Agents}, nil
}

// Names lists the agents with instructions, sorted.
func (in *Instructions) Names() []string {
	names := make([]string, 0, len(in.agents))
	for name := range in.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Description returns an agent's one-line description.
func (in *Instructions) Description(agentType string) string {
	return in.agents[agentType].Description
}

// Render returns the instruction for agentType with placeholders resolved
// against the session state. Placeholders the state does not define are
// left as written.
func (in *Instructions) Render(agentType string, s *session.Session) (string, error) {
	entry, ok := in.agents[agentType]
	if !ok {
		return "", fmt.Errorf("Unknown agent type: %s", agentType)
	}
	return placeholderRe.ReplaceAllStringFunc(entry.Instruction, func(m string) string {
		v, ok := s.Lookup(m[1 : len(m)-1])
		if !ok {
			return m
		}
		return fmt.Sprint(v)
	}), nil
}
