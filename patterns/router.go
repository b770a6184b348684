package patterns

// Router pattern implements conditional agent selection based on message
// classification. A classifier determines the intent, then the request is
// delegated to the sub-agent registered under that name.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
)

// Routing metadata keys.
const (
	MetadataRoutedAgent = "routed_agent"
	MetadataAgentPath   = agenkit.MetadataAgentPath
)

// ErrNoMatch is returned by a classifier that cannot place a message.
var ErrNoMatch = errors.New("unable to classify message")

// Classifier determines which route a message should take.
type Classifier interface {
	Classify(ctx context.Context, message *agenkit.Message) (string, error)
}

// RouterAgent routes messages to sub-agents based on classification.
//
// Routes are the sub-agents' names. When classification fails or names an
// unknown route, the default route is used if one is configured.
type RouterAgent struct {
	name        string
	description string
	classifier  Classifier
	agents      []agenkit.Agent
	byName      map[string]agenkit.Agent
	defaultKey  string
	logger      *slog.Logger
}

// RouterConfig configures a RouterAgent.
type RouterConfig struct {
	Name        string
	Description string
	// Classifier determines which agent to route to
	Classifier Classifier
	// Agents are the routes, keyed by agent name
	Agents []agenkit.Agent
	// DefaultKey names the fallback agent (optional)
	DefaultKey string
	Logger     *slog.Logger
}

// NewRouterAgent creates a new router agent.
func NewRouterAgent(config *RouterConfig) (*RouterAgent, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if len(config.Agents) == 0 {
		return nil, fmt.Errorf("at least one agent is required")
	}

	byName := make(map[string]agenkit.Agent, len(config.Agents))
	for _, a := range config.Agents {
		if _, dup := byName[a.Name()]; dup {
			return nil, fmt.Errorf("duplicate route '%s'", a.Name())
		}
		byName[a.Name()] = a
	}
	if config.DefaultKey != "" {
		if _, ok := byName[config.DefaultKey]; !ok {
			return nil, fmt.Errorf("default key '%s' not found in agents", config.DefaultKey)
		}
	}

	name := config.Name
	if name == "" {
		name = "RouterAgent"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RouterAgent{
		name:        name,
		description: config.Description,
		classifier:  config.Classifier,
		agents:      config.Agents,
		byName:      byName,
		defaultKey:  config.DefaultKey,
		logger:      logger,
	}, nil
}

// Name returns the agent's identifier.
func (r *RouterAgent) Name() string {
	return r.name
}

// Description implements agenkit.Describer.
func (r *RouterAgent) Description() string {
	return r.description
}

// Capabilities returns the router's capabilities.
func (r *RouterAgent) Capabilities() []string {
	return []string{"router", "delegation"}
}

// Routes returns the route names in registration order.
func (r *RouterAgent) Routes() []string {
	names := make([]string, len(r.agents))
	for i, a := range r.agents {
		names[i] = a.Name()
	}
	return names
}

// Introspect returns the router and its sub-agents.
func (r *RouterAgent) Introspect() *agenkit.IntrospectionResult {
	result := agenkit.DefaultIntrospectionResult(r)
	result.InternalState["routes"] = r.Routes()
	result.InternalState["default"] = r.defaultKey
	for _, a := range r.agents {
		result.Children = append(result.Children, a.Introspect())
	}
	return result
}

// Process classifies the message and delegates to the selected agent.
//
// The result carries MetadataRoutedAgent and MetadataAgentPath.
func (r *RouterAgent) Process(ctx context.Context, message *agenkit.Message) (*agenkit.Message, error) {
	if message == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}

	route, err := r.classifier.Classify(ctx, message)
	agent, ok := r.byName[route]
	if err != nil || !ok {
		if r.defaultKey == "" {
			if err != nil {
				return nil, fmt.Errorf("classification failed: %w", err)
			}
			return nil, fmt.Errorf("no agent found for route '%s' (available: %s)",
				route, strings.Join(r.Routes(), ", "))
		}
		r.logger.Debug("using default route", "router", r.name, "classified", route, "error", err)
		agent = r.byName[r.defaultKey]
	}

	r.logger.Debug("routing message", "router", r.name, "agent", agent.Name())
	result, err := agent.Process(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("agent '%s' failed: %w", agent.Name(), err)
	}

	path, _ := result.Metadata[MetadataAgentPath].([]string)
	if len(path) == 0 {
		path = []string{agent.Name()}
	}
	result.WithMetadata(MetadataAgentPath, append([]string{r.name}, path...))
	result.WithMetadata(MetadataRoutedAgent, agent.Name())

	return result, nil
}

// KeywordRule maps a route to the keywords that select it.
type KeywordRule struct {
	Route    string
	Keywords []string
}

// SimpleClassifier classifies by keyword matching.
//
// The route with the most matching keywords wins; ties go to the rule listed
// first. Keywords match on word boundaries, case-insensitively.
type SimpleClassifier struct {
	rules []KeywordRule
}

// NewSimpleClassifier creates a keyword-based classifier.
func NewSimpleClassifier(rules []KeywordRule) *SimpleClassifier {
	return &SimpleClassifier{rules: rules}
}

// Classify determines the route using keyword matching.
func (c *SimpleClassifier) Classify(ctx context.Context, message *agenkit.Message) (string, error) {
	if message == nil {
		return "", fmt.Errorf("message cannot be nil")
	}

	words := tokenize(message.Content)
	content := " " + strings.Join(words, " ") + " "

	best, bestMatches := "", 0
	for _, rule := range c.rules {
		matches := 0
		for _, kw := range rule.Keywords {
			if strings.Contains(content, " "+strings.Join(tokenize(kw), " ")+" ") {
				matches++
			}
		}
		if matches > bestMatches {
			best, bestMatches = rule.Route, matches
		}
	}

	if best == "" {
		return "", ErrNoMatch
	}
	return best, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// Route describes a category offered to an LLMClassifier.
type Route struct {
	Name        string
	Description string
}

// LLMClassifier asks a model to pick a route.
//
// The model is given the list of routes with their descriptions and must
// answer with a route name. An answer that merely contains a route name is
// accepted; the longest contained name wins.
type LLMClassifier struct {
	agent  agenkit.Agent
	routes []Route
	prompt string
}

// NewLLMClassifier creates an LLM-based classifier.
func NewLLMClassifier(agent agenkit.Agent, routes []Route) *LLMClassifier {
	var b strings.Builder
	b.WriteString("Classify the following message into one of these categories:\n")
	for _, r := range routes {
		fmt.Fprintf(&b, "- %s: %s\n", r.Name, r.Description)
	}
	b.WriteString("\nReply with ONLY the category name, nothing else.\n\nMessage: ")

	return &LLMClassifier{
		agent:  agent,
		routes: routes,
		prompt: b.String(),
	}
}

// Classify uses the model to determine the route.
func (c *LLMClassifier) Classify(ctx context.Context, message *agenkit.Message) (string, error) {
	if message == nil {
		return "", fmt.Errorf("message cannot be nil")
	}

	result, err := c.agent.Process(ctx, agenkit.NewMessage(agenkit.RoleUser, c.prompt+message.Content))
	if err != nil {
		return "", fmt.Errorf("llm classification failed: %w", err)
	}

	answer := strings.Trim(strings.TrimSpace(result.Content), "`'\".")
	for _, r := range c.routes {
		if strings.EqualFold(answer, r.Name) {
			return r.Name, nil
		}
	}

	lower := strings.ToLower(answer)
	best := ""
	for _, r := range c.routes {
		if strings.Contains(lower, strings.ToLower(r.Name)) && len(r.Name) > len(best) {
			best = r.Name
		}
	}
	if best != "" {
		return best, nil
	}

	return "", fmt.Errorf("%w: llm returned invalid category '%s'", ErrNoMatch, answer)
}

// ChainClassifier tries classifiers in order and returns the first answer.
type ChainClassifier []Classifier

// Classify implements Classifier.
func (c ChainClassifier) Classify(ctx context.Context, message *agenkit.Message) (string, error) {
	var errs []error
	for _, cl := range c {
		route, err := cl.Classify(ctx, message)
		if err == nil {
			return route, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrNoMatch
	}
	return "", errors.Join(errs...)
}
