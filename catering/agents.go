package catering

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/scttfrdmn/catering-agent-go/adapter/llm"
	"github.com/scttfrdmn/catering-agent-go/agenkit"
	"github.com/scttfrdmn/catering-agent-go/approval"
	"github.com/scttfrdmn/catering-agent-go/middleware"
	"github.com/scttfrdmn/catering-agent-go/observability"
	"github.com/scttfrdmn/catering-agent-go/patterns"
	"github.com/scttfrdmn/catering-agent-go/session"
)

// Agent names.
const (
	RootAgent        = "catering_agent_v2"
	MainAgent        = "main_multi_tool_agent"
	GreetingAgent    = "greeting_agent"
	FarewellAgent    = "farewell_agent"
	FlightInfoAgent  = "flight_info_agent"
	MealOrderAgent   = "meal_order_info_agent"
	MealSupportAgent = "meal_support_agent"
	StockCountAgent  = "stock_count_agent"
	ERPAgent         = "erp_agent"
	ExportAgent      = "export_text_agent"
	ApproverAgent    = approval.AgentName
	KnowledgeAgent   = "knowledge_agent"
)

// MetadataSessionState carries the session state map that instructions are
// rendered from.
const MetadataSessionState = "session_state"

// Config wires the agent tree.
type Config struct {
	// Model backs every reasoning agent and the request classifier.
	Model    llm.LLM
	Toolkit  *Toolkit
	Approval *approval.Workflow
	// Instructions defaults to the built-in catalog.
	Instructions *Instructions

	Retry    middleware.RetryConfig
	Timeout  time.Duration // per model call, default 60s
	MaxSteps int           // ReAct steps per request, default 8
	// Metrics wraps every agent with request metrics.
	Metrics bool
	Logger  *slog.Logger
}

type specialist struct {
	name  string
	tools []string
	// keywords route the request when the model cannot classify it
	keywords []string
}

var specialists = []specialist{
	{MealSupportAgent, []string{ToolFlightDetails, ToolMealOrderDetails, ToolMealEligibility},
		[]string{"issue", "issues", "problem", "problems", "eligible", "eligibility", "cannot", "why", "not found", "missing"}},
	{MealOrderAgent, []string{ToolFlightDetails, ToolMealOrderDetails},
		[]string{"meal", "meals", "meal order", "mflid", "cabin"}},
	{FlightInfoAgent, []string{ToolFlightDetails},
		[]string{"flight", "flights", "registration", "service type"}},
	{StockCountAgent, []string{ToolStockCountDetails, ToolExportStockCount},
		[]string{"stock", "stock count", "inventory"}},
	{ERPAgent, []string{ToolERPDetails, ToolExportText},
		[]string{"erp"}},
	{ExportAgent, []string{ToolExportText, ToolExportStockCount, ToolExportPreApproval, ToolExportPostApproval},
		[]string{"export", "file", "txt", "text file"}},
	{KnowledgeAgent, []string{ToolKnowledgeContext, ToolSearchSpecificTopic},
		[]string{"policy", "policies", "procedure", "procedures", "guideline", "guidelines", "knowledge", "how"}},
}

var (
	approvalKeywords = []string{"approve", "approval", "approving", "reconcile", "reconciliation"}
	greetingKeywords = []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "greetings"}
	farewellKeywords = []string{"bye", "goodbye", "see you", "farewell", "good night"}
	// cateringKeywords keep a greeting with a real question on the main path.
	cateringKeywords = []string{"flight", "meal", "meals", "order", "stock", "count", "erp", "export", "approve", "transaction", "policy", "procedure"}
)

type builder struct {
	cfg    Config
	instr  *Instructions
	logger *slog.Logger
}

// Build assembles the agent tree: a root router sends greetings and
// farewells to their agents and everything else to the main router, which
// picks a specialist with the model and falls back to keywords.
// Approval requests always go to the approval workflow.
func Build(cfg Config) (agenkit.Agent, error) {
	if cfg.Model == nil || cfg.Toolkit == nil || cfg.Approval == nil {
		return nil, fmt.Errorf("agent tree requires a model, a toolkit and an approval workflow")
	}
	b := &builder{cfg: cfg, instr: cfg.Instructions, logger: cfg.Logger}
	if b.instr == nil {
		instr, err := LoadInstructions()
		if err != nil {
			return nil, err
		}
		b.instr = instr
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.cfg.Timeout <= 0 {
		b.cfg.Timeout = 60 * time.Second
	}
	if b.cfg.MaxSteps <= 0 {
		b.cfg.MaxSteps = 8
	}
	if b.cfg.Retry.Logger == nil {
		b.cfg.Retry.Logger = b.logger
	}

	main, err := b.main()
	if err != nil {
		return nil, err
	}
	greeting, err := b.react(GreetingAgent, ToolSayHello)
	if err != nil {
		return nil, err
	}
	farewell, err := b.react(FarewellAgent, ToolSayGoodbye)
	if err != nil {
		return nil, err
	}

	root, err := patterns.NewRouterAgent(&patterns.RouterConfig{
		Name:        RootAgent,
		Description: b.instr.Description(RootAgent),
		Classifier: patterns.NewSimpleClassifier([]patterns.KeywordRule{
			{Route: MainAgent, Keywords: cateringKeywords},
			{Route: GreetingAgent, Keywords: greetingKeywords},
			{Route: FarewellAgent, Keywords: farewellKeywords},
		}),
		Agents:     []agenkit.Agent{main, greeting, farewell},
		DefaultKey: MainAgent,
		Logger:     b.logger,
	})
	if err != nil {
		return nil, err
	}
	return b.wrap(root)
}

func (b *builder) main() (agenkit.Agent, error) {
	var (
		agents []agenkit.Agent
		routes []patterns.Route
		rules  []patterns.KeywordRule
	)
	for _, sp := range specialists {
		if sp.name == KnowledgeAgent && !b.cfg.Toolkit.HasKnowledge() {
			continue
		}
		a, err := b.react(sp.name, sp.tools...)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
		routes = append(routes, patterns.Route{Name: sp.name, Description: b.instr.Description(sp.name)})
		rules = append(rules, patterns.KeywordRule{Route: sp.name, Keywords: sp.keywords})
	}

	approver, err := b.wrap(b.cfg.Approval)
	if err != nil {
		return nil, err
	}
	agents = append(agents, approver)
	routes = append(routes, patterns.Route{Name: ApproverAgent, Description: b.instr.Description(ApproverAgent)})

	mainPrompt, err := b.instr.Render(MainAgent, nil)
	if err != nil {
		return nil, err
	}
	classifierModel := b.model(MainAgent+"_classifier", mainPrompt, llm.WithTemperature(0))

	defaultKey := FlightInfoAgent
	if b.cfg.Toolkit.HasKnowledge() {
		defaultKey = KnowledgeAgent
	}

	router, err := patterns.NewRouterAgent(&patterns.RouterConfig{
		Name:        MainAgent,
		Description: b.instr.Description(MainAgent),
		Classifier: patterns.ChainClassifier{
			patterns.NewSimpleClassifier([]patterns.KeywordRule{{Route: ApproverAgent, Keywords: approvalKeywords}}),
			patterns.NewLLMClassifier(classifierModel, routes),
			patterns.NewSimpleClassifier(rules),
		},
		Agents:     agents,
		DefaultKey: defaultKey,
		Logger:     b.logger,
	})
	if err != nil {
		return nil, err
	}
	return b.wrap(router)
}

// model returns an LLM agent decorated with retry and a per-call timeout.
func (b *builder) model(name, system string, opts ...llm.CallOption) agenkit.Agent {
	agent := llm.NewAgent(name, b.cfg.Model,
		llm.WithSystemPrompt(system),
		llm.WithCallOptions(opts...),
		llm.WithAgentLogger(b.logger))
	return middleware.NewTimeoutDecorator(
		middleware.NewRetryDecorator(agent, b.cfg.Retry),
		middleware.TimeoutConfig{Timeout: b.cfg.Timeout})
}

func (b *builder) react(name string, toolNames ...string) (agenkit.Agent, error) {
	if _, err := b.instr.Render(name, nil); err != nil {
		return nil, err
	}
	ts, err := b.cfg.Toolkit.Registry().Select(toolNames...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	agent, err := patterns.NewReActAgent(&patterns.ReActConfig{
		Name:        name,
		Description: b.instr.Description(name),
		Agent:       b.model(name+"_model", ""),
		Tools:       ts,
		InstructionFunc: func(m *agenkit.Message) string {
			text, _ := b.instr.Render(name, sessionFrom(m))
			return text
		},
		MaxSteps: b.cfg.MaxSteps,
		Logger:   b.logger,
	})
	if err != nil {
		return nil, err
	}
	return b.wrap(agent)
}

func (b *builder) wrap(agent agenkit.Agent) (agenkit.Agent, error) {
	if b.cfg.Metrics {
		m, err := observability.NewMetricsMiddleware(agent)
		if err != nil {
			return nil, err
		}
		agent = m
	}
	return observability.NewTracingMiddleware(agent, ""), nil
}

func sessionFrom(m *agenkit.Message) *session.Session {
	state, _ := m.Metadata[MetadataSessionState].(map[string]interface{})
	if state == nil {
		return nil
	}
	return &session.Session{
		ID:     m.MetadataString(agenkit.MetadataSessionID),
		UserID: m.MetadataString(agenkit.MetadataUserID),
		State:  state,
	}
}
