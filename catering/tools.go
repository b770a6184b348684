package catering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scttfrdmn/catering-agent-go/agenkit"
	"github.com/scttfrdmn/catering-agent-go/catalog"
	"github.com/scttfrdmn/catering-agent-go/export"
	"github.com/scttfrdmn/catering-agent-go/knowledge"
	"github.com/scttfrdmn/catering-agent-go/tools"
)

// Tool names.
const (
	ToolSayHello            = "say_hello"
	ToolSayGoodbye          = "say_goodbye"
	ToolFlightDetails       = "get_flight_details"
	ToolMealOrderDetails    = "get_meal_order_details"
	ToolMealEligibility     = "check_meal_eligibility"
	ToolStockCountDetails   = "get_stock_count_details"
	ToolERPDetails          = "get_erp_details"
	ToolExportText          = "export_to_text"
	ToolExportStockCount    = "export_stock_count_to_text"
	ToolExportPreApproval   = "export_pre_approval_data"
	ToolExportPostApproval  = "export_post_approval_data"
	ToolKnowledgeContext    = "get_knowledge_context"
	ToolSearchSpecificTopic = "search_specific_topic"
)

// Toolkit holds the backends the catering tools call into.
type Toolkit struct {
	catalog   *catalog.Service
	exporter  *export.Exporter
	knowledge *knowledge.Service
	now       func() time.Time
	registry  *tools.Registry
}

// NewToolkit declares every catering tool in a registry. kb may be nil, in
// which case the knowledge tools are left out. A nil now uses time.Now.
func NewToolkit(cat *catalog.Service, exp *export.Exporter, kb *knowledge.Service, now func() time.Time) (*Toolkit, error) {
	if cat == nil || exp == nil {
		return nil, fmt.Errorf("toolkit requires a catalog and an exporter")
	}
	if now == nil {
		now = time.Now
	}
	t := &Toolkit{catalog: cat, exporter: exp, knowledge: kb, now: now, registry: tools.NewRegistry()}
	if err := t.registry.Register(t.declare()...); err != nil {
		return nil, err
	}
	return t, nil
}

// Registry returns the registry holding the declared tools.
func (t *Toolkit) Registry() *tools.Registry {
	return t.registry
}

// HasKnowledge reports whether the knowledge tools are available.
func (t *Toolkit) HasKnowledge() bool {
	return t.knowledge != nil
}

func param(name, typ, desc string, required bool) agenkit.Parameter {
	return agenkit.Parameter{Name: name, Type: typ, Description: desc, Required: required}
}

// dataParam accepts either decoded JSON or a JSON string, since models send
// both.
func dataParam(args tools.Args) interface{} {
	if s, ok := args["data"].(string); ok {
		var v interface{}
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return args["data"]
}

// exported adapts an export call to a tool result, keeping the user-facing
// text for failures.
func exported(msg string, err error) (interface{}, error) {
	if err != nil {
		return nil, errors.New(export.UserMessage(err))
	}
	return msg, nil
}

func (t *Toolkit) declare() []agenkit.Tool {
	// flightNo is not enforced by the tool so the lookup's own
	// "Please provide flightNo" answer reaches the user.
	flightParams := []agenkit.Parameter{
		param("flightNo", "string", "Flight number, e.g. EK0202", false),
		param("flightDate", "string", "Flight date in DD-MMM-YYYY format, e.g. 21-Jan-2024", false),
	}
	txnParam := []agenkit.Parameter{
		param("transaction_id", "string", "Stock count transaction ID, e.g. TXN001", true),
	}
	data := param("data", "object", "A record or a list of records to export", true)

	ts := []agenkit.Tool{
		tools.NewFuncTool(ToolSayHello, "Greets the user by name when a name is given.",
			[]agenkit.Parameter{param("name", "string", "Name of the person to greet", false)},
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				if name := args.String("name"); name != "" {
					return fmt.Sprintf("Hello, %s!", name), nil
				}
				return "Hello there!", nil
			}),
		tools.NewFuncTool(ToolSayGoodbye, "Says goodbye to the user.", nil,
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				return "Goodbye! Have a great day.", nil
			}),
		tools.NewFuncTool(ToolFlightDetails, "Gets flight details by flight number and optional flight date.", flightParams,
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				return t.catalog.GetFlightDetails(ctx, args.String("flightNo"), args.String("flightDate"))
			}),
		tools.NewFuncTool(ToolMealOrderDetails, "Gets the meal counts per cabin for a master flight ID (mflId).",
			[]agenkit.Parameter{param("mflId", "integer", "Master flight ID from the flight details", true)},
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				return t.catalog.GetMealOrderDetails(ctx, args.Int("mflId"))
			}),
		tools.NewFuncTool(ToolMealEligibility, "Checks whether meals can be ordered for a flight and explains why not.", flightParams,
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				return t.mealEligibility(ctx, args.String("flightNo"), args.String("flightDate"))
			}),
		tools.NewFuncTool(ToolStockCountDetails, "Gets the stock count lines of a transaction.", txnParam,
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				return t.catalog.GetStockCountDetails(ctx, args.String("transaction_id"))
			}),
		tools.NewFuncTool(ToolERPDetails, "Gets the ERP lines of a transaction.", txnParam,
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				return t.catalog.GetERPDetails(ctx, args.String("transaction_id"))
			}),
		tools.NewFuncTool(ToolExportText, "Exports records to a text file.",
			[]agenkit.Parameter{data, param("filename", "string", "Target file name; a timestamped name is used when empty", false)},
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				return exported(t.exporter.ExportToText(ctx, dataParam(args), args.String("filename")))
			}),
		tools.NewFuncTool(ToolExportStockCount, "Exports stock count records to a text file.",
			[]agenkit.Parameter{data, param("transaction_id", "string", "Transaction ID used in the file name", false)},
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				return exported(t.exporter.ExportStockCount(ctx, dataParam(args), args.String("transaction_id")))
			}),
		tools.NewFuncTool(ToolExportPreApproval, "Exports stock count records before approval.",
			[]agenkit.Parameter{data},
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				return exported(t.exporter.ExportPreApproval(ctx, dataParam(args)))
			}),
		tools.NewFuncTool(ToolExportPostApproval, "Exports ERP records after approval.",
			[]agenkit.Parameter{data},
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				return exported(t.exporter.ExportPostApproval(ctx, dataParam(args)))
			}),
	}

	if t.knowledge == nil {
		return ts
	}
	return append(ts,
		tools.NewFuncTool(ToolKnowledgeContext, "Searches the catering knowledge base for a question and the earlier questions of the conversation.",
			[]agenkit.Parameter{
				param("user_query", "string", "The user's question", true),
				param("previous_queries", "array", "Earlier questions of the conversation", false),
			},
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				return t.knowledge.GetKnowledgeContext(ctx, args.String("user_query"), args.Strings("previous_queries")), nil
			}),
		tools.NewFuncTool(ToolSearchSpecificTopic, "Searches the knowledge base for one topic.",
			[]agenkit.Parameter{
				param("topic", "string", "Topic to search for", true),
				param("n_results", "integer", "Number of documents to return", false),
			},
			func(ctx context.Context, args tools.Args) (interface{}, error) {
				return t.knowledge.SearchSpecificTopic(ctx, args.String("topic"), args.Int("n_results")), nil
			}),
	)
}
