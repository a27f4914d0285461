package agent

import (
	"context"
	"fmt"

	"github.com/rvergara/maestro/internal/engine"
	"github.com/rvergara/maestro/internal/inference"
	"github.com/rvergara/maestro/internal/tools"
	"github.com/rvergara/maestro/pkg/schema"
)

// StageResearch is the graph name of the research stage.
const StageResearch = "research"

const researchSystem = `You are a research specialist for customer support.
Your job is to extract and summarize relevant information from provided documents.

Given a customer query and relevant documents:
1. Identify key information that answers the query
2. Extract specific details (prices, policies, dates, etc.)
3. Summarize clearly and concisely
4. Note any missing information

Always provide factual information based on the documents provided.
Do not make up information that isn't in the documents.`

// Researcher gathers supporting material for the request: knowledge base
// documents matching the classified category, and order details when the
// request names an order.
type Researcher struct {
	base
	knowledge *tools.KnowledgeBase
	orders    *tools.OrderLookup
}

// NewResearcher creates the research stage.
func NewResearcher(client inference.Client, knowledge *tools.KnowledgeBase, orders *tools.OrderLookup) *Researcher {
	return &Researcher{
		base: base{
			cfg: Config{
				Name:         StageResearch,
				Dependencies: []string{StageClassify},
				Model:        "llama-3.1-8b-instant",
				Temperature:  0.4,
				MaxTokens:    800,
				System:       researchSystem,
			},
			client: client,
		},
		knowledge: knowledge,
		orders:    orders,
	}
}

// Execute searches the knowledge base and order store, then asks the model
// to distill what matters for this request.
func (s *Researcher) Execute(ctx context.Context, request string, wfctx *engine.Context) (*schema.StageResult, error) {
	classification, _ := wfctx.Result(StageClassify)
	category := Category(classification)

	documents := s.knowledge.Search(request, category, 3)

	orderInfo := "No order referenced in the request."
	if details, ok := s.orders.Lookup(request); ok {
		orderInfo = details
	}

	prompt := fmt.Sprintf(`Research the following customer query and extract relevant information.

Customer Query:
%q

Query Category: %s

Relevant Documents:
%s

Order Lookup:
%s

Please provide:
1. Key information that addresses the query
2. Relevant policies or product details
3. Any order-specific information if applicable
4. Missing information that would be needed

Respond in JSON:
{
    "key_findings": "Main information found",
    "relevant_policies": "Applicable policies",
    "order_info": "Order details if found",
    "missing_info": "What additional info is needed",
    "confidence": 0.0-1.0
}`, request, category, documents, orderInfo)

	res, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if res.Fields == nil {
		res.Fields = map[string]any{}
	}
	// Carry the category forward for stages that do not depend on classify.
	if _, ok := res.Fields["category"]; !ok {
		res.Fields["category"] = category
	}
	return res, nil
}
