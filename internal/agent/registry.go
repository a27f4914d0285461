package agent

import (
	"github.com/rvergara/maestro/internal/engine"
	"github.com/rvergara/maestro/internal/inference"
	"github.com/rvergara/maestro/internal/tools"
)

// Workflow type names.
const (
	TypeCustomerSupport = "customer_support"
	TypeQuickReply      = "quick_reply"
)

// Toolkit bundles the shared dependencies the agent stages draw on.
type Toolkit struct {
	Client    inference.Client
	Knowledge *tools.KnowledgeBase
	Orders    *tools.OrderLookup
	Policies  *tools.PolicyChecker
}

// Graphs builds the stage graph for every supported workflow type.
//
// customer_support is the full pipeline: classify fans out to research and
// validate, which join into write, reviewed by the terminal qa stage.
// quick_reply skips the middle and drafts straight from the classification.
func Graphs(tk Toolkit) (map[string]*engine.Graph, error) {
	support, err := engine.NewGraph(StageQA,
		NewClassifier(tk.Client),
		NewResearcher(tk.Client, tk.Knowledge, tk.Orders),
		NewValidator(tk.Client, tk.Policies, tk.Orders),
		NewWriter(tk.Client),
		NewQA(tk.Client),
	)
	if err != nil {
		return nil, err
	}

	quick, err := engine.NewGraph(StageWrite,
		NewClassifier(tk.Client),
		NewWriter(tk.Client, StageClassify),
	)
	if err != nil {
		return nil, err
	}

	return map[string]*engine.Graph{
		TypeCustomerSupport: support,
		TypeQuickReply:      quick,
	}, nil
}
