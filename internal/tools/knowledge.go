package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rvergara/maestro/pkg/schema"
)

// Document is one entry in the support knowledge base.
type Document struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

// KnowledgeBase is a keyword-scored document index over support policies and
// product sheets. A stand-in for a search backend: scoring is term frequency
// over title+content with a flat bonus for a category match.
type KnowledgeBase struct {
	documents []Document
}

// NewKnowledgeBase builds an index over the built-in document set.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{documents: defaultDocuments()}
}

// LoadKnowledgeBase builds an index from a JSON document file.
func LoadKnowledgeBase(path string) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "read knowledge base: %v", err).WithCause(err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse knowledge base: %v", err).WithCause(err)
	}
	return &KnowledgeBase{documents: docs}, nil
}

// Search returns the topK highest-scoring documents formatted for prompt
// injection. Returns a fixed notice when nothing matches.
func (kb *KnowledgeBase) Search(query, category string, topK int) string {
	if topK <= 0 {
		topK = 3
	}

	type scored struct {
		doc   Document
		score int
	}

	queryLower := strings.ToLower(query)
	keywords := strings.Fields(queryLower)

	var results []scored
	for _, doc := range kb.documents {
		score := 0
		contentLower := strings.ToLower(doc.Title + " " + doc.Content)

		if category != "" && strings.Contains(strings.ToLower(doc.Category), strings.ToLower(category)) {
			score += 5
		}
		for _, kw := range keywords {
			if len(kw) > 2 {
				score += strings.Count(contentLower, kw)
			}
		}
		if score > 0 {
			results = append(results, scored{doc: doc, score: score})
		}
	}

	if len(results) == 0 {
		return "No relevant documents found in knowledge base."
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[Document %d] %s\n%s", i+1, r.doc.Title, r.doc.Content))
	}
	return strings.Join(parts, "\n\n")
}

// Document returns the document with the given ID, if present.
func (kb *KnowledgeBase) Document(id string) (Document, bool) {
	for _, doc := range kb.documents {
		if doc.ID == id {
			return doc, true
		}
	}
	return Document{}, false
}

func defaultDocuments() []Document {
	return []Document{
		{
			ID:       "refund-policy",
			Category: "policy",
			Title:    "Refund Policy",
			Content: "Our refund policy allows returns within 30 days of purchase.\n" +
				"Items must be in original condition with tags attached.\n" +
				"Full refund will be issued to original payment method within 5-7 business days.\n" +
				"Shipping costs are non-refundable unless item was defective or wrong item shipped.",
		},
		{
			ID:       "exchange-policy",
			Category: "policy",
			Title:    "Exchange Policy",
			Content: "Exchanges accepted within 30 days of purchase.\n" +
				"Items must be unworn and in original condition.\n" +
				"Free exchange shipping for defective items or wrong items shipped.\n" +
				"Customer pays return shipping for size/color exchanges.",
		},
		{
			ID:       "shipping-policy",
			Category: "policy",
			Title:    "Shipping Policy",
			Content: "Standard shipping: 5-7 business days ($5.99)\n" +
				"Express shipping: 2-3 business days ($12.99)\n" +
				"Free shipping on orders over $50\n" +
				"Tracking provided via email once shipped",
		},
		{
			ID:       "product-iphone-15-pro",
			Category: "product",
			Title:    "iPhone 15 Pro",
			Content: "iPhone 15 Pro - Premium smartphone\n" +
				"Price: $999\n" +
				"Features: A17 Pro chip, ProMotion display, 48MP camera\n" +
				"Colors: Natural Titanium, Blue Titanium, White Titanium, Black Titanium\n" +
				"Storage: 128GB, 256GB, 512GB, 1TB",
		},
		{
			ID:       "product-iphone-15",
			Category: "product",
			Title:    "iPhone 15",
			Content: "iPhone 15 - Standard model\n" +
				"Price: $799\n" +
				"Features: A16 Bionic chip, Super Retina display, 48MP camera\n" +
				"Colors: Pink, Yellow, Green, Blue, Black\n" +
				"Storage: 128GB, 256GB, 512GB",
		},
	}
}
