package nodeengine

import "context"

// Built-in AI node type tags (spec §4.H "Built-in node families").
const (
	NodeAISummarize = "ai.summarize"
	NodeAIClassify  = "ai.classify"
	NodeAIExtract   = "ai.extract"
	NodeAIGenerate  = "ai.generate"
	NodeAIRAG       = "ai.context_aware_rag"
)

// AIProvider is the boundary to a language-model backend. Implementations
// are expected to enforce their own timeout and rate limiting; the Node
// Engine only supplies prompt text and grounding context.
type AIProvider interface {
	Complete(ctx context.Context, prompt string, context []string) (string, error)
}

// AISummarizeHandler condenses Config["text"]/inputs["text"] into a short
// summary.
type AISummarizeHandler struct{ Provider AIProvider }

func (AISummarizeHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "text", Type: PortString}},
		Outputs: []Port{{Name: "summary", Type: PortString}},
	}
}

func (h AISummarizeHandler) Execute(ctx context.Context, node Node, inputs map[string]any, _ *Context) (any, error) {
	text := stringInput(inputs, node, "text")
	prompt := "Summarize the following text concisely:\n\n" + text
	return h.Provider.Complete(ctx, prompt, nil)
}

// AIClassifyHandler labels inputs["text"] against Config["labels"] ([]any
// of strings).
type AIClassifyHandler struct{ Provider AIProvider }

func (AIClassifyHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "text", Type: PortString}},
		Outputs: []Port{{Name: "label", Type: PortString}},
	}
}

func (h AIClassifyHandler) Execute(ctx context.Context, node Node, inputs map[string]any, _ *Context) (any, error) {
	text := stringInput(inputs, node, "text")
	labels, _ := node.Config["labels"].([]any)
	prompt := "Classify the following text into exactly one of the given labels and respond with only the label.\n"
	prompt += "Labels: " + joinAny(labels) + "\n\nText:\n" + text
	return h.Provider.Complete(ctx, prompt, nil)
}

// AIExtractHandler pulls structured fields (Config["fields"]) out of
// inputs["text"], returning the model's raw response for the caller to
// parse — the Node Engine does not assume a schema-constrained model API.
type AIExtractHandler struct{ Provider AIProvider }

func (AIExtractHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "text", Type: PortString}},
		Outputs: []Port{{Name: "extracted", Type: PortString}},
	}
}

func (h AIExtractHandler) Execute(ctx context.Context, node Node, inputs map[string]any, _ *Context) (any, error) {
	text := stringInput(inputs, node, "text")
	fields, _ := node.Config["fields"].([]any)
	prompt := "Extract the following fields as JSON: " + joinAny(fields) + "\n\nText:\n" + text
	return h.Provider.Complete(ctx, prompt, nil)
}

// AIGenerateHandler runs a free-form Config["prompt_template"] through the
// provider, interpolating nothing itself — callers wire upstream
// DataSetField/Get nodes to build the final prompt in inputs["prompt"].
type AIGenerateHandler struct{ Provider AIProvider }

func (AIGenerateHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "prompt", Type: PortString}},
		Outputs: []Port{{Name: "text", Type: PortString}},
	}
}

func (h AIGenerateHandler) Execute(ctx context.Context, node Node, inputs map[string]any, _ *Context) (any, error) {
	prompt := stringInput(inputs, node, "prompt")
	return h.Provider.Complete(ctx, prompt, nil)
}

// AIRAGHandler answers inputs["question"] grounded in inputs["context"], a
// []string of retrieved passages.
type AIRAGHandler struct{ Provider AIProvider }

func (AIRAGHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "question", Type: PortString}, {Name: "context", Type: PortArray}},
		Outputs: []Port{{Name: "answer", Type: PortString}},
	}
}

func (h AIRAGHandler) Execute(ctx context.Context, node Node, inputs map[string]any, _ *Context) (any, error) {
	question := stringInput(inputs, node, "question")
	var passages []string
	if raw, ok := inputs["context"].([]any); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				passages = append(passages, s)
			}
		}
	} else if raw, ok := inputs["context"].([]string); ok {
		passages = raw
	}
	return h.Provider.Complete(ctx, question, passages)
}

func stringInput(inputs map[string]any, node Node, key string) string {
	if s, ok := inputs[key].(string); ok && s != "" {
		return s
	}
	s, _ := node.Config[key].(string)
	return s
}

func joinAny(items []any) string {
	out := ""
	for i, v := range items {
		if i > 0 {
			out += ", "
		}
		if s, ok := v.(string); ok {
			out += s
		}
	}
	return out
}
