package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/neuralchat/ragserver/internal/prompt"
	"github.com/neuralchat/ragserver/internal/vectorstore"
	"github.com/neuralchat/ragserver/pkg/tokenizer"
)

var groundedTemplate = prompt.MustNew("grounded", `Answer the question using ONLY the context provided below.
If the answer is not contained in the context, say "I don't have enough information to answer this."
When you use a source, cite it as [Source N].

Context:
{{context}}

Question:
{{question}}

Answer:`)

var noSourcesTemplate = prompt.MustNew("no-sources", `No sources were found in the knowledge base for this question.
Answer from general knowledge only, and say briefly that no documents supported the answer.

Question:
{{question}}

Answer:`)

const sourceSeparator = "\n\n"

// Prompt is an assembled model input. Included counts the retrieved
// chunks that made it into Text, taken from the top of the ranking.
type Prompt struct {
	Text            string
	Included        int
	Truncated       bool
	Sources         []vectorstore.SearchResult
	EstimatedTokens int
}

// Assemble builds the grounded prompt for query. The context block holds
// the results in rank order, each tagged [Source N], and is kept within
// budgetChars runes by dropping results from the low-score end. A top
// result that alone exceeds the budget is cut to fit. With nothing to
// include the prompt falls back to general knowledge.
func Assemble(query string, results []vectorstore.SearchResult, budgetChars int) Prompt {
	blocks := make([]string, 0, len(results))
	used := 0
	truncated := false

	for i, r := range results {
		block := sourceBlock(i+1, r.Content)
		size := utf8.RuneCountInString(block)
		if i > 0 {
			size += utf8.RuneCountInString(sourceSeparator)
		}

		if used+size > budgetChars {
			truncated = true
			if i == 0 {
				if cut, ok := truncateBlock(1, r.Content, budgetChars); ok {
					blocks = append(blocks, cut)
				}
			}
			break
		}
		blocks = append(blocks, block)
		used += size
	}

	var text string
	if len(blocks) == 0 {
		text = render(noSourcesTemplate, map[string]string{"question": query})
	} else {
		text = render(groundedTemplate, map[string]string{
			"context":  strings.Join(blocks, sourceSeparator),
			"question": query,
		})
	}

	return Prompt{
		Text:            text,
		Included:        len(blocks),
		Truncated:       truncated,
		Sources:         results[:len(blocks)],
		EstimatedTokens: tokenizer.CountMessages(text),
	}
}

func sourceBlock(n int, content string) string {
	return fmt.Sprintf("[Source %d]\n%s", n, content)
}

// truncateBlock cuts content so the tagged block fits in budget runes.
func truncateBlock(n int, content string, budget int) (string, bool) {
	room := budget - utf8.RuneCountInString(sourceBlock(n, ""))
	if room <= 0 {
		return "", false
	}
	runes := []rune(content)
	return sourceBlock(n, string(runes[:min(room, len(runes))])), true
}

// render panics only if a template above gains a variable Assemble does
// not supply.
func render(tmpl *prompt.Template, vars map[string]string) string {
	out, err := tmpl.Render(vars)
	if err != nil {
		panic(err)
	}
	return out
}
