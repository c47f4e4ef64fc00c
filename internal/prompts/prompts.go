// Package prompts holds the generation prompt templates: one system prompt
// per answer style and one user prompt builder per query intent.
package prompts

import (
	"fmt"

	"github.com/paperhub/rag/internal/query"
)

// Style selects the register of the generated answer.
type Style string

const (
	StyleConcise  Style = "concise"
	StyleDetailed Style = "detailed"
	StyleBalanced Style = "balanced"
	StyleAcademic Style = "academic"
)

var systemPrompts = map[Style]string{
	StyleConcise: `You are an AI assistant helping researchers find information about Large Language Models.
Provide concise, accurate answers based strictly on the provided context.
Keep responses brief and to the point.`,

	StyleDetailed: `You are an expert AI research assistant specializing in Large Language Models.
Provide comprehensive, detailed answers based on the provided context.
Include technical details, methodologies, and relevant citations.
Explain complex concepts clearly while maintaining academic rigor.`,

	StyleBalanced: `You are a knowledgeable AI assistant helping researchers understand Large Language Models.
Provide clear, accurate answers based on the provided context.
Balance technical accuracy with accessibility.
Cite specific papers when relevant.`,

	StyleAcademic: `You are an academic research assistant with expertise in Large Language Models and Natural Language Processing.
Provide scholarly, well-referenced answers based on the provided research papers.
Use precise technical terminology and cite specific papers using [Document N] format.
Maintain an academic tone and highlight important research findings.`,
}

// SystemPrompt returns the system prompt for the style, defaulting to
// StyleBalanced for unknown values.
func SystemPrompt(style Style) string {
	if p, ok := systemPrompts[style]; ok {
		return p
	}
	return systemPrompts[StyleBalanced]
}

// ForIntent builds the user prompt matching the query intent. Unknown
// intents use the general research-question template.
func ForIntent(intent query.Intent, q, context string) string {
	switch intent {
	case query.IntentDefinition:
		return definitionPrompt(q, context)
	case query.IntentComparison:
		return comparisonPrompt(q, context)
	case query.IntentTutorial:
		return tutorialPrompt(q, context)
	case query.IntentLatestNews:
		return latestPrompt(q, context)
	case query.IntentSummary:
		return summaryPrompt(q, context)
	default:
		return ResearchPrompt(q, context)
	}
}

// ResearchPrompt is the general grounded question-answering template.
func ResearchPrompt(q, context string) string {
	return fmt.Sprintf(`Instructions:
1. Answer based ONLY on the provided context
2. If the context doesn't contain enough information, say so
3. Cite specific documents using [Document N] format
4. Be clear and concise
5. If multiple papers discuss the topic, synthesize their perspectives

Context from research papers:
%s

Question: %s

Answer:`, context, q)
}

func definitionPrompt(q, context string) string {
	return fmt.Sprintf(`Context from research papers:
%s

Question: %s

Please provide:
1. A clear, concise definition
2. Technical explanation (if applicable)
3. Examples of usage or applications
4. Related concepts
5. Citations from the papers

Answer:`, context, q)
}

func comparisonPrompt(q, context string) string {
	return fmt.Sprintf(`Context from research papers:
%s

Question: %s

Please provide a structured comparison addressing:
1. Key similarities between the approaches/models
2. Main differences and trade-offs
3. Specific strengths and weaknesses
4. Use cases where each excels
5. Citations to support your points

Answer:`, context, q)
}

func tutorialPrompt(q, context string) string {
	return fmt.Sprintf(`Context from research papers:
%s

Question: %s

Please provide a tutorial-style answer that:
1. Explains the concept step-by-step
2. Uses clear, accessible language
3. Includes examples where relevant
4. Builds from basics to advanced concepts
5. Cites papers for deeper reading

Answer:`, context, q)
}

func latestPrompt(q, context string) string {
	return fmt.Sprintf(`Context from recent research papers:
%s

Question: %s

Please provide an overview of the latest developments:
1. Most recent findings and advances
2. Emerging trends and directions
3. Notable papers and their contributions
4. Comparison with previous approaches
5. Future implications

Answer:`, context, q)
}

func summaryPrompt(q, context string) string {
	return fmt.Sprintf(`Context from research papers:
%s

Question: %s

Please provide a comprehensive summary that includes:
1. Main concepts and ideas
2. Key findings and contributions
3. Methodologies used
4. Impact and significance
5. Recent developments

Answer:`, context, q)
}
