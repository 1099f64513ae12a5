package judge

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

const systemPrompt = `You are a news clustering assistant. You group articles that cover the same real-world story and classify them. You always answer with a single JSON object and nothing else.`

// defaultTokenBudget caps the user prompt; exceeding it first drops the
// worked examples, then truncates candidate summaries.
const defaultTokenBudget = 3000

const maxSummaryChars = 400

var promptCodec tokenizer.Codec

func init() {
	// Cl100kBase is close enough for budgeting across current models.
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err == nil {
		promptCodec = codec
	}
}

func countTokens(text string) int {
	if promptCodec == nil {
		return len(text) / 4
	}
	ids, _, err := promptCodec.Encode(text)
	if err != nil {
		return len(text) / 4
	}
	return len(ids)
}

// fewShotExamples shows the expected judgment for the common cases. Kept
// short: the decision schema does the heavy lifting.
var fewShotExamples = []string{
	`Article: "Fed raises interest rates by 25 basis points"
Candidate 1 (cluster 9f1c...): "Federal Reserve hikes rates again" - same announcement, different outlet.
Answer: {"action": "join_existing", "cluster_id": "9f1c...", "reason": "Same rate decision", "category": "Business", "subcategory": "Markets", "tags": ["federal reserve", "interest rates"]}`,
	`Article: "Local bakery wins regional pastry award"
No candidate covers this story.
Answer: {"action": "create_new", "cluster_id": "", "reason": "New story", "category": "Lifestyle", "subcategory": "Food & Dining", "tags": ["baking", "awards"]}`,
}

// BuildPrompt renders the user prompt for a judgment request, trimming it
// to fit budget tokens (0 means defaultTokenBudget).
func BuildPrompt(req Request, budget int) string {
	if budget <= 0 {
		budget = defaultTokenBudget
	}
	prompt := renderPrompt(req, true, 0)
	if countTokens(prompt) <= budget {
		return prompt
	}
	prompt = renderPrompt(req, false, 0)
	if countTokens(prompt) <= budget {
		return prompt
	}
	return renderPrompt(req, false, maxSummaryChars/2)
}

func renderPrompt(req Request, withExamples bool, summaryLimit int) string {
	if summaryLimit <= 0 {
		summaryLimit = maxSummaryChars
	}

	var b strings.Builder

	b.WriteString("Decide whether the new article below belongs to one of the candidate story clusters or starts a new story.\n\n")

	b.WriteString("New article:\n")
	fmt.Fprintf(&b, "Title: %s\n", req.Title)
	if req.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", truncate(req.Summary, summaryLimit))
	}
	if req.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", req.Source)
	}
	b.WriteString("\n")

	if len(req.Candidates) == 0 {
		b.WriteString("There are no candidate clusters. Use action \"create_new\".\n\n")
	} else {
		b.WriteString("Candidate clusters, most similar first:\n")
		for i, c := range req.Candidates {
			fmt.Fprintf(&b, "%d. cluster_id: %s\n   Story: %s\n   Closest article: %s (%s, similarity %.2f)\n",
				i+1, c.ClusterID, c.CanonicalTitle, c.BestTitle, c.BestSource, c.Similarity)
			if c.BestSummary != "" {
				fmt.Fprintf(&b, "   Summary: %s\n", truncate(c.BestSummary, summaryLimit))
			}
		}
		b.WriteString("\nJoin a cluster only when the article covers the same underlying story, not merely the same topic. When joining, cluster_id must be copied exactly from the list above.\n\n")
	}

	if req.Locked {
		fmt.Fprintf(&b, "The article category is %q. Pick the subcategory from: %s.\n\n",
			req.Category, strings.Join(req.Subcategories, ", "))
	} else {
		fmt.Fprintf(&b, "Classify the article. Likely category: %q", req.Category)
		if len(req.Subcategories) > 0 {
			fmt.Fprintf(&b, " with subcategories: %s", strings.Join(req.Subcategories, ", "))
		}
		b.WriteString(".\n\n")
	}

	if withExamples {
		b.WriteString("Examples:\n")
		for _, ex := range fewShotExamples {
			b.WriteString(ex)
			b.WriteString("\n\n")
		}
	}

	b.WriteString(`Respond with exactly one JSON object:
{"action": "join_existing" or "create_new", "cluster_id": "<id from the list, or empty>", "reason": "<one sentence>", "category": "<category>", "subcategory": "<subcategory>", "tags": ["<up to 5 short tags>"]}`)

	if req.Clarify {
		b.WriteString("\n\nYour previous reply could not be parsed. Reply with ONLY the JSON object, no prose, no code fences.")
	}

	return b.String()
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndex(cut, " "); idx > limit/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}
