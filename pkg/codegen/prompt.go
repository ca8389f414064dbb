package codegen

import (
	"fmt"
	"strings"

	"github.com/trustline-data/trustline-engine/pkg/template"
)

const systemPrompt = `You are a data transformation engineer. You write SQL that fixes data
quality problems in a single target table. Respond with a JSON object only:
{"code": "<forward transformation SQL>", "rollback_code": "<inverse SQL that undoes the transformation>"}
The transformation must touch only the target asset, be idempotent where
possible, and the rollback must restore the pre-transformation values for
every row the forward code changes.`

const promptTemplate = `Target asset: {{target_asset}}
Target column: {{target_column}}
Transformation kind: {{kind}}

Task description:
{{description}}

Parameters:
{{parameters}}
{{feedback}}`

// BuildPrompt renders the generation prompt from the request. Prior-iteration
// feedback is appended so the generator can refine earlier attempts.
func BuildPrompt(req *GenerationRequest) (string, error) {
	column := "(whole row)"
	if req.TargetColumn != nil {
		column = *req.TargetColumn
	}

	var params strings.Builder
	for k, v := range req.Parameters {
		fmt.Fprintf(&params, "- %s: %v\n", k, v)
	}

	layers := template.NewLayers(
		req.Parameters,
		map[string]any{
			"target_asset":  req.TargetAsset,
			"target_column": column,
			"kind":          string(req.Kind),
			"description":   req.Description,
			"parameters":    params.String(),
			"feedback":      buildFeedback(req),
		},
	)

	prompt, err := template.MustResolve(promptTemplate, layers)
	if err != nil {
		return "", fmt.Errorf("failed to render generation prompt: %w", err)
	}
	return prompt, nil
}

func buildFeedback(req *GenerationRequest) string {
	if req.IterationNumber <= 1 || (len(req.PriorIssues) == 0 && len(req.PriorImprovements) == 0) {
		return ""
	}

	var b strings.Builder
	b.WriteString("\nThis is a refinement pass. The previous attempt was:\n")
	if req.PriorCode != "" {
		b.WriteString(req.PriorCode)
		b.WriteString("\n")
	}
	if len(req.PriorIssues) > 0 {
		b.WriteString("Issues found when validating it against sample data:\n")
		for _, issue := range req.PriorIssues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}
	if len(req.PriorImprovements) > 0 {
		b.WriteString("Suggested improvements:\n")
		for _, imp := range req.PriorImprovements {
			fmt.Fprintf(&b, "- %s\n", imp)
		}
	}
	b.WriteString("Produce corrected code addressing the issues above.")
	return b.String()
}
