package extract

import (
	"fmt"
	"strings"

	"ga_friendliness/internal/domain"
)

const schemaName = "review_tags"

func systemPrompt(o domain.Ontology) string {
	var b strings.Builder
	b.WriteString("You are an expert at extracting structured information from aviation pilot reviews.\n\n")
	b.WriteString("Given a review about an airport or airfield, extract relevant aspects using ONLY the labels below.\n\n")
	b.WriteString("ONTOLOGY (aspect: allowed_labels):\n")
	for _, a := range o.AspectNames() {
		fmt.Fprintf(&b, "  - %s: %s\n", a, strings.Join(o.Aspects[a], ", "))
	}
	b.WriteString(`
RULES:
1. Only extract aspects that are explicitly mentioned or strongly implied.
2. Use ONLY the labels from the ontology above.
3. Assign confidence by how explicit the mention is:
   - 0.9-1.0: explicitly stated ("very cheap", "staff was rude")
   - 0.7-0.9: clearly implied ("fees were 10 EUR" means cheap)
   - 0.5-0.7: somewhat implied or ambiguous
4. Include a short quote as evidence when possible.
5. Skip aspects the review does not mention.
`)
	return b.String()
}

func userPrompt(r domain.RawReview) string {
	lang := r.Language
	if lang == "" {
		lang = "unknown"
	}
	return fmt.Sprintf("Airport: %s\nLanguage: %s\n\nReview:\n%s", r.AirportID, lang, r.Text)
}

// responseSchema constrains aspect and label to the ontology vocabulary.
// Pairing is still checked after parsing since the schema cannot tie a
// label to its aspect.
func responseSchema(o domain.Ontology) map[string]any {
	aspects := o.AspectNames()
	seen := map[string]bool{}
	var labels []string
	for _, a := range aspects {
		for _, l := range o.Aspects[a] {
			if !seen[l] {
				seen[l] = true
				labels = append(labels, l)
			}
		}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"aspects"},
		"properties": map[string]any{
			"aspects": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"aspect", "label", "confidence", "evidence"},
					"properties": map[string]any{
						"aspect":     map[string]any{"type": "string", "enum": aspects},
						"label":      map[string]any{"type": "string", "enum": labels},
						"confidence": map[string]any{"type": "number"},
						"evidence":   map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}
