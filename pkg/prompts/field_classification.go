package prompts

import (
	"fmt"
	"strings"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/models"
)

// FieldClassificationResponse is the JSON shape the provider must return
// for a classification batch.
type FieldClassificationResponse struct {
	Classifications []FieldClassificationItem `json:"classifications"`
}

// FieldClassificationItem is one classified field in a provider response.
type FieldClassificationItem struct {
	TableName   string   `json:"table_name"`
	ColumnName  string   `json:"column_name"`
	IsSensitive bool     `json:"is_sensitive"`
	Category    string   `json:"category"`
	Risk        string   `json:"risk"`
	Regulations []string `json:"regulations"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
}

// BuildFieldClassificationPrompt creates the prompt for classifying a
// batch of ambiguous schema fields against the requested regulations.
// Only field names and types are sent, never row data.
func BuildFieldClassificationPrompt(fields []models.ColumnDescriptor, regulations []models.Regulation) string {
	var prompt strings.Builder

	prompt.WriteString("# Schema Field Sensitivity Classification\n\n")
	prompt.WriteString("Classify each database column below as sensitive or not sensitive under the listed privacy regulations. ")
	prompt.WriteString("These fields could not be resolved by deterministic pattern matching, so judge them from naming, data type, and table context.\n\n")

	prompt.WriteString("## Regulations In Scope\n\n")
	for _, reg := range regulations {
		prompt.WriteString(fmt.Sprintf("- %s\n", reg))
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Fields To Classify\n\n")
	for i, f := range fields {
		prompt.WriteString(fmt.Sprintf("%d. `%s.%s`", i+1, f.TableName, f.ColumnName))
		if f.DataType != "" {
			prompt.WriteString(fmt.Sprintf(" (%s", f.DataType))
			if f.IsNullable {
				prompt.WriteString(", nullable")
			}
			prompt.WriteString(")")
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Classification Guidelines\n\n")
	prompt.WriteString("**Categories**: EMAIL, PHONE, NAME, ADDRESS, NATIONAL_ID, DATE_OF_BIRTH, FINANCIAL, MEDICAL, BIOMETRIC, CREDENTIAL, IP_ADDRESS, LOCATION, DEMOGRAPHIC, TECHNICAL, UNKNOWN\n\n")
	prompt.WriteString("**Risk levels**: low, medium, high, critical\n\n")
	prompt.WriteString("- Identifiers that directly single out a person (national IDs, biometrics, credentials) are critical risk\n")
	prompt.WriteString("- Contact and birth data (email, phone, date of birth) are high risk\n")
	prompt.WriteString("- Health data is sensitive under HIPAA and GDPR; financial data under GDPR and CCPA\n")
	prompt.WriteString("- Surrogate keys, timestamps, and counters are TECHNICAL and not sensitive\n")
	prompt.WriteString("- Consider the table name: a `notes` column in a `patients` table likely holds medical detail\n")
	prompt.WriteString("- When genuinely uncertain, mark is_sensitive true with category UNKNOWN and low confidence rather than missing sensitive data\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `classifications`: Array with EXACTLY one entry per field listed above\n")
	prompt.WriteString("  - `table_name`, `column_name`: Copied verbatim from the field list\n")
	prompt.WriteString("  - `is_sensitive`: true or false\n")
	prompt.WriteString("  - `category`: One of the categories above\n")
	prompt.WriteString("  - `risk`: One of the risk levels above\n")
	prompt.WriteString("  - `regulations`: Subset of the regulations in scope that apply (empty if not sensitive)\n")
	prompt.WriteString("  - `confidence`: 0.0-1.0\n")
	prompt.WriteString("  - `reasoning`: Brief explanation (1 sentence)\n\n")

	prompt.WriteString("Example:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "classifications": [
    {
      "table_name": "members",
      "column_name": "mbr_dob",
      "is_sensitive": true,
      "category": "DATE_OF_BIRTH",
      "risk": "high",
      "regulations": ["GDPR", "CCPA"],
      "confidence": 0.9,
      "reasoning": "Abbreviated column name resolves to member date of birth."
    }
  ]
}
`)
	prompt.WriteString("```\n\n")

	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildFieldClassificationSystemMessage returns the system message for
// the classification provider.
func BuildFieldClassificationSystemMessage() string {
	return `You are a data privacy compliance expert. Your task is to classify database schema fields by sensitivity under privacy regulations such as GDPR, HIPAA, and CCPA. You only ever see field names and types, never data values.`
}
