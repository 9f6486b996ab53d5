package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/supervisor.txt
	supervisorRaw string

	//go:embed template/provider.txt
	providerRaw string

	//go:embed template/policy.txt
	policyRaw string

	//go:embed template/comparison.txt
	comparisonRaw string

	//go:embed template/guardrail.txt
	guardrailRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Supervisor string
	Provider   string
	Policy     string
	Comparison string
	Guardrail  string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Supervisor: strings.TrimSpace(supervisorRaw),
		Provider:   strings.TrimSpace(providerRaw),
		Policy:     strings.TrimSpace(policyRaw),
		Comparison: strings.TrimSpace(comparisonRaw),
		Guardrail:  strings.TrimSpace(guardrailRaw),
	}
}

// Guardrail is the fixed reply for off-topic messages.
func Guardrail() string {
	return strings.TrimSpace(guardrailRaw)
}
