package contract

import "strings"

type AgentType string

const (
	AgentTypeSupervisor AgentType = "supervisor"
	AgentTypeProvider   AgentType = "provider"
	AgentTypePolicy     AgentType = "policy"
	AgentTypeComparison AgentType = "comparison"
)

// RouteLabel is the supervisor's decision for a turn.
type RouteLabel string

const (
	RouteProvider   RouteLabel = "provider"
	RoutePolicy     RouteLabel = "policy"
	RouteComparison RouteLabel = "comparison"
	RouteGuardrail  RouteLabel = "guardrail"

	// DefaultRoute is used whenever the supervisor output is not a known label.
	DefaultRoute = RoutePolicy
)

var routeAliases = map[string]RouteLabel{
	"provider":         RouteProvider,
	"provider_agent":   RouteProvider,
	"policy":           RoutePolicy,
	"policy_expert":    RoutePolicy,
	"policy_agent":     RoutePolicy,
	"comparison":       RouteComparison,
	"comparison_agent": RouteComparison,
	"guardrail":        RouteGuardrail,
}

func RouteLabels() []RouteLabel {
	return []RouteLabel{RouteProvider, RoutePolicy, RouteComparison, RouteGuardrail}
}

func (r RouteLabel) Valid() bool {
	switch r {
	case RouteProvider, RoutePolicy, RouteComparison, RouteGuardrail:
		return true
	default:
		return false
	}
}

// ParseRouteLabel normalises free model text into a route. The boolean is
// false when the text was not recognised and DefaultRoute was substituted.
func ParseRouteLabel(text string) (RouteLabel, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.NewReplacer(`"`, "", "'", "", "`", "", "*", "").Replace(normalized)
	normalized = strings.TrimRight(strings.TrimSpace(normalized), ".!:;,")
	normalized = strings.ReplaceAll(strings.TrimSpace(normalized), " ", "_")

	if route, ok := routeAliases[normalized]; ok {
		return route, true
	}
	return DefaultRoute, false
}

// Category is an allowed document category for uploads and search filters.
type Category string

const (
	CategoryHealth Category = "health_insurance"
	CategoryCar    Category = "car_insurance"
	CategoryTerm   Category = "term_insurance"
	CategoryTravel Category = "travel_insurance"
	CategoryOther  Category = "other"
)

func Categories() []Category {
	return []Category{CategoryHealth, CategoryCar, CategoryTerm, CategoryTravel, CategoryOther}
}

func CategoryNames() []string {
	cats := Categories()
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, string(c))
	}
	return names
}

func ParseCategory(raw string) (Category, bool) {
	candidate := Category(strings.TrimSpace(raw))
	for _, c := range Categories() {
		if c == candidate {
			return c, true
		}
	}
	return "", false
}

// Label renders a category for humans, e.g. "health insurance".
func (c Category) Label() string {
	return strings.ReplaceAll(string(c), "_", " ")
}

type ProviderRecord struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	FullName             string   `json:"full_name"`
	Type                 string   `json:"type"`
	Plans                []string `json:"plans"`
	PremiumRange         string   `json:"premium_range"`
	CoverageRange        string   `json:"coverage_range"`
	ClaimSettlementRatio string   `json:"claim_settlement_ratio"`
	NetworkHospitals     string   `json:"network_hospitals"`
	KeyFeatures          []string `json:"key_features"`
	Active               bool     `json:"active"`
}

// PolicyChunk is one ranked search hit. Source is the original file name and
// Page is the 1-based locator within it.
type PolicyChunk struct {
	Text     string   `json:"text"`
	Category Category `json:"category"`
	Source   string   `json:"source"`
	Page     int      `json:"page"`
}
