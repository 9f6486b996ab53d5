package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

const (
	ToolSearchPolicy    = "search_policy"
	ToolComparePolicies = "compare_policies"

	searchTopK  = 5
	compareTopK = 8

	NoResultsText = "No relevant information found in the uploaded policy documents."
)

type policyQueryArgs struct {
	Query    string `json:"query"`
	Category string `json:"category"`
}

func (a *policyQueryArgs) normalize() {
	a.Query = strings.TrimSpace(a.Query)
	a.Category = strings.TrimSpace(a.Category)
}

func categoryParamDesc(prefix string) string {
	return fmt.Sprintf("%s: %s.", prefix, strings.Join(contractx.CategoryNames(), ", "))
}

type searchPolicy struct {
	searcher contractx.PolicySearcher
}

var _ einotool.InvokableTool = (*searchPolicy)(nil)

func (t *searchPolicy) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolSearchPolicy,
		Desc: "Search uploaded policy documents for relevant information. Use this for detailed policy questions about coverage, exclusions, claims process, waiting periods, etc.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query":    {Type: schema.String, Desc: "The policy-related question to search for.", Required: true},
			"category": {Type: schema.String, Desc: categoryParamDesc("Optional. Filter results to a specific category"), Enum: contractx.CategoryNames()},
		}),
	}, nil
}

func (t *searchPolicy) InvokableRun(ctx context.Context, argumentsJSON string, _ ...einotool.Option) (string, error) {
	var args policyQueryArgs
	if err := decodeArgs(ToolSearchPolicy, argumentsJSON, &args); err != nil {
		return "", err
	}
	args.normalize()
	if err := validation.ValidateStruct(&args,
		validation.Field(&args.Query, validation.Required),
		validation.Field(&args.Category, validation.In(categoryValues()...)),
	); err != nil {
		return "", validationFailure(ToolSearchPolicy, err)
	}

	chunks, err := t.searcher.Search(ctx, args.Query, contractx.Category(args.Category), searchTopK)
	if err != nil {
		return "", &contractx.ToolExecutionError{Tool: ToolSearchPolicy, Err: err}
	}
	if len(chunks) == 0 {
		return NoResultsText, nil
	}

	results := make([]string, 0, len(chunks))
	for i, c := range chunks {
		results = append(results, fmt.Sprintf("[Source %d: %s / %s - Page %d]\n%s",
			i+1, orUnknown(string(c.Category)), orUnknown(c.Source), c.Page, c.Text))
	}
	return strings.Join(results, "\n\n---\n\n"), nil
}

type comparePolicies struct {
	searcher contractx.PolicySearcher
}

var _ einotool.InvokableTool = (*comparePolicies)(nil)

func (t *comparePolicies) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolComparePolicies,
		Desc: "Compare policy information between different providers. Retrieves relevant chunks grouped by source document for side-by-side comparison. If results span multiple categories, a warning is returned asking the user to specify the insurance type.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query":    {Type: schema.String, Desc: "The aspect to compare (e.g. waiting period, ambulance coverage, claim process).", Required: true},
			"category": {Type: schema.String, Desc: categoryParamDesc("Optional. The insurance category to compare within"), Enum: contractx.CategoryNames()},
		}),
	}, nil
}

func (t *comparePolicies) InvokableRun(ctx context.Context, argumentsJSON string, _ ...einotool.Option) (string, error) {
	var args policyQueryArgs
	if err := decodeArgs(ToolComparePolicies, argumentsJSON, &args); err != nil {
		return "", err
	}
	args.normalize()
	if err := validation.ValidateStruct(&args,
		validation.Field(&args.Query, validation.Required),
	); err != nil {
		return "", validationFailure(ToolComparePolicies, err)
	}

	// An unknown category is answered in-band so the model can correct itself.
	var category contractx.Category
	if args.Category != "" {
		parsed, ok := contractx.ParseCategory(args.Category)
		if !ok {
			return fmt.Sprintf("Invalid category '%s'. Allowed categories: %v", args.Category, contractx.CategoryNames()), nil
		}
		category = parsed
	}

	chunks, err := t.searcher.Search(ctx, args.Query, category, compareTopK)
	if err != nil {
		return "", &contractx.ToolExecutionError{Tool: ToolComparePolicies, Err: err}
	}
	if len(chunks) == 0 {
		return NoResultsText, nil
	}

	found := map[string]struct{}{}
	for _, c := range chunks {
		found[orUnknown(string(c.Category))] = struct{}{}
	}
	if len(found) > 1 && category == "" {
		cats := make([]string, 0, len(found))
		for c := range found {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		return fmt.Sprintf("The results span multiple insurance categories (%s). "+
			"Policies can only be compared within the same type. "+
			"Please specify which insurance type you'd like to compare.", strings.Join(cats, ", ")), nil
	}

	var order []string
	bySource := map[string][]string{}
	for _, c := range chunks {
		src := orUnknown(c.Source)
		if _, seen := bySource[src]; !seen {
			order = append(order, src)
		}
		bySource[src] = append(bySource[src], c.Text)
	}

	if len(order) < 2 {
		label := category
		if label == "" {
			label = contractx.Category(orUnknown(string(chunks[0].Category)))
		}
		return fmt.Sprintf("Only found documents from one provider in %s. "+
			"Please upload policies from at least two providers to enable comparison.", label.Label()), nil
	}

	sections := make([]string, 0, len(order))
	for _, src := range order {
		sections = append(sections, fmt.Sprintf("**%s:**\n%s", sourceLabel(src), strings.Join(bySource[src], "\n")))
	}
	return strings.Join(sections, "\n\n---\n\n"), nil
}

// sourceLabel turns "hdfc-optima_secure.pdf" into "Hdfc Optima Secure".
func sourceLabel(source string) string {
	label := strings.ReplaceAll(source, ".pdf", "")
	label = strings.NewReplacer("-", " ", "_", " ").Replace(label)
	return cases.Title(language.Und).String(label)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
