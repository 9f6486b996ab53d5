package tool

import (
	"context"
	"fmt"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

const (
	ToolListProviders      = "list_providers"
	ToolGetProviderDetails = "get_provider_details"
)

type listProviders struct {
	dir contractx.ProviderDirectory
}

var _ einotool.InvokableTool = (*listProviders)(nil)

func (t *listProviders) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolListProviders,
		Desc: "List all available insurance providers in the system. Returns provider names, IDs, and a brief summary of each.",
	}, nil
}

func (t *listProviders) InvokableRun(ctx context.Context, argumentsJSON string, _ ...einotool.Option) (string, error) {
	var args struct{}
	if err := decodeArgs(ToolListProviders, argumentsJSON, &args); err != nil {
		return "", err
	}

	records, err := t.dir.List(ctx)
	if err != nil {
		return "", &contractx.ToolExecutionError{Tool: ToolListProviders, Err: err}
	}

	lines := make([]string, 0, len(records))
	for _, p := range records {
		lines = append(lines, fmt.Sprintf("- **%s** (id: %s): %s | Plans: %s | Network Hospitals: %s",
			p.Name, p.ID, p.Type, strings.Join(p.Plans, ", "), p.NetworkHospitals))
	}
	return strings.Join(lines, "\n"), nil
}

type providerDetailsArgs struct {
	ProviderID string `json:"provider_id"`
}

type providerDetails struct {
	dir contractx.ProviderDirectory
}

var _ einotool.InvokableTool = (*providerDetails)(nil)

func (t *providerDetails) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ToolGetProviderDetails,
		Desc: "Get detailed metadata for a specific insurance provider including plans, premiums, coverage, claim settlement ratio, and key features.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"provider_id": {Type: schema.String, Desc: "The provider ID to look up, as returned by list_providers.", Required: true},
		}),
	}, nil
}

func (t *providerDetails) InvokableRun(ctx context.Context, argumentsJSON string, _ ...einotool.Option) (string, error) {
	var args providerDetailsArgs
	if err := decodeArgs(ToolGetProviderDetails, argumentsJSON, &args); err != nil {
		return "", err
	}
	args.ProviderID = strings.TrimSpace(args.ProviderID)
	if err := validation.ValidateStruct(&args,
		validation.Field(&args.ProviderID, validation.Required),
	); err != nil {
		return "", validationFailure(ToolGetProviderDetails, err)
	}

	rec, ok, err := t.dir.Lookup(ctx, args.ProviderID)
	if err != nil {
		return "", &contractx.ToolExecutionError{Tool: ToolGetProviderDetails, Err: err}
	}
	if !ok {
		records, err := t.dir.List(ctx)
		if err != nil {
			return "", &contractx.ToolExecutionError{Tool: ToolGetProviderDetails, Err: err}
		}
		ids := make([]string, 0, len(records))
		for _, p := range records {
			ids = append(ids, p.ID)
		}
		return fmt.Sprintf("Provider '%s' not found. Available providers: %v", args.ProviderID, ids), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", rec.FullName)
	fmt.Fprintf(&b, "Type: %s\n", rec.Type)
	fmt.Fprintf(&b, "Plans offered: %s\n", strings.Join(rec.Plans, ", "))
	fmt.Fprintf(&b, "Premium range: %s\n", rec.PremiumRange)
	fmt.Fprintf(&b, "Coverage range: %s\n", rec.CoverageRange)
	fmt.Fprintf(&b, "Claim settlement ratio: %s\n", rec.ClaimSettlementRatio)
	fmt.Fprintf(&b, "Network hospitals: %s\n", rec.NetworkHospitals)
	b.WriteString("Key features:\n")
	features := make([]string, 0, len(rec.KeyFeatures))
	for _, f := range rec.KeyFeatures {
		features = append(features, "  - "+f)
	}
	b.WriteString(strings.Join(features, "\n"))
	return b.String(), nil
}
