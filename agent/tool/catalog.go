// Package tool holds the tool adapters exposed to the specialists and the
// per-agent catalog that binds them.
package tool

import (
	"context"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

// Dependencies are the capabilities the adapters call into.
type Dependencies struct {
	Providers contractx.ProviderDirectory
	Policies  contractx.PolicySearcher
}

// BuildForAgent returns the tool set bound to one specialist.
func BuildForAgent(agentType contractx.AgentType, deps Dependencies) ([]einotool.InvokableTool, error) {
	switch agentType {
	case contractx.AgentTypeProvider:
		if deps.Providers == nil {
			return nil, fmt.Errorf("%w: agent=%s needs a provider directory", contractx.ErrConfiguration, agentType)
		}
		return []einotool.InvokableTool{
			&listProviders{dir: deps.Providers},
			&providerDetails{dir: deps.Providers},
		}, nil
	case contractx.AgentTypePolicy:
		if deps.Policies == nil {
			return nil, fmt.Errorf("%w: agent=%s needs a policy searcher", contractx.ErrConfiguration, agentType)
		}
		return []einotool.InvokableTool{
			&searchPolicy{searcher: deps.Policies},
		}, nil
	case contractx.AgentTypeComparison:
		if deps.Providers == nil || deps.Policies == nil {
			return nil, fmt.Errorf("%w: agent=%s needs a provider directory and a policy searcher", contractx.ErrConfiguration, agentType)
		}
		return []einotool.InvokableTool{
			&comparePolicies{searcher: deps.Policies},
			&providerDetails{dir: deps.Providers},
		}, nil
	default:
		return nil, fmt.Errorf("%w: agent=%s has no tools", contractx.ErrConfiguration, agentType)
	}
}

// Index resolves tool infos and a name lookup for a tool set. Duplicate names
// are a configuration error.
func Index(ctx context.Context, tools []einotool.InvokableTool) ([]*schema.ToolInfo, map[string]einotool.InvokableTool, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	byName := make(map[string]einotool.InvokableTool, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: tool info: %v", contractx.ErrConfiguration, err)
		}
		if _, dup := byName[info.Name]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate tool name %q", contractx.ErrConfiguration, info.Name)
		}
		infos = append(infos, info)
		byName[info.Name] = t
	}
	return infos, byName, nil
}
