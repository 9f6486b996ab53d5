package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	llmx "github.com/tanpawarit/PolicyPilot/agent/llm"
	promptx "github.com/tanpawarit/PolicyPilot/agent/prompt"
	toolx "github.com/tanpawarit/PolicyPilot/agent/tool"
)

type registryImpl struct {
	supervisor contractx.Supervisor
	provider   contractx.Specialist
	policy     contractx.Specialist
	comparison contractx.Specialist
}

func (r *registryImpl) Supervisor() contractx.Supervisor { return r.supervisor }

func (r *registryImpl) Provider() contractx.Specialist { return r.provider }

func (r *registryImpl) Policy() contractx.Specialist { return r.policy }

func (r *registryImpl) Comparison() contractx.Specialist { return r.comparison }

// Models are the chat models bound to each agent.
type Models struct {
	Supervisor einomodel.ToolCallingChatModel
	Provider   einomodel.ToolCallingChatModel
	Policy     einomodel.ToolCallingChatModel
	Comparison einomodel.ToolCallingChatModel
}

// NewRegistry creates one OpenRouter model per agent and builds the registry.
func NewRegistry(ctx context.Context, cfg llmx.Config, deps toolx.Dependencies) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var models Models
	for _, slot := range []struct {
		agent contractx.AgentType
		dst   *einomodel.ToolCallingChatModel
	}{
		{contractx.AgentTypeSupervisor, &models.Supervisor},
		{contractx.AgentTypeProvider, &models.Provider},
		{contractx.AgentTypePolicy, &models.Policy},
		{contractx.AgentTypeComparison, &models.Comparison},
	} {
		modelCfg := cfg.OpenRouterFor(slot.agent)
		m, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrConfiguration, slot.agent, err)
		}
		*slot.dst = m
	}

	return Build(ctx, models, deps, cfg.MaxIterations)
}

// Build assembles the supervisor and the three specialists from ready models.
func Build(ctx context.Context, models Models, deps toolx.Dependencies, maxIterations int) (contractx.Registry, error) {
	if models.Supervisor == nil || models.Provider == nil || models.Policy == nil || models.Comparison == nil {
		return nil, fmt.Errorf("%w: every agent needs a chat model", contractx.ErrConfiguration)
	}

	prompts := promptx.LoadPromptSet()

	supervisor, err := newSupervisor(ctx, models.Supervisor, prompts.Supervisor)
	if err != nil {
		return nil, err
	}

	build := func(agent contractx.AgentType, m einomodel.ToolCallingChatModel, systemPrompt string) (contractx.Specialist, error) {
		tools, err := toolx.BuildForAgent(agent, deps)
		if err != nil {
			return nil, err
		}
		return newSpecialist(ctx, agent, m, systemPrompt, tools, maxIterations)
	}

	provider, err := build(contractx.AgentTypeProvider, models.Provider, prompts.Provider)
	if err != nil {
		return nil, err
	}
	policy, err := build(contractx.AgentTypePolicy, models.Policy, prompts.Policy)
	if err != nil {
		return nil, err
	}
	comparison, err := build(contractx.AgentTypeComparison, models.Comparison, prompts.Comparison)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		supervisor: supervisor,
		provider:   provider,
		policy:     policy,
		comparison: comparison,
	}, nil
}
