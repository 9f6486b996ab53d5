package tool

import (
	"context"
	"errors"
	"testing"

	einotool "github.com/cloudwego/eino/components/tool"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

func toolNames(t *testing.T, tools []einotool.InvokableTool) []string {
	t.Helper()

	infos, _, err := Index(context.Background(), tools)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}

func TestBuildForAgent(t *testing.T) {
	t.Parallel()

	deps := Dependencies{Providers: &fakeDirectory{}, Policies: &fakeSearcher{}}
	cases := []struct {
		agent contractx.AgentType
		want  []string
	}{
		{contractx.AgentTypeProvider, []string{ToolListProviders, ToolGetProviderDetails}},
		{contractx.AgentTypePolicy, []string{ToolSearchPolicy}},
		{contractx.AgentTypeComparison, []string{ToolComparePolicies, ToolGetProviderDetails}},
	}
	for _, tc := range cases {
		tools, err := BuildForAgent(tc.agent, deps)
		if err != nil {
			t.Fatalf("BuildForAgent(%s) error = %v", tc.agent, err)
		}
		got := toolNames(t, tools)
		if len(got) != len(tc.want) {
			t.Fatalf("agent=%s expected %v, got %v", tc.agent, tc.want, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("agent=%s expected %v, got %v", tc.agent, tc.want, got)
			}
		}
	}
}

func TestBuildForAgentMissingDependency(t *testing.T) {
	t.Parallel()

	_, err := BuildForAgent(contractx.AgentTypePolicy, Dependencies{})
	if !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}

	_, err = BuildForAgent(contractx.AgentTypeSupervisor, Dependencies{})
	if !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for supervisor, got %v", err)
	}
}

func TestIndexRejectsDuplicateNames(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{}
	_, _, err := Index(context.Background(), []einotool.InvokableTool{
		&providerDetails{dir: dir},
		&providerDetails{dir: dir},
	})
	if !errors.Is(err, contractx.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
