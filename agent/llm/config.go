package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	openrouterx "github.com/tanpawarit/PolicyPilot/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"google/gemini-2.5-flash"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	// MaxIterations caps model invocations per specialist run.
	MaxIterations int `envconfig:"MAX_ITERATIONS" split_words:"true" default:"8"`

	SupervisorModel       string  `envconfig:"SUPERVISOR_MODEL" split_words:"true"`
	ProviderModel         string  `envconfig:"PROVIDER_MODEL" split_words:"true"`
	PolicyModel           string  `envconfig:"POLICY_MODEL" split_words:"true"`
	ComparisonModel       string  `envconfig:"COMPARISON_MODEL" split_words:"true"`
	SupervisorTemperature float32 `envconfig:"SUPERVISOR_TEMPERATURE" split_words:"true" default:"-1"`
	ProviderTemperature   float32 `envconfig:"PROVIDER_TEMPERATURE" split_words:"true" default:"-1"`
	PolicyTemperature     float32 `envconfig:"POLICY_TEMPERATURE" split_words:"true" default:"-1"`
	ComparisonTemperature float32 `envconfig:"COMPARISON_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w: max iterations must be > 0", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(agentType contractx.AgentType) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(model string, temperature float32) {
		if v := strings.TrimSpace(model); v != "" {
			modelName = v
		}
		if temperature >= 0 {
			temp = temperature
		}
	}

	switch agentType {
	case contractx.AgentTypeSupervisor:
		override(c.SupervisorModel, c.SupervisorTemperature)
	case contractx.AgentTypeProvider:
		override(c.ProviderModel, c.ProviderTemperature)
	case contractx.AgentTypePolicy:
		override(c.PolicyModel, c.PolicyTemperature)
	case contractx.AgentTypeComparison:
		override(c.ComparisonModel, c.ComparisonTemperature)
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
