// Package limits holds the static per-plan, per-model daily token ceilings
// and the premium gating rules. Everything here is a pure lookup.
package limits

import "github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"

const (
	// Unlimited marks a model without a daily ceiling for a plan.
	Unlimited = -1
	// Unavailable marks a model a plan cannot use at all.
	Unavailable = 0
)

const (
	GPT35Turbo     = "gpt-3.5-turbo"
	GPT4oMini      = "gpt-4o-mini"
	GPT4o          = "gpt-4o"
	DeepSeekR1     = "deepseek/deepseek-r1:free"
	DeepSeekChat   = "deepseek/deepseek-chat-v3-0324:free"
	QwenCoder      = "qwen/qwen-2.5-coder-32b-instruct:free"
	Llama33        = "meta-llama/llama-3.3-70b-instruct:free"
	Mistral7B      = "mistralai/mistral-7b-instruct:free"
	Claude35Sonnet = "anthropic/claude-3.5-sonnet"
)

// modelOrder fixes the iteration order of the table.
var modelOrder = []string{
	GPT35Turbo,
	GPT4oMini,
	GPT4o,
	DeepSeekR1,
	DeepSeekChat,
	QwenCoder,
	Llama33,
	Mistral7B,
	Claude35Sonnet,
}

var tokenLimits = map[models.Plan]map[string]int{
	models.PlanFree: {
		GPT35Turbo:     10000,
		GPT4oMini:      5000,
		GPT4o:          Unavailable,
		DeepSeekR1:     20000,
		DeepSeekChat:   20000,
		QwenCoder:      20000,
		Llama33:        15000,
		Mistral7B:      15000,
		Claude35Sonnet: Unavailable,
	},
	models.PlanPremium: {
		GPT35Turbo:     100000,
		GPT4oMini:      100000,
		GPT4o:          50000,
		DeepSeekR1:     200000,
		DeepSeekChat:   200000,
		QwenCoder:      200000,
		Llama33:        200000,
		Mistral7B:      200000,
		Claude35Sonnet: 50000,
	},
	models.PlanPro: {
		GPT35Turbo:     Unlimited,
		GPT4oMini:      Unlimited,
		GPT4o:          Unlimited,
		DeepSeekR1:     Unlimited,
		DeepSeekChat:   Unlimited,
		QwenCoder:      Unlimited,
		Llama33:        Unlimited,
		Mistral7B:      Unlimited,
		Claude35Sonnet: Unlimited,
	},
}

var premiumModels = map[string]bool{
	GPT4o:          true,
	Claude35Sonnet: true,
}

func planTable(plan models.Plan) map[string]int {
	if table, ok := tokenLimits[plan]; ok {
		return table
	}
	return tokenLimits[models.PlanFree]
}

// GetTokenLimit returns the daily ceiling; unknown plans fall back to free
// and unknown models are unavailable.
func GetTokenLimit(model string, plan models.Plan) int {
	limit, ok := planTable(plan)[model]
	if !ok {
		return Unavailable
	}
	return limit
}

// IsPremiumModel reports whether the model is flagged premium-only.
func IsPremiumModel(model string) bool {
	return premiumModels[model]
}

// RequiresPremium is true only for plans outside premium/pro asking for a
// premium-only model.
func RequiresPremium(model string, plan models.Plan) bool {
	if plan == models.PlanPremium || plan == models.PlanPro {
		return false
	}
	return IsPremiumModel(model)
}

// CanAccess combines the premium gate with the zero-ceiling rule.
func CanAccess(model string, plan models.Plan) bool {
	if RequiresPremium(model, plan) {
		return false
	}
	return GetTokenLimit(model, plan) != Unavailable
}

// GetAvailableModels lists, in table order, every model whose ceiling for
// the plan is positive or unlimited.
func GetAvailableModels(plan models.Plan) []string {
	table := planTable(plan)
	available := make([]string, 0, len(modelOrder))
	for _, id := range modelOrder {
		limit := table[id]
		if limit == Unlimited || limit > 0 {
			available = append(available, id)
		}
	}
	return available
}

func HasExceededLimit(usage int, model string, plan models.Plan) bool {
	limit := GetTokenLimit(model, plan)
	if limit == Unlimited {
		return false
	}
	return usage >= limit
}

// GetRemainingTokens returns Unlimited when there is no ceiling.
func GetRemainingTokens(usage int, model string, plan models.Plan) int {
	limit := GetTokenLimit(model, plan)
	if limit == Unlimited {
		return Unlimited
	}
	if remaining := limit - usage; remaining > 0 {
		return remaining
	}
	return 0
}

// KnownModels returns every model id in the table.
func KnownModels() []string {
	out := make([]string, len(modelOrder))
	copy(out, modelOrder)
	return out
}
