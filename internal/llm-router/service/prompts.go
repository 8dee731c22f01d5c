package service

import (
	"fmt"
	"strings"

	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/limits"
	"github.com/rijughosh01/developer-social-platform-sub000/internal/llm-router/models"
)

const defaultMaxTokens = 2000

// contextMaxTokens are ceilings for contexts that need long answers.
var contextMaxTokens = map[models.UsageContext]int{
	models.ContextCodeReview:  12000,
	models.ContextProjectHelp: 12000,
	models.ContextDebugging:   10000,
}

var basePrompts = map[models.UsageContext]string{
	models.ContextGeneral: "You are a helpful assistant on a social platform for developers. " +
		"Answer clearly and concisely, with code examples where they help.",
	models.ContextCodeReview: "You are an experienced code reviewer. Review the code for correctness, " +
		"security, performance and readability. Point out concrete problems with line references " +
		"and suggest improved code.",
	models.ContextDebugging: "You are an expert debugger. Identify the root cause of the error, explain " +
		"why it happens and give a minimal fix. Mention how to prevent similar bugs.",
	models.ContextLearning: "You are a patient programming teacher. Explain concepts step by step, " +
		"build on what the learner already knows and finish with a short exercise.",
	models.ContextProjectHelp: "You are a senior software architect. Give practical advice on project " +
		"structure, technology choices, trade-offs and next steps.",
}

// specialtyPrompts replace the base prompt for models with a known strength
// in a context.
var specialtyPrompts = map[string]map[models.UsageContext]string{
	limits.DeepSeekR1: {
		models.ContextDebugging: "You are a reasoning-focused debugger. Work through the failure " +
			"systematically, state your hypotheses, rule them out one by one and finish with the fix.",
		models.ContextProjectHelp: "You are a systems architect who reasons carefully about trade-offs. " +
			"Lay out the options, compare them and recommend one.",
	},
	limits.QwenCoder: {
		models.ContextCodeReview: "You are a code specialist. Review the code line by line for bugs, " +
			"idiomatic style and performance, and return corrected snippets.",
		models.ContextDebugging: "You are a code specialist. Find the defect, explain it briefly and " +
			"return the corrected code.",
	},
	limits.Claude35Sonnet: {
		models.ContextCodeReview: "You are a meticulous senior reviewer. Prioritise findings by severity " +
			"and explain the reasoning behind each suggestion.",
	},
}

// maxTokensFor is the output budget for a context, never above the model's
// own ceiling.
func maxTokensFor(uc models.UsageContext, d models.ModelDescriptor) int {
	budget, ok := contextMaxTokens[uc]
	if !ok {
		budget = defaultMaxTokens
	}
	if d.MaxTokens > 0 && d.MaxTokens < budget {
		return d.MaxTokens
	}
	return budget
}

func systemPrompt(uc models.UsageContext, d models.ModelDescriptor, profile models.UserProfile) string {
	prompt := basePrompts[uc]
	if prompt == "" {
		prompt = basePrompts[models.ContextGeneral]
	}
	if special, ok := specialtyPrompts[d.ID][uc]; ok {
		prompt = special
	}

	var b strings.Builder
	b.WriteString(prompt)
	if len(profile.Skills) > 0 {
		fmt.Fprintf(&b, "\n\nThe user is familiar with: %s.", strings.Join(profile.Skills, ", "))
	}
	if profile.Level != "" {
		fmt.Fprintf(&b, "\nAdjust the depth of your answer for a %s developer.", profile.Level)
	}
	return b.String()
}

// buildMessages assembles system prompt, history without system turns, and
// the new user message.
func buildMessages(system string, history []models.Message, message string) []models.Message {
	out := make([]models.Message, 0, len(history)+2)
	out = append(out, models.Message{Role: models.RoleSystem, Content: system})
	for _, m := range history {
		if m.Role == models.RoleSystem || m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return append(out, models.Message{Role: models.RoleUser, Content: message})
}

func codeReviewMessage(req models.CodeReviewRequest) string {
	var b strings.Builder
	if req.Language != "" {
		fmt.Fprintf(&b, "Please review the following %s code.\n", req.Language)
	} else {
		b.WriteString("Please review the following code.\n")
	}
	if len(req.Focus) > 0 {
		fmt.Fprintf(&b, "Focus on: %s.\n", strings.Join(req.Focus, ", "))
	}
	fmt.Fprintf(&b, "\n```%s\n%s\n```", req.Language, req.Code)
	return b.String()
}

func debugMessage(req models.DebugRequest) string {
	kind := "code"
	if req.Language != "" {
		kind = req.Language + " code"
	}
	return fmt.Sprintf(
		"I'm getting this error:\n%s\n\nin this %s:\n```%s\n%s\n```\n\nWhat is wrong and how do I fix it?",
		req.ErrorMessage, kind, req.Language, req.Code,
	)
}

func learningMessage(req models.LearningRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Teach me about %s.", req.Topic)
	if req.Level != "" {
		fmt.Fprintf(&b, " My current level is %s.", req.Level)
	}
	if req.Question != "" {
		fmt.Fprintf(&b, "\n\n%s", req.Question)
	}
	return b.String()
}

func projectAdviceMessage(req models.ProjectAdviceRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project description:\n%s\n", req.Description)
	if len(req.TechStack) > 0 {
		fmt.Fprintf(&b, "\nTech stack: %s\n", strings.Join(req.TechStack, ", "))
	}
	question := req.Question
	if question == "" {
		question = "What should I improve and what should I build next?"
	}
	fmt.Fprintf(&b, "\nQuestion: %s", question)
	return b.String()
}
