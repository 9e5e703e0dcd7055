package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sashabaranov/go-openai"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/config"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/engine"
)

var generatorRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kanso_generator_requests_total",
	Help: "Generator calls by operation and outcome (ok, error, repaired, malformed, rate_limited)",
}, []string{"operation", "outcome"})

var ErrMissingAPIKey = errors.New("generator: OPENAI_API_KEY not set")

const systemPrompt = `You are a habit coach. Reply with a single JSON object and nothing else.
Habits are short imperative phrases of at most six words.`

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

var _ domain.ContentGenerator = (*OpenAIGenerator)(nil)

type OpenAIGenerator struct {
	client chatCompleter
	model  string
}

func NewOpenAIGenerator(cfg config.GeneratorConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	log.Printf("[CONTENT] Initializing OpenAI generator with model %s", model)
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

func (g *OpenAIGenerator) GenerateHabitSet(ctx context.Context, identity string, t domain.IdentityType, level int) (*domain.HabitSet, error) {
	prompt := fmt.Sprintf(`Build habits for someone becoming %q (identity type %s) at difficulty level %d on a scale from 0 to %d.
Return {"high": [3 habits for high energy days], "medium": [3 habits], "low": [3 tiny habits for low energy days]}.`,
		identity, t, level, engine.MaxLevel(t))

	var set domain.HabitSet
	if err := g.completeJSON(ctx, "habit_set", prompt, &set); err != nil {
		return nil, err
	}
	set.Level = level
	return &set, nil
}

func (g *OpenAIGenerator) GenerateDailyAdaptation(ctx context.Context, identity string, mode domain.AdaptationMode, current domain.HabitSet) (*domain.HabitSet, error) {
	currentJSON, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("generator: marshal habit set: %w", err)
	}
	prompt := fmt.Sprintf(`Today's habits for %q are %s.
Make every tier slightly %s for today only, keeping the same number of habits per tier.
Return {"high": [...], "medium": [...], "low": [...]}.`,
		identity, currentJSON, mode)

	var set domain.HabitSet
	if err := g.completeJSON(ctx, "daily_adaptation", prompt, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (g *OpenAIGenerator) GenerateWeeklyReviewContent(ctx context.Context, req domain.WeeklyContentRequest) (*domain.WeeklyContent, error) {
	missed := make([]string, 0, len(req.MissedHabits))
	for name, count := range req.MissedHabits {
		missed = append(missed, fmt.Sprintf("%s (%d)", name, count))
	}
	sort.Strings(missed)
	prompt := fmt.Sprintf(`Write a weekly review for someone becoming %q, currently in the %s stage.
Their week persona is %s with momentum %.1f out of %.0f. Most missed habits: %s.
Return {"reflection": one question, "archetype": a two word title, "narrative": three sentences}.`,
		req.Identity.Identity, req.Identity.Stage, req.Persona, req.Momentum, engine.MaxMomentum, strings.Join(missed, ", "))

	var content domain.WeeklyContent
	if err := g.completeJSON(ctx, "weekly_review", prompt, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

func (g *OpenAIGenerator) completeJSON(ctx context.Context, operation, prompt string, out any) error {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		generatorRequestsTotal.WithLabelValues(operation, "error").Inc()
		return fmt.Errorf("%w: %v", domain.ErrGeneratorUnavailable, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		generatorRequestsTotal.WithLabelValues(operation, "malformed").Inc()
		return fmt.Errorf("%w: empty completion", domain.ErrGeneratorUnavailable)
	}

	repaired, err := decodeJSON(resp.Choices[0].Message.Content, out)
	if err != nil {
		generatorRequestsTotal.WithLabelValues(operation, "malformed").Inc()
		return fmt.Errorf("%w: %v", domain.ErrGeneratorUnavailable, err)
	}
	if repaired {
		generatorRequestsTotal.WithLabelValues(operation, "repaired").Inc()
	} else {
		generatorRequestsTotal.WithLabelValues(operation, "ok").Inc()
	}
	return nil
}

// decodeJSON unmarshals model output, stripping markdown fences and falling
// back to jsonrepair for truncated or sloppy JSON.
func decodeJSON(raw string, out any) (repaired bool, err error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(text), out); err == nil {
		return false, nil
	}

	log.Printf("[CONTENT] Malformed generator JSON (%d bytes), attempting repair", len(text))
	fixed, repairErr := jsonrepair.JSONRepair(text)
	if repairErr != nil {
		return false, fmt.Errorf("repair failed: %w", repairErr)
	}
	if err := json.Unmarshal([]byte(fixed), out); err != nil {
		return false, fmt.Errorf("repaired JSON still invalid: %w", err)
	}
	return true, nil
}
