package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-resilience-engine/internal/config"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-resilience-engine/internal/core/engine"
)

type MockChatCompleter struct {
	mock.Mock
}

func (m *MockChatCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func completion(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}
}

func newTestGenerator(m *MockChatCompleter) *OpenAIGenerator {
	return &OpenAIGenerator{client: m, model: "test-model"}
}

func TestNewOpenAIGenerator(t *testing.T) {
	t.Run("Fail: Should require an API key", func(t *testing.T) {
		_, err := NewOpenAIGenerator(config.GeneratorConfig{})
		assert.ErrorIs(t, err, ErrMissingAPIKey)
	})

	t.Run("Success: Should default the model", func(t *testing.T) {
		gen, err := NewOpenAIGenerator(config.GeneratorConfig{APIKey: "sk-test"})
		require.NoError(t, err)
		assert.Equal(t, openai.GPT4oMini, gen.model)
	})
}

func TestOpenAIGenerator_GenerateHabitSet(t *testing.T) {
	ctx := context.Background()

	t.Run("Success: Should parse a JSON object and stamp the level", func(t *testing.T) {
		m := new(MockChatCompleter)
		scale := fmt.Sprintf("level 2 on a scale from 0 to %d", engine.MaxLevel(domain.IdentityCharacter))
		m.On("CreateChatCompletion", ctx, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
			return req.Model == "test-model" && len(req.Messages) == 2 &&
				req.ResponseFormat.Type == openai.ChatCompletionResponseFormatTypeJSONObject &&
				strings.Contains(req.Messages[1].Content, scale)
		})).Return(completion(`{"high":["Run 5k"],"medium":["Jog"],"low":["Shoes on"]}`), nil)

		set, err := newTestGenerator(m).GenerateHabitSet(ctx, "a runner", domain.IdentityCharacter, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"Run 5k"}, set.High)
		assert.Equal(t, 2, set.Level)
	})

	t.Run("Success: Should repair fenced and truncated JSON", func(t *testing.T) {
		m := new(MockChatCompleter)
		m.On("CreateChatCompletion", ctx, mock.Anything).
			Return(completion("```json\n{\"high\":[\"Run\"],\"medium\":[\"Jog\"],\"low\":[\"Walk\"\n```"), nil)

		set, err := newTestGenerator(m).GenerateHabitSet(ctx, "a runner", domain.IdentityCharacter, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"Walk"}, set.Low)
	})

	t.Run("Fail: Should wrap API errors as unavailable", func(t *testing.T) {
		m := new(MockChatCompleter)
		m.On("CreateChatCompletion", ctx, mock.Anything).
			Return(openai.ChatCompletionResponse{}, errors.New("429 too many requests"))

		_, err := newTestGenerator(m).GenerateHabitSet(ctx, "a runner", domain.IdentityCharacter, 0)
		assert.ErrorIs(t, err, domain.ErrGeneratorUnavailable)
	})

	t.Run("Fail: Should reject an empty completion", func(t *testing.T) {
		m := new(MockChatCompleter)
		m.On("CreateChatCompletion", ctx, mock.Anything).Return(openai.ChatCompletionResponse{}, nil)

		_, err := newTestGenerator(m).GenerateHabitSet(ctx, "a runner", domain.IdentityCharacter, 0)
		assert.ErrorIs(t, err, domain.ErrGeneratorUnavailable)
	})
}

func TestOpenAIGenerator_GenerateWeeklyReviewContent(t *testing.T) {
	ctx := context.Background()
	m := new(MockChatCompleter)
	var prompt string
	m.On("CreateChatCompletion", ctx, mock.Anything).Run(func(args mock.Arguments) {
		prompt = args.Get(1).(openai.ChatCompletionRequest).Messages[1].Content
	}).Return(completion(`{
		"reflection": "What made Tuesday easy?",
		"archetype": "Quiet Builder",
		"narrative": "You kept showing up."
	}`), nil)

	req := domain.WeeklyContentRequest{
		Identity:     domain.IdentityProfile{Identity: "a runner", Stage: domain.StageInitiation},
		Persona:      domain.PersonaGrinder,
		Momentum:     14.5,
		MissedHabits: map[string]int{"Jog": 2},
	}
	content, err := newTestGenerator(m).GenerateWeeklyReviewContent(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "Quiet Builder", content.Archetype)
	assert.Contains(t, prompt, "momentum 14.5 out of 21")
	assert.NotContains(t, prompt, "%")
	assert.NotContains(t, prompt, `"habits"`)
	assert.Contains(t, prompt, "Jog (2)")
}

func TestOpenAIGenerator_GenerateDailyAdaptation(t *testing.T) {
	ctx := context.Background()
	m := new(MockChatCompleter)
	m.On("CreateChatCompletion", ctx, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Messages[1].Role == openai.ChatMessageRoleUser &&
			strings.Contains(req.Messages[1].Content, "easier")
	})).Return(completion(`{"high":["Run 3k"],"medium":["Walk"],"low":["Stretch"]}`), nil)

	current := domain.HabitSet{High: []string{"Run 5k"}, Medium: []string{"Jog"}, Low: []string{"Shoes on"}, Level: 2}
	set, err := newTestGenerator(m).GenerateDailyAdaptation(ctx, "a runner", domain.AdaptEasier, current)
	require.NoError(t, err)
	assert.Equal(t, []string{"Run 3k"}, set.High)
}

func TestWrapWithRateLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("Success: Should pass through while under the limit", func(t *testing.T) {
		m := new(MockChatCompleter)
		m.On("CreateChatCompletion", ctx, mock.Anything).
			Return(completion(`{"high":["a"],"medium":["b"],"low":["c"]}`), nil).Once()

		gen := WrapWithRateLimit(newTestGenerator(m), 1, 1)
		_, err := gen.GenerateHabitSet(ctx, "a runner", domain.IdentityCharacter, 0)
		require.NoError(t, err)

		_, err = gen.GenerateHabitSet(ctx, "a runner", domain.IdentityCharacter, 0)
		assert.ErrorIs(t, err, domain.ErrGeneratorUnavailable)
		m.AssertExpectations(t)
	})

	t.Run("Success: Should disable limiting for a zero rate", func(t *testing.T) {
		base := newTestGenerator(new(MockChatCompleter))
		assert.Same(t, base, WrapWithRateLimit(base, 0, 5))
	})
}
