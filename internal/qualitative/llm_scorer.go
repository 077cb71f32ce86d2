package qualitative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"snapforecast/internal/llm"
	"snapforecast/internal/logging"
)

const maxPromptRunes = 4000

// BreakerConfig controls when repeated service failures stop further calls for a while.
type BreakerConfig struct {
	FailureThreshold uint
	Window           uint
	Delay            time.Duration
}

// DefaultBreakerConfig opens after 5 failures in 10 calls and retries after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Window: 10, Delay: 30 * time.Second}
}

// LLMScorer asks a chat-completions model for axis scores.
type LLMScorer struct {
	Client      llm.ChatClient
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Logger      logging.Logger

	breaker circuitbreaker.CircuitBreaker[scoreResult]
}

// NewLLMScorer wires a scorer with a circuit breaker in front of the client.
func NewLLMScorer(client llm.ChatClient, model string, breaker BreakerConfig, logger logging.Logger) *LLMScorer {
	logger = logging.OrDiscard(logger)
	if breaker.Window == 0 {
		breaker = DefaultBreakerConfig()
	}
	cb := circuitbreaker.NewBuilder[scoreResult]().
		WithFailureThresholdRatio(breaker.FailureThreshold, breaker.Window).
		WithDelay(breaker.Delay).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.WithFields(logging.Fields{
				"from_state": event.OldState,
				"to_state":   event.NewState,
			}).Warn("qualitative scoring breaker state change")
		}).
		Build()

	return &LLMScorer{
		Client:      client,
		Model:       model,
		Temperature: 0.1,
		MaxTokens:   512,
		Logger:      logger,
		breaker:     cb,
	}
}

// Score implements Scorer. A single attempt is made per call.
func (s *LLMScorer) Score(ctx context.Context, text string, axes []Axis) (Scores, error) {
	if s.Client == nil || s.Model == "" {
		return nil, ErrUnavailable
	}
	if len(axes) == 0 {
		return Scores{}, nil
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	call := func() (scoreResult, error) {
		resp, err := s.Client.ChatCompletion(ctx, llm.ChatCompletionRequest{
			Model:          s.Model,
			Messages:       buildPrompt(text, axes),
			Temperature:    s.Temperature,
			MaxTokens:      s.MaxTokens,
			ResponseFormat: llm.JSONObject,
		})
		if err != nil {
			return scoreResult{}, err
		}
		scores, perr := ParseScores(resp.Content(), axes)
		return scoreResult{scores: scores, parseErr: perr}, nil
	}

	var (
		res scoreResult
		err error
	)
	if s.breaker != nil {
		res, err = failsafe.With(s.breaker).WithContext(ctx).Get(call)
	} else {
		res, err = call()
	}

	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return nil, ErrUnavailable
	case err != nil:
		return nil, fmt.Errorf("qualitative: score: %w", err)
	case res.parseErr != nil:
		s.Logger.WithError(res.parseErr).Debug("qualitative score response dropped")
		return res.scores, res.parseErr
	}
	return res.scores, nil
}

// scoreResult keeps parse failures out of the breaker's failure count: the service did answer.
type scoreResult struct {
	scores   Scores
	parseErr error
}

func buildPrompt(text string, axes []Axis) []llm.Message {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > maxPromptRunes {
		runes = runes[:maxPromptRunes]
	}

	var axisList strings.Builder
	example := make(map[string]float64, len(axes))
	for _, a := range axes {
		fmt.Fprintf(&axisList, "- %s: %s [0,10]\n", a.Name, a.Description)
		example[a.Name] = 5
	}
	exampleJSON, _ := json.Marshal(example)

	system := "You are an analyst scoring crypto social media posts for an attention-economy leaderboard. Respond STRICTLY with a single JSON object."
	user := fmt.Sprintf(`Score the content below on each axis. Every score is a number between 0 and 10.
Axes:
%s
Respond with JSON using exactly these keys, for example:
%s

Content:
%s`, axisList.String(), string(exampleJSON), string(runes))

	return []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

// ParseScores decodes a service reply. Only requested axes with numeric values survive, each clamped
// into [0,10]. A reply with no JSON object, or with none of the requested axes usable, is ErrParseFailure.
func ParseScores(content string, axes []Axis) (Scores, error) {
	payload := llm.ExtractJSON(content)
	if payload == "" {
		return nil, fmt.Errorf("%w: no json object", ErrParseFailure)
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(payload)))
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}

	scores := make(Scores, len(axes))
	for _, a := range axes {
		v, ok := raw[a.Name]
		if !ok {
			continue
		}
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		f, err := num.Float64()
		if err != nil {
			continue
		}
		scores[a.Name] = Clamp(f)
	}
	if len(scores) == 0 {
		return scores, fmt.Errorf("%w: no requested axes present", ErrParseFailure)
	}
	return scores, nil
}
