package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/leadwise/intel-server-go/internal/errors"
	"github.com/leadwise/intel-server-go/internal/model"
	"github.com/leadwise/intel-server-go/internal/util"
)

const extractorSystemPrompt = `You are a B2B sales analyst. Output STRICT JSON only with these EXACT fields:

{
  "intent": "buying" | "support" | "browsing" | "unknown",
  "sentiment": "positive" | "neutral" | "frustrated",
  "urgency": "high" | "medium" | "low",
  "budgetSignal": "high" | "low" | "none",
  "painPoints": ["specific problem 1", "problem 2"],
  "competitorMentions": ["CompanyName"],
  "recommendedAction": "schedule_demo" | "offer_discount" | "escalate" | "nurture" | "none"
}

STRICT RULES:
- intent: "buying" for ready to purchase, "browsing" for researching, "support" for help requests, "unknown" if unclear
- budgetSignal: "high" if enterprise/premium mentioned, "low" if price-sensitive, "none" if no budget mentioned
- recommendedAction: "schedule_demo" for engaged buyers, "offer_discount" for price concerns, "escalate" for frustrated or urgent, "nurture" for early-stage, "none" if too early to tell
- Output ONLY valid JSON, no markdown, no extra text
- Use exact values as shown above`

// ExtractorClient calls the external NLU collaborator: one request/response
// contract turning a conversation transcript into structured signals.
type ExtractorClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewExtractorClient(baseURL, apiKey, modelName string, timeout time.Duration) *ExtractorClient {
	return &ExtractorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   modelName,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract analyzes the ordered conversation turns. Timeout, transport
// failure or a malformed response all surface as ExtractionUnavailable,
// which the conversation manager treats as skip-this-turn.
func (c *ExtractorClient) Extract(ctx context.Context, turns []model.ConversationTurn) (model.ExtractedSignals, error) {
	transcript := buildTranscript(turns)

	body, err := json.Marshal(chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: extractorSystemPrompt},
			{Role: "user", Content: "Analyze this sales chat:\n\n" + transcript},
		},
		Temperature:    0.1,
		MaxTokens:      512,
		ResponseFormat: &chatFormat{Type: "json_object"},
	})
	if err != nil {
		return model.ExtractedSignals{}, apperrors.ExtractionUnavailable(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return model.ExtractedSignals{}, apperrors.ExtractionUnavailable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Warn().Err(err).Dur("elapsed", elapsed).Msg("extractor request failed")
		return model.ExtractedSignals{}, apperrors.ExtractionUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("extractor returned error status")
		return model.ExtractedSignals{}, apperrors.ExtractionUnavailable(fmt.Errorf("extractor status %d", resp.StatusCode))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return model.ExtractedSignals{}, apperrors.ExtractionUnavailable(fmt.Errorf("decode response: %w", err))
	}
	if len(completion.Choices) == 0 {
		return model.ExtractedSignals{}, apperrors.ExtractionUnavailable(fmt.Errorf("empty completion"))
	}

	var signals model.ExtractedSignals
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &signals); err != nil {
		log.Warn().Err(err).Str("content", util.Truncate(completion.Choices[0].Message.Content, 120)).Msg("extractor returned malformed signals")
		return model.ExtractedSignals{}, apperrors.ExtractionUnavailable(fmt.Errorf("parse signals: %w", err))
	}

	log.Debug().
		Str("intent", string(signals.Intent)).
		Str("sentiment", string(signals.Sentiment)).
		Dur("elapsed", elapsed).
		Msg("signals extracted")

	return signals.Normalize(), nil
}

func buildTranscript(turns []model.ConversationTurn) string {
	var b strings.Builder
	for _, turn := range turns {
		switch turn.Speaker {
		case model.SpeakerVisitor:
			b.WriteString("Customer: ")
		default:
			b.WriteString("Agent: ")
		}
		b.WriteString(turn.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
