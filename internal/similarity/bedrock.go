package similarity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/ignite/loadboard/internal/pkg/logger"
)

// DefaultBedrockModel is used when no model id is configured.
const DefaultBedrockModel = "anthropic.claude-3-haiku-20240307-v1:0"

// ModelInvoker is the subset of *bedrockruntime.Client the scorer calls.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockScorer asks a model to explain the matches found by a base scorer.
// The base result stands on its own when the model call fails.
type BedrockScorer struct {
	base    Scorer
	client  ModelInvoker
	modelID string
}

func NewBedrockScorer(base Scorer, client ModelInvoker, modelID string) *BedrockScorer {
	if modelID == "" {
		modelID = DefaultBedrockModel
	}
	return &BedrockScorer{base: base, client: client, modelID: modelID}
}

// NewBedrockScorerFromConfig builds the runtime client from an AWS config.
func NewBedrockScorerFromConfig(base Scorer, cfg aws.Config, modelID string) *BedrockScorer {
	return NewBedrockScorer(base, bedrockruntime.NewFromConfig(cfg), modelID)
}

type bedrockMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature"`
}

type bedrockResponse struct {
	Content []contentBlock `json:"content"`
}

// aiVerdict is the JSON the model is told to answer with.
type aiVerdict struct {
	Reasons []struct {
		LoadIndex int    `json:"loadIndex"`
		Reason    string `json:"reason"`
	} `json:"reasons"`
	Insights []string `json:"insights"`
}

const systemPrompt = `You review freight loads that a shipper is bulk-uploading to a load board.
For each pair of loads you are given, explain in one short sentence why they may be the same shipment.
Then give at most three short insights about the batch as a whole.
Answer with JSON only: {"reasons":[{"loadIndex":<int>,"reason":"..."}],"insights":["..."]}`

func (s *BedrockScorer) CheckDuplicates(ctx context.Context, loads []Load, opts Options) (Result, error) {
	res, err := s.base.CheckDuplicates(ctx, loads, opts)
	if err != nil || len(res.Duplicates) == 0 {
		return res, err
	}

	verdict, err := s.explain(ctx, loads, res.Duplicates)
	if err != nil {
		logger.Warn("similarity: bedrock explanation failed", "model", s.modelID, "error", err)
		return res, nil
	}

	reasons := make(map[int]string, len(verdict.Reasons))
	for _, r := range verdict.Reasons {
		reasons[r.LoadIndex] = strings.TrimSpace(r.Reason)
	}
	for i := range res.Duplicates {
		if r, ok := reasons[res.Duplicates[i].LoadIndex]; ok {
			res.Duplicates[i].AIReason = r
		}
	}
	res.Suggestions.AIInsights = append(res.Suggestions.AIInsights, verdict.Insights...)
	return res, nil
}

func (s *BedrockScorer) explain(ctx context.Context, loads []Load, dups []Duplicate) (*aiVerdict, error) {
	var b strings.Builder
	for _, d := range dups {
		a, m := loads[d.LoadIndex], loads[d.MatchedIndex]
		fmt.Fprintf(&b, "loadIndex %d vs %d (%s, overall %.2f):\n  new: %s | %s -> %s | pickup %s | rate %s\n  earlier: %s | %s -> %s | pickup %s | rate %s\n",
			d.LoadIndex, d.MatchedIndex, d.MatchType, d.Similarity.Overall,
			a.EquipmentType, a.Origin, a.Destination, a.PickupDate, formatRate(a.Rate),
			m.EquipmentType, m.Origin, m.Destination, m.PickupDate, formatRate(m.Rate))
	}

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        1024,
		System:           systemPrompt,
		Messages:         []bedrockMessage{{Role: "user", Content: []contentBlock{{Type: "text", Text: b.String()}}}},
		Temperature:      0,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	out, err := s.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(s.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}

	raw := text.String()
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model answer")
	}
	var v aiVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}
	return &v, nil
}

func formatRate(r *float64) string {
	if r == nil {
		return "n/a"
	}
	return fmt.Sprintf("$%.2f", *r)
}
