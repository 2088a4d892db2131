package safety

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModerationModel is used when no model is configured.
const DefaultModerationModel = "omni-moderation-latest"

// ModerationScorer scores toxicity with the OpenAI moderation endpoint.
type ModerationScorer struct {
	Model string
	Opts  []option.RequestOption
}

// NewModerationScorer builds a scorer. apiKey is required; baseURL is
// optional.
func NewModerationScorer(apiKey, baseURL, model string, extra ...option.RequestOption) (*ModerationScorer, error) {
	if apiKey == "" {
		return nil, errors.New("moderation api key missing")
	}
	if model == "" {
		model = DefaultModerationModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	return &ModerationScorer{Model: model, Opts: opts}, nil
}

// Toxicity returns the strongest harmful-category score as 0..100. Texts the
// endpoint neither flags nor scores at 0.5 or more count as clean.
func (s *ModerationScorer) Toxicity(ctx context.Context, text string) (int, []string, error) {
	client := openai.NewClient(s.Opts...)

	resp, err := client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.ModerationModel(s.Model),
	})
	if err != nil {
		return 0, nil, fmt.Errorf("moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return 0, nil, errors.New("moderation: empty results")
	}

	r := resp.Results[0]
	cs := r.CategoryScores
	top := max(
		cs.Harassment,
		cs.HarassmentThreatening,
		cs.Hate,
		cs.HateThreatening,
		cs.SelfHarm,
		cs.Sexual,
		cs.SexualMinors,
		cs.Violence,
	)
	if !r.Flagged && top < 0.5 {
		return 0, nil, nil
	}
	score := int(top * 100)
	return score, []string{fmt.Sprintf("AI detected toxic content (%d%% confidence)", score)}, nil
}
