package llm

import (
	"errors"
	"math"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/domain"
)

func TestJudgmentFromLogProbs_BothLabelsPresent(t *testing.T) {
	first := openai.LogProb{
		Token:   "yes",
		LogProb: -0.1,
		TopLogProbs: []openai.TopLogProbs{
			{Token: "yes", LogProb: -0.1},
			{Token: "no", LogProb: -2.4},
		},
	}
	j, err := judgmentFromLogProbs(first)
	require.NoError(t, err)
	assert.Equal(t, "yes", j.Label)
	assert.InDelta(t, -0.1, j.YesLogProb, 1e-9)
	assert.InDelta(t, -2.4, j.NoLogProb, 1e-9)
}

func TestJudgmentFromLogProbs_NormalizesTokenShapes(t *testing.T) {
	first := openai.LogProb{
		Token:   " Yes",
		LogProb: -0.2,
		TopLogProbs: []openai.TopLogProbs{
			{Token: " Yes", LogProb: -0.2},
			{Token: "No.", LogProb: -1.9},
		},
	}
	j, err := judgmentFromLogProbs(first)
	require.NoError(t, err)
	assert.Equal(t, "yes", j.Label)
	assert.InDelta(t, -1.9, j.NoLogProb, 1e-9)
}

// A missing label takes the complement of the present one so the score
// still reflects the model's confidence.
func TestJudgmentFromLogProbs_MissingLabelUsesComplement(t *testing.T) {
	first := openai.LogProb{
		Token:       "no",
		LogProb:     -0.05,
		TopLogProbs: []openai.TopLogProbs{{Token: "no", LogProb: -0.05}},
	}
	j, err := judgmentFromLogProbs(first)
	require.NoError(t, err)
	assert.Equal(t, "no", j.Label)

	wantYes := math.Log(1 - math.Exp(-0.05))
	assert.InDelta(t, wantYes, j.YesLogProb, 1e-9)
	assert.Less(t, j.YesLogProb, j.NoLogProb)
}

func TestJudgmentFromLogProbs_NeitherLabelIsMalformed(t *testing.T) {
	first := openai.LogProb{
		Token:       "maybe",
		LogProb:     -0.1,
		TopLogProbs: []openai.TopLogProbs{{Token: "perhaps", LogProb: -0.4}},
	}
	_, err := judgmentFromLogProbs(first)
	require.Error(t, err)
	assert.True(t, domain.IsMalformed(err))
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "yes", normalizeLabel(" Yes."))
	assert.Equal(t, "no", normalizeLabel(`"No"`))
	assert.Equal(t, "maybe", normalizeLabel("maybe"))
}

func TestClassify_RateLimitAndServerErrorsAreTransient(t *testing.T) {
	assert.True(t, domain.IsTransient(classify(&openai.APIError{HTTPStatusCode: 429})))
	assert.True(t, domain.IsTransient(classify(&openai.APIError{HTTPStatusCode: 503})))
	assert.True(t, domain.IsTransient(classify(&openai.RequestError{HTTPStatusCode: 500, Err: errors.New("upstream")})))
}

func TestClassify_ClientErrorsAreNot(t *testing.T) {
	assert.False(t, domain.IsTransient(classify(&openai.APIError{HTTPStatusCode: 400})))
	assert.False(t, domain.IsTransient(classify(&openai.RequestError{HTTPStatusCode: 401, Err: errors.New("bad key")})))
	assert.False(t, domain.IsTransient(classify(errors.New("arbitrary"))))
}

func TestComplementLogProb_NearCertaintyStaysFinite(t *testing.T) {
	lp := complementLogProb(0) // p == 1
	assert.False(t, math.IsInf(lp, 0))
	assert.False(t, math.IsNaN(lp))
	assert.Less(t, lp, -1.0)
}
