package query

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/llm"
)

type mockJudge struct {
	mock.Mock
}

func (m *mockJudge) Judge(ctx context.Context, model, query, passage string) (llm.Judgment, error) {
	args := m.Called(ctx, model, query, passage)
	return args.Get(0).(llm.Judgment), args.Error(1)
}

func TestRerankScore_IsAProbability(t *testing.T) {
	cases := []struct{ yes, no float64 }{
		{-0.1, -2.3},
		{-2.3, -0.1},
		{-1, -1},
		{0, -50},
		{-50, 0},
		{-700, -0.5},
	}
	for _, c := range cases {
		score := RerankScore(c.yes, c.no)
		assert.Greater(t, score, 0.0, "yes=%v no=%v", c.yes, c.no)
		assert.Less(t, score, 1.0, "yes=%v no=%v", c.yes, c.no)
	}
}

func TestRerankScore_MonotoneInLogProbGap(t *testing.T) {
	prev := -1.0
	for gap := -10.0; gap <= 10.0; gap += 0.5 {
		score := RerankScore(gap, 0)
		assert.Greater(t, score, prev, "score must increase with yes_lp - no_lp")
		prev = score
	}
	// Equal log-probabilities land exactly in the middle.
	assert.InDelta(t, 0.5, RerankScore(-1, -1), 1e-12)
}

func TestReranker_DisabledIsPassthrough(t *testing.T) {
	cfg := testConfig()
	judge := new(mockJudge)
	r := NewReranker(judge, cfg, nil)

	in := []domain.SearchHit{hit("d1", "a", 0.9), hit("d2", "b", 0.8)}
	out, err := r.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	judge.AssertNotCalled(t, "Judge")
}

func TestReranker_SortsByJudgedProbability(t *testing.T) {
	cfg := testConfig()
	cfg.Query.RerankEnabled = true

	judge := new(mockJudge)
	judge.On("Judge", mock.Anything, "gpt-4o-mini", "q", "weak").
		Return(llm.Judgment{Label: "no", YesLogProb: -3, NoLogProb: -0.05}, nil)
	judge.On("Judge", mock.Anything, "gpt-4o-mini", "q", "strong").
		Return(llm.Judgment{Label: "yes", YesLogProb: -0.05, NoLogProb: -3}, nil)

	r := NewReranker(judge, cfg, nil)
	out, err := r.Rerank(context.Background(), "q", []domain.SearchHit{
		hit("d1", "weak", 0.9),
		hit("d2", "strong", 0.2),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "strong", out[0].Text, "judged relevance overrides similarity order")
	assert.True(t, out[0].Reranked)
	assert.Greater(t, out[0].RerankScore, out[1].RerankScore)
}

// Hits beyond max_candidates keep their similarity score and still sort
// against judged hits.
func TestReranker_CandidateWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Query.RerankEnabled = true
	cfg.Query.RerankMaxCandidates = 1

	judge := new(mockJudge)
	judge.On("Judge", mock.Anything, mock.Anything, "q", "judged").
		Return(llm.Judgment{Label: "yes", YesLogProb: -0.1, NoLogProb: -4}, nil).Once()

	r := NewReranker(judge, cfg, nil)
	out, err := r.Rerank(context.Background(), "q", []domain.SearchHit{
		hit("d1", "judged", 0.4),
		hit("d2", "unjudged", 0.6),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "judged", out[0].Text, "0.98 probability outranks 0.6 similarity")
	assert.False(t, out[1].Reranked)
	judge.AssertExpectations(t)
}

func TestReranker_ScoreThresholdDropsJudgedHits(t *testing.T) {
	cfg := testConfig()
	cfg.Query.RerankEnabled = true
	cfg.Query.RerankScoreThreshold = 0.5

	judge := new(mockJudge)
	judge.On("Judge", mock.Anything, mock.Anything, "q", "relevant").
		Return(llm.Judgment{Label: "yes", YesLogProb: -0.1, NoLogProb: -4}, nil)
	judge.On("Judge", mock.Anything, mock.Anything, "q", "irrelevant").
		Return(llm.Judgment{Label: "no", YesLogProb: -4, NoLogProb: -0.1}, nil)

	r := NewReranker(judge, cfg, nil)
	out, err := r.Rerank(context.Background(), "q", []domain.SearchHit{
		hit("d1", "relevant", 0.9),
		hit("d2", "irrelevant", 0.8),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "relevant", out[0].Text)
}

func TestReranker_MalformedJudgmentKeepsSimilarity(t *testing.T) {
	cfg := testConfig()
	cfg.Query.RerankEnabled = true

	judge := new(mockJudge)
	judge.On("Judge", mock.Anything, mock.Anything, "q", "odd").
		Return(llm.Judgment{}, domain.NewDomainError(domain.ErrCodeMalformedResponse, "token is neither yes nor no"))
	judge.On("Judge", mock.Anything, mock.Anything, "q", "fine").
		Return(llm.Judgment{Label: "yes", YesLogProb: -0.2, NoLogProb: -2}, nil)

	r := NewReranker(judge, cfg, nil)
	out, err := r.Rerank(context.Background(), "q", []domain.SearchHit{
		hit("d1", "odd", 0.9),
		hit("d2", "fine", 0.1),
	})
	require.NoError(t, err, "a malformed judgment degrades, it does not fail the query")
	require.Len(t, out, 2)

	var odd *domain.SearchHit
	for i := range out {
		if out[i].Text == "odd" {
			odd = &out[i]
		}
	}
	require.NotNil(t, odd)
	assert.False(t, odd.Reranked)
	assert.Zero(t, odd.RerankScore)
}

func TestReranker_JudgmentsCarryDeadline(t *testing.T) {
	cfg := testConfig()
	cfg.Query.RerankEnabled = true
	cfg.Query.RequestTimeout = time.Minute

	judge := new(mockJudge)
	judge.On("Judge", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			assert.True(t, ok, "every judgment call must carry a deadline")
		}).
		Return(llm.Judgment{Label: "yes", YesLogProb: -0.1, NoLogProb: -2}, nil)

	r := NewReranker(judge, cfg, nil)
	_, err := r.Rerank(context.Background(), "q", []domain.SearchHit{hit("d1", "text", 0.9)})
	require.NoError(t, err)
}

func TestReranker_ExtremeLogProbsStayFinite(t *testing.T) {
	score := RerankScore(-1e6, 0)
	assert.False(t, math.IsNaN(score))
	assert.GreaterOrEqual(t, score, 0.0)
	score = RerankScore(0, -1e6)
	assert.False(t, math.IsNaN(score))
	assert.LessOrEqual(t, score, 1.0)
}
