package warmer

import (
	"math"
	"time"

	"github.com/flipsync/costwise/internal/cache"
)

// similarityDiscount keeps content-similarity candidates below a perfect
// score; resemblance is weaker evidence than direct observation.
const similarityDiscount = 0.8

// recentWindow bounds what "recently accessed" means for the similarity
// strategy.
const recentWindow = 10 * time.Minute

func (w *Warmer) runStrategy(s Strategy, patterns []*UsagePattern, pctx PredictionContext) []Candidate {
	switch s {
	case StrategyUsageFrequency:
		return predictByFrequency(patterns)
	case StrategyTemporalRegularity:
		return predictByRegularity(patterns, pctx.Horizon)
	case StrategyContentSimilarity:
		return predictBySimilarity(patterns)
	case StrategyMarketplaceAffinity:
		return predictByAffinity(patterns, pctx)
	default:
		return nil
	}
}

// predictByFrequency scores each pattern by its share of the heaviest
// pattern's access count.
func predictByFrequency(patterns []*UsagePattern) []Candidate {
	var max int64
	for _, p := range patterns {
		if p.AccessCount > max {
			max = p.AccessCount
		}
	}
	if max == 0 {
		return nil
	}

	out := make([]Candidate, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, candidateFrom(p, StrategyUsageFrequency,
			float64(p.AccessCount)/float64(max)))
	}
	return out
}

// predictByRegularity scores patterns whose accesses arrive at consistent
// intervals and whose next expected access falls within the horizon.
// Confidence is one minus the coefficient of variation of the intervals.
func predictByRegularity(patterns []*UsagePattern, horizon time.Duration) []Candidate {
	now := time.Now()
	var out []Candidate
	for _, p := range patterns {
		if len(p.AccessTimes) < 3 {
			continue
		}

		intervals := make([]float64, 0, len(p.AccessTimes)-1)
		for i := 1; i < len(p.AccessTimes); i++ {
			intervals = append(intervals, p.AccessTimes[i].Sub(p.AccessTimes[i-1]).Seconds())
		}

		mean := meanOf(intervals)
		if mean <= 0 {
			continue
		}
		cv := math.Sqrt(varianceOf(intervals, mean)) / mean
		confidence := 1.0 - cv
		if confidence <= 0 {
			continue
		}

		// Overdue accesses count as due; only far-future ones are skipped.
		nextAt := p.LastAccess.Add(time.Duration(mean * float64(time.Second)))
		if nextAt.After(now.Add(horizon)) {
			continue
		}

		out = append(out, candidateFrom(p, StrategyTemporalRegularity, confidence))
	}
	return out
}

// predictBySimilarity scores each pattern by its best token overlap with
// any pattern accessed inside the recent window.
func predictBySimilarity(patterns []*UsagePattern) []Candidate {
	cutoff := time.Now().Add(-recentWindow)
	var recent []*UsagePattern
	for _, p := range patterns {
		if p.LastAccess.After(cutoff) {
			recent = append(recent, p)
		}
	}
	if len(recent) == 0 {
		return nil
	}

	var scorer cache.TokenOverlap
	var out []Candidate
	for _, p := range patterns {
		var best float64
		for _, r := range recent {
			if r.Key == p.Key {
				continue
			}
			if s := scorer.Score(p.tokens, r.tokens); s > best {
				best = s
			}
		}
		if best > 0 {
			out = append(out, candidateFrom(p, StrategyContentSimilarity, best*similarityDiscount))
		}
	}
	return out
}

// predictByAffinity scores patterns from the marketplace the prediction
// context names, lifted by category match and access frequency.
func predictByAffinity(patterns []*UsagePattern, pctx PredictionContext) []Candidate {
	if pctx.Marketplace == "" {
		return nil
	}

	var max int64
	for _, p := range patterns {
		if p.Marketplace == pctx.Marketplace && p.AccessCount > max {
			max = p.AccessCount
		}
	}
	if max == 0 {
		return nil
	}

	var out []Candidate
	for _, p := range patterns {
		if p.Marketplace != pctx.Marketplace {
			continue
		}
		confidence := 0.6 + 0.3*float64(p.AccessCount)/float64(max)
		if pctx.Category != "" && p.Category == pctx.Category {
			confidence += 0.1
		}
		if confidence > 1.0 {
			confidence = 1.0
		}
		out = append(out, candidateFrom(p, StrategyMarketplaceAffinity, confidence))
	}
	return out
}

func candidateFrom(p *UsagePattern, s Strategy, confidence float64) Candidate {
	return Candidate{
		Key:         p.Key,
		Operation:   p.Operation,
		Content:     p.Content,
		Confidence:  confidence,
		Strategy:    s,
		Marketplace: p.Marketplace,
		Category:    p.Category,
	}
}

func meanOf(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func varianceOf(vals []float64, mean float64) float64 {
	var sum float64
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(vals))
}
