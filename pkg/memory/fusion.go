package memory

import (
	"sort"
	"strings"
)

// RRF constants. Candidates found by both retrieval methods get a flat
// convergence bonus on top of their reciprocal-rank sum.
const (
	DefaultRRFK      = 60.0
	ConvergenceBonus = 0.1
)

// Candidate is one fused search candidate with its explainability fields.
type Candidate struct {
	ID int64 `json:"id"`

	// Score is the fused RRF score.
	Score float64 `json:"score"`

	// InVector / InLexical report which methods found the candidate.
	InVector  bool `json:"in_vector"`
	InLexical bool `json:"in_lexical"`

	// VectorRank / LexicalRank are 1-indexed positions; 0 means absent.
	VectorRank  int `json:"vector_rank,omitempty"`
	LexicalRank int `json:"lexical_rank,omitempty"`
}

// FuseRRF merges two independently ranked id lists with Reciprocal Rank
// Fusion: score(d) = Σ 1/(k + rank_m(d)) over the methods that returned d,
// ranks 1-indexed. Union semantics: an id on only one side still
// participates. Ids present in both lists receive the convergence bonus.
// Output is sorted by descending score, ties broken by ascending id.
func FuseRRF(vectorIDs, lexicalIDs []int64, k float64) []Candidate {
	if k <= 0 {
		k = DefaultRRFK
	}

	byID := make(map[int64]*Candidate, len(vectorIDs)+len(lexicalIDs))

	for i, id := range vectorIDs {
		rank := i + 1
		byID[id] = &Candidate{
			ID:         id,
			Score:      1.0 / (k + float64(rank)),
			InVector:   true,
			VectorRank: rank,
		}
	}

	for i, id := range lexicalIDs {
		rank := i + 1
		if c, ok := byID[id]; ok {
			c.Score += 1.0 / (k + float64(rank))
			c.Score += ConvergenceBonus
			c.InLexical = true
			c.LexicalRank = rank
			continue
		}
		byID[id] = &Candidate{
			ID:          id,
			Score:       1.0 / (k + float64(rank)),
			InLexical:   true,
			LexicalRank: rank,
		}
	}

	fused := make([]Candidate, 0, len(byID))
	for _, c := range byID {
		fused = append(fused, *c)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score == fused[j].Score {
			return fused[i].ID < fused[j].ID
		}
		return fused[i].Score > fused[j].Score
	})

	return fused
}

// Advanced score fusion constants. Distinct from the RRF constants above:
// the two algorithms are separately tuned and not meant to produce
// comparable magnitudes.
const (
	scoreFusionMinWeight = 0.25
	termMatchBonus       = 0.1
	termMatchBonusCap    = 0.2
	minTermLength        = 4
)

// FuseScores combines a raw semantic similarity and a raw keyword score:
// max of the two, plus a quarter of the min when both agree, plus a bonus
// for query terms longer than 3 characters found verbatim in the candidate
// text. The result is capped at 1.0.
func FuseScores(semantic, keyword float64, query, text string) float64 {
	score := semantic
	if keyword > score {
		score = keyword
	}
	if semantic > 0 && keyword > 0 {
		minScore := semantic
		if keyword < minScore {
			minScore = keyword
		}
		score += minScore * scoreFusionMinWeight
	}

	bonus := termMatchBonus * float64(countTermMatches(query, text))
	if bonus > termMatchBonusCap {
		bonus = termMatchBonusCap
	}
	score += bonus

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// countTermMatches counts query terms longer than 3 characters present
// verbatim (case-insensitive) in the text.
func countTermMatches(query, text string) int {
	loweredText := strings.ToLower(text)
	matches := 0
	for _, term := range strings.Fields(strings.ToLower(query)) {
		term = strings.Trim(term, ".,;:!?\"'()[]{}")
		if len(term) < minTermLength {
			continue
		}
		if strings.Contains(loweredText, term) {
			matches++
		}
	}
	return matches
}
