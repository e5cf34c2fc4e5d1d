package triage

import (
	"math"
	"regexp"
	"strings"
)

// Classifier is the cheap statistical gate ahead of admission: a small
// logistic model over the keyword score, question-likeness and length. No
// I/O; strictly cheaper than anything past the admission controller.
type Classifier struct {
	Threshold float64
}

// Question patterns, English and Chinese interrogatives.
var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?？]`),
	regexp.MustCompile(`(?i)\b(how|what|when|where|which|why|who|can|could|do|does|is|are)\b`),
	regexp.MustCompile(`怎么|什么|哪里|在哪|几点|多少`),
	regexp.MustCompile(`(可以|能|有).*吗`),
}

// questionScore is 0.5 per matched pattern group, capped at 1.
func questionScore(content string) float64 {
	score := 0.0
	for _, p := range questionPatterns {
		if p.MatchString(content) {
			score += 0.5
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Model coefficients. Keyword evidence dominates; question shape and length
// nudge the estimate.
const (
	coefBias     = -3.0
	coefKeyword  = 3.2
	coefQuestion = 1.8
	coefLength   = 0.6
)

// Probability estimates the chance the comment is worth a judgment call.
func (g *Classifier) Probability(c Comment, s Score) float64 {
	content := strings.ToLower(c.Content)
	q := questionScore(content)
	lenNorm := math.Min(1, float64(c.Length)/50)
	z := coefBias + coefKeyword*s.KeywordScore + coefQuestion*q + coefLength*lenNorm
	return 1 / (1 + math.Exp(-z))
}

// Check fills in s.Probability and gates on the threshold. Rejections carry
// reason "low-score" and cost nothing.
func (g *Classifier) Check(c Comment, s *Score) Decision {
	s.Probability = g.Probability(c, *s)
	if s.Probability < g.Threshold {
		return Decision{Accepted: false, Reason: ReasonLowScore}
	}
	return Decision{Accepted: true, Reason: ReasonAdmitted}
}
