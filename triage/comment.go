// Package triage implements the admission pipeline that decides, per chat
// event, whether it is worth an expensive judgment call: normalization, rule
// filtering, dedup, lexical scoring, a cheap classifier gate, and rate/budget
// admission control.
package triage

import "time"

// Kind is the canonical event category after normalization.
type Kind string

const (
	KindChat      Kind = "chat"
	KindEmojiChat Kind = "emoji_chat"
	KindGift      Kind = "gift"
	KindFollow    Kind = "follow"
	KindLike      Kind = "like"
	KindEntry     Kind = "entry"
	KindStat      Kind = "stat"
)

// Comment is the canonical record owned by the pipeline. Immutable after the
// normalizer creates it.
type Comment struct {
	ID          string
	Kind        Kind
	Content     string
	UserID      string
	DisplayName string
	ReceivedAt  time.Time

	// Derived at normalization.
	Length     int     // rune count
	EmojiRatio float64 // emoji runes / total runes, 0 for empty content
}

// Reason is the terminal disposition of a comment.
type Reason string

const (
	ReasonFiltered       Reason = "filtered"
	ReasonDuplicate      Reason = "duplicate"
	ReasonLowScore       Reason = "low-score"
	ReasonRateLimited    Reason = "rate-limited"
	ReasonBudgetExceeded Reason = "budget-exceeded"
	ReasonCacheHit       Reason = "cache-hit"
	ReasonAdmitted       Reason = "admitted"
)

// Decision records whether a comment may proceed to the costly stage.
type Decision struct {
	Accepted bool
	Reason   Reason
}

// Score carries the lexical and classifier outputs attached to a comment as
// it moves through the stages.
type Score struct {
	KeywordScore    float64
	MatchedKeywords []string
	Probability     float64
	Category        string // dominant positive keyword category, "" if none
}
