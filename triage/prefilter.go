package triage

// PreFilter is the stateless rule gate ahead of any scoring. Only chat-like
// kinds are judged; length and emoji density bound out barrage spam.
type PreFilter struct {
	MinLen       int
	MaxLen       int
	EmojiCeiling float64
}

// Check returns the decision for c. Rejections are terminal with reason
// "filtered"; accepted comments continue to dedup.
func (f *PreFilter) Check(c Comment) Decision {
	if c.Kind != KindChat && c.Kind != KindEmojiChat {
		return Decision{Accepted: false, Reason: ReasonFiltered}
	}
	if c.Length < f.MinLen || c.Length > f.MaxLen {
		return Decision{Accepted: false, Reason: ReasonFiltered}
	}
	if c.EmojiRatio > f.EmojiCeiling {
		return Decision{Accepted: false, Reason: ReasonFiltered}
	}
	return Decision{Accepted: true, Reason: ReasonAdmitted}
}
