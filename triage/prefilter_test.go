package triage

import "testing"

func defaultPreFilter() *PreFilter {
	return &PreFilter{MinLen: 2, MaxLen: 500, EmojiCeiling: 0.7}
}

func TestPreFilterRejectsNonChatKinds(t *testing.T) {
	f := defaultPreFilter()
	for _, kind := range []Kind{KindGift, KindFollow, KindLike, KindEntry, KindStat} {
		d := f.Check(Comment{Kind: kind, Content: "thanks for the gift", Length: 19})
		if d.Accepted {
			t.Errorf("kind %v should be filtered", kind)
		}
		if d.Reason != ReasonFiltered {
			t.Errorf("kind %v reason = %v, want filtered", kind, d.Reason)
		}
	}
}

func TestPreFilterLengthBounds(t *testing.T) {
	f := defaultPreFilter()
	if d := f.Check(Comment{Kind: KindChat, Content: "k", Length: 1}); d.Accepted {
		t.Error("single rune should be filtered")
	}
	if d := f.Check(Comment{Kind: KindChat, Content: "ok", Length: 2}); !d.Accepted {
		t.Error("two runes should pass")
	}
	long := Comment{Kind: KindChat, Length: 501}
	if d := f.Check(long); d.Accepted {
		t.Error("overlong content should be filtered")
	}
}

func TestPreFilterEmojiCeiling(t *testing.T) {
	f := defaultPreFilter()
	d := f.Check(Comment{Kind: KindChat, Length: 6, EmojiRatio: 1.0})
	if d.Accepted || d.Reason != ReasonFiltered {
		t.Errorf("all-emoji comment = %+v, want filtered", d)
	}
	// Exactly at the ceiling passes; only strictly above is rejected.
	if d := f.Check(Comment{Kind: KindChat, Length: 10, EmojiRatio: 0.7}); !d.Accepted {
		t.Error("ratio at ceiling should pass")
	}
	if d := f.Check(Comment{Kind: KindChat, Length: 10, EmojiRatio: 0.71}); d.Accepted {
		t.Error("ratio above ceiling should be filtered")
	}
}

func TestPreFilterAcceptsEmojiChatKind(t *testing.T) {
	f := defaultPreFilter()
	d := f.Check(Comment{Kind: KindEmojiChat, Content: "Kappa Kappa", Length: 11, EmojiRatio: 0})
	if !d.Accepted {
		t.Error("emoji_chat kind within limits should pass")
	}
}
