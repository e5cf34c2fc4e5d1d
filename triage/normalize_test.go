package triage

import (
	"errors"
	"testing"
	"time"

	"github.com/onnwee/chat-triage/backend/ingest"
)

func rawChat(content string) ingest.RawEvent {
	return ingest.RawEvent{
		Kind:        "chat",
		Content:     content,
		UserID:      "u1",
		DisplayName: "User One",
		ReceivedAt:  time.Now().UTC(),
	}
}

func TestNormalizeBuildsComment(t *testing.T) {
	n := &Normalizer{}
	c, err := n.Normalize(rawChat("price please, how much per session?"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if c.Kind != KindChat {
		t.Errorf("Kind = %v, want chat", c.Kind)
	}
	if c.Length != 35 {
		t.Errorf("Length = %d, want 35", c.Length)
	}
	if c.EmojiRatio != 0 {
		t.Errorf("EmojiRatio = %v, want 0", c.EmojiRatio)
	}
	if c.ID == "" {
		t.Error("ID should be assigned")
	}
}

func TestNormalizeRejectsUnknownKind(t *testing.T) {
	n := &Normalizer{}
	ev := rawChat("hello")
	ev.Kind = "superchat"
	_, err := n.Normalize(ev)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Normalize() error = %v, want *ValidationError", err)
	}
	if verr.Field != "kind" {
		t.Errorf("Field = %q, want kind", verr.Field)
	}
}

func TestNormalizeRejectsEmptyContent(t *testing.T) {
	n := &Normalizer{}
	ev := rawChat("   ")
	if _, err := n.Normalize(ev); err == nil {
		t.Fatal("Normalize() should reject blank chat content")
	}
}

func TestNormalizeRejectsMissingUser(t *testing.T) {
	n := &Normalizer{}
	ev := rawChat("hello there")
	ev.UserID = ""
	if _, err := n.Normalize(ev); err == nil {
		t.Fatal("Normalize() should reject missing user id")
	}
}

func TestEmojiRatioAllEmoji(t *testing.T) {
	n := &Normalizer{}
	c, err := n.Normalize(rawChat("😂😂😂😂😂😂"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if c.EmojiRatio != 1.0 {
		t.Errorf("EmojiRatio = %v, want 1.0", c.EmojiRatio)
	}
}

func TestEmojiRatioMixed(t *testing.T) {
	n := &Normalizer{}
	c, err := n.Normalize(rawChat("nice 🔥🔥"))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	// 2 emoji out of 7 runes
	if c.EmojiRatio <= 0.2 || c.EmojiRatio >= 0.4 {
		t.Errorf("EmojiRatio = %v, want ~0.286", c.EmojiRatio)
	}
}

func TestNormalizeContentFolds(t *testing.T) {
	cases := []struct{ a, b string }{
		{"Price Please", "price please"},
		{"ＰＲＩＣＥ", "price"},              // fullwidth
		{"price   please", "price please"}, // whitespace runs
	}
	for _, tc := range cases {
		if got := NormalizeContent(tc.a); got != NormalizeContent(tc.b) {
			t.Errorf("NormalizeContent(%q) = %q, want same as %q", tc.a, got, tc.b)
		}
	}
}

func TestFingerprintStableAcrossVariants(t *testing.T) {
	a := Fingerprint("How Much Per Session?")
	b := Fingerprint("how much   per session?")
	if a != b {
		t.Errorf("fingerprints differ: %s vs %s", a, b)
	}
	c := Fingerprint("completely different text")
	if a == c {
		t.Error("distinct content should not collide")
	}
}
