package triage

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/onnwee/chat-triage/backend/ingest"
)

// ValidationError marks a malformed raw event. Dropped and counted, never
// retried.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Detail)
}

// Normalizer converts raw events into canonical Comments and computes the
// derived features the filter stages read.
type Normalizer struct{}

// rawKindMap translates the adapter vocabulary onto the canonical enum.
var rawKindMap = map[string]Kind{
	"chat":       KindChat,
	"emoji_chat": KindEmojiChat,
	"gift":       KindGift,
	"follow":     KindFollow,
	"like":       KindLike,
	"entry":      KindEntry,
	"stat":       KindStat,
}

// Normalize validates the raw event and builds the Comment. Unknown kinds and
// empty content fail with *ValidationError.
func (n *Normalizer) Normalize(ev ingest.RawEvent) (Comment, error) {
	kind, ok := rawKindMap[ev.Kind]
	if !ok {
		return Comment{}, &ValidationError{Field: "kind", Detail: fmt.Sprintf("unknown %q", ev.Kind)}
	}
	content := strings.TrimSpace(ev.Content)
	if content == "" && (kind == KindChat || kind == KindEmojiChat) {
		return Comment{}, &ValidationError{Field: "content", Detail: "empty"}
	}
	if ev.UserID == "" {
		return Comment{}, &ValidationError{Field: "user_id", Detail: "empty"}
	}
	at := ev.ReceivedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	length := utf8.RuneCountInString(content)
	return Comment{
		ID:          uuid.NewString(),
		Kind:        kind,
		Content:     content,
		UserID:      ev.UserID,
		DisplayName: ev.DisplayName,
		ReceivedAt:  at,
		Length:      length,
		EmojiRatio:  emojiRatio(content, length),
	}, nil
}

// emojiRanges covers the emoji blocks the ratio counts. Dingbats and Misc
// Symbols are included because chat clients emit both freely.
var emojiRanges = &unicode.RangeTable{
	R32: []unicode.Range32{
		{Lo: 0x1F300, Hi: 0x1F5FF, Stride: 1}, // misc symbols and pictographs
		{Lo: 0x1F600, Hi: 0x1F64F, Stride: 1}, // emoticons
		{Lo: 0x1F680, Hi: 0x1F6FF, Stride: 1}, // transport
		{Lo: 0x1F900, Hi: 0x1F9FF, Stride: 1}, // supplemental symbols
		{Lo: 0x1FA70, Hi: 0x1FAFF, Stride: 1}, // symbols extended-A
	},
	R16: []unicode.Range16{
		{Lo: 0x2600, Hi: 0x26FF, Stride: 1}, // misc symbols
		{Lo: 0x2700, Hi: 0x27BF, Stride: 1}, // dingbats
		{Lo: 0xFE0F, Hi: 0xFE0F, Stride: 1}, // variation selector
	},
}

func emojiRatio(s string, length int) float64 {
	if length == 0 {
		return 0
	}
	emoji := 0
	for _, r := range s {
		if unicode.Is(emojiRanges, r) {
			emoji++
		}
	}
	return float64(emoji) / float64(length)
}

// fingerprint chain: NFKC, case fold, strip combining and format marks, width
// fold. Order matters; a pool keeps per-call allocation off the hot path.
var fpChainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKC,
			cases.Fold(),
			runes.Remove(runes.In(unicode.Mn)),
			runes.Remove(runes.In(unicode.Cf)),
			width.Fold,
		)
	},
}

// NormalizeContent returns the canonical text form used for fingerprints and
// similarity checks: folded, stripped and whitespace-collapsed.
func NormalizeContent(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")

	tr := fpChainPool.Get().(transform.Transformer)
	ns, _, _ := transform.String(tr, s)
	tr.Reset()
	fpChainPool.Put(tr)

	return collapseSpaces(ns)
}

// Fingerprint hashes the normalized content. Used as the dedup and response
// cache key.
func Fingerprint(content string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(NormalizeContent(content)))
	return fmt.Sprintf("%016x", h.Sum64())
}

func collapseSpaces(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inWS := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWS = true
			continue
		}
		if inWS && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inWS = false
		b.WriteRune(r)
	}
	return b.String()
}
