package judge

import (
	"context"
	"fmt"
	"hash/fnv"
)

// Verdict is the judgment service's structured decision for one comment.
type Verdict struct {
	HasValue   bool    `json:"has_value"`
	ReplyText  string  `json:"reply_text,omitempty"`
	Confidence float64 `json:"confidence"`
	Cached     bool    `json:"-"`
}

// Provider is the judgment backend contract. Judge returns one verdict per
// item, in item order.
type Provider interface {
	Name() string
	Judge(ctx context.Context, items []Item) ([]Verdict, error)
}

// ProviderConfig carries the knobs the concrete providers need.
type ProviderConfig struct {
	APIKey  string
	APIBase string
	Model   string
}

// NewProvider selects the backend once at construction.
func NewProvider(kind string, cfg ProviderConfig) (Provider, error) {
	switch kind {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "local":
		return NewLocalProvider(cfg.APIBase), nil
	case "template":
		return &TemplateProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown judge provider %q", kind)
	}
}

// Canned replies per keyword category. The variant is picked by content hash
// so repeated questions rotate deterministically.
var templateReplies = map[string][]string{
	"booking": {
		"Happy to get you booked in! Tell us your party size and time and we'll sort it. Weekends fill up fast, so a day or two ahead is best.",
		"For reservations just drop the date, time and headcount here and we'll confirm right away.",
	},
	"price": {
		"Sets start from a very friendly price point, and there are bundle deals running right now. Check the pinned link for the full menu!",
		"Pricing is on the pinned card. Most guests land around the mid-range set, and the group deal is the best value.",
	},
	"hours": {
		"We're open 10:00 to 22:00 every day, lunch and dinner service both running.",
		"Doors open at 10 in the morning and we serve until 10 at night. Come by any time!",
	},
	"location": {
		"Search the shop name in your maps app and it'll take you straight to us. Parking is available nearby.",
		"We're right by the metro station, two minutes from the exit. Directions are in the pinned link.",
	},
	"menu": {
		"House signatures are the spicy pot and the poached fish. First-timers should absolutely start there!",
		"Crowd favourites: the signature pot and the house special. Regulars order them every single visit.",
	},
	"delivery": {
		"Delivery is available through the usual apps, insulated packaging and all. Usually at your door inside 30 minutes.",
		"We deliver! Order through the app link, and new customers get a discount on the first order.",
	},
	"contact": {
		"You can reach the team through the contact card in the profile. Customer service replies fast during stream hours.",
		"Contact details are in the profile link. Ping us there and we'll get right back to you.",
	},
}

const fallbackReply = "Thanks for the question! The team will follow up with details shortly."

// TemplateProvider answers from the canned tables without any network call.
// It is the default backend and the zero-cost fallback for local runs.
type TemplateProvider struct{}

func (p *TemplateProvider) Name() string { return "template" }

func (p *TemplateProvider) Judge(_ context.Context, items []Item) ([]Verdict, error) {
	out := make([]Verdict, len(items))
	for i, it := range items {
		replies, ok := templateReplies[it.Score.Category]
		if !ok || len(replies) == 0 {
			// No category matched; worth a reply only if the classifier was
			// confident.
			if it.Score.Probability >= 0.5 {
				out[i] = Verdict{HasValue: true, ReplyText: fallbackReply, Confidence: it.Score.Probability}
			} else {
				out[i] = Verdict{HasValue: false, Confidence: it.Score.Probability}
			}
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(it.Fingerprint))
		out[i] = Verdict{
			HasValue:   true,
			ReplyText:  replies[h.Sum32()%uint32(len(replies))],
			Confidence: 0.9,
		}
	}
	return out, nil
}
