package triage

import (
	"sort"
	"strings"
)

// keywordEntry ties a positive keyword to its weight and topic category. The
// category of the strongest match becomes the comment's category, which the
// template provider keys replies on.
type keywordEntry struct {
	weight   float64
	category string
}

// Default positive table. Bilingual: live audiences mix English and Chinese
// freely and substring matching handles both without tokenization.
var defaultPositive = map[string]keywordEntry{
	// booking
	"booking": {1.0, "booking"}, "reserve": {0.9, "booking"}, "appointment": {0.9, "booking"},
	"预约": {0.9, "booking"}, "订位": {0.9, "booking"}, "订桌": {0.9, "booking"}, "挂号": {0.9, "booking"},
	// price
	"price": {0.9, "price"}, "cost": {0.9, "price"}, "how much": {0.9, "price"}, "discount": {0.9, "price"},
	"价格": {0.9, "price"}, "多少钱": {0.9, "price"}, "费用": {0.9, "price"}, "收费": {0.9, "price"},
	"人均": {0.9, "price"}, "团购": {0.9, "price"}, "优惠": {0.9, "price"},
	// hours
	"open": {0.9, "hours"}, "close": {0.9, "hours"}, "hours": {0.9, "hours"},
	"营业时间": {0.9, "hours"}, "几点": {0.9, "hours"}, "什么时候": {0.9, "hours"}, "开门": {0.9, "hours"}, "关门": {0.9, "hours"},
	// location
	"address": {0.9, "location"}, "location": {0.9, "location"}, "where": {0.9, "location"}, "directions": {0.9, "location"},
	"地址": {0.9, "location"}, "位置": {0.9, "location"}, "在哪": {0.9, "location"}, "怎么走": {0.9, "location"}, "路线": {0.9, "location"},
	// menu
	"recommend": {0.9, "menu"}, "signature": {0.9, "menu"}, "special": {0.9, "menu"},
	"推荐": {0.9, "menu"}, "招牌": {0.9, "menu"}, "特色": {0.9, "menu"}, "必点": {0.9, "menu"}, "菜品": {0.9, "menu"},
	// delivery
	"delivery": {0.9, "delivery"}, "takeout": {0.9, "delivery"},
	"外卖": {0.9, "delivery"}, "送餐": {0.9, "delivery"}, "配送": {0.9, "delivery"}, "打包": {0.9, "delivery"},
	// contact
	"phone": {0.9, "contact"}, "contact": {0.9, "contact"},
	"电话": {0.9, "contact"}, "联系": {0.9, "contact"}, "微信": {0.9, "contact"}, "客服": {0.9, "contact"},
}

// Default negative table: filler praise and promo phrases.
var defaultNegative = map[string]float64{
	"lol": -0.5, "lmao": -0.5, "haha": -0.5, "nice": -0.3, "pog": -0.3, "gg": -0.3,
	"哈哈": -0.5, "呵呵": -0.5, "嘿嘿": -0.5, "666": -0.5, "999": -0.5,
	"厉害": -0.3, "棒": -0.3,
	"follow me": -1.0, "check my": -1.0, "free gift": -1.0,
	"刷屏": -1.0, "广告": -1.0, "加群": -1.0, "推广": -1.0, "代理": -1.0, "招聘": -1.0,
}

// KeywordScorer applies the weighted lexical tables. Pure; safe for
// concurrent use after construction.
type KeywordScorer struct {
	positive map[string]keywordEntry
	negative map[string]float64
}

// NewKeywordScorer builds a scorer. Non-nil override maps replace the
// built-in tables entirely; overrides carry no category.
func NewKeywordScorer(positive, negative map[string]float64) *KeywordScorer {
	s := &KeywordScorer{positive: defaultPositive, negative: defaultNegative}
	if positive != nil {
		s.positive = make(map[string]keywordEntry, len(positive))
		for kw, w := range positive {
			s.positive[kw] = keywordEntry{weight: w}
		}
	}
	if negative != nil {
		s.negative = negative
	}
	return s
}

// Score sums matched weights, clipped to [-1,1], and records the matches.
// Matching is case-folded substring containment over the normalized content.
func (s *KeywordScorer) Score(c Comment) Score {
	content := strings.ToLower(NormalizeContent(c.Content))
	var (
		total    float64
		matched  []string
		category string
		topW     float64
	)
	for kw, e := range s.positive {
		if strings.Contains(content, kw) {
			total += e.weight
			matched = append(matched, kw)
			if e.category != "" && e.weight > topW {
				topW = e.weight
				category = e.category
			}
		}
	}
	for kw, w := range s.negative {
		if strings.Contains(content, kw) {
			total += w
			matched = append(matched, kw)
		}
	}
	if total > 1 {
		total = 1
	}
	if total < -1 {
		total = -1
	}
	sort.Strings(matched)
	return Score{KeywordScore: total, MatchedKeywords: matched, Category: category}
}
