package salesflow

import (
	"strings"
	"unicode/utf8"
)

// Intent labels what kind of conversation the user is having.
type Intent string

const (
	IntentSalesAI    Intent = "SALES_AI"
	IntentRealEstate Intent = "REAL_ESTATE"
	IntentSmallTalk  Intent = "SMALL_TALK"
)

// ParseIntent converts a stored label into an Intent.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(strings.ToUpper(strings.TrimSpace(s))) {
	case IntentSalesAI:
		return IntentSalesAI, true
	case IntentRealEstate:
		return IntentRealEstate, true
	case IntentSmallTalk:
		return IntentSmallTalk, true
	}
	return "", false
}

// SlotBearing reports whether the intent collects slots.
func (i Intent) SlotBearing() bool {
	return i == IntentSalesAI || i == IntentRealEstate
}

// ObjectionType classifies a user objection.
type ObjectionType string

const (
	ObjectionPrice      ObjectionType = "price"
	ObjectionTiming     ObjectionType = "timing"
	ObjectionNeed       ObjectionType = "need"
	ObjectionTrust      ObjectionType = "trust"
	ObjectionCompetitor ObjectionType = "competitor"
	ObjectionOther      ObjectionType = "other"
)

// ----------------------------------------------------------------------------
// Strategies

// StageDetector decides the next stage from a message. It must be a pure
// function of its inputs.
type StageDetector interface {
	DetectTransition(message string, current Stage, isFirst bool) (Stage, bool)
}

// GreetingDetector reports whether a message looks like the start of a new
// conversation.
type GreetingDetector interface {
	IsGreeting(message string) bool
}

// IntentClassifier labels a message, optionally considering the prior label.
type IntentClassifier interface {
	Classify(message string, prior Intent) Intent
}

// ObjectionClassifier labels an objection message.
type ObjectionClassifier interface {
	ClassifyObjection(message string) ObjectionType
}

// ----------------------------------------------------------------------------
// Transition table

// TransitionRule moves to To when Keywords match.
type TransitionRule struct {
	Keywords KeywordSet
	To       Stage
}

// TransitionTable maps a stage to its rules, checked in order.
type TransitionTable map[Stage][]TransitionRule

// DefaultTransitions is the forward-only script table.
func DefaultTransitions() TransitionTable {
	return TransitionTable{
		StageGreeting: {
			{Keywords: needsKeywords, To: StageNeedsDiscovery},
			{Keywords: presentationKeywords, To: StagePresentation},
		},
		StageNeedsDiscovery: {
			{Keywords: presentationKeywords, To: StagePresentation},
			{Keywords: objectionKeywords, To: StageObjections},
			{Keywords: consultationKeywords, To: StageConsultationOffer},
		},
		StagePresentation: {
			{Keywords: objectionKeywords, To: StageObjections},
			{Keywords: consultationKeywords, To: StageConsultationOffer},
			{Keywords: schedulingKeywords, To: StageScheduling},
		},
		StageObjections: {
			{Keywords: consultationKeywords, To: StageConsultationOffer},
			{Keywords: schedulingKeywords, To: StageScheduling},
		},
		StageConsultationOffer: {
			{Keywords: schedulingKeywords, To: StageScheduling},
		},
	}
}

// KeywordDetector is the default StageDetector.
type KeywordDetector struct {
	Greeting KeywordSet
	Table    TransitionTable
}

// NewKeywordDetector returns a detector over the default tables.
func NewKeywordDetector() *KeywordDetector {
	return &KeywordDetector{Greeting: greetingKeywords, Table: DefaultTransitions()}
}

// DetectTransition returns the next stage, or false to stay. A greeting on
// the first message pins GREETING. Rules never move backward; a table entry
// pointing at an earlier stage is ignored.
func (d *KeywordDetector) DetectTransition(message string, current Stage, isFirst bool) (Stage, bool) {
	text := Normalize(message)
	if isFirst && d.Greeting.Match(text) {
		return StageGreeting, true
	}
	for _, rule := range d.Table[current] {
		if !current.Before(rule.To) {
			continue
		}
		if rule.Keywords.Match(text) {
			return rule.To, true
		}
	}
	return "", false
}

// ----------------------------------------------------------------------------
// Greeting

// maxGreetingRunes bounds how long a message can be for an embedded
// greeting keyword to count.
const maxGreetingRunes = 50

// KeywordGreeting is the default GreetingDetector. A message is a greeting
// when it is short and contains a greeting keyword, or when it opens with
// one.
type KeywordGreeting struct {
	Keywords KeywordSet
	MaxRunes int
}

// NewKeywordGreeting returns a detector over the default greeting keywords.
func NewKeywordGreeting() *KeywordGreeting {
	return &KeywordGreeting{Keywords: greetingKeywords, MaxRunes: maxGreetingRunes}
}

func (g *KeywordGreeting) IsGreeting(message string) bool {
	text := Normalize(message)
	if text == "" {
		return false
	}
	if utf8.RuneCountInString(text) <= g.MaxRunes && g.Keywords.Match(text) {
		return true
	}
	return g.Keywords.HasPrefix(text)
}

// ----------------------------------------------------------------------------
// Intent

// KeywordIntentClassifier scores messages against weighted keyword lists.
// Important keywords weigh 2, the rest 1.
type KeywordIntentClassifier struct {
	Sales, SalesImportant           KeywordSet
	RealEstate, RealEstateImportant KeywordSet
	SmallTalk                       KeywordSet
}

// NewKeywordIntentClassifier returns a classifier over the default tables.
func NewKeywordIntentClassifier() *KeywordIntentClassifier {
	return &KeywordIntentClassifier{
		Sales:               salesKeywords,
		SalesImportant:      salesImportant,
		RealEstate:          realEstateKeywords,
		RealEstateImportant: realEstateImportant,
		SmallTalk:           smallTalkKeywords,
	}
}

func (c *KeywordIntentClassifier) Classify(message string, prior Intent) Intent {
	text := Normalize(message)
	if text == "" {
		return IntentSmallTalk
	}
	sales := weightedScore(text, c.Sales, c.SalesImportant)
	realEstate := weightedScore(text, c.RealEstate, c.RealEstateImportant)
	small := c.SmallTalk.Count(text)

	switch {
	case realEstate > 0 && realEstate >= sales:
		return IntentRealEstate
	case sales > 0:
		return IntentSalesAI
	case small > 0:
		return IntentSmallTalk
	}

	words := len(strings.Fields(text))
	if prior != "" && words > 3 {
		if prior != IntentSmallTalk || small == 0 {
			return prior
		}
	}
	if words <= 3 {
		return IntentSmallTalk
	}
	return IntentSalesAI
}

func weightedScore(text string, all, important KeywordSet) int {
	score := 0
	for _, w := range all {
		if !containsWord(text, w) {
			continue
		}
		if important.Contains(w) {
			score += 2
		} else {
			score++
		}
	}
	return score
}

// ----------------------------------------------------------------------------
// Objections

// KeywordObjectionClassifier picks the objection type with the most keyword
// hits. Ties resolve in the order price, timing, need, trust, competitor.
type KeywordObjectionClassifier struct {
	Price, Timing, Need, Trust, Competitor KeywordSet
}

// NewKeywordObjectionClassifier returns a classifier over the default tables.
func NewKeywordObjectionClassifier() *KeywordObjectionClassifier {
	return &KeywordObjectionClassifier{
		Price:      priceKeywords,
		Timing:     timingKeywords,
		Need:       needKeywords,
		Trust:      trustKeywords,
		Competitor: competitorKeywords,
	}
}

func (c *KeywordObjectionClassifier) ClassifyObjection(message string) ObjectionType {
	text := Normalize(message)
	if text == "" {
		return ObjectionOther
	}
	ordered := []struct {
		t  ObjectionType
		ks KeywordSet
	}{
		{ObjectionPrice, c.Price},
		{ObjectionTiming, c.Timing},
		{ObjectionNeed, c.Need},
		{ObjectionTrust, c.Trust},
		{ObjectionCompetitor, c.Competitor},
	}
	best, bestScore := ObjectionOther, 0
	for _, o := range ordered {
		if n := o.ks.Count(text); n > bestScore {
			best, bestScore = o.t, n
		}
	}
	return best
}
