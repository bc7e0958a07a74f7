// Package salesflow – Machine
//
// This file holds the Machine, which advances a conversation context by one
// message. Detection strategies are pluggable through options; the defaults
// are the keyword tables in keywords.go. The machine has no I/O and never
// fails: bad input yields the default context.
package salesflow

import "time"

// ----------------------------------------------------------------------------
// Options

type Option func(*Machine)

// WithClock sets the time source used to stamp objections.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithEnabled turns stage tracking on or off. A disabled machine returns
// the context unchanged.
func WithEnabled(on bool) Option {
	return func(m *Machine) { m.enabled = on }
}

func WithDetector(d StageDetector) Option {
	return func(m *Machine) {
		if d != nil {
			m.detector = d
		}
	}
}

func WithGreetingDetector(g GreetingDetector) Option {
	return func(m *Machine) {
		if g != nil {
			m.greeting = g
		}
	}
}

func WithIntentClassifier(c IntentClassifier) Option {
	return func(m *Machine) {
		if c != nil {
			m.intents = c
		}
	}
}

func WithObjectionClassifier(c ObjectionClassifier) Option {
	return func(m *Machine) {
		if c != nil {
			m.objections = c
		}
	}
}

// WithFitThreshold sets the score at which PRESENTATION offers a
// consultation. Values outside 0..100 are ignored.
func WithFitThreshold(n int) Option {
	return func(m *Machine) {
		if n >= 0 && n <= 100 {
			m.fitThreshold = n
		}
	}
}

func WithObjectionLimit(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.objectionLimit = n
		}
	}
}

// ----------------------------------------------------------------------------
// Machine

// Machine advances a conversation by one message. It is immutable after
// construction and safe for concurrent use as long as its strategies are.
type Machine struct {
	enabled        bool
	now            func() time.Time
	detector       StageDetector
	greeting       GreetingDetector
	intents        IntentClassifier
	objections     ObjectionClassifier
	fitThreshold   int
	objectionLimit int
	// meeting matches an explicit request for a call.
	meeting KeywordSet
}

// New returns a Machine with the keyword strategies.
func New(opts ...Option) *Machine {
	m := &Machine{
		enabled:        true,
		now:            time.Now,
		detector:       NewKeywordDetector(),
		greeting:       NewKeywordGreeting(),
		intents:        NewKeywordIntentClassifier(),
		objections:     NewKeywordObjectionClassifier(),
		fitThreshold:   DefaultFitThreshold,
		objectionLimit: DefaultObjectionHistory,
		meeting:        consultationKeywords,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Result is the outcome of one Advance.
type Result struct {
	Context       Context
	PreviousStage Stage
	Stage         Stage
	Intent        Intent
	Policy        Policy
	// MissingSlot is the next slot to ask for; empty when the intent does
	// not collect slots or all are filled.
	MissingSlot   string
	Changed       bool
	GreetingReset bool
	Objection     ObjectionType
	FitScore      int
	OfferedCall   bool
}

// DetectTransition exposes the configured detector.
func (m *Machine) DetectTransition(message string, current Stage, isFirst bool) (Stage, bool) {
	return m.detector.DetectTransition(message, current, isFirst)
}

// IsGreeting exposes the configured greeting detector.
func (m *Machine) IsGreeting(message string) bool {
	return m.greeting.IsGreeting(message)
}

// Advance computes the next context for message. Rules, highest priority
// first:
//
//  1. a greeting resets to GREETING and reclassifies intent with no prior
//  2. the forward-only transition table
//  3. PRESENTATION offers a consultation when the lead is a fit or the
//     user asked for a call
//  4. SCHEDULING moves to SUMMARY once every required slot is present
//
// The input context is never modified.
func (m *Machine) Advance(in Context, message string, isFirst bool) Result {
	c := in.clone()
	if !c.Stage.Valid() {
		c.Stage = StageGreeting
	}
	prev := c.Stage
	res := Result{PreviousStage: prev}

	if !m.enabled {
		return m.finish(res, c)
	}

	if m.greeting.IsGreeting(message) {
		c.Stage = StageGreeting
		c.Intent = m.intents.Classify(message, "")
		c.PresentationTurns = 0
		res.GreetingReset = true
		return m.finish(res, c)
	}

	c.Intent = m.intents.Classify(message, c.Intent)

	if next, ok := m.detector.DetectTransition(message, c.Stage, isFirst); ok && next != c.Stage {
		c.Stage = next
	}

	switch c.Stage {
	case StagePresentation:
		if prev == StagePresentation {
			c.PresentationTurns++
		} else {
			c.PresentationTurns = 1
		}
		explicit := m.meeting.Match(Normalize(message))
		if ShouldOfferConsultation(c, m.fitThreshold, explicit) {
			c.Stage = StageConsultationOffer
			res.OfferedCall = true
		}
	case StageObjections:
		t := m.objections.ClassifyObjection(message)
		if prev != StageObjections || t != ObjectionOther {
			c.Objections = AppendObjection(c.Objections, t, message, m.now(), m.objectionLimit)
			res.Objection = t
		}
	case StageScheduling:
		if c.Intent.SlotBearing() {
			if _, missing := NextMissingSlot(c.Slots, c.Intent); !missing {
				c.Stage = StageSummary
			}
		}
	}
	return m.finish(res, c)
}

func (m *Machine) finish(res Result, c Context) Result {
	res.Context = c
	res.Stage = c.Stage
	res.Intent = c.Intent
	res.Changed = c.Stage != res.PreviousStage
	res.Policy = PolicyForObjection(c.Stage, c.Intent, res.Objection, c.Objections)
	if c.Intent.SlotBearing() {
		res.MissingSlot, _ = NextMissingSlot(c.Slots, c.Intent)
	}
	res.FitScore = FitScore(c.Slots)
	return res
}
