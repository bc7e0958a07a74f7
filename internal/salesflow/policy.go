// Package salesflow – generation policy
//
// Static per-stage reply directives and generation parameters, tuned by
// intent and, in the OBJECTIONS stage, by objection type.
package salesflow

import (
	"fmt"
	"strings"
)

// GenerationParams are the reply-generation knobs for a stage.
type GenerationParams struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

// Policy is the behavior that applies while a conversation is in a stage.
// MaxResponseLength is in characters; 0 means unbounded.
type Policy struct {
	Stage             Stage            `json:"stage"`
	PromptModifier    string           `json:"prompt_modifier"`
	MaxResponseLength int              `json:"max_response_length,omitempty"`
	Generation        GenerationParams `json:"generation"`
}

var baseParams = GenerationParams{Temperature: 0.3, TopP: 0.9, FrequencyPenalty: 0.3, PresencePenalty: 0.2}

var policies = map[Stage]Policy{
	StageGreeting: {
		PromptModifier:    "Greeting stage. Reply in one or two short sentences, introduce yourself once and ask the user's name. Do not describe services yet.",
		MaxResponseLength: 200,
	},
	StageNeedsDiscovery: {
		PromptModifier: "Needs discovery. Ask one open question at a time, mirror the details the user gives and confirm low-confidence facts before relying on them.",
	},
	StagePresentation: {
		PromptModifier: "Presentation. Refer back to what the user said and show how the solution addresses that specific problem. Offer a meeting once enough is known.",
	},
	StageObjections: {
		PromptModifier:    "Objections. Do not argue. Acknowledge the concern, look for a compromise and propose a concrete next step.",
		MaxResponseLength: 600,
	},
	StageConsultationOffer: {
		PromptModifier:    "Consultation offer. Suggest a short call as the natural next step without pressure.",
		MaxResponseLength: 400,
	},
	StageScheduling: {
		PromptModifier:    "Scheduling. Offer a few concrete time options and confirm the agreed slot clearly.",
		MaxResponseLength: 400,
	},
	StageSummary: {
		PromptModifier:    "Summary. Confirm that all information is collected and that the meeting will be prepared.",
		MaxResponseLength: 400,
	},
}

// PolicyFor returns the policy of a stage with base generation params.
// Unknown stages get the GREETING policy.
func PolicyFor(stage Stage) Policy {
	p, ok := policies[stage]
	if !ok {
		stage = StageGreeting
		p = policies[stage]
	}
	p.Stage = stage
	p.Generation = baseParams
	return p
}

// PolicyForIntent is PolicyFor with generation params tuned for intent.
func PolicyForIntent(stage Stage, intent Intent) Policy {
	p := PolicyFor(stage)
	p.Generation = GenerationParamsFor(p.Stage, intent)
	return p
}

// GenerationParamsFor tunes the base params by intent and stage.
func GenerationParamsFor(stage Stage, intent Intent) GenerationParams {
	p := baseParams
	if intent == IntentSmallTalk {
		p.Temperature, p.FrequencyPenalty, p.PresencePenalty = 0.6, 0.2, 0.1
		return p
	}
	if !intent.SlotBearing() {
		return p
	}
	switch stage {
	case StageGreeting:
		p.Temperature, p.FrequencyPenalty, p.PresencePenalty = 0.5, 0.2, 0.1
	case StageNeedsDiscovery:
		p.Temperature, p.FrequencyPenalty, p.PresencePenalty = 0.4, 0.3, 0.2
	case StagePresentation:
		p.Temperature, p.FrequencyPenalty, p.PresencePenalty = 0.3, 0.3, 0.2
	case StageObjections:
		p.Temperature, p.FrequencyPenalty, p.PresencePenalty = 0.35, 0.25, 0.15
	case StageConsultationOffer, StageScheduling, StageSummary:
		p.Temperature, p.FrequencyPenalty, p.PresencePenalty = 0.4, 0.2, 0.1
	}
	return p
}

// objectionGuidance is the per-type approach appended to the OBJECTIONS
// directive, with two sample replies each.
var objectionGuidance = map[ObjectionType]struct {
	Approach string
	Examples [2]string
}{
	ObjectionPrice: {
		Approach: "Budget matters. Move the conversation to the value of the solution.",
		Examples: [2]string{
			"If the assistant saves ten hours a week, what is that worth to you in money?",
			"We can roll out in phases: start small and scale as results come in.",
		},
	},
	ObjectionTiming: {
		Approach: "Now may not be the right moment. Agree on when it would be.",
		Examples: [2]string{
			"When are you planning to come back to this?",
			"Let me note down the task; when you are ready, I will have a proposal prepared.",
		},
	},
	ObjectionNeed: {
		Approach: "Check together whether the solution is really needed.",
		Examples: [2]string{
			"Which tasks take up most of your team's time right now?",
			"Which processes in your company are the most labor-intensive?",
		},
	},
	ObjectionTrust: {
		Approach: "Find out what would make the user feel confident.",
		Examples: [2]string{
			"I can show you similar projects we have delivered.",
			"We could start with a small pilot so you can judge the result without much risk.",
		},
	},
	ObjectionCompetitor: {
		Approach: "The user is comparing options. Ask what matters most to them.",
		Examples: [2]string{
			"What matters most to you in a solution?",
			"What exactly does your current solution not cover?",
		},
	},
	ObjectionOther: {
		Approach: "Work out the concern together.",
		Examples: [2]string{
			"What exactly worries you? Let us go through it together.",
			"Let us take it point by point and find a solution.",
		},
	},
}

// repeatedObjection is how many objections of one type make the directive
// ask for a change of approach.
const repeatedObjection = 2

// PolicyForObjection is PolicyForIntent with objection guidance. In the
// OBJECTIONS stage a known type t adds its approach and sample replies, and a
// type recorded at least twice in history adds an escalation directive.
// Other stages ignore t and history.
func PolicyForObjection(stage Stage, intent Intent, t ObjectionType, history []ObjectionRecord) Policy {
	p := PolicyForIntent(stage, intent)
	if p.Stage != StageObjections {
		return p
	}
	g, ok := objectionGuidance[t]
	if !ok {
		return p
	}
	var b strings.Builder
	b.WriteString(p.PromptModifier)
	fmt.Fprintf(&b, "\n\nObjection type: %s\nApproach: %s\nGood replies:\n", strings.ToUpper(string(t)), g.Approach)
	for i, ex := range g.Examples {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ex)
	}
	if n := CountObjections(history, t); n >= repeatedObjection {
		fmt.Fprintf(&b, "\nThis is objection number %d of type %s. Do not repeat earlier arguments; try another angle or propose a meeting to go through it in detail.\n", n, t)
	}
	b.WriteString("\nKeep the reply to two to four sentences.")
	p.PromptModifier = b.String()
	return p
}
