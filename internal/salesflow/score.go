package salesflow

// DefaultFitThreshold is the fit score at which a consultation is offered.
const DefaultFitThreshold = 60

// FitBreakdown is the per-component fit score.
type FitBreakdown struct {
	Problem       int `json:"problem"`
	Metrics       int `json:"metrics"`
	DataAccess    int `json:"data_access"`
	DecisionMaker int `json:"decision_maker"`
	Budget        int `json:"budget"`
	Deadline      int `json:"deadline"`
}

// Total sums the components, capped at 100.
func (b FitBreakdown) Total() int {
	return min(100, b.Problem+b.Metrics+b.DataAccess+b.DecisionMaker+b.Budget+b.Deadline)
}

// ScoreBreakdown computes the fit components from filled slots.
func ScoreBreakdown(slots Slots) FitBreakdown {
	var b FitBreakdown
	if slots.Filled("main_problems") {
		b.Problem = 20
	}
	if slots.Filled("process_volume") || slots.Filled("error_rate") {
		b.Metrics = 20
	}
	if slots.Filled("data_access") {
		b.DataAccess = 15
	}
	if slots.Filled("client_name") && slots.Filled("company_name") {
		b.DecisionMaker = 15
	}
	if slots.Filled("budget_band") {
		b.Budget = 20
	}
	if slots.Filled("deadline") {
		b.Deadline = 10
	}
	return b
}

// FitScore returns the 0..100 lead fit score.
func FitScore(slots Slots) int { return ScoreBreakdown(slots).Total() }

// ReadyForMeeting reports whether the basics for a meeting are known.
func ReadyForMeeting(slots Slots) bool {
	for _, name := range []string{"client_name", "company_name", "main_problems", "goal"} {
		if !slots.Filled(name) {
			return false
		}
	}
	return true
}

// ShouldOfferConsultation reports whether a PRESENTATION conversation should
// move on to a consultation offer: the score meets threshold or the user
// asked explicitly, and either the basics are known or at least two turns
// were spent presenting.
func ShouldOfferConsultation(c Context, threshold int, explicit bool) bool {
	if c.Stage != StagePresentation {
		return false
	}
	meets := FitScore(c.Slots) >= threshold
	return (meets || explicit) && (ReadyForMeeting(c.Slots) || c.PresentationTurns >= 2)
}
