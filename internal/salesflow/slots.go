// Package salesflow – slots
//
// Required slots per intent, the next-missing lookup and the key-by-key
// merge used by the conversation service.
package salesflow

import "time"

// legacyDomainSlot is the old name of company_domain.
const legacyDomainSlot = "domain"

var salesSlots = []string{
	// who
	"client_name", "company_name", "contact", "company_size",
	// business
	"company_domain", "main_problems", "time_consuming_tasks", "process_volume",
	"employees_involved", "current_time_cost", "error_rate", "business_revenue", "current_cost",
	// project
	"goal", "deadline", "budget_band", "data_access", "success_metric",
}

var realEstateSlots = []string{
	"purpose", "budget", "contact", "districts", "property_type",
	"beds", "sea_view", "distance_to_sea", "title_status", "timeline",
}

// RequiredSlots returns the ordered slot names for a slot-bearing intent,
// or nil for any other intent.
func RequiredSlots(intent Intent) []string {
	switch intent {
	case IntentSalesAI:
		return append([]string(nil), salesSlots...)
	case IntentRealEstate:
		return append([]string(nil), realEstateSlots...)
	}
	return nil
}

// MissingSlots lists required slots not yet present, in order.
func MissingSlots(slots Slots, intent Intent) []string {
	var out []string
	for _, name := range RequiredSlots(intent) {
		if !slotPresent(slots, intent, name) {
			out = append(out, name)
		}
	}
	return out
}

// NextMissingSlot returns the first required slot not yet present.
func NextMissingSlot(slots Slots, intent Intent) (string, bool) {
	for _, name := range RequiredSlots(intent) {
		if !slotPresent(slots, intent, name) {
			return name, true
		}
	}
	return "", false
}

func slotPresent(slots Slots, intent Intent, name string) bool {
	if slots.Has(name) {
		return true
	}
	return intent == IntentSalesAI && name == "company_domain" && slots.Has(legacyDomainSlot)
}

// MergeSlots writes found into a copy of dst key by key and returns the copy
// together with the names that were written. Keys absent from found are left
// as they were. Slots without a timestamp are stamped with now.
func MergeSlots(dst Slots, found Slots, now time.Time) (Slots, []string) {
	out := make(Slots, len(dst)+len(found))
	for k, v := range dst {
		out[k] = v
	}
	var written []string
	for k, v := range found {
		if k == "" {
			continue
		}
		if v.UpdatedAt.IsZero() {
			v.UpdatedAt = now.UTC()
		}
		out[k] = v
		written = append(written, k)
	}
	return out, written
}

var slotPrompts = map[string]string{
	"client_name":          "What is your name?",
	"company_name":         "What is your company called?",
	"contact":              "How can we reach you? A phone number or email works.",
	"company_size":         "Roughly how many people work at the company?",
	"company_domain":       "What field does your company work in?",
	"main_problems":        "What are the main problems you want to solve right now?",
	"time_consuming_tasks": "Which tasks take your team the most time?",
	"process_volume":       "How many operations does the process handle per day?",
	"employees_involved":   "How many people work on this task?",
	"current_time_cost":    "How much time per week goes into it today?",
	"error_rate":           "How often do mistakes or rework happen?",
	"business_revenue":     "Could you share the approximate revenue of the company?",
	"current_cost":         "What does the process cost today?",
	"goal":                 "What is the main goal you want to reach with AI?",
	"deadline":             "Is there a target date for results?",
	"budget_band":          "Have you considered a budget range for this?",
	"data_access":          "Do you have access to the data, or will integrations be needed?",
	"success_metric":       "How will you know the project succeeded?",
	"purpose":              "Are you looking to live there, invest or rent out?",
	"budget":               "What budget do you have in mind, in THB or USD?",
	"districts":            "Which districts interest you?",
	"property_type":        "Condo, villa or land?",
	"beds":                 "How many bedrooms do you need?",
	"sea_view":             "Is a sea view important?",
	"distance_to_sea":      "How far from the sea is comfortable for you?",
	"title_status":         "Which title works for you: freehold, condo quota or lease?",
	"timeline":             "When do you plan to buy or view properties?",
}

// SlotPrompt returns the question used to ask for a slot.
func SlotPrompt(name string) (string, bool) {
	p, ok := slotPrompts[name]
	return p, ok
}
