package services

// Limiter scopes.
const (
	ScopeUser   = "user"
	ScopeGlobal = "global"
)

// Rejection codes. They are stable and safe to branch on; Reason is the
// user-facing text.
const (
	CodeBlocked     = "blocked"
	CodeTooShort    = "too_short"
	CodeTooLong     = "too_long"
	CodeTooSoon     = "too_soon"
	CodeRepeated    = "repeated"
	CodeMinuteLimit = "minute_limit"
	CodeHourLimit   = "hour_limit"
)

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Code    string `json:"code,omitempty"`
	Scope   string `json:"scope,omitempty"`
}

func allow(scope string) Decision { return Decision{Allowed: true, Scope: scope} }

func reject(scope, code, reason string) Decision {
	return Decision{Scope: scope, Code: code, Reason: reason}
}

// outcome is the metrics label for d.
func (d Decision) outcome() string {
	if d.Allowed {
		return "allowed"
	}
	return d.Code
}
