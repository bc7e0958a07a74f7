package salesflow

import (
	"bytes"
	"encoding/json"
	"time"
)

// Slot is one collected piece of information. Stored slots may be bare
// values written by older code; those decode with Source "legacy".
type Slot struct {
	Value      any       `json:"value"`
	Source     string    `json:"source,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

const (
	legacySource     = "legacy"
	legacyConfidence = 0.7
)

// UnmarshalJSON accepts both {"value": ...} objects and bare values.
func (s *Slot) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return err
		}
		if _, ok := fields["value"]; ok {
			type plain Slot
			var p plain
			if err := json.Unmarshal(trimmed, &p); err != nil {
				return err
			}
			*s = Slot(p)
			return nil
		}
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*s = Slot{Value: v, Source: legacySource, Confidence: legacyConfidence}
	return nil
}

// Filled reports whether the slot holds a non-empty value.
func (s Slot) Filled() bool {
	switch v := s.Value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	return true
}

// Slots maps slot names to their values.
type Slots map[string]Slot

// Has reports whether name is present, filled or not.
func (s Slots) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Filled reports whether name is present with a non-empty value.
func (s Slots) Filled(name string) bool {
	v, ok := s[name]
	return ok && v.Filled()
}

// ObjectionRecord is one entry of the objection history.
type ObjectionRecord struct {
	Type    ObjectionType `json:"type"`
	Message string        `json:"message"`
	At      time.Time     `json:"at"`
}

// Context is the decoded conversation document.
type Context struct {
	Stage             Stage
	Intent            Intent
	Slots             Slots
	Objections        []ObjectionRecord
	PresentationTurns int
	// Extensions holds caller-defined keys. The machine never modifies it.
	Extensions map[string]json.RawMessage
}

// NewContext returns the default context: GREETING with no slots.
func NewContext() Context {
	return Context{Stage: StageGreeting, Slots: Slots{}}
}

// Record is the stored form of a Context.
type Record struct {
	Stage             string
	Intent            string
	Slots             []byte
	Objections        []byte
	Extensions        []byte
	PresentationTurns int
}

// DecodeContext converts a stored record into a Context. Each blob decodes
// on its own: a malformed one is treated as absent and reported with
// ok=false, while the other columns keep their values. An unknown stage name
// falls back to GREETING.
func DecodeContext(r Record) (c Context, ok bool) {
	c = NewContext()
	c.Stage = CurrentStage(r.Stage)
	if in, valid := ParseIntent(r.Intent); valid {
		c.Intent = in
	}
	c.PresentationTurns = max(r.PresentationTurns, 0)

	ok = true
	if !decodeBlob(r.Slots, &c.Slots) {
		c.Slots, ok = nil, false
	}
	if !decodeBlob(r.Objections, &c.Objections) {
		c.Objections, ok = nil, false
	}
	if !decodeBlob(r.Extensions, &c.Extensions) {
		c.Extensions, ok = nil, false
	}
	if c.Slots == nil {
		c.Slots = Slots{}
	}
	return c, ok
}

func decodeBlob(b []byte, dst any) bool {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return true
	}
	return json.Unmarshal(b, dst) == nil
}

// Encode converts the reserved fields back into their stored form.
// Extensions are returned as stored and may be nil.
func (c Context) Encode() (Record, error) {
	slots := c.Slots
	if slots == nil {
		slots = Slots{}
	}
	sb, err := json.Marshal(slots)
	if err != nil {
		return Record{}, err
	}
	objections := c.Objections
	if objections == nil {
		objections = []ObjectionRecord{}
	}
	ob, err := json.Marshal(objections)
	if err != nil {
		return Record{}, err
	}
	var eb []byte
	if len(c.Extensions) > 0 {
		if eb, err = json.Marshal(c.Extensions); err != nil {
			return Record{}, err
		}
	}
	return Record{
		Stage:             string(c.Stage),
		Intent:            string(c.Intent),
		Slots:             sb,
		Objections:        ob,
		Extensions:        eb,
		PresentationTurns: c.PresentationTurns,
	}, nil
}

// CurrentStage parses a stored stage, defaulting to GREETING.
func CurrentStage(stored string) Stage {
	if st, ok := ParseStage(stored); ok {
		return st
	}
	return StageGreeting
}

// clone copies the mutable parts of c so Advance never aliases its input.
func (c Context) clone() Context {
	out := c
	out.Slots = make(Slots, len(c.Slots))
	for k, v := range c.Slots {
		out.Slots[k] = v
	}
	out.Objections = append([]ObjectionRecord(nil), c.Objections...)
	return out
}
