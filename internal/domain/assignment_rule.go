package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// TicketField enumerates the ticket fields assignment conditions may test.
type TicketField string

const (
	FieldCategory      TicketField = "category"
	FieldPriority      TicketField = "priority"
	FieldContactMedium TicketField = "contact_medium"
	FieldContactValue  TicketField = "contact_value"
)

func (f TicketField) valid() bool {
	switch f {
	case FieldCategory, FieldPriority, FieldContactMedium, FieldContactValue:
		return true
	}
	return false
}

// ConditionOp is the kind of comparison a condition performs.
type ConditionOp string

const (
	OpEquals ConditionOp = "equals"
	OpIn     ConditionOp = "in"
)

// Condition is one predicate of an assignment rule.
type Condition struct {
	Field  TicketField
	Op     ConditionOp
	Values []string
}

// Holds evaluates the condition against a candidate ticket.
func (c Condition) Holds(candidate TicketCandidate) bool {
	actual := candidate.Field(c.Field)
	switch c.Op {
	case OpEquals:
		return len(c.Values) == 1 && actual == c.Values[0]
	case OpIn:
		for _, v := range c.Values {
			if actual == v {
				return true
			}
		}
	}
	return false
}

// Conditions are ANDed together. Stored as {field: value | [values]}.
type Conditions []Condition

// ParseConditions builds typed conditions from the stored map form.
// Conditions are ordered by field name so evaluation and encoding are stable.
func ParseConditions(raw map[string]any) (Conditions, error) {
	out := make(Conditions, 0, len(raw))
	for key, value := range raw {
		field := TicketField(key)
		if !field.valid() {
			return nil, fmt.Errorf("unknown condition field %q", key)
		}
		switch v := value.(type) {
		case string:
			out = append(out, Condition{Field: field, Op: OpEquals, Values: []string{v}})
		case []any:
			values := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("condition %q: values must be strings", key)
				}
				values = append(values, s)
			}
			out = append(out, Condition{Field: field, Op: OpIn, Values: values})
		case []string:
			out = append(out, Condition{Field: field, Op: OpIn, Values: append([]string(nil), v...)})
		default:
			return nil, fmt.Errorf("condition %q: unsupported value type %T", key, value)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out, nil
}

// Map renders the conditions back to the stored map form.
func (cs Conditions) Map() map[string]any {
	out := make(map[string]any, len(cs))
	for _, c := range cs {
		if c.Op == OpEquals && len(c.Values) == 1 {
			out[string(c.Field)] = c.Values[0]
			continue
		}
		out[string(c.Field)] = append([]string(nil), c.Values...)
	}
	return out
}

// MarshalJSON encodes the map form.
func (cs Conditions) MarshalJSON() ([]byte, error) {
	return json.Marshal(cs.Map())
}

// UnmarshalJSON decodes the map form.
func (cs *Conditions) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseConditions(raw)
	if err != nil {
		return err
	}
	*cs = parsed
	return nil
}

// Match reports whether every condition holds. No conditions matches everything.
func (cs Conditions) Match(candidate TicketCandidate) bool {
	for _, c := range cs {
		if !c.Holds(candidate) {
			return false
		}
	}
	return true
}

// TicketCandidate is the subset of ticket fields visible to assignment rules.
type TicketCandidate struct {
	Category      string
	Priority      TicketPriority
	ContactMedium ContactMedium
	ContactValue  string
}

// Field returns the value of field on the candidate.
func (c TicketCandidate) Field(field TicketField) string {
	switch field {
	case FieldCategory:
		return c.Category
	case FieldPriority:
		return string(c.Priority)
	case FieldContactMedium:
		return string(c.ContactMedium)
	case FieldContactValue:
		return c.ContactValue
	}
	return ""
}

// AssignmentRule routes matching tickets to a user or a role. Higher Priority is evaluated first.
type AssignmentRule struct {
	ID             string
	Name           string
	Priority       int
	Conditions     Conditions
	AssignToUserID *string
	AssignToRole   *UserRole
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the rule has a usable target.
func (r *AssignmentRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name required")
	}
	if r.AssignToUserID == nil && r.AssignToRole == nil {
		return fmt.Errorf("rule %q needs assign_to_user_id or assign_to_role", r.Name)
	}
	if r.AssignToRole != nil && !r.AssignToRole.Valid() {
		return fmt.Errorf("rule %q: unknown role %q", r.Name, *r.AssignToRole)
	}
	return nil
}

// SortRules orders rules by descending priority, oldest first on ties.
func SortRules(rules []AssignmentRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}
