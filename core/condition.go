package core

// Operator compares an incoming metric value against a condition value.
type Operator string

const (
	OpGTE Operator = "gte"
	OpLTE Operator = "lte"
	OpEQ  Operator = "eq"
	OpGT  Operator = "gt"
	OpLT  Operator = "lt"
)

// ConditionType selects how a condition is evaluated.
type ConditionType string

const (
	// ConditionFirstEvent is satisfied on the user's first-ever increment of
	// the bound metric.
	ConditionFirstEvent ConditionType = "firstEvent"
	// ConditionConditional compares the increment value against the
	// condition's value using its operator.
	ConditionConditional ConditionType = "conditional"
)

// Condition is one predicate attached to a badge. Conditions on the same
// badge are evaluated in ascending Priority order and evaluation stops at the
// first satisfied one.
type Condition struct {
	ID       string        `json:"id"`
	BadgeID  string        `json:"badge_id"`
	MetricID string        `json:"metric_id"`
	Operator Operator      `json:"operator"`
	Value    *int64        `json:"value,omitempty"`
	Type     ConditionType `json:"type"`
	Priority int           `json:"priority"`
	Deleted  bool          `json:"deleted"`
}

// Satisfied reports whether the condition holds for an increment of value,
// where firstEvent indicates the user had no prior history for the metric.
// Unknown type/operator combinations are never satisfied.
func (c Condition) Satisfied(value int64, firstEvent bool) bool {
	switch c.Type {
	case ConditionFirstEvent:
		return firstEvent
	case ConditionConditional:
		if c.Value == nil {
			return false
		}
		switch c.Operator {
		case OpGTE:
			return value >= *c.Value
		case OpLTE:
			return value <= *c.Value
		case OpEQ:
			return value == *c.Value
		case OpGT:
			return value > *c.Value
		case OpLT:
			return value < *c.Value
		}
	}
	return false
}
