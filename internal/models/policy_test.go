package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionMatches(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		attr string
		want bool
	}{
		{"equals match", Condition{Field: "queue", Operator: OpEquals, Value: "support"}, "support", true},
		{"equals mismatch", Condition{Field: "queue", Operator: OpEquals, Value: "support"}, "sales", false},
		{"not_equals", Condition{Field: "queue", Operator: OpNotEquals, Value: "support"}, "sales", true},
		{"contains", Condition{Field: "subject", Operator: OpContains, Value: "urgent"}, "very urgent issue", true},
		{"contains miss", Condition{Field: "subject", Operator: OpContains, Value: "urgent"}, "minor issue", false},
		{"greater_than numeric", Condition{Field: "score", Operator: OpGreaterThan, Value: "9"}, "10", true},
		{"greater_than numeric false", Condition{Field: "score", Operator: OpGreaterThan, Value: "10"}, "9", false},
		{"less_than numeric", Condition{Field: "score", Operator: OpLessThan, Value: "10"}, "9", true},
		{"numeric not lexicographic", Condition{Field: "score", Operator: OpGreaterThan, Value: "2"}, "10", true},
		{"string compare fallback", Condition{Field: "tier", Operator: OpLessThan, Value: "gold"}, "bronze", true},
		{"in list", Condition{Field: "priority", Operator: OpIn, Value: "high, urgent"}, "urgent", true},
		{"in list miss", Condition{Field: "priority", Operator: OpIn, Value: "high, urgent"}, "low", false},
		{"unknown operator", Condition{Field: "x", Operator: "matches", Value: "y"}, "y", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Matches(tt.attr))
		})
	}
}

func TestTargetDurationSeconds(t *testing.T) {
	assert.Equal(t, int64(1800), TargetDuration{Value: 30, Unit: UnitMinutes}.Seconds())
	assert.Equal(t, int64(14400), TargetDuration{Value: 4, Unit: UnitHours}.Seconds())
	assert.Equal(t, int64(172800), TargetDuration{Value: 2, Unit: UnitDays}.Seconds())
	assert.Equal(t, int64(0), TargetDuration{Value: 1, Unit: "weeks"}.Seconds())
}

func validTarget(priority string) Target {
	return Target{
		Priority:      priority,
		FirstResponse: TargetDuration{Value: 4, Unit: UnitHours},
		Resolution:    TargetDuration{Value: 8, Unit: UnitHours},
	}
}

func TestTargetValidateEscalationLevels(t *testing.T) {
	tgt := validTarget("high")
	tgt.Escalations = []Escalation{
		{Level: 1, Offset: TargetDuration{Value: 30, Unit: UnitMinutes}},
		{Level: 2, Offset: TargetDuration{Value: 60, Unit: UnitMinutes}},
	}
	require.NoError(t, tgt.Validate("p1"))

	tgt.Escalations = []Escalation{
		{Level: 2, Offset: TargetDuration{Value: 30, Unit: UnitMinutes}},
		{Level: 2, Offset: TargetDuration{Value: 60, Unit: UnitMinutes}},
	}
	err := tgt.Validate("p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly increasing")

	tgt.Escalations = []Escalation{
		{Level: 3, Offset: TargetDuration{Value: 30, Unit: UnitMinutes}},
		{Level: 1, Offset: TargetDuration{Value: 60, Unit: UnitMinutes}},
	}
	assert.Error(t, tgt.Validate("p1"))
}

func TestPolicyValidate(t *testing.T) {
	p := Policy{
		ID:               "p1",
		Name:             "Gold",
		Rank:             1,
		Active:           true,
		EvaluationMethod: EvaluateOnCreation,
		Targets:          []Target{validTarget("high")},
	}
	require.NoError(t, p.Validate())

	dup := p
	dup.Targets = []Target{validTarget("high"), validTarget("high")}
	err := dup.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate priority")

	bad := p
	bad.EvaluationMethod = "sometimes"
	assert.Error(t, bad.Validate())

	noTargets := p
	noTargets.Targets = nil
	assert.Error(t, noTargets.Validate())

	badCond := p
	badCond.Conditions = []Condition{{Field: "x", Operator: "matches", Value: "y"}}
	assert.Error(t, badCond.Validate())
}

func TestPolicyTargetFor(t *testing.T) {
	p := Policy{
		ID:      "p1",
		Targets: []Target{validTarget("high"), validTarget("low")},
	}

	tgt, ok := p.TargetFor("low")
	require.True(t, ok)
	assert.Equal(t, "low", tgt.Priority)

	_, ok = p.TargetFor("critical")
	assert.False(t, ok)
}
