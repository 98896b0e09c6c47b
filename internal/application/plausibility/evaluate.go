package plausibility

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/turtacn/TaxFlow/internal/domain/submission"
)

var hundred = decimal.NewFromInt(100)

// Input is everything a deterministic evaluation looks at.
type Input struct {
	FormData submission.FormData

	// Prior is the form data of the previous accepted filing, nil when none.
	Prior     submission.FormData
	PriorYear int
}

// Evaluate runs every rule of set over in and returns the findings in rule
// order. It performs no I/O and is deterministic for identical inputs.
func Evaluate(set RuleSet, in Input) []submission.Issue {
	issues := make([]submission.Issue, 0)
	for _, rule := range set.Rules {
		var found []submission.Issue
		switch rule.Kind {
		case KindDeviation:
			found = checkDeviation(rule, set.Constants, in)
		case KindConsistency:
			found = checkConsistency(rule, set.Constants, in.FormData)
		case KindThreshold:
			found = checkThreshold(rule, in.FormData)
		case KindCompleteness:
			found = checkCompleteness(rule, in.FormData)
		case KindWithholding:
			found = checkWithholding(rule, set.Constants, in.FormData)
		}
		for i := range found {
			found[i].RuleID = rule.ID
			found[i].Channel = submission.ChannelDeterministic
			found[i].ActionRequired = found[i].ActionRequired || rule.RequireAction
			if found[i].Suggestion == "" {
				found[i].Suggestion = rule.Suggestion
			}
			if rule.Message != "" {
				found[i].Message = rule.Message
			}
		}
		issues = append(issues, found...)
	}
	return issues
}

func checkDeviation(rule Rule, c Constants, in Input) []submission.Issue {
	if in.Prior == nil {
		return nil
	}
	fields := in.FormData.NumericKeys()
	if rule.Field != "" {
		fields = []string{rule.Field}
	}
	threshold := decimal.NewFromFloat(c.DeviationThreshold)

	var out []submission.Issue
	for _, f := range fields {
		cur, ok := in.FormData.Number(f)
		if !ok {
			continue
		}
		prev, ok := in.Prior.Number(f)
		if !ok || prev.IsZero() {
			continue
		}
		change := cur.Sub(prev).Div(prev.Abs())
		if change.Abs().LessThanOrEqual(threshold) {
			continue
		}
		out = append(out, submission.Issue{
			Field:        f,
			Severity:     rule.severityOr(submission.SeverityWarning),
			Message:      fmt.Sprintf("%s changed by %s%% compared to tax year %d", f, change.Mul(hundred).StringFixed(1), in.PriorYear),
			CurrentValue: in.FormData[f],
			Expected:     fmt.Sprintf("within %s%% of %s", threshold.Mul(hundred).String(), prev.String()),
		})
	}
	return out
}

func checkConsistency(rule Rule, c Constants, data submission.FormData) []submission.Issue {
	anyDetail := false
	sum := decimal.Zero
	for _, f := range rule.Fields {
		if v, ok := data.Number(f); ok {
			anyDetail = true
			sum = sum.Add(v)
		}
	}
	total, hasTotal := data.Number(rule.Field)
	if !hasTotal && !anyDetail {
		return nil
	}
	tolerance := decimal.NewFromFloat(c.ConsistencyTolerance)
	if sum.Sub(total).Abs().LessThanOrEqual(tolerance) {
		return nil
	}
	return []submission.Issue{{
		Field:        rule.Field,
		Severity:     rule.severityOr(submission.SeverityWarning),
		Message:      fmt.Sprintf("%s does not match the sum of its detail lines (%s)", rule.Field, sum.StringFixed(2)),
		CurrentValue: data[rule.Field],
		Expected:     fmt.Sprintf("%s ± %s", sum.StringFixed(2), tolerance.StringFixed(2)),
	}}
}

func checkThreshold(rule Rule, data submission.FormData) []submission.Issue {
	v, ok := data.Number(rule.Field)
	if !ok {
		return nil
	}
	lim := decimal.NewFromFloat(*rule.Limit)
	dep := data.NumberOrZero(rule.DependentField)

	switch {
	case v.GreaterThan(lim) && dep.IsZero():
		return []submission.Issue{{
			Field:        rule.DependentField,
			Severity:     rule.severityOr(submission.SeverityError),
			Message:      fmt.Sprintf("%s exceeds the limit of %s but %s is zero", rule.Field, lim.String(), rule.DependentField),
			CurrentValue: data[rule.DependentField],
			Expected:     "non-zero amount",
		}}
	case v.LessThanOrEqual(lim) && !dep.IsZero():
		return []submission.Issue{{
			Field:        rule.DependentField,
			Severity:     submission.SeverityWarning,
			Message:      fmt.Sprintf("%s is declared although %s is within the limit of %s", rule.DependentField, rule.Field, lim.String()),
			CurrentValue: data[rule.DependentField],
			Expected:     "0",
		}}
	}
	return nil
}

func checkCompleteness(rule Rule, data submission.FormData) []submission.Issue {
	if len(rule.WhenPresent) > 0 {
		triggered := false
		for _, f := range rule.WhenPresent {
			if data.Has(f) {
				triggered = true
				break
			}
		}
		if !triggered {
			return nil
		}
	}
	if data.Has(rule.Field) {
		return nil
	}
	return []submission.Issue{{
		Field:    rule.Field,
		Severity: rule.severityOr(submission.SeverityError),
		Message:  fmt.Sprintf("required field %s is missing", rule.Field),
		Expected: "value",
	}}
}

func checkWithholding(rule Rule, c Constants, data submission.FormData) []submission.Issue {
	withheld, ok := data.Number(rule.Field)
	if !ok || !withheld.IsPositive() {
		return nil
	}
	gross := data.NumberOrZero(rule.DependentField)
	ceiling := decimal.NewFromFloat(c.WithholdingCeiling)
	allowed := gross.Mul(ceiling)
	if withheld.LessThanOrEqual(allowed) {
		return nil
	}
	msg := fmt.Sprintf("%s exceeds %s%% of %s", rule.Field, ceiling.Mul(hundred).String(), rule.DependentField)
	if gross.IsPositive() {
		msg = fmt.Sprintf("%s is %s%% of %s, above the %s%% ceiling", rule.Field,
			withheld.Div(gross).Mul(hundred).StringFixed(1), rule.DependentField, ceiling.Mul(hundred).String())
	}
	return []submission.Issue{{
		Field:        rule.Field,
		Severity:     rule.severityOr(submission.SeverityWarning),
		Message:      msg,
		CurrentValue: data[rule.Field],
		Expected:     "<= " + allowed.StringFixed(2),
	}}
}

// Score maps issues to 0..100. Advisory issues do not count.
func Score(issues []submission.Issue) int {
	score := 100
	for _, i := range issues {
		if i.Channel == submission.ChannelAdvisory {
			continue
		}
		switch i.Severity {
		case submission.SeverityCritical:
			score -= 40
		case submission.SeverityError:
			score -= 25
		case submission.SeverityWarning:
			score -= 10
		case submission.SeverityInfo:
			score -= 2
		}
	}
	if score < 0 {
		return 0
	}
	return score
}
