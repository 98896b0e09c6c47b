package plausibility

import (
	"fmt"
	"strings"

	"github.com/turtacn/TaxFlow/internal/domain/submission"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

// RuleKind selects the evaluation applied by a Rule.
type RuleKind string

const (
	// KindDeviation compares numeric fields against the prior accepted year.
	KindDeviation RuleKind = "yoy_deviation"
	// KindConsistency checks that detail fields sum to a stated total.
	KindConsistency RuleKind = "consistency"
	// KindThreshold relates a field to a statutory limit and a dependent field.
	KindThreshold RuleKind = "threshold"
	// KindCompleteness requires a field, optionally only when others are set.
	KindCompleteness RuleKind = "completeness"
	// KindWithholding caps withholding relative to the gross amount.
	KindWithholding RuleKind = "withholding"
)

// Suggestion codes attached to issues.
const (
	SuggestForeignReclaim = "foreign_reclaim"
	SuggestVerifyPrior    = "verify_against_prior_year"
	SuggestRecalculate    = "recalculate_total"
	SuggestDeclareTax     = "declare_dependent_tax"
	SuggestProvideField   = "provide_field"
)

// Rule is one registry entry: ruleId → field, comparator, threshold.
//
// Field meaning by kind:
//   - deviation: the numeric field to compare; empty compares every numeric field
//   - consistency: the total field, with Fields as the detail lines
//   - threshold: the measured field, DependentField the taxable field
//   - completeness: the required field
//   - withholding: the withholding field, DependentField the gross amount
type Rule struct {
	ID             string              `yaml:"id" json:"id"`
	Kind           RuleKind            `yaml:"kind" json:"kind"`
	Field          string              `yaml:"field,omitempty" json:"field,omitempty"`
	Fields         []string            `yaml:"fields,omitempty" json:"fields,omitempty"`
	DependentField string              `yaml:"dependent_field,omitempty" json:"dependent_field,omitempty"`
	Limit          *float64            `yaml:"limit,omitempty" json:"limit,omitempty"`
	Severity       submission.Severity `yaml:"severity,omitempty" json:"severity,omitempty"`
	WhenPresent    []string            `yaml:"when_present,omitempty" json:"when_present,omitempty"`

	// RequireAction marks findings that must be resolved before filing even
	// though their severity is below error.
	RequireAction bool   `yaml:"require_action,omitempty" json:"require_action,omitempty"`
	Suggestion    string `yaml:"suggestion,omitempty" json:"suggestion,omitempty"`
	Message       string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Validate checks that the rule carries what its kind needs.
func (r Rule) Validate() error {
	bad := func(msg string) error {
		return errors.New(errors.ErrCodeRuleRegistryInvalid, msg).WithDetail("rule " + r.ID)
	}
	if strings.TrimSpace(r.ID) == "" {
		return errors.New(errors.ErrCodeRuleRegistryInvalid, "rule id is required")
	}
	if r.Severity != "" && !r.Severity.IsValid() {
		return bad(fmt.Sprintf("unknown severity %q", r.Severity))
	}
	switch r.Kind {
	case KindDeviation:
	case KindConsistency:
		if r.Field == "" || len(r.Fields) == 0 {
			return bad("consistency rule needs a total field and detail fields")
		}
	case KindThreshold:
		if r.Field == "" || r.DependentField == "" || r.Limit == nil {
			return bad("threshold rule needs field, dependent_field and limit")
		}
	case KindCompleteness:
		if r.Field == "" {
			return bad("completeness rule needs a field")
		}
	case KindWithholding:
		if r.Field == "" || r.DependentField == "" {
			return bad("withholding rule needs field and dependent_field")
		}
	default:
		return bad(fmt.Sprintf("unknown rule kind %q", r.Kind))
	}
	return nil
}

// severityOr returns the rule severity or def when unset.
func (r Rule) severityOr(def submission.Severity) submission.Severity {
	if r.Severity == "" {
		return def
	}
	return r.Severity
}

// Constants are the numeric thresholds shared by the rule kinds.
type Constants struct {
	// DeviationThreshold is the relative change (0.30 = 30 %) above which a
	// year-over-year deviation is reported.
	DeviationThreshold float64 `yaml:"deviation_threshold" json:"deviation_threshold"`
	// ConsistencyTolerance is the absolute currency tolerance of sum checks.
	ConsistencyTolerance float64 `yaml:"consistency_tolerance" json:"consistency_tolerance"`
	// WithholdingCeiling is the maximum withholding/gross ratio.
	WithholdingCeiling float64 `yaml:"withholding_ceiling" json:"withholding_ceiling"`
}

// DefaultConstants are 30 % deviation, ±1.00 tolerance and a 15 % ceiling.
func DefaultConstants() Constants {
	return Constants{DeviationThreshold: 0.30, ConsistencyTolerance: 1.00, WithholdingCeiling: 0.15}
}

// ConstantsOverride replaces the non-nil constants.
type ConstantsOverride struct {
	DeviationThreshold   *float64 `yaml:"deviation_threshold,omitempty" json:"deviation_threshold,omitempty"`
	ConsistencyTolerance *float64 `yaml:"consistency_tolerance,omitempty" json:"consistency_tolerance,omitempty"`
	WithholdingCeiling   *float64 `yaml:"withholding_ceiling,omitempty" json:"withholding_ceiling,omitempty"`
}

// Apply returns c with the override's non-nil values.
func (o *ConstantsOverride) Apply(c Constants) Constants {
	if o == nil {
		return c
	}
	if o.DeviationThreshold != nil {
		c.DeviationThreshold = *o.DeviationThreshold
	}
	if o.ConsistencyTolerance != nil {
		c.ConsistencyTolerance = *o.ConsistencyTolerance
	}
	if o.WithholdingCeiling != nil {
		c.WithholdingCeiling = *o.WithholdingCeiling
	}
	return c
}

// FormRules is the registry entry for one form type.
type FormRules struct {
	FormType      string                       `yaml:"form_type" json:"form_type"`
	Constants     *ConstantsOverride           `yaml:"constants,omitempty" json:"constants,omitempty"`
	Jurisdictions map[string]ConstantsOverride `yaml:"jurisdictions,omitempty" json:"jurisdictions,omitempty"`
	Rules         []Rule                       `yaml:"rules" json:"rules"`
}

// RuleSet is the effective rule list and constants for one evaluation.
type RuleSet struct {
	FormType  string
	Constants Constants
	Rules     []Rule
}

func limit(v float64) *float64 { return &v }

// defaultForms is the built-in registry. Field names follow the form data keys
// produced by the mapping layer.
func defaultForms() []FormRules {
	deviation := Rule{ID: "yoy_deviation", Kind: KindDeviation, Severity: submission.SeverityWarning, Suggestion: SuggestVerifyPrior}
	return []FormRules{
		{
			FormType: "ANLAGE_KAP",
			Rules: []Rule{
				deviation,
				{ID: "kap_gross_required", Kind: KindCompleteness, Field: "grossDividends", Severity: submission.SeverityError},
				{ID: "kap_withholding_ceiling", Kind: KindWithholding, Field: "withholdingTax", DependentField: "grossDividends",
					Severity: submission.SeverityWarning, RequireAction: true, Suggestion: SuggestForeignReclaim},
				{ID: "kap_foreign_country", Kind: KindCompleteness, Field: "foreignCountry", Severity: submission.SeverityInfo,
					WhenPresent: []string{"foreignIncome"}, Suggestion: SuggestProvideField},
			},
		},
		{
			FormType: "ANLAGE_V",
			Rules: []Rule{
				deviation,
				{ID: "v_rental_income_required", Kind: KindCompleteness, Field: "rentalIncome", Severity: submission.SeverityError},
				{ID: "v_costs_sum", Kind: KindConsistency, Field: "totalCosts",
					Fields:   []string{"maintenanceCosts", "interestCosts", "depreciation", "otherCosts"},
					Severity: submission.SeverityWarning, Suggestion: SuggestRecalculate},
				{ID: "v_depreciation_basis", Kind: KindCompleteness, Field: "depreciationBasis", Severity: submission.SeverityWarning,
					WhenPresent: []string{"depreciation"}, Suggestion: SuggestProvideField},
			},
		},
		{
			FormType: "UST",
			Rules: []Rule{
				deviation,
				{ID: "ust_revenue_required", Kind: KindCompleteness, Field: "revenue", Severity: submission.SeverityError},
				{ID: "ust_small_business_limit", Kind: KindThreshold, Field: "revenue", DependentField: "vatPayable",
					Limit: limit(22000), Severity: submission.SeverityError, Suggestion: SuggestDeclareTax},
				{ID: "ust_vat_sum", Kind: KindConsistency, Field: "vatPayable",
					Fields:   []string{"outputVat", "inputVatNegative"},
					Severity: submission.SeverityWarning, Suggestion: SuggestRecalculate},
			},
		},
		{
			FormType: "GEWST",
			Rules: []Rule{
				deviation,
				{ID: "gewst_profit_required", Kind: KindCompleteness, Field: "tradeProfit", Severity: submission.SeverityError},
				{ID: "gewst_allowance", Kind: KindThreshold, Field: "tradeProfit", DependentField: "tradeTaxBase",
					Limit: limit(24500), Severity: submission.SeverityError, Suggestion: SuggestDeclareTax},
			},
		},
	}
}

// genericRules apply to form types without a registry entry.
func genericRules() []Rule {
	return []Rule{{ID: "yoy_deviation", Kind: KindDeviation, Severity: submission.SeverityWarning, Suggestion: SuggestVerifyPrior}}
}
