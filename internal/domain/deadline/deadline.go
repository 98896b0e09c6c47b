// Package deadline models statutory filing deadlines.
package deadline

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/TaxFlow/pkg/errors"
	"github.com/turtacn/TaxFlow/pkg/types/common"
)

// Definition fixes the due date of one (jurisdiction, form) pair. The due
// date for tax year Y is Month/Day of year Y+YearOffset. A non-recurring
// definition applies to TaxYear only.
type Definition struct {
	Jurisdiction string `yaml:"jurisdiction" json:"jurisdiction"`
	FormType     string `yaml:"form_type" json:"form_type"`
	Month        int    `yaml:"month" json:"month"`
	Day          int    `yaml:"day" json:"day"`
	YearOffset   int    `yaml:"year_offset" json:"year_offset"`
	Recurring    bool   `yaml:"recurring" json:"recurring"`
	TaxYear      int    `yaml:"tax_year,omitempty" json:"tax_year,omitempty"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Validate rejects impossible dates such as 31 April.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Jurisdiction) == "" || strings.TrimSpace(d.FormType) == "" {
		return errors.New(errors.ErrCodeDeadlineDefinitionBad, "jurisdiction and form type are required")
	}
	if d.Month < 1 || d.Month > 12 {
		return errors.New(errors.ErrCodeDeadlineDefinitionBad, "month out of range").
			WithDetail(fmt.Sprintf("%s/%s month=%d", d.Jurisdiction, d.FormType, d.Month))
	}
	probe := time.Date(2001, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	if d.Day < 1 || probe.Month() != time.Month(d.Month) {
		return errors.New(errors.ErrCodeDeadlineDefinitionBad, "day out of range").
			WithDetail(fmt.Sprintf("%s/%s %02d-%02d", d.Jurisdiction, d.FormType, d.Month, d.Day))
	}
	if d.YearOffset < 0 || d.YearOffset > 5 {
		return errors.New(errors.ErrCodeDeadlineDefinitionBad, "year offset out of range")
	}
	if !d.Recurring && d.TaxYear == 0 {
		return errors.New(errors.ErrCodeDeadlineDefinitionBad, "non-recurring definition requires a tax year")
	}
	return nil
}

// DueDate returns the due date for taxYear at midnight UTC.
func (d Definition) DueDate(taxYear int) time.Time {
	return time.Date(taxYear+d.YearOffset, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// AppliesTo reports whether the definition produces a deadline for taxYear.
func (d Definition) AppliesTo(taxYear int) bool {
	return d.Recurring || d.TaxYear == taxYear
}

// State classifies a relevant deadline.
type State string

const (
	StateUpcoming State = "upcoming"
	StateOverdue  State = "overdue"
)

// Deadline is a concrete due date for one tax year.
type Deadline struct {
	Jurisdiction string    `json:"jurisdiction"`
	FormType     string    `json:"form_type"`
	TaxYear      int       `json:"tax_year"`
	DueDate      time.Time `json:"due_date"`
	Recurring    bool      `json:"recurring"`
	DaysUntil    int       `json:"days_until"`
	State        State     `json:"state"`
	Description  string    `json:"description,omitempty"`
}

// Evaluate builds the deadline for taxYear relative to now. daysUntil counts
// calendar days in UTC.
func (d Definition) Evaluate(taxYear int, now time.Time) Deadline {
	due := d.DueDate(taxYear)
	days := common.DaysBetween(now, due)
	state := StateUpcoming
	if days < 0 {
		state = StateOverdue
	}
	return Deadline{
		Jurisdiction: strings.ToUpper(d.Jurisdiction),
		FormType:     strings.ToUpper(d.FormType),
		TaxYear:      taxYear,
		DueDate:      due,
		Recurring:    d.Recurring,
		DaysUntil:    days,
		State:        state,
		Description:  d.Description,
	}
}

// IsRelevant reports daysUntil ∈ (0, horizon] or daysUntil < 0. A deadline
// due today is neither upcoming nor overdue.
func IsRelevant(daysUntil, horizon int) bool {
	return daysUntil < 0 || (daysUntil > 0 && daysUntil <= horizon)
}
