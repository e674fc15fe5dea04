// Package recurrence validates stored recurrence patterns and converts
// them to and from RFC 5545 RRULE strings. It never expands a pattern
// into concrete instances.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"workcal/internal/model"
)

// Sunday-first, matching model.RecurrencePattern.DaysOfWeek.
var weekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Validate checks that p is internally consistent and representable as an
// RRULE.
func Validate(p model.RecurrencePattern) error {
	if _, err := toOption(p); err != nil {
		return err
	}
	return nil
}

// RuleString renders p as an RRULE value (without the "RRULE:" prefix).
func RuleString(p model.RecurrencePattern) (string, error) {
	opt, err := toOption(p)
	if err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}

// Parse converts an RRULE value into a pattern. Parts the pattern cannot
// hold (BYHOUR, BYSETPOS, ...) are dropped.
func Parse(rule string) (*model.RecurrencePattern, error) {
	rule = strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("parse rrule: %w", err)
	}

	p := &model.RecurrencePattern{
		Interval: opt.Interval,
		Count:    opt.Count,
	}
	if p.Interval == 0 {
		p.Interval = 1
	}
	switch opt.Freq {
	case rrule.DAILY:
		p.Type = model.FreqDaily
	case rrule.WEEKLY:
		p.Type = model.FreqWeekly
	case rrule.MONTHLY:
		p.Type = model.FreqMonthly
	case rrule.YEARLY:
		p.Type = model.FreqYearly
	default:
		return nil, fmt.Errorf("unsupported rrule frequency %s", opt.Freq)
	}
	for _, w := range opt.Byweekday {
		// rrule-go numbers Monday as 0.
		p.DaysOfWeek = append(p.DaysOfWeek, (w.Day()+1)%7)
	}
	if len(opt.Bymonthday) > 0 {
		p.DayOfMonth = opt.Bymonthday[0]
	}
	if !opt.Until.IsZero() {
		u := opt.Until
		p.EndDate = &u
	}
	return p, nil
}

func toOption(p model.RecurrencePattern) (rrule.ROption, error) {
	var opt rrule.ROption

	switch p.Type {
	case model.FreqDaily:
		opt.Freq = rrule.DAILY
	case model.FreqWeekly:
		opt.Freq = rrule.WEEKLY
	case model.FreqMonthly:
		opt.Freq = rrule.MONTHLY
	case model.FreqYearly:
		opt.Freq = rrule.YEARLY
	default:
		return opt, fmt.Errorf("unknown recurrence type %q", p.Type)
	}

	if p.Interval < 0 {
		return opt, errors.New("recurrence interval must not be negative")
	}
	opt.Interval = p.Interval
	if opt.Interval == 0 {
		opt.Interval = 1
	}

	if p.Count < 0 {
		return opt, errors.New("recurrence count must not be negative")
	}
	if p.Count > 0 && p.EndDate != nil {
		return opt, errors.New("recurrence count and end date are mutually exclusive")
	}
	opt.Count = p.Count
	if p.EndDate != nil {
		opt.Until = p.EndDate.UTC().Truncate(time.Second)
	}

	for _, d := range p.DaysOfWeek {
		if d < 0 || d > 6 {
			return opt, fmt.Errorf("day of week %d out of range 0..6", d)
		}
		opt.Byweekday = append(opt.Byweekday, weekdays[d])
	}

	if p.DayOfMonth != 0 {
		if p.DayOfMonth < -31 || p.DayOfMonth > 31 {
			return opt, fmt.Errorf("day of month %d out of range", p.DayOfMonth)
		}
		opt.Bymonthday = []int{p.DayOfMonth}
	}

	if _, err := rrule.NewRRule(opt); err != nil {
		return opt, fmt.Errorf("invalid recurrence: %w", err)
	}
	return opt, nil
}
