package module

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mixshift/internal/core/period"
)

// schedulePolicy is the on-disk form of a period.Schedule. Omitted keys keep the base value
type schedulePolicy struct {
	WeekUnlock       string `yaml:"week_unlock"`
	MonthUnlockDay   *int   `yaml:"month_unlock_day"`
	QuarterUnlockDay *int   `yaml:"quarter_unlock_day"`
	RollbackDays     *int   `yaml:"rollback_days"`
	MaxPending       *int   `yaml:"max_pending"`
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// LoadSchedule overlays the YAML policy at path onto base
func LoadSchedule(path string, base period.Schedule) (period.Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("reading schedule file: %w", err)
	}
	var p schedulePolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return base, fmt.Errorf("parsing schedule file: %w", err)
	}
	return p.apply(base)
}

func (p schedulePolicy) apply(s period.Schedule) (period.Schedule, error) {
	if p.WeekUnlock != "" {
		d, ok := weekdays[strings.ToLower(strings.TrimSpace(p.WeekUnlock))]
		if !ok {
			return s, fmt.Errorf("week_unlock: unknown weekday %q", p.WeekUnlock)
		}
		s.WeekUnlock = d
	}
	for _, f := range []struct {
		name     string
		v        *int
		dst      *int
		min, max int
	}{
		{"month_unlock_day", p.MonthUnlockDay, &s.MonthUnlockDay, 1, 28},
		{"quarter_unlock_day", p.QuarterUnlockDay, &s.QuarterUnlockDay, 1, 90},
		{"rollback_days", p.RollbackDays, &s.RollbackDays, 0, 27},
		{"max_pending", p.MaxPending, &s.MaxPending, 1, 120},
	} {
		if f.v == nil {
			continue
		}
		if *f.v < f.min || *f.v > f.max {
			return s, fmt.Errorf("%s: %d is outside [%d, %d]", f.name, *f.v, f.min, f.max)
		}
		*f.dst = *f.v
	}
	return s, nil
}
