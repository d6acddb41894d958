package module

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"mixshift/internal/core/period"
	"mixshift/internal/modkit"
	"mixshift/internal/modkit/repokit"
	"mixshift/internal/platform/config"
	"mixshift/internal/platform/testkit"
	"mixshift/internal/services/harvest/domain"
)

// fakeDB satisfies the TxRunner; module wiring never issues a query
type fakeDB struct{ repokit.TxRunner }

func TestFromConfigDefaults(t *testing.T) {
	o := FromConfig(config.New())
	if o.Production {
		t.Fatalf("default env should not be production")
	}
	if o.Location.String() != "America/Los_Angeles" {
		t.Fatalf("location = %s", o.Location)
	}
	if o.MaxStatusAttempts != 10 || o.MaxRequestAttempts != 3 || o.NotifyAfterRetries != 3 {
		t.Fatalf("attempt defaults = %+v", o)
	}
	if o.StuckAfter != time.Hour || o.RatePoints != 60 {
		t.Fatalf("stuck=%s points=%d", o.StuckAfter, o.RatePoints)
	}
}

func TestFromConfigEnv(t *testing.T) {
	t.Setenv("CORE_HARVEST_ENV", "PRODUCTION")
	t.Setenv("CORE_HARVEST_DEV_USER_IDS", "u1, u2")
	t.Setenv("CORE_HARVEST_TIMEZONE", "UTC")
	t.Setenv("CORE_HARVEST_MAX_STATUS_ATTEMPTS", "4")
	t.Setenv("CORE_HARVEST_STUCK_AFTER", "15m")
	t.Setenv("CORE_NOTIFY_TO", "ops@example.com")

	o := FromConfig(config.New())
	if !o.Production {
		t.Fatalf("env should be production")
	}
	if len(o.DevUsers) != 2 || o.DevUsers[1] != "u2" {
		t.Fatalf("dev users = %v", o.DevUsers)
	}
	if o.Location != time.UTC && o.Location.String() != "UTC" {
		t.Fatalf("location = %s", o.Location)
	}
	if o.MaxStatusAttempts != 4 || o.StuckAfter != 15*time.Minute {
		t.Fatalf("overrides not read: %+v", o)
	}
	if len(o.NotifyTo) != 1 {
		t.Fatalf("notify to = %v", o.NotifyTo)
	}
}

func TestFromConfigBadEnvPanics(t *testing.T) {
	t.Setenv("CORE_HARVEST_ENV", "moon")
	testkit.MustPanic(t, func() { FromConfig(config.New()) })
}

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "schedule.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadSchedule(t *testing.T) {
	t.Parallel()
	p := writePolicy(t, "week_unlock: wednesday\nmonth_unlock_day: 4\nrollback_days: 0\nmax_pending: 6\n")
	s, err := LoadSchedule(p, period.DefaultSchedule())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.WeekUnlock != time.Wednesday || s.MonthUnlockDay != 4 || s.RollbackDays != 0 || s.MaxPending != 6 {
		t.Fatalf("schedule = %+v", s)
	}
	if s.QuarterUnlockDay != period.DefaultSchedule().QuarterUnlockDay {
		t.Fatalf("unset field should keep base value")
	}
}

func TestLoadScheduleRejects(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"weekday":   "week_unlock: someday\n",
		"month day": "month_unlock_day: 31\n",
		"rollback":  "rollback_days: -1\n",
		"pending":   "max_pending: 0\n",
		"yaml":      "week_unlock: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := LoadSchedule(writePolicy(t, body), period.DefaultSchedule()); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := LoadSchedule(filepath.Join(t.TempDir(), "missing.yaml"), period.DefaultSchedule()); err == nil {
		t.Fatalf("missing file should error")
	}
}

func TestNewExposesPorts(t *testing.T) {
	t.Setenv("CORE_HARVEST_TIMEZONE", "UTC")
	var m *Module
	testkit.MustNotPanic(t, func() {
		m = New(modkit.Deps{Cfg: config.New(), PG: fakeDB{}}, nil, Options{StuckAfter: 5 * time.Minute})
	})
	if m.Name() != "harvest" || m.Prefix() != "CORE_HARVEST_" {
		t.Fatalf("name=%s prefix=%s", m.Name(), m.Prefix())
	}
	p, ok := m.Ports().(Ports)
	if !ok || p.Runner == nil || p.Query == nil {
		t.Fatalf("ports = %#v", m.Ports())
	}
	var _ domain.RunnerPort = p.Runner
	if m.Options().StuckAfter != 5*time.Minute {
		t.Fatalf("override lost: %s", m.Options().StuckAfter)
	}
}

func TestNewBadScheduleFilePanics(t *testing.T) {
	t.Setenv("CORE_HARVEST_SCHEDULE_FILE", filepath.Join(t.TempDir(), "none.yaml"))
	testkit.MustPanicWith(t, "invalid schedule policy", func() {
		New(modkit.Deps{Cfg: config.New(), PG: fakeDB{}}, nil, Options{})
	})
}
