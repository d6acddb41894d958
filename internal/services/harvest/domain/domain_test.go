package domain

import "testing"

func TestAggregate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		pulls []PullStatus
		want  RunningStatus
	}{
		{"none", nil, Running},
		{"all completed", []PullStatus{PullCompleted, PullCompleted}, RunningCompleted},
		{"needs retry wins", []PullStatus{PullPending, PullNeedsRetry, PullFailed}, RunningNeedsRetry},
		{"pending is running", []PullStatus{PullCompleted, PullPending}, Running},
		{"completed and failed", []PullStatus{PullCompleted, PullFailed}, RunningCompletedWithFatal},
		{"all failed", []PullStatus{PullFailed}, RunningCompletedWithFatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Aggregate(tc.pulls); got != tc.want {
				t.Fatalf("Aggregate(%v) = %v, want %v", tc.pulls, got, tc.want)
			}
		})
	}
}

func TestUnitAggregateSkipsTypesWithoutRange(t *testing.T) {
	t.Parallel()
	u := WorkUnit{Types: map[ReportType]TypeState{
		Week:  {Range: "2026-10-04/2026-10-10", Pull: PullCompleted},
		Month: {Pull: PullNeedsRetry},
	}}
	if got := u.Aggregate(); got != RunningCompleted {
		t.Fatalf("Aggregate = %v", got)
	}
	if u.Applies(Month) || !u.Applies(Week) {
		t.Fatalf("Applies wrong")
	}
	if r := u.Ranges(); len(r) != 1 || r[Week] == "" {
		t.Fatalf("Ranges = %v", r)
	}
}

func TestDownloadTransitions(t *testing.T) {
	t.Parallel()
	all := []DownloadStatus{DownloadPending, DownloadDownloading, DownloadCompleted, DownloadFailed}
	allowed := map[[2]DownloadStatus]bool{
		{DownloadPending, DownloadDownloading}:     true,
		{DownloadDownloading, DownloadDownloading}: true,
		{DownloadDownloading, DownloadCompleted}:   true,
		{DownloadDownloading, DownloadFailed}:      true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := from.CanTransition(to); got != allowed[[2]DownloadStatus{from, to}] {
				t.Fatalf("%s -> %s = %v", from, to, got)
			}
		}
	}
}

func TestColumn(t *testing.T) {
	t.Parallel()
	if got := Column(Quarter, "pull_status"); got != "quarter_pull_status" {
		t.Fatalf("Column = %q", got)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("unknown type should panic")
		}
	}()
	Column(ReportType(9), "range")
}

func TestTaskStateActive(t *testing.T) {
	t.Parallel()
	for s, want := range map[TaskState]bool{
		TaskNotRequested: false, TaskRequesting: true, TaskAwaitingStatus: true,
		TaskDownloading: true, TaskImported: false, TaskFailed: false,
	} {
		if s.Active() != want {
			t.Fatalf("%s.Active() = %v", s, !want)
		}
	}
}
