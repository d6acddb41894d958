// Package domain holds the harvest types, statuses and ports
package domain

import (
	"fmt"
	"time"

	"mixshift/internal/core/period"
)

// ReportType is the reporting period of a report
type ReportType = period.Type

// Report types
const (
	Week    = period.Week
	Month   = period.Month
	Quarter = period.Quarter
)

// columnPrefix maps a type to the prefix of its per type columns
var columnPrefix = map[ReportType]string{
	Week:    "week_",
	Month:   "month_",
	Quarter: "quarter_",
}

// Column returns the per type column name, e.g. Column(Month, "pull_status") is month_pull_status.
// It panics on an unknown type since callers only pass period.All values
func Column(t ReportType, field string) string {
	p, ok := columnPrefix[t]
	if !ok {
		panic(fmt.Sprintf("domain: no columns for report type %d", t))
	}
	return p + field
}

// PullStatus is the durable per type status the watchdog inspects
type PullStatus int16

// Pull statuses
const (
	PullPending PullStatus = iota
	PullCompleted
	PullNeedsRetry
	PullFailed
)

func (s PullStatus) String() string {
	switch s {
	case PullPending:
		return "pending"
	case PullCompleted:
		return "completed"
	case PullNeedsRetry:
		return "needs_retry"
	case PullFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports Completed or Failed
func (s PullStatus) Terminal() bool { return s == PullCompleted || s == PullFailed }

// PhaseStatus marks which phase a type is in
type PhaseStatus int16

// Phases
const (
	PhaseNotStarted PhaseStatus = iota
	PhaseRequesting
	PhaseCheckingStatus
	PhaseDownloading
	PhaseImporting
)

func (p PhaseStatus) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseRequesting:
		return "requesting"
	case PhaseCheckingStatus:
		return "checking_status"
	case PhaseDownloading:
		return "downloading"
	case PhaseImporting:
		return "importing"
	}
	return "unknown"
}

// Active reports a phase that implies work is in flight
func (p PhaseStatus) Active() bool { return p >= PhaseRequesting && p <= PhaseImporting }

// RunningStatus is the aggregate status of a work unit
type RunningStatus int16

// Aggregate statuses
const (
	Running RunningStatus = iota
	RunningNeedsRetry
	RunningCompleted
	RunningCompletedWithFatal
)

func (s RunningStatus) String() string {
	switch s {
	case Running:
		return "running"
	case RunningNeedsRetry:
		return "needs_retry"
	case RunningCompleted:
		return "completed"
	case RunningCompletedWithFatal:
		return "completed_with_fatal"
	}
	return "unknown"
}

// AsinStatus is the per type status of a single asin
type AsinStatus int16

// Asin statuses
const (
	AsinPending AsinStatus = iota
	AsinInProgress
	AsinCompleted
	AsinFailed
)

// TypeState is the per type slice of a work unit. An empty Range means the
// type does not apply to the unit
type TypeState struct {
	Range      string
	Pull       PullStatus
	Phase      PhaseStatus
	RetryCount int
}

// WorkUnit is one asin batch of one seller tracked across report types
type WorkUnit struct {
	ID              int64
	SellerAccountID int64
	Asins           string
	Types           map[ReportType]TypeState
	Running         RunningStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// State returns the state for t; the zero value when t does not apply
func (u WorkUnit) State(t ReportType) TypeState { return u.Types[t] }

// Applies reports whether the unit was created with a range for t
func (u WorkUnit) Applies(t ReportType) bool { return u.Types[t].Range != "" }

// Ranges returns the range per applicable type
func (u WorkUnit) Ranges() map[ReportType]string {
	out := make(map[ReportType]string, len(u.Types))
	for t, st := range u.Types {
		if st.Range != "" {
			out[t] = st.Range
		}
	}
	return out
}

// Aggregate folds every applicable type into the unit status
func (u WorkUnit) Aggregate() RunningStatus {
	var pulls []PullStatus
	for _, t := range period.All {
		if u.Applies(t) {
			pulls = append(pulls, u.Types[t].Pull)
		}
	}
	return Aggregate(pulls)
}

// Aggregate applies the finalize priority: any NeedsRetry, then any Pending,
// then all Completed, else Completed with fatal. No states is Running
func Aggregate(pulls []PullStatus) RunningStatus {
	if len(pulls) == 0 {
		return Running
	}
	var pending, failed bool
	for _, p := range pulls {
		switch p {
		case PullNeedsRetry:
			return RunningNeedsRetry
		case PullPending:
			pending = true
		case PullFailed:
			failed = true
		}
	}
	switch {
	case pending:
		return Running
	case failed:
		return RunningCompletedWithFatal
	}
	return RunningCompleted
}

// Seller is one selling partner account
type Seller struct {
	ID               int64
	UserID           string
	SellingPartnerID string
	MarketplaceID    string
	RefreshToken     string
	LastPullAt       time.Time
	LastRunAt        time.Time
}

// SellerQuery narrows seller selection. Users, when set, is an allow-list
type SellerQuery struct {
	UserID   string
	SellerID string
	Users    []string
}

// TaskState is the fine grained lifecycle of one report task
type TaskState int16

// Task states
const (
	TaskNotRequested TaskState = iota
	TaskRequesting
	TaskAwaitingStatus
	TaskDownloading
	TaskImported
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskNotRequested:
		return "NOT_REQUESTED"
	case TaskRequesting:
		return "REQUESTING"
	case TaskAwaitingStatus:
		return "AWAITING_STATUS"
	case TaskDownloading:
		return "DOWNLOADING"
	case TaskImported:
		return "IMPORTED"
	case TaskFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Active reports a state that blocks a new request for the same key
func (s TaskState) Active() bool { return s >= TaskRequesting && s <= TaskDownloading }

// ReportTask is one (work unit, type, range) request
type ReportTask struct {
	ID         string
	WorkUnitID int64
	Type       ReportType
	Range      string
	State      TaskState
	ReportID   string
	DocumentID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DownloadStatus is the lifecycle of one document download
type DownloadStatus string

// Download statuses
const (
	DownloadPending     DownloadStatus = "PENDING"
	DownloadDownloading DownloadStatus = "DOWNLOADING"
	DownloadCompleted   DownloadStatus = "COMPLETED"
	DownloadFailed      DownloadStatus = "FAILED"
)

// Terminal reports COMPLETED or FAILED
func (s DownloadStatus) Terminal() bool { return s == DownloadCompleted || s == DownloadFailed }

// CanTransition allows PENDING to DOWNLOADING, DOWNLOADING to itself for a
// further attempt, and DOWNLOADING to a terminal status
func (s DownloadStatus) CanTransition(to DownloadStatus) bool {
	switch s {
	case DownloadPending:
		return to == DownloadDownloading
	case DownloadDownloading:
		return to == DownloadDownloading || to.Terminal()
	}
	return false
}

// DownloadRecord tracks the download of one document
type DownloadRecord struct {
	ID          int64
	TaskID      string
	WorkUnitID  int64
	Type        ReportType
	Range       string
	ReportID    string
	DocumentID  string
	Status      DownloadStatus
	Attempts    int
	MaxAttempts int
	Path        string
	SizeBytes   int64
	RowCount    int
	ImportedAt  time.Time
	ImportError string
	UpdatedAt   time.Time
}

// Activity actions
const (
	ActionRequest  = "request_report"
	ActionStatus   = "check_status"
	ActionDownload = "download_report"
	ActionImport   = "import_report"
	ActionWatchdog = "watchdog_retry"
)

// Activity outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
	OutcomeFatal     = "fatal"
	OutcomeSkipped   = "skipped"
	OutcomeNoData    = "no_data"
	OutcomeFailed    = "failed"
)

// ActivityEntry is one append only audit record
type ActivityEntry struct {
	ID         int64
	WorkUnitID int64
	Type       ReportType
	Range      string
	Action     string
	Outcome    string
	Message    string
	ReportID   string
	DocumentID string
	RetryCount int
	Elapsed    time.Duration
	CreatedAt  time.Time
}

// StuckRef names one stuck (unit, type)
type StuckRef struct {
	WorkUnitID int64
	Type       ReportType
	Phase      PhaseStatus
	UpdatedAt  time.Time
}

// PhaseSnapshot is what checkPhase reports
type PhaseSnapshot struct {
	WorkUnitID int64           `json:"work_unit_id"`
	Type       string          `json:"report_type"`
	Range      string          `json:"date_range"`
	Pull       string          `json:"pull_status"`
	Phase      string          `json:"phase_status"`
	RetryCount int             `json:"retry_count"`
	Running    string          `json:"running_status"`
	ReportID   string          `json:"report_id,omitempty"`
	Task       string          `json:"task_state,omitempty"`
	Download   *DownloadStatus `json:"download_status,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
