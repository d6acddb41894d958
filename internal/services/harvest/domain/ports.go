package domain

import (
	"context"
	"time"

	imdom "mixshift/internal/services/importer/domain"
)

// RunRequest narrows a run to a user or a seller; both are optional
type RunRequest struct {
	UserID   string `json:"user_id,omitempty" validate:"omitempty,max=64"`
	SellerID string `json:"seller_id,omitempty" validate:"omitempty,alphanum,max=32"`
}

// UnitOutcome is the aggregate of one unit after a run
type UnitOutcome struct {
	WorkUnitID int64  `json:"work_unit_id"`
	Reused     bool   `json:"reused"`
	Status     string `json:"running_status"`
}

// RunResult summarises one orchestrator run
type RunResult struct {
	RunID             string        `json:"run_id"`
	SellerID          string        `json:"seller_id,omitempty"`
	Units             []UnitOutcome `json:"units"`
	WatermarkAdvanced bool          `json:"watermark_advanced"`
}

// WatchdogResult summarises one watchdog pass
type WatchdogResult struct {
	Scanned   int `json:"scanned"`
	Recovered int `json:"recovered"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// ImportPendingResult summarises one re-import pass
type ImportPendingResult struct {
	Attempted int `json:"attempted"`
	Imported  int `json:"imported"`
	Failed    int `json:"failed"`
}

// RunnerPort drives the report lifecycle
type RunnerPort interface {
	RunOnce(ctx context.Context, req RunRequest) (RunResult, error)
	RetryStuckUnit(ctx context.Context, unitID int64, t ReportType) (PhaseSnapshot, error)
	Watchdog(ctx context.Context) (WatchdogResult, error)
	ImportPending(ctx context.Context) (ImportPendingResult, error)
}

// QueryPort is the read only surface
type QueryPort interface {
	CheckPhase(ctx context.Context, unitID int64, t ReportType) (PhaseSnapshot, error)
}

// Repo is the durable state of the orchestrator. Every transition is written
// here before the next phase reads it back
type Repo interface {
	// sellers and asins
	NextSeller(ctx context.Context, q SellerQuery) (Seller, bool, error)
	Seller(ctx context.Context, id int64) (Seller, error)
	TouchSellerRun(ctx context.Context, id int64, at time.Time) error
	SetLastPull(ctx context.Context, id int64, day time.Time) error
	EligibleAsins(ctx context.Context, sellerID int64) ([]string, error)
	MarkAsins(ctx context.Context, sellerID int64, asins []string, t ReportType, st AsinStatus) error

	// work units
	Covered(ctx context.Context, sellerID int64, asins string, t ReportType, rng string) (bool, error)
	FindOpenUnit(ctx context.Context, sellerID int64, asins string, ranges map[ReportType]string) (WorkUnit, bool, error)
	CreateUnit(ctx context.Context, u WorkUnit) (WorkUnit, error)
	Unit(ctx context.Context, id int64) (WorkUnit, error)
	UpdateType(ctx context.Context, unitID int64, t ReportType, st TypeState) error
	SetRunning(ctx context.Context, unitID int64, st RunningStatus) error
	StuckTypes(ctx context.Context, before time.Time, limit int) ([]StuckRef, error)

	// report tasks; ClaimTask returns false when an active task holds the key
	ClaimTask(ctx context.Context, task ReportTask) (bool, error)
	ActiveTask(ctx context.Context, unitID int64, t ReportType, rng string) (ReportTask, bool, error)
	LatestTask(ctx context.Context, unitID int64, t ReportType, rng string) (ReportTask, bool, error)
	UpdateTask(ctx context.Context, id string, st TaskState, reportID, documentID string) error

	// audit log
	LogActivity(ctx context.Context, e ActivityEntry) error
	// the Latest* lookups ignore entries logged before since
	LatestReportID(ctx context.Context, unitID int64, t ReportType, rng string, since time.Time) (string, bool, error)
	LatestDocumentID(ctx context.Context, unitID int64, t ReportType, rng string, since time.Time) (string, bool, error)

	// downloads
	EnsureDownload(ctx context.Context, d DownloadRecord) (DownloadRecord, error)
	BeginDownloadAttempt(ctx context.Context, id int64) (DownloadRecord, bool, error)
	CompleteDownload(ctx context.Context, id int64, path string, size int64, rows int) error
	FailDownload(ctx context.Context, id int64, msg string) error
	Download(ctx context.Context, id int64) (DownloadRecord, error)
	LatestDownload(ctx context.Context, unitID int64, t ReportType) (DownloadRecord, bool, error)
	PendingImports(ctx context.Context, limit int) ([]DownloadRecord, error)
}

// Call is who a provider call is made for
type Call struct {
	SellerID    string
	AccessToken string
}

// ReportRequest is what the request phase asks the provider for
type ReportRequest struct {
	MarketplaceID string
	Type          ReportType
	Start, End    time.Time
	Asins         string
}

// Provider processing statuses
const (
	ProcessingInQueue    = "IN_QUEUE"
	ProcessingInProgress = "IN_PROGRESS"
	ProcessingDone       = "DONE"
	ProcessingFatal      = "FATAL"
	ProcessingCancelled  = "CANCELLED"
)

// ReportStatus is the provider view of a report
type ReportStatus struct {
	Status     string
	DocumentID string
}

// Row is one decoded report record
type Row = map[string]any

// ReportsAPI is the reporting provider. 401 and 403 must come back as
// unauthorized and forbidden coded errors
type ReportsAPI interface {
	CreateReport(ctx context.Context, c Call, r ReportRequest) (string, error)
	ReportStatus(ctx context.Context, c Call, reportID string) (ReportStatus, error)
	DownloadRows(ctx context.Context, c Call, documentID string) ([]Row, error)
}

// Tokens exchanges a seller refresh token for an access token
type Tokens interface {
	AccessToken(ctx context.Context, sellerID, refreshToken string, force bool) (string, error)
}

// Failure is a notification about a unit type that needs attention
type Failure struct {
	WorkUnitID int64
	SellerID   string
	Type       ReportType
	Message    string
	RetryCount int
	ReportID   string
	Fatal      bool
}

// Notifier delivers failures; it never returns an error
type Notifier interface {
	SendFailure(ctx context.Context, f Failure)
}

// Importer lands a downloaded artifact
type Importer interface {
	Import(ctx context.Context, req imdom.Request) (imdom.Result, error)
}

// ArtifactStore persists downloaded rows and returns where they went
type ArtifactStore interface {
	Save(ctx context.Context, sellerID, reportType, reportID string, rows []Row) (path string, size int64, err error)
}
