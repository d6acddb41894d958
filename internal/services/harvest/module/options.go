package module

import (
	"time"

	"mixshift/internal/platform/config"
)

// Options controls harvest behavior. Values are read from env and may be
// overridden by the caller
type Options struct {
	Production bool
	DevUsers   []string

	Location     *time.Location
	ScheduleFile string
	MaxPending   int

	MaxRequestAttempts  int
	MaxStatusAttempts   int
	MaxDownloadAttempts int
	BackoffBase         time.Duration
	BackoffStep         time.Duration
	BackoffMax          time.Duration
	InitialDelay        time.Duration

	StuckAfter         time.Duration
	NotifyAfterRetries int
	WatchdogBatch      int
	ImportBatch        int

	RunTimeout    time.Duration
	CallTimeout   time.Duration
	ImportTimeout time.Duration
	LeaseTTL      time.Duration

	ArtifactDir string

	// provider
	Endpoint     string
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTPTimeout  time.Duration

	BreakerThreshold int
	BreakerTimeout   time.Duration
	RatePoints       int
	RateWindow       time.Duration

	// notifications
	SES        bool
	NotifyFrom string
	NotifyTo   []string
}

// FromConfig reads options under CORE_HARVEST_, CORE_SPAPI_, CORE_BREAKER_,
// CORE_RATELIMIT_ and CORE_NOTIFY_
func FromConfig(cfg config.Conf) Options {
	h := cfg.Prefix("CORE_HARVEST_")
	sp := cfg.Prefix("CORE_SPAPI_")
	br := cfg.Prefix("CORE_BREAKER_")
	rl := cfg.Prefix("CORE_RATELIMIT_")
	nt := cfg.Prefix("CORE_NOTIFY_")
	return Options{
		Production: h.MayEnum("ENV", "dev", "production", "staging", "dev") == "production",
		DevUsers:   h.MayCSV("DEV_USER_IDS", nil),

		Location:     h.MayLocation("TIMEZONE", "America/Los_Angeles"),
		ScheduleFile: h.MayString("SCHEDULE_FILE", ""),
		MaxPending:   h.MayInt("MAX_PENDING_WINDOWS", 12),

		MaxRequestAttempts:  h.MayInt("MAX_REQUEST_ATTEMPTS", 3),
		MaxStatusAttempts:   h.MayInt("MAX_STATUS_ATTEMPTS", 10),
		MaxDownloadAttempts: h.MayInt("MAX_DOWNLOAD_ATTEMPTS", 3),
		BackoffBase:         h.MayDuration("BACKOFF_BASE", 30*time.Second),
		BackoffStep:         h.MayDuration("BACKOFF_STEP", 30*time.Second),
		BackoffMax:          h.MayDuration("BACKOFF_MAX", 5*time.Minute),
		InitialDelay:        h.MayDuration("INITIAL_DELAY", time.Minute),

		StuckAfter:         h.MayDuration("STUCK_AFTER", time.Hour),
		NotifyAfterRetries: h.MayInt("NOTIFY_AFTER_RETRIES", 3),
		WatchdogBatch:      h.MayInt("WATCHDOG_BATCH", 50),
		ImportBatch:        h.MayInt("IMPORT_BATCH", 100),

		RunTimeout:    h.MayDuration("RUN_TIMEOUT", 90*time.Minute),
		CallTimeout:   h.MayDuration("CALL_TIMEOUT", 30*time.Second),
		ImportTimeout: h.MayDuration("IMPORT_TIMEOUT", 5*time.Minute),
		LeaseTTL:      h.MayDuration("LEASE_TTL", 2*time.Hour),

		ArtifactDir: h.MayString("ARTIFACT_DIR", "var/artifacts"),

		Endpoint:     sp.MayString("ENDPOINT", ""),
		TokenURL:     sp.MayString("TOKEN_URL", ""),
		ClientID:     sp.MayString("CLIENT_ID", ""),
		ClientSecret: sp.MayString("CLIENT_SECRET", ""),
		HTTPTimeout:  sp.MayDuration("TIMEOUT", 30*time.Second),

		BreakerThreshold: br.MayInt("THRESHOLD", 5),
		BreakerTimeout:   br.MayDuration("TIMEOUT", time.Minute),
		RatePoints:       rl.MayInt("POINTS", 60),
		RateWindow:       rl.MayDuration("WINDOW", time.Minute),

		SES:        nt.MayBool("SES_ENABLED", false),
		NotifyFrom: nt.MayString("FROM", "alerts@mixshift.local"),
		NotifyTo:   nt.MayCSV("TO", nil),
	}
}
