package store

import "mixshift/internal/platform/config"

// Config aggregates backend configuration
type Config struct {
	AppName string
	PG      PGConfig
	CH      CHConfig
}

// PGConfig configures the postgres pool
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int
	PingRetries int
}

// CHConfig configures the clickhouse sink
type CHConfig struct {
	Enabled    bool
	URL        string
	ClientName string
	ClientTag  string
}

// FromEnv reads SERVICE_PGSQL_* and SERVICE_CLICKHOUSE_*. Postgres is required;
// clickhouse is enabled only when a url is set
func FromEnv(cfg config.Conf, app string) Config {
	pg := cfg.Prefix("SERVICE_PGSQL_")
	ch := cfg.Prefix("SERVICE_CLICKHOUSE_")
	chURL := ch.MayString("URL", "")
	return Config{
		AppName: app,
		PG: PGConfig{
			Enabled:     true,
			URL:         pg.MustString("URL"),
			MaxConns:    int32(pg.MayInt("MAX_CONNS", 8)),
			LogSQL:      pg.MayBool("LOG_SQL", false),
			SlowQueryMs: pg.MayInt("SLOW_MS", 250),
			PingRetries: pg.MayInt("PING_RETRIES", 10),
		},
		CH: CHConfig{
			Enabled:    chURL != "",
			URL:        chURL,
			ClientName: app,
			ClientTag:  ch.MayString("CLIENT_TAG", "dev"),
		},
	}
}
