package config

import "time"

// Settings is the validated, read-only configuration shared by every
// component for the lifetime of the process.
type Settings struct {
	ServerURL        string `validate:"required,url"`
	UserAgent        string `validate:"required"`
	MaxUploadsPerDay int    `validate:"gte=0"`
	Timeout          time.Duration
	Location         *time.Location
	UseSSL           bool
	CaCert           string // CA certificate file path
	SSLVerify        bool
	PingTypes        []string
	Channel          string `validate:"required"`
	RecordPings      bool
	Interval         time.Duration `validate:"gt=0"`
	DBPath           string        `validate:"required"`
	MetricsAddr      string
}

type Config struct {
	Server struct {
		URL       string `ini:"url"`
		UserAgent string `ini:"user_agent"`
	} `ini:"server"`
	SSL struct {
		Verify bool   `ini:"verify"`
		CaCert string `ini:"ca_cert"`
	} `ini:"ssl"`
	Upload struct {
		MaxPingsPerDay int      `ini:"max_pings_per_day"`
		Timeout        int      `ini:"timeout"`
		Timezone       string   `ini:"timezone"`
		PingTypes      []string `ini:"ping_types" delim:","`
		Interval       int      `ini:"interval"`
		Channel        string   `ini:"channel"`
		Record         bool     `ini:"record"`
	} `ini:"upload"`
	Storage struct {
		Path string `ini:"path"`
	} `ini:"storage"`
	Metrics struct {
		Addr string `ini:"addr"`
	} `ini:"metrics"`
	Logging struct {
		Debug bool `ini:"debug"`
	} `ini:"logging"`
}
