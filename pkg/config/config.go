package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alpacanetworks/telemon/pkg/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/go-playground/validator.v9"
	"gopkg.in/ini.v1"
)

const (
	DefaultMaxUploadsPerDay = 100
	DefaultTimeout          = 30 * time.Second
	DefaultInterval         = time.Hour
	DefaultChannel          = "release"
	programName             = "telemon"
	defaultDBPath           = "/var/lib/telemon/telemon.db"
)

var validate = validator.New()

// Files returns the config file candidates for the named program, in
// lookup order.
func Files(name string) []string {
	return []string{
		fmt.Sprintf("/etc/%s/%s.conf", name, name),
		filepath.Join(os.Getenv("HOME"), fmt.Sprintf(".%s.conf", name)),
	}
}

// LoadConfig reads the first non-empty config file and returns validated
// settings. It aborts the process when no usable configuration exists.
func LoadConfig(configFiles []string) Settings {
	var validConfigFile string

	for _, configFile := range configFiles {
		fileInfo, statErr := os.Stat(configFile)
		if statErr != nil {
			if !os.IsNotExist(statErr) {
				log.Error().Err(statErr).Msgf("Error accessing config file %s", configFile)
			}
			continue
		}

		if fileInfo.Size() == 0 {
			log.Debug().Msgf("Config file %s is empty, skipping...", configFile)
			continue
		}

		log.Debug().Msgf("Using config file %s", configFile)
		validConfigFile = configFile
		break
	}

	if validConfigFile == "" {
		log.Fatal().Msg("No valid config file found")
	}

	config, err := ParseConfig(validConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msgf("Failed to load config file %s", validConfigFile)
	}

	if config.Logging.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	isValid, settings := validateConfig(config)
	if !isValid {
		log.Fatal().Msg("Aborting...")
	}

	return settings
}

// ParseConfig maps an ini source (file name, []byte or io.Reader) onto
// Config, keeping defaults for keys the source leaves out.
func ParseConfig(source interface{}) (Config, error) {
	iniData, err := ini.Load(source)
	if err != nil {
		return Config{}, err
	}

	config := defaultConfig()
	err = iniData.MapTo(&config)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// CheckConfig parses source and validates it the way LoadConfig does,
// without aborting.
func CheckConfig(source interface{}) (Settings, error) {
	config, err := ParseConfig(source)
	if err != nil {
		return Settings{}, err
	}

	isValid, settings := validateConfig(config)
	if !isValid {
		return Settings{}, errors.New("invalid configuration")
	}

	return settings, nil
}

func defaultConfig() Config {
	var config Config
	config.Server.UserAgent = utils.GetUserAgent(programName)
	config.SSL.Verify = true
	config.Upload.MaxPingsPerDay = DefaultMaxUploadsPerDay
	config.Upload.Timeout = int(DefaultTimeout.Seconds())
	config.Upload.Timezone = "UTC"
	config.Upload.Interval = int(DefaultInterval.Seconds())
	config.Upload.PingTypes = []string{"core"}
	config.Upload.Channel = DefaultChannel
	config.Upload.Record = true
	config.Storage.Path = defaultDBPath
	return config
}

func validateConfig(config Config) (bool, Settings) {
	log.Debug().Msg("Validating configuration fields...")

	settings := Settings{
		UserAgent:        strings.TrimSpace(config.Server.UserAgent),
		MaxUploadsPerDay: config.Upload.MaxPingsPerDay,
		Timeout:          time.Duration(config.Upload.Timeout) * time.Second,
		Interval:         time.Duration(config.Upload.Interval) * time.Second,
		Channel:          strings.TrimSpace(config.Upload.Channel),
		RecordPings:      config.Upload.Record,
		SSLVerify:        true,
		DBPath:           config.Storage.Path,
		MetricsAddr:      config.Metrics.Addr,
	}

	valid := true
	val := config.Server.URL
	if strings.HasPrefix(val, "http://") || strings.HasPrefix(val, "https://") {
		settings.ServerURL = strings.TrimSuffix(val, "/")
		settings.UseSSL = strings.HasPrefix(val, "https://")
	} else {
		log.Error().Msg("Server url is invalid")
		valid = false
	}

	for _, pingType := range config.Upload.PingTypes {
		pingType = strings.TrimSpace(pingType)
		if pingType != "" {
			settings.PingTypes = append(settings.PingTypes, pingType)
		}
	}

	location, err := time.LoadLocation(config.Upload.Timezone)
	if err != nil {
		log.Error().Err(err).Msgf("Unknown timezone %q", config.Upload.Timezone)
		valid = false
	}
	settings.Location = location

	if settings.UseSSL {
		settings.SSLVerify = config.SSL.Verify
		caCert := config.SSL.CaCert
		if !settings.SSLVerify {
			log.Warn().Msg(
				"SSL verification is turned off. " +
					"Please be aware that this setting is not appropriate for production use.",
			)
		} else if caCert != "" {
			if _, err := os.Stat(caCert); os.IsNotExist(err) {
				log.Error().Msg("Given path for CA certificate does not exist.")
				valid = false
			} else {
				settings.CaCert = caCert
			}
		}
	}

	if err := validate.Struct(settings); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		valid = false
	}

	return valid, settings
}
