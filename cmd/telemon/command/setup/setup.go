package setup

import (
	"embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"text/template"

	cli "github.com/alpacanetworks/alpacon-cli/utils"
	"github.com/alpacanetworks/telemon/pkg/config"
	"github.com/alpacanetworks/telemon/pkg/utils"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

//go:embed configs/*
var configFiles embed.FS

var (
	name                string
	configTemplatePath  string
	configTarget        string
	tmpFilePath         = "configs/tmpfile.conf"
	tmpFileTarget       string
	serviceTemplatePath string
	serviceTarget       string
)

func SetConfigPaths(serviceName string) {
	name = serviceName
	configTemplatePath = fmt.Sprintf("configs/%s.conf", name)
	configTarget = fmt.Sprintf("/etc/%s/%s.conf", name, name)
	tmpFileTarget = fmt.Sprintf("/usr/lib/tmpfiles.d/%s.conf", name)
	serviceTemplatePath = fmt.Sprintf("configs/%s.service", name)
	serviceTarget = fmt.Sprintf("/lib/systemd/system/%s.service", name)
}

type ConfigData struct {
	URL            string
	Verify         string
	CACert         string
	MaxPingsPerDay string
	Timezone       string
	PingTypes      string
	Channel        string
	MetricsAddr    string
	Debug          string
}

var SetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write the telemon config and systemd service from TELEMON_* environment variables",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Starting %s setup...\n", name)

		configExists := fileExists(configTarget)
		isOverwrite := true

		if term.IsTerminal(int(syscall.Stdin)) {
			if configExists {
				fmt.Println("A configuration file already exists at:", configTarget)
				isOverwrite = cli.PromptForBool("Do you want to overwrite it with a new configuration?: ")
			}

			if !isOverwrite {
				fmt.Println("Keeping the existing configuration file. Skipping configuration update.")
				return nil
			}
		}

		err := copyEmbeddedFile(tmpFilePath, tmpFileTarget)
		if err != nil {
			return err
		}

		output, err := exec.Command("systemd-tmpfiles", "--create").CombinedOutput()
		if err != nil {
			return fmt.Errorf("%w\n%s", err, string(output))
		}

		err = writeConfig(configDataFromEnv(), configTarget)
		if err != nil {
			return err
		}

		err = copyEmbeddedFile(serviceTemplatePath, serviceTarget)
		if err != nil {
			return fmt.Errorf("failed to write service file: %w", err)
		}

		fmt.Println("Configuration file successfully updated.")
		return nil
	},
}

func configDataFromEnv() ConfigData {
	return ConfigData{
		URL:            utils.GetEnvOrDefault("TELEMON_URL", ""),
		Verify:         utils.GetEnvOrDefault("TELEMON_SSL_VERIFY", "true"),
		CACert:         utils.GetEnvOrDefault("TELEMON_CA_CERT", ""),
		MaxPingsPerDay: utils.GetEnvOrDefault("TELEMON_MAX_PINGS_PER_DAY", fmt.Sprint(config.DefaultMaxUploadsPerDay)),
		Timezone:       utils.GetEnvOrDefault("TELEMON_TIMEZONE", "UTC"),
		PingTypes:      utils.GetEnvOrDefault("TELEMON_PING_TYPES", "core"),
		Channel:        utils.GetEnvOrDefault("TELEMON_CHANNEL", config.DefaultChannel),
		MetricsAddr:    utils.GetEnvOrDefault("TELEMON_METRICS_ADDR", ""),
		Debug:          utils.GetEnvOrDefault("TELEMON_DEBUG", "false"),
	}
}

// writeConfig renders the config template to target. The result must
// parse back into valid settings before it replaces target.
func writeConfig(data ConfigData, target string) error {
	if data.URL == "" {
		return fmt.Errorf("environment variable TELEMON_URL must be set")
	}

	tmplData, err := configFiles.ReadFile(configTemplatePath)
	if err != nil {
		return fmt.Errorf("failed to read template file (%s): %w", configTemplatePath, err)
	}

	tmpl, err := template.New(fmt.Sprintf("%s.conf", name)).Parse(string(tmplData))
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	err = os.MkdirAll(filepath.Dir(target), 0755)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(target), fmt.Sprintf("%s.conf.*", name))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmpFile.Name()) }()

	err = tmpl.Execute(tmpFile, data)
	_ = tmpFile.Close()
	if err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	if _, err = config.CheckConfig(tmpFile.Name()); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	err = os.Rename(tmpFile.Name(), target)
	if err != nil {
		return fmt.Errorf("failed to move temp file to target: %w", err)
	}

	return nil
}

func copyEmbeddedFile(srcPath, dstPath string) error {
	fileData, err := configFiles.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read embedded file: %w", err)
	}

	err = os.MkdirAll(filepath.Dir(dstPath), 0755)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return os.WriteFile(dstPath, fileData, 0644)
}

func fileExists(path string) bool {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fileInfo.Size() > 0
}
