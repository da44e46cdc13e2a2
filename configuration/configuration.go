package configuration

import (
	"fmt"
	"os"

	"github.com/bartossh/Rollupis/archive"
	"github.com/bartossh/Rollupis/bookkeeping"
	"github.com/bartossh/Rollupis/client"
	"github.com/bartossh/Rollupis/natsclient"
	"github.com/bartossh/Rollupis/repository"
	"github.com/bartossh/Rollupis/scheduler"
	"github.com/bartossh/Rollupis/sequencer"
	"github.com/bartossh/Rollupis/server"
	"github.com/bartossh/Rollupis/telemetry"
	"github.com/bartossh/Rollupis/watcher"
	"github.com/bartossh/Rollupis/zincaddapter"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Environment variables overriding secrets kept out of the yaml file.
const (
	EnvAccessToken = "ROLLUP_ACCESS_TOKEN"
	EnvDBConnStr   = "ROLLUP_DB_CONN_STR"
	EnvWalletPath  = "ROLLUP_WALLET_PATH"
	EnvZincToken   = "ROLLUP_ZINC_TOKEN"
)

// Configuration is the main configuration of the application that corresponds to the *.yaml file
// that holds the configuration.
type Configuration struct {
	Database   repository.DBConfig `yaml:"database"`
	Server     server.Config       `yaml:"server"`
	Bookkeeper bookkeeping.Config  `yaml:"bookkeeper"`
	Archive    archive.Config      `yaml:"archive"`
	Nats       natsclient.Config   `yaml:"nats"`
	Client     client.Config       `yaml:"client"`
	Sequencer  sequencer.Config    `yaml:"sequencer"`
	Scheduler  scheduler.Config    `yaml:"scheduler"`
	Telemetry  telemetry.Config    `yaml:"telemetry"`
	Watcher    watcher.Config      `yaml:"watcher"`
	ZincLogger zincaddapter.Config `yaml:"zinc_logger"`
}

// Read reads the configuration from the file and returns the Configuration with set fields according to the yaml setup.
func Read(path string) (Configuration, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}

	var main Configuration
	err = yaml.Unmarshal(buf, &main)
	if err != nil {
		return Configuration{}, fmt.Errorf("in file %q: %w", path, err)
	}

	return main, err
}

// ReadWithEnv reads the configuration like Read and overrides secrets with the environment variables.
// Variables are loaded from envFile first when it is not empty, already set variables take precedence.
func ReadWithEnv(path, envFile string) (Configuration, error) {
	main, err := Read(path)
	if err != nil {
		return main, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Configuration{}, fmt.Errorf("in env file %q: %w", envFile, err)
		}
	}

	if v, ok := os.LookupEnv(EnvAccessToken); ok {
		main.Server.AccessToken = v
		main.Client.AccessToken = v
	}
	if v, ok := os.LookupEnv(EnvDBConnStr); ok {
		main.Database.ConnStr = v
	}
	if v, ok := os.LookupEnv(EnvWalletPath); ok {
		main.Sequencer.WalletPath = v
	}
	if v, ok := os.LookupEnv(EnvZincToken); ok {
		main.ZincLogger.Token = v
	}

	return main, nil
}
