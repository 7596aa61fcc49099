package config

import (
	"os"
	"time"

	"github.com/go-yaml/yaml"

	"github.com/contextly/contextly-ledger"
)

type Config struct {
	Service    Service    `yaml:"service"`
	Server     Server     `yaml:"server"`
	Auth       Auth       `yaml:"auth"`
	Ledger     Ledger     `yaml:"ledger"`
	Settlement Settlement `yaml:"settlement"`
}

type Service struct {
	FQDN       string `yaml:"fqdn"`
	PrivateKey string `yaml:"privatekey"`

	// ---
	Address string
}

type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

type Auth struct {
	ChallengeWindow time.Duration `yaml:"challengeWindow"`
	SessionTTL      time.Duration `yaml:"sessionTTL"`
}

type Ledger struct {
	MaxBatchSize     int              `yaml:"maxBatchSize"`
	MaxBatchInterval time.Duration    `yaml:"maxBatchInterval"`
	MinSettlement    contextly.Amount `yaml:"minSettlement"`
}

type Settlement struct {
	Endpoint      string `yaml:"endpoint"`
	EventEndpoint string `yaml:"eventEndpoint"`
	MaxAttempts   int    `yaml:"maxAttempts"`
}

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	address, err := contextly.PrivKeyToAddr(config.Service.PrivateKey)
	if err != nil {
		return Config{}, err
	}
	config.Service.Address = address

	if config.Auth.ChallengeWindow == 0 {
		config.Auth.ChallengeWindow = 5 * time.Minute
	}
	if config.Auth.SessionTTL == 0 {
		config.Auth.SessionTTL = 7 * 24 * time.Hour
	}
	if config.Ledger.MaxBatchSize == 0 {
		config.Ledger.MaxBatchSize = 100
	}
	if config.Ledger.MaxBatchInterval == 0 {
		config.Ledger.MaxBatchInterval = 5 * time.Minute
	}
	if config.Settlement.MaxAttempts == 0 {
		config.Settlement.MaxAttempts = 5
	}

	return config, nil
}
