package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/OFFIS-RIT/rquest-bridge/internal/crate"
	"github.com/OFFIS-RIT/rquest-bridge/internal/util"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgconn"
)

// Queue drivers accepted by QUEUE_DRIVER.
const (
	QueueNone     = "none"
	QueueRabbitMQ = "rabbitmq"
	QueueNATS     = "nats"
)

// RQuestConfig points the poller at the RQuest task API.
type RQuestConfig struct {
	URL           string `validate:"required,url"`
	FetchEndpoint string `validate:"required"`
	CollectionID  string `validate:"required"`
	Username      string
	Password      string

	PollInterval time.Duration `validate:"gt=0"`
	// PollDistribution alternates availability and distribution polls.
	PollDistribution bool
}

// HutchConfig is where finished crates are announced.
type HutchConfig struct {
	Host           string `validate:"required,url"`
	EndpointBase   string
	SubmitEndpoint string `validate:"required"`

	DB crate.DBConnection
}

// S3Config is the object store crates are uploaded to.
type S3Config struct {
	Host      string `validate:"required"`
	Bucket    string `validate:"required"`
	AccessKey string `validate:"required"`
	SecretKey string `validate:"required"`
	Secure    bool
	Region    string
}

// Endpoint returns Host as a URL, with the scheme taken from Secure when
// Host has none.
func (c S3Config) Endpoint() string {
	if strings.Contains(c.Host, "://") {
		return c.Host
	}
	if c.Secure {
		return "https://" + c.Host
	}
	return "http://" + c.Host
}

type RabbitMQConfig struct {
	User     string
	Password string
	Host     string `validate:"required"`
	Port     string `validate:"required"`
}

type QueueConfig struct {
	Driver   string `validate:"oneof=none rabbitmq nats"`
	Name     string `validate:"required"`
	RabbitMQ RabbitMQConfig
	NATSURL  string
}

type DispatchConfig struct {
	Retries int           `validate:"min=1"`
	Backoff time.Duration `validate:"min=0"`
	Timeout time.Duration `validate:"gt=0"`
}

// Config is everything the bridge reads at startup.
type Config struct {
	RQuest   RQuestConfig
	Crate    crate.Options
	Hutch    HutchConfig
	S3       S3Config
	Queue    QueueConfig
	Dispatch DispatchConfig

	StatusPort string
	Debug      bool
	LogFormat  string
}

// Load reads the configuration from the environment and, when CRATE_CONFIG
// names one, the crate metadata file. Nothing is validated yet.
func Load() (*Config, error) {
	cfg := &Config{
		RQuest: RQuestConfig{
			URL:              util.GetEnv("RQUEST_URL"),
			FetchEndpoint:    util.GetEnvString("RQUEST_FETCH_ENDPOINT", "link_connector_api/task/nextjob"),
			CollectionID:     util.GetEnv("RQUEST_COLLECTION_ID"),
			Username:         util.GetEnv("RQUEST_USERNAME"),
			Password:         util.GetEnv("RQUEST_PASSWORD"),
			PollInterval:     util.GetEnvDuration("RQUEST_POLL_INTERVAL", 5*time.Second),
			PollDistribution: util.GetEnvBool("RQUEST_POLL_DISTRIBUTION", false),
		},
		Crate: crate.Options{
			Workflow: crate.WorkflowOptions{
				BaseURL: util.GetEnv("WORKFLOW_BASE_URL"),
				ID:      util.GetEnv("WORKFLOW_ID"),
				Version: util.GetEnv("WORKFLOW_VERSION"),
				Name:    util.GetEnv("WORKFLOW_NAME"),
			},
			Profile:            util.GetEnvString("CRATE_PROFILE", crate.DefaultProfile),
			DBCredentialInputs: util.GetEnvBool("CRATE_INPUT_DB_CREDENTIALS", false),
		},
		Hutch: HutchConfig{
			Host:           util.GetEnv("HUTCH_HOST"),
			EndpointBase:   util.GetEnvString("HUTCH_ENDPOINT_BASE", "api/jobs"),
			SubmitEndpoint: util.GetEnvString("HUTCH_SUBMIT_ENDPOINT", "submit"),
			DB: crate.DBConnection{
				Host:     util.GetEnv("HUTCH_DB_HOST"),
				Name:     util.GetEnv("HUTCH_DB_NAME"),
				User:     util.GetEnv("HUTCH_DB_USER"),
				Password: util.GetEnv("HUTCH_DB_PASSWORD"),
			},
		},
		S3: S3Config{
			Host:      util.GetEnv("S3_HOST"),
			Bucket:    util.GetEnv("S3_BUCKET"),
			AccessKey: util.GetEnv("S3_ACCESS_KEY"),
			SecretKey: util.GetEnv("S3_SECRET_KEY"),
			Secure:    util.GetEnvBool("S3_SECURE", false),
			Region:    util.GetEnvString("S3_REGION", "us-east-1"),
		},
		Queue: QueueConfig{
			Driver: strings.ToLower(util.GetEnvString("QUEUE_DRIVER", QueueNone)),
			Name:   util.GetEnvString("QUEUE_NAME", "jobs"),
			RabbitMQ: RabbitMQConfig{
				User:     util.GetEnvString("RABBITMQ_USER", "guest"),
				Password: util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
				Host:     util.GetEnvString("RABBITMQ_HOST", "localhost"),
				Port:     util.GetEnvString("RABBITMQ_PORT", "5672"),
			},
			NATSURL: util.GetEnv("NATS_URL"),
		},
		Dispatch: DispatchConfig{
			Retries: util.GetEnvInt("DISPATCH_RETRIES", 1),
			Backoff: util.GetEnvDuration("DISPATCH_BACKOFF", time.Second),
			Timeout: util.GetEnvDuration("DISPATCH_TIMEOUT", 2*time.Minute),
		},
		StatusPort: util.GetEnvString("STATUS_PORT", "8080"),
		Debug:      util.GetEnvBool("DEBUG", false),
		LogFormat:  strings.ToLower(util.GetEnvString("LOG_FORMAT", "text")),
	}

	if dsn := util.GetEnv("HUTCH_DB_URL"); dsn != "" {
		db, err := ParseDBURL(dsn)
		if err != nil {
			return nil, err
		}
		cfg.Hutch.DB = db
	}

	if path := util.GetEnv("CRATE_CONFIG"); path != "" {
		meta, err := LoadCrateFile(path)
		if err != nil {
			return nil, err
		}
		meta.apply(&cfg.Crate)
	}

	return cfg, nil
}

// ParseDBURL turns a postgres DSN into the connection parameters handed to
// the agent. A non-default port is kept on the host.
func ParseDBURL(dsn string) (crate.DBConnection, error) {
	pc, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return crate.DBConnection{}, fmt.Errorf("invalid HUTCH_DB_URL: %w", err)
	}
	host := pc.Host
	if pc.Port != 0 && pc.Port != 5432 {
		host = net.JoinHostPort(pc.Host, fmt.Sprint(pc.Port))
	}
	return crate.DBConnection{
		Host:     host,
		Name:     pc.Database,
		User:     pc.User,
		Password: pc.Password,
	}, nil
}

// ValidateCrate checks what a local build needs: the workflow identity and
// the crate metadata.
func (c *Config) ValidateCrate() error {
	v := validator.New()
	if err := v.Struct(c.Crate.Workflow); err != nil {
		return fmt.Errorf("invalid workflow configuration: %w", err)
	}
	if err := v.Struct(c.Crate.License); err != nil {
		return fmt.Errorf("invalid license configuration: %w", err)
	}
	if err := validateLicenseProperties(c.Crate.License.Properties); err != nil {
		return err
	}
	for name, s := range map[string]any{
		"agent":        c.Crate.Agent,
		"organisation": c.Crate.Organisation,
		"project":      c.Crate.Project,
	} {
		if err := v.Struct(s); err != nil {
			return fmt.Errorf("invalid %s configuration: %w", name, err)
		}
	}
	if c.Crate.Project.Name != "" && c.Crate.Agent.ID == "" {
		return errors.New("invalid project configuration: a project needs an agent id")
	}
	return nil
}

// Validate checks everything the long-running bridge needs.
func (c *Config) Validate() error {
	if err := c.ValidateCrate(); err != nil {
		return err
	}
	v := validator.New()
	for name, s := range map[string]any{
		"rquest":   c.RQuest,
		"hutch":    c.Hutch,
		"s3":       c.S3,
		"queue":    c.Queue,
		"dispatch": c.Dispatch,
	} {
		if err := v.Struct(s); err != nil {
			return fmt.Errorf("invalid %s configuration: %w", name, err)
		}
	}
	switch c.Queue.Driver {
	case QueueRabbitMQ:
		if err := v.Struct(c.Queue.RabbitMQ); err != nil {
			return fmt.Errorf("invalid rabbitmq configuration: %w", err)
		}
	case QueueNATS:
		if c.Queue.NATSURL == "" {
			return errors.New("invalid queue configuration: NATS_URL is required for the nats driver")
		}
	}
	if c.Crate.DBCredentialInputs && c.Hutch.DB.IsZero() {
		return errors.New("invalid hutch configuration: CRATE_INPUT_DB_CREDENTIALS needs HUTCH_DB_* or HUTCH_DB_URL")
	}
	return nil
}

func validateLicenseProperties(props map[string]any) error {
	for k := range props {
		if strings.TrimSpace(k) == "" {
			return errors.New("invalid license configuration: empty property name")
		}
		if strings.HasPrefix(k, "@") {
			return fmt.Errorf("invalid license configuration: property %q is reserved", k)
		}
	}
	return nil
}
