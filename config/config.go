package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/baldanca/order-reservation/logging"
)

// EnvPrefix prefixes every environment variable read by Load, e.g.
// ORDERS_STORAGE_BUCKET for storage.bucket.
const EnvPrefix = "ORDERS"

const (
	DriverS3     = "s3"
	DriverMemory = "memory"
)

type Config struct {
	Log      logging.Config `mapstructure:"log"`
	AWS      AWSConfig      `mapstructure:"aws"`
	Storage  StorageConfig  `mapstructure:"storage"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Lambda   LambdaConfig   `mapstructure:"lambda"`
	STAN     STANConfig     `mapstructure:"stan"`
}

type AWSConfig struct {
	// Region falls back to the SDK's default chain when empty.
	Region string `mapstructure:"region"`
}

// StorageConfig names the single bucket every adapter writes to.
type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=s3 memory"`
	Bucket string `mapstructure:"bucket" validate:"required"`
	Prefix string `mapstructure:"prefix"`
	// Endpoint targets an S3 compatible store, addressed path style.
	Endpoint string `mapstructure:"endpoint"`
}

type HTTPConfig struct {
	Addr          string        `mapstructure:"addr" validate:"required"`
	ShutdownGrace time.Duration `mapstructure:"shutdownGrace" validate:"min=0"`
}

type QueueConfig struct {
	URL           string `mapstructure:"url"`
	DeadLetterARN string `mapstructure:"deadLetterArn"`
	// MaxAttempts is the delivery budget of a message before it is
	// dead-lettered.
	MaxAttempts       int           `mapstructure:"maxAttempts" validate:"min=1,max=1000"`
	RedeliveryDelay   time.Duration `mapstructure:"redeliveryDelay" validate:"min=0,max=12h"`
	VisibilityTimeout time.Duration `mapstructure:"visibilityTimeout" validate:"min=0,max=12h"`
	WaitTime          time.Duration `mapstructure:"waitTime" validate:"min=0,max=20s"`
	Pollers           int           `mapstructure:"pollers" validate:"min=1"`
	Buffer            int           `mapstructure:"buffer" validate:"min=1"`
}

type ConsumerConfig struct {
	Workers int `mapstructure:"workers" validate:"min=1"`
}

type LambdaConfig struct {
	ReportBatchItemFailures bool `mapstructure:"reportBatchItemFailures"`
}

type STANConfig struct {
	URL               string `mapstructure:"url"`
	ClusterID         string `mapstructure:"clusterId"`
	ClientID          string `mapstructure:"clientId"`
	Subject           string `mapstructure:"subject" validate:"required"`
	QueueGroup        string `mapstructure:"queueGroup"`
	Durable           string `mapstructure:"durable"`
	DeadLetterSubject string `mapstructure:"deadLetterSubject" validate:"required"`
	MaxInflight       int    `mapstructure:"maxInflight" validate:"min=1"`
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"aws.region": "",

	"storage.driver":   DriverS3,
	"storage.bucket":   "orders",
	"storage.prefix":   "",
	"storage.endpoint": "",

	"http.addr":          ":8080",
	"http.shutdownGrace": 15 * time.Second,

	"queue.url":               "",
	"queue.deadLetterArn":     "",
	"queue.maxAttempts":       3,
	"queue.redeliveryDelay":   10 * time.Second,
	"queue.visibilityTimeout": 30 * time.Second,
	"queue.waitTime":          20 * time.Second,
	"queue.pollers":           2,
	"queue.buffer":            64,

	"consumer.workers": 4,

	"lambda.reportBatchItemFailures": true,

	"stan.url":               "nats://localhost:4222",
	"stan.clusterId":         "test-cluster",
	"stan.clientId":          "",
	"stan.subject":           "order-reservations",
	"stan.queueGroup":        "order-reservation-workers",
	"stan.durable":           "order-reservation",
	"stan.deadLetterSubject": "order-reservations.dlq",
	"stan.maxInflight":       16,
}

// Load reads configuration from defaults, the optional file at path, the
// environment and flags, in increasing order of precedence. Flags are bound
// by name, so a flag called "http.addr" overrides the http.addr key.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and required keys.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", stripPrefix(fe.Namespace()), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequireQueue checks the keys the SQS consumer and provisioning need.
func (c Config) RequireQueue() error {
	if c.Queue.URL == "" {
		return errors.New("queue.url is required")
	}
	return nil
}

// RequireDeadLetter checks the keys needed to apply the redrive policy.
func (c Config) RequireDeadLetter() error {
	if err := c.RequireQueue(); err != nil {
		return err
	}
	if c.Queue.DeadLetterARN == "" {
		return errors.New("queue.deadLetterArn is required")
	}
	return nil
}

func stripPrefix(s string) string {
	if idx := strings.Index(s, "."); idx != -1 {
		return s[idx+1:]
	}
	return s
}
