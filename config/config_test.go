package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.Storage.Bucket)
	assert.Equal(t, DriverS3, cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ShutdownGrace)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Queue.RedeliveryDelay)
	assert.Equal(t, 20*time.Second, cfg.Queue.WaitTime)
	assert.Equal(t, 4, cfg.Consumer.Workers)
	assert.True(t, cfg.Lambda.ReportBatchItemFailures)
	assert.Equal(t, "order-reservations.dlq", cfg.STAN.DeadLetterSubject)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("ORDERS_STORAGE_BUCKET", "reservations")
	t.Setenv("ORDERS_QUEUE_REDELIVERYDELAY", "5s")
	t.Setenv("ORDERS_CONSUMER_WORKERS", "8")
	t.Setenv("ORDERS_LOG_FORMAT", "json")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "reservations", cfg.Storage.Bucket)
	assert.Equal(t, 5*time.Second, cfg.Queue.RedeliveryDelay)
	assert.Equal(t, 8, cfg.Consumer.Workers)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  bucket: from-file
  prefix: reservations
http:
  addr: ":9000"
queue:
  url: https://sqs.eu-west-1.amazonaws.com/123/orders
`), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("http.addr", "", "")
	require.NoError(t, flags.Parse([]string{"--http.addr=:9100"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Storage.Bucket)
	assert.Equal(t, "reservations", cfg.Storage.Prefix)
	assert.Equal(t, ":9100", cfg.HTTP.Addr)
	assert.Equal(t, "https://sqs.eu-west-1.amazonaws.com/123/orders", cfg.Queue.URL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("ORDERS_STORAGE_DRIVER", "ftp")
	_, err := Load("", nil)
	assert.ErrorContains(t, err, "Storage.Driver")
}

func TestValidate(t *testing.T) {
	base, err := Load("", nil)
	require.NoError(t, err)

	for name, mutate := range map[string]func(*Config){
		"empty bucket":    func(c *Config) { c.Storage.Bucket = "" },
		"zero attempts":   func(c *Config) { c.Queue.MaxAttempts = 0 },
		"long wait":       func(c *Config) { c.Queue.WaitTime = 21 * time.Second },
		"zero workers":    func(c *Config) { c.Consumer.Workers = 0 },
		"no stan subject": func(c *Config) { c.STAN.Subject = "" },
		"no stan dlq":     func(c *Config) { c.STAN.DeadLetterSubject = "" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRequireQueueAndDeadLetter(t *testing.T) {
	var cfg Config
	assert.Error(t, cfg.RequireQueue())

	cfg.Queue.URL = "https://sqs/q"
	assert.NoError(t, cfg.RequireQueue())
	assert.Error(t, cfg.RequireDeadLetter())

	cfg.Queue.DeadLetterARN = "arn:aws:sqs:eu-west-1:123:dlq"
	assert.NoError(t, cfg.RequireDeadLetter())
}
