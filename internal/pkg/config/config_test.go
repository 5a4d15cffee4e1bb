package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "fulfillment-service", cfg.App.ServiceName)
	assert.Equal(t, "redis", cfg.Ledger.Backend)
	assert.Equal(t, 5*time.Second, cfg.Ledger.CallTimeout)
	assert.Equal(t, "fulfillment-step-requests", cfg.Infra.Kafka.Topics.StepRequests)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fulfillment.yaml")
	content := `
app:
  port: 9090
  processingTimeout: 5s
ledger:
  backend: memory
store:
  backend: memory
order:
  admissionRule: "amount < 1000.0"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 5*time.Second, cfg.App.ProcessingTimeout)
	assert.Equal(t, "memory", cfg.Ledger.Backend)
	assert.Equal(t, "amount < 1000.0", cfg.Order.AdmissionRule)
	// 未出现在文件中的字段保持默认值
	assert.Equal(t, "fulfillment-service", cfg.App.ServiceName)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LEDGER_BACKEND", "mysql")
	t.Setenv("PORT", "8088")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Infra.Kafka.Brokers)
	assert.Equal(t, "mysql", cfg.Ledger.Backend)
	assert.Equal(t, 8088, cfg.App.Port)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "dynamo")

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ledger backend")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	c := MySQLConfig{Addr: "db:3306", User: "app", Password: "secret", Database: "orders"}
	dsn := c.MySQLDSN()

	assert.True(t, strings.HasPrefix(dsn, "app:secret@tcp(db:3306)/orders"))
	assert.Contains(t, dsn, "parseTime=true")

	c.DSN = "explicit"
	assert.Equal(t, "explicit", c.MySQLDSN())
}
