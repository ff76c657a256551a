package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sample struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Budget struct {
		Max int `mapstructure:"max"`
	} `mapstructure:"budget"`
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "svc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestManager_LocalWithEnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":8080\"\nbudget:\n  max: 10\n")
	t.Setenv("CONFIG_MODE", "local")
	t.Setenv("TESTSVC_BUDGET_MAX", "42")

	m := NewManager("TESTSVC", zap.NewNop())
	require.NoError(t, m.Load(path, "svc"))
	defer m.Close()

	var got sample
	require.NoError(t, m.Unmarshal(&got))
	assert.Equal(t, ":8080", got.Server.Addr)
	assert.Equal(t, 42, got.Budget.Max)
	assert.Equal(t, ModeLocal, m.Mode())
}

func TestManager_Errors(t *testing.T) {
	t.Setenv("CONFIG_MODE", "etcd")
	m := NewManager("", zap.NewNop())
	assert.Error(t, m.Load("whatever.yaml", "svc"))

	t.Setenv("CONFIG_MODE", "")
	m = NewManager("", zap.NewNop())
	assert.Error(t, m.Load(filepath.Join(t.TempDir(), "missing.yaml"), "svc"))
}

func TestNacosConfig_Defaults(t *testing.T) {
	t.Setenv("NACOS_NAMESPACE", "prod")
	c := &NacosConfig{ServerAddr: "nacos"}
	c.applyEnv("conversation-service")

	assert.Equal(t, "conversation-service.yaml", c.DataID)
	assert.Equal(t, "DEFAULT_GROUP", c.Group)
	assert.Equal(t, uint64(8848), c.ServerPort)
	assert.Equal(t, "prod", c.Namespace)
}
