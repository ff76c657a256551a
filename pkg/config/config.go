package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Mode 配置来源
type Mode string

const (
	// ModeLocal 本地文件
	ModeLocal Mode = "local"
	// ModeNacos Nacos 配置中心
	ModeNacos Mode = "nacos"
)

// NacosConfig Nacos 连接配置，从本地文件的 nacos 节读取
type NacosConfig struct {
	ServerAddr string `mapstructure:"server_addr"`
	ServerPort uint64 `mapstructure:"server_port"`
	Namespace  string `mapstructure:"namespace"`
	Group      string `mapstructure:"group"`
	DataID     string `mapstructure:"data_id"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	LogDir     string `mapstructure:"log_dir"`
	CacheDir   string `mapstructure:"cache_dir"`
	LogLevel   string `mapstructure:"log_level"`
	TimeoutMs  uint64 `mapstructure:"timeout_ms"`
}

func (c *NacosConfig) applyEnv(serviceName string) {
	overrides := map[string]*string{
		"NACOS_SERVER_ADDR": &c.ServerAddr,
		"NACOS_NAMESPACE":   &c.Namespace,
		"NACOS_GROUP":       &c.Group,
		"NACOS_DATA_ID":     &c.DataID,
		"NACOS_USERNAME":    &c.Username,
		"NACOS_PASSWORD":    &c.Password,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}

	if c.DataID == "" {
		c.DataID = serviceName + ".yaml"
	}
	if c.ServerPort == 0 {
		c.ServerPort = 8848
	}
	if c.Group == "" {
		c.Group = "DEFAULT_GROUP"
	}
	if c.LogDir == "" {
		c.LogDir = "/tmp/nacos/log"
	}
	if c.CacheDir == "" {
		c.CacheDir = "/tmp/nacos/cache"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 5000
	}
}

// Manager 配置管理器。本地模式读文件，Nacos 模式拉取并监听变更。
// 环境变量以 EnvPrefix 开头、点号换成下划线后覆盖同名键。
type Manager struct {
	mode        Mode
	envPrefix   string
	viper       *viper.Viper
	nacosClient config_client.IConfigClient
	nacosConfig *NacosConfig
	logger      *zap.Logger

	mu        sync.Mutex
	listeners []func()
}

// NewManager 创建配置管理器
func NewManager(envPrefix string, logger *zap.Logger) *Manager {
	v := viper.New()
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Manager{
		envPrefix: envPrefix,
		viper:     v,
		logger:    logger.With(zap.String("module", "config")),
	}
}

// Load 按 CONFIG_MODE 加载配置，默认本地模式
func (m *Manager) Load(configPath, serviceName string) error {
	mode := os.Getenv("CONFIG_MODE")
	if mode == "" {
		mode = string(ModeLocal)
	}
	m.mode = Mode(strings.ToLower(mode))

	switch m.mode {
	case ModeNacos:
		return m.loadFromNacos(configPath, serviceName)
	case ModeLocal:
		return m.loadFromLocal(configPath)
	default:
		return fmt.Errorf("unsupported config mode: %s", mode)
	}
}

func (m *Manager) loadFromLocal(configPath string) error {
	m.viper.SetConfigFile(configPath)
	if err := m.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read local config: %w", err)
	}
	m.logger.Info("config loaded from local file", zap.String("path", configPath))
	return nil
}

func (m *Manager) loadFromNacos(configPath, serviceName string) error {
	local := viper.New()
	local.SetConfigFile(configPath)
	if err := local.ReadInConfig(); err != nil {
		return fmt.Errorf("read nacos connection config: %w", err)
	}

	m.nacosConfig = &NacosConfig{}
	if err := local.UnmarshalKey("nacos", m.nacosConfig); err != nil {
		return fmt.Errorf("unmarshal nacos config: %w", err)
	}
	m.nacosConfig.applyEnv(serviceName)

	nc := m.nacosConfig
	serverConfigs := []constant.ServerConfig{
		*constant.NewServerConfig(nc.ServerAddr, nc.ServerPort, constant.WithContextPath("/nacos")),
	}
	clientConfig := *constant.NewClientConfig(
		constant.WithNamespaceId(nc.Namespace),
		constant.WithTimeoutMs(nc.TimeoutMs),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir(nc.LogDir),
		constant.WithCacheDir(nc.CacheDir),
		constant.WithLogLevel(nc.LogLevel),
		constant.WithUsername(nc.Username),
		constant.WithPassword(nc.Password),
	)

	client, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return fmt.Errorf("create nacos client: %w", err)
	}
	m.nacosClient = client

	content, err := client.GetConfig(vo.ConfigParam{DataId: nc.DataID, Group: nc.Group})
	if err != nil {
		return fmt.Errorf("get config from nacos: %w", err)
	}
	if err := m.readYAML(content); err != nil {
		return fmt.Errorf("parse nacos config: %w", err)
	}

	m.logger.Info("config loaded from nacos",
		zap.String("group", nc.Group),
		zap.String("data_id", nc.DataID),
		zap.String("namespace", nc.Namespace),
	)

	if err := m.watch(); err != nil {
		m.logger.Warn("watch nacos config failed", zap.Error(err))
	}
	return nil
}

func (m *Manager) readYAML(content string) error {
	m.viper.SetConfigType("yaml")
	return m.viper.ReadConfig(strings.NewReader(content))
}

func (m *Manager) watch() error {
	return m.nacosClient.ListenConfig(vo.ConfigParam{
		DataId: m.nacosConfig.DataID,
		Group:  m.nacosConfig.Group,
		OnChange: func(_, group, dataID, data string) {
			if err := m.readYAML(data); err != nil {
				m.logger.Error("reload nacos config failed", zap.String("data_id", dataID), zap.Error(err))
				return
			}
			m.logger.Info("config reloaded", zap.String("group", group), zap.String("data_id", dataID))
			m.notify()
		},
	})
}

// OnChange 注册配置变更回调，仅 Nacos 模式触发
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) notify() {
	m.mu.Lock()
	listeners := append([]func(){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// SetDefault 设置默认值，使未出现在文件中的键也能被环境变量覆盖
func (m *Manager) SetDefault(key string, value any) {
	m.viper.SetDefault(key, value)
}

// Unmarshal 解析配置到结构体
func (m *Manager) Unmarshal(rawVal any) error {
	return m.viper.Unmarshal(rawVal)
}

// UnmarshalKey 解析指定键
func (m *Manager) UnmarshalKey(key string, rawVal any) error {
	return m.viper.UnmarshalKey(key, rawVal)
}

// Mode 当前配置来源
func (m *Manager) Mode() Mode {
	return m.mode
}

// Close 取消监听
func (m *Manager) Close() error {
	if m.nacosClient != nil {
		return m.nacosClient.CancelListenConfig(vo.ConfigParam{
			DataId: m.nacosConfig.DataID,
			Group:  m.nacosConfig.Group,
		})
	}
	return nil
}
