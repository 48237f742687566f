// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config reúne toda a configuração do cam-scout.
// Ordem de precedência: defaults -> arquivo YAML (CAMSCOUT_CONFIG) -> variáveis de ambiente.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Scan      ScanConfig      `yaml:"scan"`
	Classify  ClassifyConfig  `yaml:"classify"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Capture   CaptureConfig   `yaml:"capture"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Emulator  EmulatorConfig  `yaml:"emulator"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ScanConfig struct {
	DefaultPrefix  string        `yaml:"default_prefix"`
	ProbePorts     []int         `yaml:"probe_ports"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	Deadline       time.Duration `yaml:"deadline"`
}

type ClassifyConfig struct {
	Ports          []int         `yaml:"ports"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	ONVIFTimeout   time.Duration `yaml:"onvif_timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	// Credencial única do site (opcional). Não é usada para adivinhar senha.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type DiscoveryConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// Expressão cron (robfig/cron) para redescoberta periódica; vazio desliga.
	Schedule string `yaml:"schedule"`
	Subnet   string `yaml:"subnet"`
}

type CaptureConfig struct {
	StrategyTimeout time.Duration `yaml:"strategy_timeout"`
	MaxImageBytes   int64         `yaml:"max_image_bytes"`
}

type AnalysisConfig struct {
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`
	Cooldown        time.Duration `yaml:"cooldown"`
	Retention       time.Duration `yaml:"retention"`
	JobURL          string        `yaml:"job_url"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
}

type MQTTConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ClientID       string        `yaml:"client_id"`
	BaseTopic      string        `yaml:"base_topic"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

func (m MQTTConfig) Enabled() bool { return m.Host != "" }

type MinIOConfig struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Bucket        string `yaml:"bucket"`
	UseSSL        bool   `yaml:"use_ssl"`
	PublicBaseURL string `yaml:"public_base_url"`
}

func (m MinIOConfig) Enabled() bool { return m.AccessKey != "" && m.SecretKey != "" }

type MongoConfig struct {
	URI      string        `yaml:"uri"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (m MongoConfig) Enabled() bool { return m.URI != "" }

type EmulatorConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
}

// Default devolve a configuração padrão. As magnitudes de watchdog/cooldown/retention
// seguem o comportamento histórico do sistema (120s / 30s / 300s).
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8090,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Scan: ScanConfig{
			DefaultPrefix:  "192.168.1",
			ProbePorts:     []int{80, 554, 8080, 8000, 8554, 443, 8443},
			ProbeTimeout:   time.Second,
			MaxConcurrency: 64,
			Deadline:       60 * time.Second,
		},
		Classify: ClassifyConfig{
			Ports:          []int{80, 8080, 8000, 554, 8554, 443, 8443},
			HTTPTimeout:    3 * time.Second,
			ONVIFTimeout:   2 * time.Second,
			MaxConcurrency: 16,
		},
		Discovery: DiscoveryConfig{CacheTTL: 5 * time.Minute},
		Capture: CaptureConfig{
			StrategyTimeout: 5 * time.Second,
			MaxImageBytes:   10 << 20,
		},
		Analysis: AnalysisConfig{
			WatchdogTimeout: 120 * time.Second,
			Cooldown:        30 * time.Second,
			Retention:       300 * time.Second,
			JobTimeout:      90 * time.Second,
		},
		MQTT: MQTTConfig{
			Port:           1883,
			ClientID:       "cam-scout",
			BaseTopic:      "security-vision/cam-scout",
			StatusInterval: 30 * time.Second,
		},
		MinIO: MinIOConfig{
			Endpoint: "localhost:9000",
			Bucket:   "camera-snapshots",
		},
		Mongo: MongoConfig{
			Database: "cam_scout",
			Timeout:  10 * time.Second,
		},
		Emulator: EmulatorConfig{
			Host:     "0.0.0.0",
			Port:     8081,
			Username: "admin",
			Password: "admin123",
			Width:    640,
			Height:   360,
		},
	}
}

// Load monta a configuração a partir dos defaults, do arquivo opcional e do ambiente.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("CAMSCOUT_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	// host que só responde numa porta de classificação também precisa passar no scan
	cfg.Scan.ProbePorts = MergePorts(cfg.Scan.ProbePorts, cfg.Classify.Ports)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergePorts une as listas preservando a ordem da primeira ocorrência.
func MergePorts(lists ...[]int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, l := range lists {
		for _, p := range l {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// LoadFile sobrepõe os campos presentes no YAML.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) ApplyEnv() {
	c.Server.Host = getEnv("HTTP_HOST", c.Server.Host)
	c.Server.Port = getIntEnv("HTTP_PORT", c.Server.Port)
	c.Server.ReadTimeout = getDurationEnv("HTTP_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDurationEnv("HTTP_WRITE_TIMEOUT", c.Server.WriteTimeout)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Scan.DefaultPrefix = getEnv("SCAN_DEFAULT_PREFIX", c.Scan.DefaultPrefix)
	c.Scan.ProbePorts = getPortsEnv("SCAN_PROBE_PORTS", c.Scan.ProbePorts)
	c.Scan.ProbeTimeout = getDurationEnv("SCAN_PROBE_TIMEOUT", c.Scan.ProbeTimeout)
	c.Scan.MaxConcurrency = getIntEnv("SCAN_MAX_CONCURRENCY", c.Scan.MaxConcurrency)
	c.Scan.Deadline = getDurationEnv("SCAN_DEADLINE", c.Scan.Deadline)

	c.Classify.Ports = getPortsEnv("CLASSIFY_PORTS", c.Classify.Ports)
	c.Classify.HTTPTimeout = getDurationEnv("CLASSIFY_HTTP_TIMEOUT", c.Classify.HTTPTimeout)
	c.Classify.ONVIFTimeout = getDurationEnv("CLASSIFY_ONVIF_TIMEOUT", c.Classify.ONVIFTimeout)
	c.Classify.MaxConcurrency = getIntEnv("CLASSIFY_MAX_CONCURRENCY", c.Classify.MaxConcurrency)
	c.Classify.Username = getEnv("CAMERA_DEFAULT_USERNAME", c.Classify.Username)
	c.Classify.Password = getEnv("CAMERA_DEFAULT_PASSWORD", c.Classify.Password)

	c.Discovery.CacheTTL = getDurationEnv("DISCOVERY_CACHE_TTL", c.Discovery.CacheTTL)
	c.Discovery.Schedule = getEnv("DISCOVERY_SCHEDULE", c.Discovery.Schedule)
	c.Discovery.Subnet = getEnv("DISCOVERY_SUBNET", c.Discovery.Subnet)

	c.Capture.StrategyTimeout = getDurationEnv("CAPTURE_STRATEGY_TIMEOUT", c.Capture.StrategyTimeout)

	c.Analysis.WatchdogTimeout = getDurationEnv("ANALYSIS_WATCHDOG_TIMEOUT", c.Analysis.WatchdogTimeout)
	c.Analysis.Cooldown = getDurationEnv("ANALYSIS_COOLDOWN", c.Analysis.Cooldown)
	c.Analysis.Retention = getDurationEnv("ANALYSIS_RETENTION", c.Analysis.Retention)
	c.Analysis.JobURL = getEnv("ANALYSIS_JOB_URL", c.Analysis.JobURL)
	c.Analysis.JobTimeout = getDurationEnv("ANALYSIS_JOB_TIMEOUT", c.Analysis.JobTimeout)

	c.MQTT.Host = getEnv("MQTT_HOST", c.MQTT.Host)
	c.MQTT.Port = getIntEnv("MQTT_PORT", c.MQTT.Port)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.BaseTopic = strings.TrimSuffix(getEnv("MQTT_BASE_TOPIC", c.MQTT.BaseTopic), "/")
	c.MQTT.StatusInterval = getDurationEnv("CAMSCOUT_STATUS_INTERVAL", c.MQTT.StatusInterval)

	c.MinIO.Endpoint = getEnv("MINIO_ENDPOINT", c.MinIO.Endpoint)
	c.MinIO.AccessKey = getEnv("MINIO_ACCESS_KEY", c.MinIO.AccessKey)
	c.MinIO.SecretKey = getEnv("MINIO_SECRET_KEY", c.MinIO.SecretKey)
	c.MinIO.Bucket = getEnv("MINIO_BUCKET", c.MinIO.Bucket)
	c.MinIO.UseSSL = getBoolEnv("MINIO_USE_SSL", c.MinIO.UseSSL)
	c.MinIO.PublicBaseURL = getEnv("MINIO_PUBLIC_BASE_URL", c.MinIO.PublicBaseURL)

	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DATABASE", c.Mongo.Database)
	c.Mongo.Timeout = getDurationEnv("MONGO_TIMEOUT", c.Mongo.Timeout)

	c.Emulator.Host = getEnv("EMULATOR_HOST", c.Emulator.Host)
	c.Emulator.Port = getIntEnv("EMULATOR_PORT", c.Emulator.Port)
	c.Emulator.Username = getEnv("EMULATOR_USERNAME", c.Emulator.Username)
	c.Emulator.Password = getEnv("EMULATOR_PASSWORD", c.Emulator.Password)
	c.Emulator.Width = getIntEnv("EMULATOR_WIDTH", c.Emulator.Width)
	c.Emulator.Height = getIntEnv("EMULATOR_HEIGHT", c.Emulator.Height)
}

func (c *Config) Validate() error {
	var errs []error
	if !ValidPrefix(c.Scan.DefaultPrefix) {
		errs = append(errs, fmt.Errorf("scan.default_prefix %q is not a.b.c", c.Scan.DefaultPrefix))
	}
	if c.Discovery.Subnet != "" && !ValidPrefix(c.Discovery.Subnet) {
		errs = append(errs, fmt.Errorf("discovery.subnet %q is not a.b.c", c.Discovery.Subnet))
	}
	if len(c.Scan.ProbePorts) == 0 {
		errs = append(errs, errors.New("scan.probe_ports is empty"))
	}
	if len(c.Classify.Ports) == 0 {
		errs = append(errs, errors.New("classify.ports is empty"))
	}
	if c.Scan.MaxConcurrency <= 0 || c.Classify.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("max_concurrency must be positive"))
	}
	if c.Scan.ProbeTimeout <= 0 || c.Classify.HTTPTimeout <= 0 || c.Capture.StrategyTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.Analysis.WatchdogTimeout <= 0 || c.Analysis.Cooldown < 0 {
		errs = append(errs, errors.New("analysis watchdog must be positive and cooldown non-negative"))
	}
	if c.Analysis.Retention < c.Analysis.Cooldown {
		errs = append(errs, fmt.Errorf("analysis.retention (%s) shorter than cooldown (%s)",
			c.Analysis.Retention, c.Analysis.Cooldown))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ValidPrefix aceita exatamente três octetos decimais (ex.: "192.168.1").
func ValidPrefix(p string) bool {
	parts := strings.Split(p, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 || part == "" || (len(part) > 1 && part[0] == '0') {
			return false
		}
	}
	return true
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getBoolEnv(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

// getDurationEnv aceita "90s"/"2m" ou um inteiro em segundos.
func getDurationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if sec, err := strconv.Atoi(v); err == nil {
		return time.Duration(sec) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getPortsEnv(key string, def []int) []int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []int
	for _, f := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || n <= 0 || n > 65535 {
			slog.Warn("invalid port list in environment, using default", "key", key, "value", v)
			return def
		}
		out = append(out, n)
	}
	return out
}
