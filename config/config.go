package config

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"stream-anomaly-detector/analytics"
	"stream-anomaly-detector/models"
	"stream-anomaly-detector/simulator"
)

const EnvPrefix = "ANOMALY"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Detector  models.DetectorConfig `mapstructure:"detector"`
	Simulator simulator.Config      `mapstructure:"simulator"`
	Streams   []string              `mapstructure:"streams"`
	Engine    EngineConfig          `mapstructure:"engine"`
	Sinks     SinkConfig            `mapstructure:"sinks"`
	HTTP      HTTPConfig            `mapstructure:"http"`
	Redis     RedisConfig           `mapstructure:"redis"`
	Log       LogConfig             `mapstructure:"log"`
}

type EngineConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

type SinkConfig struct {
	TableLimit int `mapstructure:"table_limit"`
	Buffer     int `mapstructure:"buffer"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// RedisConfig enables the latest-record cache when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	sim := simulator.DefaultConfig()

	v.SetDefault("detector.window_size", models.DefaultWindowSize)
	v.SetDefault("detector.threshold", models.DefaultThreshold)
	v.SetDefault("detector.min_history", models.DefaultMinHistory)
	v.SetDefault("simulator.duration", sim.Duration)
	v.SetDefault("simulator.interval", sim.Interval)
	v.SetDefault("simulator.amplitude", sim.Amplitude)
	v.SetDefault("simulator.seasonal_amplitude", sim.SeasonalAmplitude)
	v.SetDefault("simulator.noise", sim.Noise)
	v.SetDefault("simulator.spike_probability", sim.SpikeProbability)
	v.SetDefault("simulator.spike_magnitude", sim.SpikeMagnitude)
	v.SetDefault("simulator.seed", 0)
	v.SetDefault("streams", []string{"signal"})
	v.SetDefault("engine.queue_size", analytics.DefaultQueueSize)
	v.SetDefault("sinks.table_limit", 1000)
	v.SetDefault("sinks.buffer", 256)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from path, or from config.yaml in the working
// directory or /etc/stream-anomaly when path is empty. A missing default
// config file is not an error. Environment variables prefixed with ANOMALY_
// override file values, e.g. ANOMALY_DETECTOR_THRESHOLD.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/stream-anomaly")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}
	return decode(v)
}

// Parse reads configuration of the given type ("yaml", "json", ...) from r.
func Parse(r io.Reader, configType string) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(r); err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := analytics.NewAnomalyClassifier(c.Detector); err != nil {
		return errors.Wrap(err, "detector")
	}
	if err := c.Simulator.Validate(); err != nil {
		return errors.Wrap(err, "simulator")
	}
	if len(c.Streams) == 0 {
		return errors.Wrap(ErrInvalidConfig, "at least one stream is required")
	}
	seen := make(map[string]bool, len(c.Streams))
	for _, name := range c.Streams {
		if name == "" || seen[name] {
			return errors.Wrapf(ErrInvalidConfig, "stream name %q is empty or duplicated", name)
		}
		seen[name] = true
	}
	if c.Sinks.TableLimit <= 0 || c.Sinks.Buffer <= 0 {
		return errors.Wrap(ErrInvalidConfig, "sink table limit and buffer must be positive")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.Wrapf(ErrInvalidConfig, "log format %q", c.Log.Format)
	}
	return nil
}

// ConfigureLogger applies the log level and format to logger.
func (c *Config) ConfigureLogger(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	logger.SetLevel(level)
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
