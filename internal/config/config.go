package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of one diagnostics run. It is passed to the
// engine explicitly so several vehicle profiles can be analyzed side by side.
type Config struct {
	TankCapacityL         float64   `yaml:"tank_capacity_l"`
	ImbalanceThresholdPct float64   `yaml:"imbalance_threshold_pct"`
	ClosedLoopMinPct      float64   `yaml:"closed_loop_min_pct"`
	FuelWindowRows        int       `yaml:"fuel_window_rows"`
	FuelWindowSpanPct     float64   `yaml:"fuel_window_span_pct"`
	SmoothingWindow       int       `yaml:"smoothing_window"`
	WinsorLimit           float64   `yaml:"winsor_limit"`
	TopK                  int       `yaml:"top_k"`
	UnexpectedPreview     int       `yaml:"unexpected_preview"`
	MixtureInRangeMinPct  float64   `yaml:"mixture_in_range_min_pct"`
	StuckSensorStdDev     float64   `yaml:"stuck_sensor_stddev"`
	O2MinSwingV           float64   `yaml:"o2_min_swing_v"`
	MAPMinCorrelation     float64   `yaml:"map_min_correlation"`
	MAPMinSpan            float64   `yaml:"map_min_span"`
	LambdaRange           []float64 `yaml:"lambda_range"`
	SafetyOKPct           float64   `yaml:"safety_ok_pct"`
	SafetyAlertPct        float64   `yaml:"safety_alert_pct"`

	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
}

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// DefaultConfig returns a pinned default configuration.
func DefaultConfig() Config {
	return Config{
		TankCapacityL:         55,
		ImbalanceThresholdPct: 20,
		ClosedLoopMinPct:      70,
		FuelWindowRows:        10,
		FuelWindowSpanPct:     5,
		SmoothingWindow:       5,
		WinsorLimit:           0.05,
		TopK:                  3,
		UnexpectedPreview:     3,
		MixtureInRangeMinPct:  80,
		StuckSensorStdDev:     0.01,
		O2MinSwingV:           0.2,
		MAPMinCorrelation:     0.8,
		MAPMinSpan:            1,
		LambdaRange:           []float64{0.95, 1.05},
		SafetyOKPct:           75,
		SafetyAlertPct:        50,
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 32,
		},
	}
}

// Normalize fills defaults for zero or invalid values.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	def := DefaultConfig()
	if c.TankCapacityL <= 0 {
		c.TankCapacityL = def.TankCapacityL
	}
	if c.ImbalanceThresholdPct <= 0 {
		c.ImbalanceThresholdPct = def.ImbalanceThresholdPct
	}
	if c.ClosedLoopMinPct <= 0 {
		c.ClosedLoopMinPct = def.ClosedLoopMinPct
	}
	if c.FuelWindowRows <= 0 {
		c.FuelWindowRows = def.FuelWindowRows
	}
	if c.FuelWindowSpanPct <= 0 || c.FuelWindowSpanPct >= 50 {
		c.FuelWindowSpanPct = def.FuelWindowSpanPct
	}
	if c.SmoothingWindow <= 0 {
		c.SmoothingWindow = def.SmoothingWindow
	}
	if c.WinsorLimit < 0 || c.WinsorLimit >= 0.5 {
		c.WinsorLimit = def.WinsorLimit
	}
	if c.TopK <= 0 {
		c.TopK = def.TopK
	}
	if c.UnexpectedPreview <= 0 {
		c.UnexpectedPreview = def.UnexpectedPreview
	}
	if c.MixtureInRangeMinPct <= 0 {
		c.MixtureInRangeMinPct = def.MixtureInRangeMinPct
	}
	if c.StuckSensorStdDev <= 0 {
		c.StuckSensorStdDev = def.StuckSensorStdDev
	}
	if c.O2MinSwingV <= 0 {
		c.O2MinSwingV = def.O2MinSwingV
	}
	if c.MAPMinCorrelation <= 0 {
		c.MAPMinCorrelation = def.MAPMinCorrelation
	}
	if c.MAPMinSpan <= 0 {
		c.MAPMinSpan = def.MAPMinSpan
	}
	if len(c.LambdaRange) != 2 {
		c.LambdaRange = def.LambdaRange
	}
	if c.SafetyOKPct <= 0 {
		c.SafetyOKPct = def.SafetyOKPct
	}
	if c.SafetyAlertPct <= 0 {
		c.SafetyAlertPct = def.SafetyAlertPct
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = def.Server.MaxUploadMB
	}
}

// LoadFile loads YAML config and applies defaults. An empty path yields the defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate performs sanity checks on the configuration.
func (c Config) Validate() error {
	if len(c.LambdaRange) != 2 {
		return fmt.Errorf("lambda_range must be [min, max] with min <= max")
	}
	if c.SafetyAlertPct > c.SafetyOKPct {
		return fmt.Errorf("safety_alert_pct must be <= safety_ok_pct")
	}
	if c.ClosedLoopMinPct > 100 || c.MixtureInRangeMinPct > 100 || c.SafetyOKPct > 100 {
		return fmt.Errorf("percent thresholds must be <= 100")
	}
	return nil
}
