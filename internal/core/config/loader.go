package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/evidencex/reconciler/internal/recon/detector"
	"github.com/evidencex/reconciler/internal/recon/scheduler"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = scheduler.DefaultConfig().Interval
	}
	if cfg.Scheduler.AlertThreshold == 0 {
		cfg.Scheduler.AlertThreshold = scheduler.DefaultConfig().AlertThreshold
	}
	if cfg.Scheduler.CriticalThreshold == 0 {
		cfg.Scheduler.CriticalThreshold = scheduler.DefaultConfig().CriticalThreshold
	}

	det := detector.DefaultConfig()
	if cfg.Detector.VerifySampleLimit == 0 {
		cfg.Detector.VerifySampleLimit = det.VerifySampleLimit
	}
	if cfg.Detector.VerifyLookback == 0 {
		cfg.Detector.VerifyLookback = det.VerifyLookback
	}
	if cfg.Detector.RegistrySampleLimit == 0 {
		cfg.Detector.RegistrySampleLimit = det.RegistrySampleLimit
	}
	if cfg.Detector.RegistryLookback == 0 {
		cfg.Detector.RegistryLookback = det.RegistryLookback
	}
	if cfg.Detector.TxSampleLimit == 0 {
		cfg.Detector.TxSampleLimit = det.TxSampleLimit
	}
	if cfg.Detector.TxLookback == 0 {
		cfg.Detector.TxLookback = det.TxLookback
	}
	if cfg.Detector.DuplicateLookback == 0 {
		cfg.Detector.DuplicateLookback = det.DuplicateLookback
	}

	if cfg.Resilience.MaxAttempts == 0 {
		cfg.Resilience.MaxAttempts = 3
	}
	if cfg.Resilience.BaseDelay == 0 {
		cfg.Resilience.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Resilience.MaxDelay == 0 {
		cfg.Resilience.MaxDelay = 5 * time.Second
	}
	if cfg.Resilience.RemoteTimeout == 0 {
		cfg.Resilience.RemoteTimeout = 10 * time.Second
	}
	if cfg.Resilience.StoreTimeout == 0 {
		cfg.Resilience.StoreTimeout = 5 * time.Second
	}
	if cfg.Resilience.BreakerThreshold == 0 {
		cfg.Resilience.BreakerThreshold = 5
	}
	if cfg.Resilience.BreakerCoolDown == 0 {
		cfg.Resilience.BreakerCoolDown = 30 * time.Second
	}
}
