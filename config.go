package svcbridge

import (
	"fmt"
	"time"

	"github.com/cryguy/svcbridge/internal/core"
)

// EngineConfig holds runtime configuration for the embedded environments
// created by a Factory.
type EngineConfig = core.EngineConfig

// DefaultEngineConfig returns the configuration used when a Factory is
// built from a zero EngineConfig.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MemoryLimitMB:    128,
		ExecutionTimeout: 30000,
		MaxScriptSizeKB:  4096,
	}
}

// ValidateEngineConfig rejects negative limits.
func ValidateEngineConfig(cfg EngineConfig) error {
	if cfg.MemoryLimitMB < 0 {
		return fmt.Errorf("memory_limit_mb must not be negative")
	}
	if cfg.ExecutionTimeout < 0 {
		return fmt.Errorf("execution_timeout must not be negative")
	}
	if cfg.MaxScriptSizeKB < 0 {
		return fmt.Errorf("max_script_size_kb must not be negative")
	}
	return nil
}

func executionTimeout(cfg EngineConfig) time.Duration {
	return time.Duration(cfg.ExecutionTimeout) * time.Millisecond
}
