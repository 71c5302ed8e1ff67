package core

// EngineConfig holds runtime configuration for an embedded environment.
type EngineConfig struct {
	MemoryLimitMB    int `toml:"memory_limit_mb"`    // per-environment memory limit, 0 for the engine default
	ExecutionTimeout int `toml:"execution_timeout"`  // milliseconds before a call is interrupted, 0 for none
	MaxScriptSizeKB  int `toml:"max_script_size_kb"` // max prepared implementation size, 0 for unlimited
}
