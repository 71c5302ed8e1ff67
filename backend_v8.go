//go:build v8

package svcbridge

import (
	"github.com/cryguy/svcbridge/internal/core"
	"github.com/cryguy/svcbridge/internal/v8engine"
)

// EngineName identifies the embedded engine compiled into this build.
const EngineName = "v8"

func newRuntime(cfg core.EngineConfig) (core.Environment, error) {
	return v8engine.New(cfg)
}
