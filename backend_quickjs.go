//go:build !v8

package svcbridge

import (
	"github.com/cryguy/svcbridge/internal/core"
	"github.com/cryguy/svcbridge/internal/quickjs"
)

// EngineName identifies the embedded engine compiled into this build.
const EngineName = "quickjs"

func newRuntime(cfg core.EngineConfig) (core.Environment, error) {
	return quickjs.New(cfg)
}
