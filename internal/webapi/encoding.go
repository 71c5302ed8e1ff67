package webapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cryguy/svcbridge/internal/core"
	"github.com/cryguy/svcbridge/internal/eventloop"
)

// encodingJS exposes atob and btoa on top of the Go codecs. Strings cross
// the boundary as Latin1: one character per byte.
const encodingJS = `
(function() {
	function needsArg(name, args) {
		if (args.length < 1) throw new TypeError(name + " requires at least 1 argument(s)");
	}
	globalThis.btoa = function(data) {
		needsArg("btoa", arguments);
		return __btoa(String(data));
	};
	globalThis.atob = function(data) {
		needsArg("atob", arguments);
		return __atob(String(data));
	};
})();
`

var errInvalidBase64 = errors.New("invalid base64 string")

func btoa(data string) (string, error) {
	buf := make([]byte, 0, len(data))
	for _, r := range data {
		if r > 0xff {
			return "", errors.New("string contains characters outside of the Latin1 range")
		}
		buf = append(buf, byte(r))
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func atob(data string) (string, error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return r
	}, data)
	if len(s)%4 == 0 && strings.HasSuffix(s, "=") {
		s = strings.TrimSuffix(strings.TrimSuffix(s, "="), "=")
	}
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return "", errInvalidBase64
	}
	out := make([]rune, len(raw))
	for i, b := range raw {
		out[i] = rune(b)
	}
	return string(out), nil
}

// SetupEncoding registers atob and btoa.
func SetupEncoding(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.RegisterFunc("__btoa", btoa); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__atob", atob); err != nil {
		return err
	}
	if err := rt.Eval(encodingJS); err != nil {
		return fmt.Errorf("evaluating encoding prelude: %w", err)
	}
	return nil
}
