package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/cryguy/svcbridge"
)

const (
	maxBodyBytes      = 1 << 20
	maxWSMessageBytes = 1 << 20
	wsPingInterval    = 30 * time.Second
)

type server struct {
	reg *svcbridge.Registry
	log zerolog.Logger
}

func newServer(reg *svcbridge.Registry, log zerolog.Logger) *server {
	return &server{reg: reg, log: log}
}

func (s *server) routes() http.Handler {
	r := gin.New()
	r.Use(requestLogger(s.log), gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"engine": svcbridge.EngineName,
		})
	})
	r.POST("/services/:service/:method", s.handleCall)
	r.GET("/services/:service/ws", s.handleWS)
	return r
}

// handleCall runs one method with the request body as its JSON arguments.
func (s *server) handleCall(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		writeJSON(c, http.StatusRequestEntityTooLarge, reply("", nil, err))
		return
	}
	res, err := s.reg.ExecuteJSON(c.Request.Context(), c.Param("service"), c.Param("method"), string(body))
	writeJSON(c, statusFor(err), reply("", res, err))
}

// handleWS serves calls over a WebSocket. Each text frame is a request
// {"id": "...", "method": "...", "args": {...} or [...]} and is answered
// with {"id": "...", "result": ...} or {"id": "...", "error": {...}}.
// Requests on one connection run in order.
func (s *server) handleWS(c *gin.Context) {
	service := c.Param("service")
	if _, err := s.reg.Executor(c.Request.Context(), service); err != nil {
		writeJSON(c, statusFor(err), reply("", nil, err))
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("service", service).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxWSMessageBytes)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	incoming := make(chan []byte, 16)
	go func() {
		defer close(incoming)
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageText {
				continue
			}
			select {
			case incoming <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case data, ok := <-incoming:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			out := s.serveFrame(ctx, service, data)
			if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
				return
			}
		case <-ping.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *server) serveFrame(ctx context.Context, service string, data []byte) []byte {
	if !gjson.ValidBytes(data) {
		return reply(uuid.NewString(), nil, errors.New("request frame is not valid JSON"))
	}
	frame := gjson.ParseBytes(data)
	id := frame.Get("id").String()
	if id == "" {
		id = uuid.NewString()
	}
	method := frame.Get("method").String()
	if method == "" {
		return reply(id, nil, errors.New("request frame has no method"))
	}
	res, err := s.reg.ExecuteJSON(ctx, service, method, frame.Get("args").Raw)
	return reply(id, res, err)
}

// reply encodes a call outcome. An empty id is omitted.
func reply(id string, result *string, err error) []byte {
	out := []byte(`{}`)
	if id != "" {
		out, _ = sjson.SetBytes(out, "id", id)
	}
	if err != nil {
		out, _ = sjson.SetBytes(out, "error.kind", errorKind(err))
		out, _ = sjson.SetBytes(out, "error.message", err.Error())
		var se *svcbridge.ScriptError
		if errors.As(err, &se) && se.Name != "" {
			out, _ = sjson.SetBytes(out, "error.name", se.Name)
		}
		return out
	}
	if result == nil {
		out, _ = sjson.SetRawBytes(out, "result", []byte("null"))
	} else {
		out, _ = sjson.SetBytes(out, "result", *result)
	}
	return out
}

func errorKind(err error) string {
	var (
		inv  *svcbridge.InvocationError
		arg  *svcbridge.ArgumentError
		load *svcbridge.SourceLoadError
	)
	switch {
	case errors.Is(err, svcbridge.ErrServiceNotFound):
		return "service_not_found"
	case errors.Is(err, svcbridge.ErrMethodNotBound):
		return "method_not_bound"
	case errors.Is(err, svcbridge.ErrBinding):
		return "binding"
	case errors.As(err, &load):
		return "source_load"
	case errors.Is(err, svcbridge.ErrExecutorClosed):
		return "executor_closed"
	case errors.Is(err, svcbridge.ErrExecutionTimeout):
		return "timeout"
	case errors.As(err, &arg):
		return "argument"
	case errors.As(err, &inv):
		return "invocation"
	default:
		return "request"
	}
}

func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch errorKind(err) {
	case "service_not_found", "method_not_bound":
		return http.StatusNotFound
	case "binding", "source_load":
		return http.StatusInternalServerError
	case "executor_closed":
		return http.StatusServiceUnavailable
	case "timeout":
		return http.StatusGatewayTimeout
	case "argument", "request":
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeJSON(c *gin.Context, status int, body []byte) {
	c.Data(status, "application/json", body)
}

// requestLogger logs one line per request.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := logger.Info()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("service", c.Param("service")).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Msg("http_request")
	}
}
