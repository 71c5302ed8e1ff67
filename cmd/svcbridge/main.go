// Command svcbridge loads service implementations from a catalog and runs
// their methods from the command line or over HTTP and WebSocket.
//
//	svcbridge [-config file] [-catalog path] call <service> <method> [json]
//	svcbridge [-config file] [-catalog path] gen
//	svcbridge [-config file] [-catalog path] list
//	svcbridge [-config file] [-catalog path] serve [-listen addr]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cryguy/svcbridge"
	"github.com/cryguy/svcbridge/catalog"
)

const defaultConfigPath = "svcbridge.toml"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "svcbridge: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("svcbridge", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "configuration file")
	catalogPath := fs.String("catalog", "", "catalog path, overrides the configuration")
	driver := fs.String("driver", "", "catalog driver (file or sqlite), overrides the configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, *configPath != defaultConfigPath)
	if err != nil {
		return err
	}
	if *catalogPath != "" {
		cfg.Catalog = *catalogPath
	}
	if *driver != "" {
		cfg.CatalogDriver = *driver
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	log := initLogger(cfg.LogLevel)

	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New("missing command: call, gen, list or serve")
	}

	cat, closeCatalog, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer closeCatalog()

	factory := svcbridge.NewFactory(cfg.Engine, svcbridge.WithLogger(log))
	reg := svcbridge.NewRegistry(cat, factory, log)
	defer reg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "call":
		return runCall(ctx, reg, cmdArgs, stdout)
	case "gen":
		return reg.GenerateAll(ctx)
	case "list":
		return runList(ctx, cat, stdout)
	case "serve":
		return runServe(ctx, reg, cfg, cmdArgs, log)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func initLogger(level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "svcbridge").Logger()
}

func openCatalog(cfg config) (svcbridge.Catalog, func(), error) {
	switch cfg.CatalogDriver {
	case driverSQLite:
		c, err := catalog.OpenSQL(cfg.Catalog)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	default:
		c, err := catalog.LoadFile(cfg.Catalog)
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}
}

func runCall(ctx context.Context, reg *svcbridge.Registry, args []string, stdout io.Writer) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: call <service> <method> [json-arguments]")
	}
	payload := ""
	if len(args) == 3 {
		payload = args[2]
	}
	res, err := reg.ExecuteJSON(ctx, args[0], args[1], payload)
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Fprintln(stdout, "null")
		return nil
	}
	fmt.Fprintln(stdout, *res)
	return nil
}

func runList(ctx context.Context, cat svcbridge.Catalog, stdout io.Writer) error {
	descs, err := cat.Services(ctx)
	if err != nil {
		return err
	}
	for _, d := range descs {
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", d.Name, d.LanguageOrDefault(), d.ImplementBy)
		for _, m := range d.Methods {
			fmt.Fprintf(stdout, "\t%s(%v) %s\n", m.Name, m.ParamNames(), m.ReturnType)
		}
	}
	return nil
}

func runServe(ctx context.Context, reg *svcbridge.Registry, cfg config, args []string, log zerolog.Logger) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", cfg.Listen, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              *listen,
		Handler:           newServer(reg, log).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", *listen).Msg("serving")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
