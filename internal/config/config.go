// Package config assembles process settings from an optional .env file,
// the environment and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"
)

const (
	flagAddr               = "addr"
	flagSweepInterval      = "sweep-interval"
	flagIdleThreshold      = "idle-threshold"
	flagShutdownTimeout    = "shutdown-timeout"
	flagLogLevel           = "log-level"
	flagLogDev             = "log-dev"
	flagSurfaceCourtErrors = "surface-court-errors"
	flagWSMessageRate      = "ws-msg-rate"
	flagWSMessageBurst     = "ws-msg-burst"
	flagWSSendBuffer       = "ws-send-buffer"
	flagAllowedOrigins     = "allowed-origins"
)

type Config struct {
	Addr            string
	SweepInterval   time.Duration
	IdleThreshold   time.Duration
	ShutdownTimeout time.Duration

	LogLevel string
	LogDev   bool

	// SurfaceCourtErrors reports commands against unknown courts and blank
	// player names back to the sender instead of dropping them silently.
	SurfaceCourtErrors bool

	WSMessageRate  float64
	WSMessageBurst int
	WSSendBuffer   int
	AllowedOrigins []string
}

func Default() Config {
	return Config{
		Addr:            ":3001",
		SweepInterval:   30 * time.Minute,
		IdleThreshold:   2 * time.Hour,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		WSMessageRate:   20,
		WSMessageBurst:  40,
		WSSendBuffer:    64,
		AllowedOrigins:  []string{"*"},
	}
}

// LoadDotEnv loads the given files (".env" when none) into the environment.
// Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Flags() []cli.Flag {
	d := Default()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagAddr,
			Usage:   "HTTP listen address",
			Value:   d.Addr,
			Sources: cli.EnvVars("ADDR"),
		},
		&cli.DurationFlag{
			Name:    flagSweepInterval,
			Usage:   "how often idle rooms are swept",
			Value:   d.SweepInterval,
			Sources: cli.EnvVars("SWEEP_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:    flagIdleThreshold,
			Usage:   "inactivity after which a room is removed",
			Value:   d.IdleThreshold,
			Sources: cli.EnvVars("IDLE_THRESHOLD"),
		},
		&cli.DurationFlag{
			Name:    flagShutdownTimeout,
			Usage:   "grace period for in-flight HTTP requests on shutdown",
			Value:   d.ShutdownTimeout,
			Sources: cli.EnvVars("SHUTDOWN_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    flagLogLevel,
			Usage:   "debug, info, warn or error",
			Value:   d.LogLevel,
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    flagLogDev,
			Usage:   "human readable console logs",
			Sources: cli.EnvVars("LOG_DEV"),
		},
		&cli.BoolFlag{
			Name:    flagSurfaceCourtErrors,
			Usage:   "send room-error for unknown courts and blank names",
			Sources: cli.EnvVars("SURFACE_COURT_ERRORS"),
		},
		&cli.FloatFlag{
			Name:    flagWSMessageRate,
			Usage:   "inbound websocket messages per second per connection",
			Value:   d.WSMessageRate,
			Sources: cli.EnvVars("WS_MSG_RATE"),
		},
		&cli.IntFlag{
			Name:    flagWSMessageBurst,
			Usage:   "inbound websocket message burst per connection",
			Value:   d.WSMessageBurst,
			Sources: cli.EnvVars("WS_MSG_BURST"),
		},
		&cli.IntFlag{
			Name:    flagWSSendBuffer,
			Usage:   "outbound messages buffered per connection before it is dropped",
			Value:   d.WSSendBuffer,
			Sources: cli.EnvVars("WS_SEND_BUFFER"),
		},
		&cli.StringSliceFlag{
			Name:    flagAllowedOrigins,
			Usage:   "origin patterns accepted for websocket upgrades and CORS",
			Value:   d.AllowedOrigins,
			Sources: cli.EnvVars("ALLOWED_ORIGINS"),
		},
	}
}

func FromCommand(cmd *cli.Command) Config {
	return Config{
		Addr:               cmd.String(flagAddr),
		SweepInterval:      cmd.Duration(flagSweepInterval),
		IdleThreshold:      cmd.Duration(flagIdleThreshold),
		ShutdownTimeout:    cmd.Duration(flagShutdownTimeout),
		LogLevel:           cmd.String(flagLogLevel),
		LogDev:             cmd.Bool(flagLogDev),
		SurfaceCourtErrors: cmd.Bool(flagSurfaceCourtErrors),
		WSMessageRate:      cmd.Float(flagWSMessageRate),
		WSMessageBurst:     cmd.Int(flagWSMessageBurst),
		WSSendBuffer:       cmd.Int(flagWSSendBuffer),
		AllowedOrigins:     cmd.StringSlice(flagAllowedOrigins),
	}
}

func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("addr is empty"))
	}
	if c.SweepInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval))
	}
	if c.IdleThreshold <= 0 {
		err = multierr.Append(err, fmt.Errorf("idle threshold must be positive, got %s", c.IdleThreshold))
	}
	if c.ShutdownTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout))
	}
	if c.WSMessageRate <= 0 || c.WSMessageBurst <= 0 {
		err = multierr.Append(err, fmt.Errorf("websocket rate limit must be positive, got %v/s burst %d", c.WSMessageRate, c.WSMessageBurst))
	}
	if c.WSSendBuffer <= 0 {
		err = multierr.Append(err, fmt.Errorf("websocket send buffer must be positive, got %d", c.WSSendBuffer))
	}
	return err
}
