// Package config reads process settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

type Server struct {
	Addr           string
	DatabaseURL    string // empty: values live in memory only
	WSIdleTimeout  time.Duration
	WSReadLimit    int64
	OriginPatterns []string
	JoinTimeout    time.Duration // created sessions nobody joins are dropped after this
	Log            Log
}

type Peer struct {
	ServerURL    string
	Session      string // empty: create one
	Name         string
	Account      string
	Tick         time.Duration
	EntryFee     string
	ConfirmDelay time.Duration
	Log          Log
}

type Log struct {
	Level string
	Dev   bool
}

// LoadDotenv reads .env into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func LoadServer() (Server, error) {
	var errs error
	c := Server{
		Addr:        str("TETRIS_ADDR", ":8080"),
		DatabaseURL: str("TETRIS_DATABASE_URL", ""),
		Log:         loadLog(&errs),
	}
	c.WSIdleTimeout = duration("TETRIS_WS_IDLE_TIMEOUT", 5*time.Minute, &errs)
	c.WSReadLimit = int64(integer("TETRIS_WS_READ_LIMIT", 1<<20, &errs))
	c.JoinTimeout = duration("TETRIS_SESSION_JOIN_TIMEOUT", 2*time.Minute, &errs)
	if o := os.Getenv("TETRIS_WS_ORIGIN"); o != "" {
		c.OriginPatterns = []string{o}
	}
	return c, errs
}

func LoadPeer() (Peer, error) {
	var errs error
	c := Peer{
		ServerURL: str("TETRIS_SERVER_URL", "ws://localhost:8080/ws"),
		Session:   str("TETRIS_SESSION", ""),
		Name:      str("TETRIS_NAME", "anon"),
		Account:   str("TETRIS_ACCOUNT", ""),
		EntryFee:  str("TETRIS_ENTRY_FEE", "0.001"),
		Log:       loadLog(&errs),
	}
	c.Tick = duration("TETRIS_TICK", 16*time.Millisecond, &errs)
	c.ConfirmDelay = duration("TETRIS_CONFIRM_DELAY", 2*time.Second, &errs)
	return c, errs
}

func loadLog(errs *error) Log {
	return Log{
		Level: str("TETRIS_LOG_LEVEL", "info"),
		Dev:   boolean("TETRIS_LOG_DEV", false, errs),
	}
}

func str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration, errs *error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		multierr.AppendInto(errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func integer(key string, def int, errs *error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		multierr.AppendInto(errs, fmt.Errorf("%s: invalid positive integer %q", key, v))
		return def
	}
	return n
}

func boolean(key string, def bool, errs *error) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		multierr.AppendInto(errs, fmt.Errorf("%s: invalid bool %q", key, v))
		return def
	}
	return b
}
