package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/svanichkin/termplay/codec"
	"github.com/svanichkin/termplay/conf"
	"github.com/svanichkin/termplay/logs"
	"github.com/svanichkin/termplay/player"
)

var version = "dev"

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func main() {
	if err := run(); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(os.Stderr, "[termplay] %v\n\n%s", err, conf.Usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "[termplay] %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := conf.ParseCLI(os.Args[1:])
	if err != nil {
		return usageError{err}
	}
	if opts.ShowHelp {
		fmt.Print(conf.Usage)
		return nil
	}
	if opts.ShowVersion {
		printVersion()
		return nil
	}

	dir, err := conf.EnsureConfigDir(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[termplay] config dir unavailable (%v)\n", err)
	}
	fc, err := conf.LoadFileConfig(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[termplay] ignoring config file: %v\n", err)
	} else {
		opts.ApplyFile(fc)
	}

	logPath, closeLog, logErr := logs.Setup(dir, opts.Verbose)
	defer closeLog()
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "[termplay] log file disabled (%v)\n", logErr)
	} else if opts.Verbose {
		fmt.Fprintf(os.Stderr, "[termplay] logs: %s\n", logPath)
	}
	logs.L().Info("termplay starting", zap.String("version", appVersion()), zap.String("config", opts.ConfigPath))

	for _, w := range opts.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	session := player.New(player.Config{
		Video:        opts.Video,
		Mode:         codec.ModeFor(opts.Color, opts.Blocks),
		TargetFPS:    opts.FPS,
		SRTPath:      opts.SRTPath,
		Audio:        opts.Audio,
		AudioPlayer:  opts.AudioPlayer,
		StartupDelay: opts.StartupDelay,
		Record:       opts.Record,
		TermEnv:      os.Getenv("TERM"),
	})
	// The session already reported the failure on stdout.
	if _, err := session.Run(ctx); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	return nil
}

func appVersion() string {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "dev"
	}
	if bi, ok := debug.ReadBuildInfo(); ok && v == "dev" {
		if ver := strings.TrimSpace(bi.Main.Version); ver != "" && ver != "(devel)" {
			return ver
		}
		if derived := vcsVersion(bi); derived != "" {
			return derived
		}
	}
	return v
}

func vcsVersion(bi *debug.BuildInfo) string {
	revision := buildInfoSetting(bi, "vcs.revision")
	if revision == "" {
		return ""
	}
	short := revision
	if len(short) > 12 {
		short = short[:12]
	}
	dirty := ""
	if buildInfoSetting(bi, "vcs.modified") == "true" {
		dirty = "+dirty"
	}
	if ts := buildInfoSetting(bi, "vcs.time"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return fmt.Sprintf("v0.0.0-%s-%s%s", t.UTC().Format("20060102150405"), short, dirty)
		}
	}
	return short + dirty
}

func buildInfoSetting(bi *debug.BuildInfo, key string) string {
	for _, setting := range bi.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printVersion() {
	fmt.Printf("termplay %s\n", appVersion())
}
