package device

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/svanichkin/termplay/logs"
)

// ErrNoAudioPlayer is returned when no external player can be located.
var ErrNoAudioPlayer = errors.New("no audio player found (install VLC or mpv, or set audio_player)")

// Well-known VLC install locations, checked before $PATH.
var vlcPaths = map[string]string{
	"windows": `C:\Progra~1\VideoLAN\VLC\vlc.exe`,
	"darwin":  "/Applications/VLC.app/Contents/MacOS/VLC",
	"linux":   "/usr/bin/vlc",
}

var pathPlayers = []string{"vlc", "mpv", "ffplay"}

var lookPath = exec.LookPath

// FindAudioPlayer resolves the player binary: the configured one if it
// exists, then the platform VLC location, then vlc, mpv or ffplay on $PATH.
func FindAudioPlayer(configured string) (string, error) {
	if configured != "" {
		if p, err := resolveExecutable(configured); err == nil {
			return p, nil
		}
		logs.LogV("[audio] configured player %q not found, searching", configured)
	}
	if p, ok := vlcPaths[runtime.GOOS]; ok {
		if isFile(p) {
			return p, nil
		}
	}
	for _, name := range pathPlayers {
		if p, err := lookPath(name); err == nil {
			return p, nil
		}
	}
	return "", ErrNoAudioPlayer
}

func resolveExecutable(name string) (string, error) {
	if isFile(name) {
		return name, nil
	}
	return lookPath(name)
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// AudioArgs returns the arguments that make player play only the audio of
// file and exit when it ends.
func AudioArgs(player, file string) []string {
	name := strings.ToLower(filepath.Base(player))
	switch {
	case strings.Contains(name, "vlc"):
		return []string{"--no-video", "--play-and-exit", "-I", "dummy", file}
	case strings.Contains(name, "mpv"):
		return []string{"--no-video", "--really-quiet", file}
	case strings.Contains(name, "ffplay"):
		return []string{"-nodisp", "-autoexit", "-loglevel", "quiet", file}
	default:
		return []string{file}
	}
}

// AudioPlayer is an external audio-only player process owned by one session.
type AudioPlayer struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	once sync.Once
}

// StartAudio launches player for file. The process is unsupervised: it runs
// until the file ends or Stop is called.
func StartAudio(player, file string) (*AudioPlayer, error) {
	cmd := exec.Command(player, AudioArgs(player, file)...)
	cmd.Stdin = nil
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start audio player: %w", err)
	}
	a := &AudioPlayer{cmd: cmd, done: make(chan struct{})}
	go func() {
		a.err = cmd.Wait()
		close(a.done)
	}()
	return a, nil
}

// Pid is the player's process id.
func (a *AudioPlayer) Pid() int {
	if a == nil || a.cmd.Process == nil {
		return 0
	}
	return a.cmd.Process.Pid
}

// Done is closed when the player process has exited.
func (a *AudioPlayer) Done() <-chan struct{} {
	if a == nil {
		return nil
	}
	return a.done
}

// Err is the process exit error, valid once Done is closed.
func (a *AudioPlayer) Err() error {
	select {
	case <-a.done:
		return a.err
	default:
		return nil
	}
}

// Stop kills the player if it is still running and waits for it to exit.
// Only the first call does anything.
func (a *AudioPlayer) Stop() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		select {
		case <-a.done:
			return
		default:
		}
		_ = a.cmd.Process.Kill()
		<-a.done
	})
}
