package osutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

var ErrProfileLocked = errors.New("browser profile is in use by another process")

// files Chrome leaves in a user data directory while it runs
var lockFiles = []string{"SingletonLock", "SingletonCookie", "SingletonSocket", "lockfile"}

type ProfileLock struct {
	Host string
	Pid  int
}

// CheckProfileLock returns ErrProfileLocked when dir's SingletonLock points
// at a live process on this host. Stale locks are reported as unlocked.
func CheckProfileLock(ctx context.Context, dir string) (ProfileLock, error) {
	target, err := os.Readlink(filepath.Join(dir, "SingletonLock"))
	if err != nil {
		return ProfileLock{}, nil
	}

	// the link target is "<hostname>-<pid>"
	idx := strings.LastIndex(target, "-")
	if idx < 0 {
		return ProfileLock{}, nil
	}
	pid, err := strconv.Atoi(target[idx+1:])
	if err != nil {
		return ProfileLock{}, nil
	}
	lock := ProfileLock{Host: target[:idx], Pid: pid}

	if hostname, err := os.Hostname(); err == nil && hostname != lock.Host {
		return lock, nil
	}
	alive, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil || !alive {
		return lock, nil
	}
	return lock, fmt.Errorf("%w: pid %d", ErrProfileLocked, pid)
}

// ProfileProcesses lists the browser processes started with dir as their
// user data directory.
func ProfileProcesses(ctx context.Context, dir string) ([]*process.Process, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var out []*process.Process
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(cmdline, "--user-data-dir="+abs) || strings.Contains(cmdline, "--user-data-dir="+dir) {
			out = append(out, p)
		}
	}
	return out, nil
}

// ForceUnlock kills every browser process using dir and removes the lock
// files they leave behind.
func ForceUnlock(ctx context.Context, dir string) (int, error) {
	procs, err := ProfileProcesses(ctx, dir)
	if err != nil {
		return 0, err
	}

	killed := 0
	for _, p := range procs {
		if err := p.KillWithContext(ctx); err != nil {
			slog.WarnContext(ctx, "failed to kill browser process", "pid", p.Pid, "err", err)
			continue
		}
		killed++
	}

	for _, name := range lockFiles {
		err := os.Remove(filepath.Join(dir, name))
		if err != nil && !os.IsNotExist(err) {
			return killed, fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return killed, nil
}

// entries of a Chrome profile that make up a login session
var sessionEntries = []string{
	"Cookies",
	filepath.Join("Network", "Cookies"),
	"Local Storage",
	"Session Storage",
	"IndexedDB",
	"Preferences",
	"Secure Preferences",
}

// CopyProfileSession copies the session carrying parts of a personal
// Chrome profile (e.g. ".../User Data/Default") into dst/Default. Entries
// that are missing or fail to copy are skipped and logged. The browser
// owning src should not be running.
func CopyProfileSession(src, dst string) ([]string, error) {
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("source profile: %w", err)
	}
	target := filepath.Join(dst, "Default")
	if err := os.MkdirAll(filepath.Join(target, "Network"), 0700); err != nil {
		return nil, err
	}

	var copied []string
	for _, entry := range sessionEntries {
		from := filepath.Join(src, entry)
		to := filepath.Join(target, entry)

		info, err := os.Stat(from)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			slog.Warn("skipping profile entry", "entry", entry, "err", err)
			continue
		}

		if info.IsDir() {
			if err := os.RemoveAll(to); err != nil {
				slog.Warn("skipping profile entry", "entry", entry, "err", err)
				continue
			}
			err = os.CopyFS(to, os.DirFS(from))
		} else {
			err = copyFile(from, to)
		}
		if err != nil {
			slog.Warn("failed to copy profile entry", "entry", entry, "err", err)
			continue
		}
		copied = append(copied, entry)
	}
	return copied, nil
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
