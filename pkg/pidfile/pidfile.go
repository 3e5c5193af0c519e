package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

var ErrRunning = errors.New("process is already running")

// FilePath returns the pid file of the named program. Non-root users
// get one under the temp dir.
func FilePath(name string) string {
	if os.Geteuid() != 0 {
		return filepath.Join(os.TempDir(), name+".pid")
	}
	return fmt.Sprintf("/var/run/%s/%s.pid", name, name)
}

// WritePID records the current pid at path. It fails with ErrRunning
// when path holds the pid of a live process other than this one.
func WritePID(path string) (string, error) {
	if pid, err := ReadPID(path); err == nil && pid != os.Getpid() && isProcess(pid) {
		return "", fmt.Errorf("%w: pid %d in %s", ErrRunning, pid, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create pid directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return "", fmt.Errorf("failed to write pid file: %w", err)
	}

	return path, nil
}

func ReadPID(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(content)))
}

// Remove deletes path if it still holds the current pid.
func Remove(path string) error {
	pid, err := ReadPID(path)
	if err != nil || pid != os.Getpid() {
		return nil
	}
	return os.Remove(path)
}

// kill -0 checks the process without signalling it.
func isProcess(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
