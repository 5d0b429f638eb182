package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kbukum/sonago/errors"
)

const (
	// BinaryName is the executable looked up on PATH.
	BinaryName = "sona"
	// EnvBinaryPath overrides the binary location.
	EnvBinaryPath = "SONA_PATH"
)

// Discover resolves the server binary. An explicit path is used as is and
// must exist. Otherwise $SONA_PATH, then PATH, then the directory of the
// running executable are searched. Failure is LAUNCH_FAILED listing the
// places searched.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		if isFile(explicit) {
			return explicit, nil
		}
		return "", errors.LaunchFailed(explicit, "binary not found").
			WithDetail("searched", []string{explicit})
	}

	var searched []string
	if p := os.Getenv(EnvBinaryPath); p != "" {
		if isFile(p) {
			return p, nil
		}
		searched = append(searched, p)
	}

	if p, err := exec.LookPath(BinaryName); err == nil {
		return p, nil
	}
	searched = append(searched, "$PATH/"+BinaryName)

	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		for _, name := range []string{BinaryName, BinaryName + ".exe"} {
			p := filepath.Join(dir, name)
			if isFile(p) {
				return p, nil
			}
			searched = append(searched, p)
		}
	}

	return "", errors.LaunchFailed(BinaryName, "binary not found").WithDetail("searched", searched)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
