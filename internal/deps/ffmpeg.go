package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveFFprobe reports the ffprobe binary paired with ffmpegCommand.
//
// An explicitly configured ffprobe wins. Otherwise a static ffmpeg build is
// usually unpacked together with its ffprobe, so the binary sitting next to
// the resolved ffmpeg is preferred over whatever "ffprobe" resolves to on
// PATH.
func ResolveFFprobe(ffmpegCommand, ffprobeCommand string) Status {
	result := Status{
		Name:        "FFprobe",
		Description: "Measures narration audio duration",
	}

	if explicit := strings.TrimSpace(ffprobeCommand); explicit != "" && explicit != "ffprobe" {
		result.Command = explicit
		if _, err := exec.LookPath(explicit); err != nil {
			result.Detail = fmt.Sprintf("binary %q not found", explicit)
			return result
		}
		result.Available = true
		return result
	}

	if ffmpegBinary := strings.TrimSpace(ffmpegCommand); ffmpegBinary != "" {
		if resolved, err := exec.LookPath(ffmpegBinary); err == nil {
			candidate := sidecar(resolved, "ffprobe")
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				result.Command = candidate
				result.Available = true
				return result
			}
		}
	}

	if path, err := exec.LookPath("ffprobe"); err == nil {
		result.Command = path
		result.Available = true
		return result
	}
	result.Command = "ffprobe"
	result.Detail = `binary "ffprobe" not found`
	return result
}

func sidecar(binaryPath, name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(binaryPath), name)
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
