package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const versionProbeTimeout = 5 * time.Second

// Requirements lists the binaries the codecs and ingest step execute.
func Requirements(ffmpegBinary, ffprobeBinary string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpegBinary,
			Description: "Backs the AAC and H.264 codecs and audio ingest",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobeBinary,
			Description: "Inspects audio inputs that cannot be read directly",
		},
	}
}

// DescribeVersion fills Detail of an available status with the first line of
// `<binary> -version`. Unavailable statuses are returned unchanged.
func DescribeVersion(ctx context.Context, status Status) Status {
	if !status.Available {
		return status
	}
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, status.Command, "-version").Output()
	if err != nil {
		status.Detail = fmt.Sprintf("version probe failed: %v", err)
		return status
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if scanner.Scan() {
		status.Detail = strings.TrimSpace(scanner.Text())
	}
	return status
}
