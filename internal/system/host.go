package system

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// HostFacts describes the machine the panel runs on. Empty fields mean the
// value could not be read.
type HostFacts struct {
	Hostname string
	OS       string
	Kernel   string
	Uptime   time.Duration
}

// CollectHostFacts gathers whatever host facts are available; it never fails.
func CollectHostFacts() HostFacts {
	host, _ := os.Hostname()
	osName, _ := readOSRelease("/etc/os-release")
	kernel, _ := readKernel()
	uptime, _ := readUptime("/proc/uptime")
	return HostFacts{
		Hostname: host,
		OS:       osName,
		Kernel:   kernel,
		Uptime:   uptime,
	}
}

func readOSRelease(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	defer f.Close()

	fields := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"'`)
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	for _, k := range []string{"PRETTY_NAME", "NAME"} {
		if v := fields[k]; v != "" {
			return v, nil
		}
	}
	return "", errors.New("os-release has no NAME")
}

func readUptime(path string) (time.Duration, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, err
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(b)), " ")
	secs, err := strconv.ParseFloat(first, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)).Truncate(time.Second), nil
}
