package utils

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// DeviceFingerprint returns a stable hardware or installation
// identifier for this machine. It binds the stored credential to the
// device and, hashed, identifies the station to the service.
func DeviceFingerprint() (string, error) {
	if id := os.Getenv("SCANFULFILL_DEVICE_ID"); id != "" {
		return id, nil
	}
	switch runtime.GOOS {
	case "darwin":
		return macOSUUID()
	case "linux":
		return linuxID()
	case "windows":
		return windowsUUID()
	default:
		return "", errors.New("unsupported platform: " + runtime.GOOS)
	}
}

func macOSUUID() (string, error) {
	out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "IOPlatformUUID") {
			parts := strings.Split(line, "\"")
			if len(parts) >= 4 {
				return parts[3], nil
			}
		}
	}
	return "", errors.New("no IOPlatformUUID found")
}

// linuxID prefers the DMI product UUID, then machine-id, then the CPU
// serial that single-board computers expose in /proc/cpuinfo.
func linuxID() (string, error) {
	for _, path := range []string{"/sys/class/dmi/id/product_uuid", "/etc/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id, nil
			}
		}
	}
	if cpuinfo, err := os.ReadFile("/proc/cpuinfo"); err == nil {
		for _, line := range strings.Split(string(cpuinfo), "\n") {
			if !strings.HasPrefix(line, "Serial") {
				continue
			}
			if _, id, ok := strings.Cut(line, ":"); ok {
				if id = strings.TrimSpace(id); id != "" {
					return id, nil
				}
			}
		}
	}
	return "", errors.New("no hardware id found on linux")
}

func windowsUUID() (string, error) {
	out, err := exec.Command("wmic", "csproduct", "get", "UUID").Output()
	if err != nil {
		return "", err
	}
	for _, line := range bytes.Split(out, []byte("\n")) {
		s := strings.TrimSpace(string(line))
		if s != "" && !strings.EqualFold(s, "UUID") {
			return s, nil
		}
	}
	return "", errors.New("no hardware UUID found on windows")
}
