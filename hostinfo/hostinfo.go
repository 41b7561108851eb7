// Package hostinfo identifies the host platform for plugin gating.
package hostinfo

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/host"
)

// OSType classifies the host operating system.
type OSType int

const (
	OSWindows OSType = iota
	OSLinux
	OSMac
	OSOtherUnix
	OSOther
)

// HostOS returns the OSType of the running host.
func HostOS() OSType {
	switch runtime.GOOS {
	case "windows":
		return OSWindows
	case "linux":
		return OSLinux
	case "darwin":
		return OSMac
	case "freebsd", "netbsd", "openbsd", "dragonfly", "solaris", "illumos", "aix":
		return OSOtherUnix
	default:
		return OSOther
	}
}

// IsWindowsHost reports whether the host runs Windows.
func IsWindowsHost() bool { return HostOS() == OSWindows }

// IsLinuxHost reports whether the host runs Linux.
func IsLinuxHost() bool { return HostOS() == OSLinux }

// IsMacHost reports whether the host runs macOS.
func IsMacHost() bool { return HostOS() == OSMac }

// IsUnixHost reports whether the host runs a Unix-like system.
func IsUnixHost() bool {
	t := HostOS()
	return t == OSLinux || t == OSMac || t == OSOtherUnix
}

func osName() string {
	switch HostOS() {
	case OSMac:
		return "OS X"
	case OSLinux:
		return "Linux"
	case OSOtherUnix:
		return "Unix"
	case OSWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

var (
	platformOnce sync.Once
	platformName string
)

// PlatformName returns a human-readable host description of the form
// "<OS name> (<product name>)", e.g. "Linux (ubuntu 22.04)". Plugin
// descriptors match their platform pattern against this string. The value is
// computed once and cached.
func PlatformName() string {
	platformOnce.Do(func() {
		platformName = fmt.Sprintf("%s (%s)", osName(), productName())
	})
	return platformName
}

// productName returns a pretty product string, e.g. "ubuntu 22.04" or
// "darwin 14.2". Falls back to GOOS when host details are unavailable.
func productName() string {
	info, err := host.Info()
	if err != nil || info.Platform == "" {
		return runtime.GOOS
	}
	if info.PlatformVersion == "" {
		return info.Platform
	}
	return strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
}
