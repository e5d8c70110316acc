// Package platform defines the OS/architecture combinations tested against
// upstream releases and the architecture-name mapping used in job names.
package platform

import "fmt"

// Platform represents a target OS/Architecture combination
type Platform struct {
	OS         string // linux, windows, mac
	Arch       string // x64, aarch64 (raw name as it appears in asset filenames)
	MappedArch string // x86-64, aarch64 (name as it appears in job names)
}

// Classifier returns the canonical "<os>-<arch>" identifier for the platform.
func (p Platform) Classifier() string {
	return fmt.Sprintf("%s-%s", p.OS, p.Arch)
}

// MapArch converts a raw architecture name from an asset filename to the
// naming used in downstream job names. Unknown architectures map to
// themselves.
func MapArch(arch string) string {
	switch arch {
	case "x64":
		return "x86-64"
	default:
		return arch
	}
}

// New constructs a Platform with the mapped architecture name filled in.
func New(arch, os string) Platform {
	return Platform{
		OS:         os,
		Arch:       arch,
		MappedArch: MapArch(arch),
	}
}

// ForVersion returns the platform combinations tested for a given major
// version. Linux x64 and Windows x64 are tested for every version; Linux
// aarch64 builds only exist for version 11.
func ForVersion(version string) []Platform {
	platforms := []Platform{New("x64", "linux")}
	if version == "11" {
		platforms = append(platforms, New("aarch64", "linux"))
	}
	platforms = append(platforms, New("x64", "windows"))
	return platforms
}
