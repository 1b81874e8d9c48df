package engine

import "github.com/docker/docker/api/types/container"

// SecurityProfile selects the container's privilege level. Exactly one of
// privileged or minimal applies: when Privileged is set the sub-toggles are
// ignored and the engine's own defaults for devices and labels stand.
type SecurityProfile struct {
	Privileged bool

	// Fuse adds /dev/fuse and the SYS_ADMIN capability to a minimal profile.
	Fuse bool
	// KeepSELinuxLabel leaves the engine's default label in place on a
	// minimal profile instead of disabling labelling.
	KeepSELinuxLabel bool
}

// Minimal reports whether this is a minimal (non-privileged) profile.
func (p SecurityProfile) Minimal() bool { return !p.Privileged }

const (
	fuseDevice     = "/dev/fuse"
	fuseCapability = "SYS_ADMIN"
	labelDisable   = "label=disable"
)

// applySecurity writes the profile onto hc. It only ever adds settings.
func applySecurity(hc *container.HostConfig, p SecurityProfile) {
	if p.Privileged {
		hc.Privileged = true
		return
	}
	hc.Privileged = false
	if !p.KeepSELinuxLabel {
		hc.SecurityOpt = append(hc.SecurityOpt, labelDisable)
	}
	if p.Fuse {
		hc.Resources.Devices = append(hc.Resources.Devices, container.DeviceMapping{
			PathOnHost:        fuseDevice,
			PathInContainer:   fuseDevice,
			CgroupPermissions: "rwm",
		})
		hc.CapAdd = append(hc.CapAdd, fuseCapability)
	}
}
