package heos

import (
	"fmt"
	"strings"
)

// identity derives the registry id and display name for a device. Players
// and groups share one adapter and differ only in their identity.
type identity interface {
	kind() DeviceKind
	entityID(deviceID int) string
	displayName(deviceName string) string
}

type playerIdentity struct{}

func (playerIdentity) kind() DeviceKind { return KindPlayer }

func (playerIdentity) entityID(deviceID int) string {
	return fmt.Sprintf("player-%d", deviceID)
}

func (playerIdentity) displayName(deviceName string) string {
	return deviceName
}

type groupIdentity struct{}

func (groupIdentity) kind() DeviceKind { return KindGroup }

func (groupIdentity) entityID(deviceID int) string {
	return fmt.Sprintf("group-%d", deviceID)
}

func (groupIdentity) displayName(deviceName string) string {
	return "Group " + deviceName
}

func identityFor(kind DeviceKind) identity {
	if kind == KindGroup {
		return groupIdentity{}
	}
	return playerIdentity{}
}

func withFallbackName(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
