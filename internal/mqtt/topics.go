package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "heoshub"

const entityDomain = "media_player"

// Topics builds the hub's topic names under a prefix.
//
//	topics := mqtt.Topics{Prefix: "heoshub"}
//	topics.EntityState("player-1") // heoshub/state/media_player/player-1
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// SystemStatus carries the hub's online/offline status and the LWT.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// EntityState is the retained state topic of one entity.
func (t Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/state/%s/%s", t.prefix(), entityDomain, entityID)
}

// EntityCommand is the command topic of one entity.
func (t Topics) EntityCommand(entityID string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.prefix(), entityDomain, entityID)
}

// EntityAck carries the outcome of a command.
func (t Topics) EntityAck(entityID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", t.prefix(), entityDomain, entityID)
}

// AllEntityCommands matches every entity command topic.
func (t Topics) AllEntityCommands() string {
	return t.EntityCommand("+")
}

// EntityIDFromCommand extracts the entity id from a command topic.
func (t Topics) EntityIDFromCommand(topic string) (string, error) {
	base := fmt.Sprintf("%s/command/%s/", t.prefix(), entityDomain)
	entityID, ok := strings.CutPrefix(topic, base)
	if !ok || entityID == "" || strings.Contains(entityID, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnknownTopicShape, topic)
	}
	return entityID, nil
}
