// Package fixture is an in-memory HEOS controller backed by a YAML fleet
// file. It lets the hub run and be tested without HEOS hardware.
package fixture

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/strefethen/heos-hub-go/internal/heos"
)

var ErrInvalidFleet = errors.New("invalid fleet")

// Fleet describes every device the fixture controller exposes.
type Fleet struct {
	// Host, when set, is the only address the controller answers on.
	Host         string             `yaml:"host"`
	Account      *Account           `yaml:"account"`
	MusicSources []heos.MusicSource `yaml:"music_sources"`
	Players      []DeviceSpec       `yaml:"players"`
	Groups       []DeviceSpec       `yaml:"groups"`
}

// Account holds sign-in credentials and the account favorites.
type Account struct {
	Username  string          `yaml:"username"`
	Password  string          `yaml:"password"`
	Favorites []heos.Favorite `yaml:"favorites"`
}

// DeviceSpec is the initial state of one player or group.
type DeviceSpec struct {
	ID        int         `yaml:"id" json:"id"`
	Name      string      `yaml:"name" json:"name"`
	PlayState string      `yaml:"play_state" json:"play_state"`
	Volume    int         `yaml:"volume" json:"volume"`
	Mute      string      `yaml:"mute" json:"mute"`
	Online    *bool       `yaml:"online" json:"online"`
	Source    string      `yaml:"source" json:"source"`
	Queue     []MediaSpec `yaml:"queue" json:"queue"`
}

// MediaSpec is one track in a device queue.
type MediaSpec struct {
	ID         string `yaml:"id" json:"id"`
	Title      string `yaml:"title" json:"title"`
	Artist     string `yaml:"artist" json:"artist"`
	Album      string `yaml:"album" json:"album"`
	ImageURL   string `yaml:"image_url" json:"image_url"`
	DurationMs int    `yaml:"duration_ms" json:"duration_ms"`
	PositionMs int    `yaml:"position_ms" json:"position_ms"`
}

// Load reads and validates a fleet file.
func Load(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates fleet YAML.
func Parse(data []byte) (*Fleet, error) {
	var fleet Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFleet, err)
	}
	if err := fleet.Validate(); err != nil {
		return nil, err
	}
	return &fleet, nil
}

// Validate checks id uniqueness and value ranges.
func (f *Fleet) Validate() error {
	seen := make(map[string]bool)
	check := func(kind heos.DeviceKind, spec DeviceSpec) error {
		key := fmt.Sprintf("%s-%d", kind, spec.ID)
		if seen[key] {
			return fmt.Errorf("%w: duplicate %s id %d", ErrInvalidFleet, kind, spec.ID)
		}
		seen[key] = true
		return spec.validate(kind)
	}

	for _, spec := range f.Players {
		if err := check(heos.KindPlayer, spec); err != nil {
			return err
		}
	}
	for _, spec := range f.Groups {
		if err := check(heos.KindGroup, spec); err != nil {
			return err
		}
	}
	return nil
}

func (spec DeviceSpec) validate(kind heos.DeviceKind) error {
	if spec.Volume < 0 || spec.Volume > 100 {
		return fmt.Errorf("%w: %s %d volume %d out of range", ErrInvalidFleet, kind, spec.ID, spec.Volume)
	}
	if spec.Mute != "" && spec.Mute != "on" && spec.Mute != "off" {
		return fmt.Errorf("%w: %s %d mute must be on or off", ErrInvalidFleet, kind, spec.ID)
	}
	return nil
}

func (f *Fleet) favorites() []heos.Favorite {
	if f.Account == nil {
		return nil
	}
	return f.Account.Favorites
}
