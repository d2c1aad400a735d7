// Package heos adapts a HEOS controller session into media-player entities.
// Discovery, session management and the command transport belong to the
// controller behind the Controller and Device interfaces.
package heos

import (
	"context"
	"time"
)

// DeviceKind distinguishes single players from player groups.
type DeviceKind string

const (
	KindPlayer DeviceKind = "player"
	KindGroup  DeviceKind = "group"
)

// Favorite is a preset stored on the HEOS account.
type Favorite struct {
	Name string `json:"name" yaml:"name"`
	MID  string `json:"mid" yaml:"mid"`
}

// MusicSource is a streaming service or input known to the controller.
type MusicSource struct {
	Name string `json:"name" yaml:"name"`
	SID  string `json:"sid" yaml:"sid"`
}

// SubscriptionID identifies a state-change listener on a device.
type SubscriptionID string

// Device is a live handle to one player or group owned by the controller.
// Attribute reads return cached values and never touch the network.
type Device interface {
	ID() int
	Name() string

	// PlayState is "play", "pause", "stop" or another device-specific value.
	PlayState() string
	// Volume is 0-100.
	Volume() int
	// Mute is "on" or "off".
	Mute() string
	MediaTitle() string
	MediaArtist() string
	MediaAlbum() string
	MediaImageURL() string
	MediaID() string
	// Duration and CurrentPosition are in milliseconds.
	Duration() int
	CurrentPosition() int
	PositionUpdatedAt() time.Time
	Online() bool
	SourceName() string
	SourceList() []string
	Favorites() []Favorite
	MusicSources() []MusicSource

	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	PlayNext(ctx context.Context) error
	PlayPrevious(ctx context.Context) error
	SetVolume(ctx context.Context, volume int) error
	ToggleMute(ctx context.Context) error
	PlayFavorite(ctx context.Context, id string) error
	RequestUpdate(ctx context.Context) error

	// Subscribe registers a listener called after the device's cached
	// attributes change. Listeners may be called from any goroutine.
	Subscribe(listener func()) SubscriptionID
	Unsubscribe(id SubscriptionID)
}

// Controller is an established controller session.
type Controller interface {
	Players() []Device
	Groups() []Device
	// OnNewDevice installs the callback for devices discovered after connect.
	OnNewDevice(callback func(device Device, kind DeviceKind))
	Close() error
}

// ConnectOptions are passed to the dialer.
type ConnectOptions struct {
	// Host is optional; an empty host lets the controller locate a device.
	Host     string
	Username string
	Password string
}

// Dialer opens a controller session.
type Dialer func(ctx context.Context, opts ConnectOptions) (Controller, error)
