// Package mediaplayer defines the media-player entity contract shared by
// platforms and the surfaces that expose them.
package mediaplayer

import (
	"context"
	"time"

	"github.com/strefethen/heos-hub-go/internal/host"
)

// State is the playback state of a media player.
type State string

const (
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateIdle    State = "idle"
	StateOff     State = "off"
	StateUnknown State = "unknown"
)

// ContentTypeMusic is the only content type players currently report.
const ContentTypeMusic = "music"

// Feature is a bitmask of supported operations. Values match the Home
// Assistant media_player constants so clients can share tables.
type Feature uint32

const (
	FeaturePause         Feature = 1
	FeatureSeek          Feature = 2
	FeatureVolumeSet     Feature = 4
	FeatureVolumeMute    Feature = 8
	FeaturePreviousTrack Feature = 16
	FeatureNextTrack     Feature = 32
	FeatureTurnOn        Feature = 128
	FeatureTurnOff       Feature = 256
	FeaturePlayMedia     Feature = 512
	FeatureVolumeStep    Feature = 1024
	FeatureSelectSource  Feature = 2048
	FeatureStop          Feature = 4096
	FeatureClearPlaylist Feature = 8192
	FeaturePlay          Feature = 16384
)

var featureNames = []struct {
	flag Feature
	name string
}{
	{FeaturePause, "pause"},
	{FeatureSeek, "seek"},
	{FeatureVolumeSet, "volume_set"},
	{FeatureVolumeMute, "volume_mute"},
	{FeaturePreviousTrack, "previous_track"},
	{FeatureNextTrack, "next_track"},
	{FeatureTurnOn, "turn_on"},
	{FeatureTurnOff, "turn_off"},
	{FeaturePlayMedia, "play_media"},
	{FeatureVolumeStep, "volume_step"},
	{FeatureSelectSource, "select_source"},
	{FeatureStop, "stop"},
	{FeatureClearPlaylist, "clear_playlist"},
	{FeaturePlay, "play"},
}

// Has reports whether every bit in flag is set.
func (f Feature) Has(flag Feature) bool {
	return f&flag == flag
}

// Names lists the set features in bit order.
func (f Feature) Names() []string {
	names := make([]string, 0, len(featureNames))
	for _, entry := range featureNames {
		if f.Has(entry.flag) {
			names = append(names, entry.name)
		}
	}
	return names
}

// Player is a host entity with media-player properties and commands.
// Property reads must be cheap and must not block on the network.
type Player interface {
	host.Entity

	State() State
	VolumeLevel() float64
	IsVolumeMuted() bool
	MediaContentID() string
	MediaContentType() string
	MediaTitle() string
	MediaArtist() string
	MediaAlbumName() string
	MediaImageURL() string
	// MediaDuration and MediaPosition are in seconds.
	MediaDuration() float64
	MediaPosition() float64
	MediaPositionUpdatedAt() time.Time
	Source() string
	SourceList() []string
	SupportedFeatures() Feature

	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	NextTrack(ctx context.Context) error
	PreviousTrack(ctx context.Context) error
	PlayPause(ctx context.Context) error
	SetVolumeLevel(ctx context.Context, level float64) error
	MuteVolume(ctx context.Context, mute bool) error
	SelectSource(ctx context.Context, source string) error
	Seek(ctx context.Context, position float64) error
}

// VolumeStepper is implemented by players with native volume steps. Players
// without it get a fixed-size step built on SetVolumeLevel.
type VolumeStepper interface {
	VolumeUp(ctx context.Context) error
	VolumeDown(ctx context.Context) error
}
