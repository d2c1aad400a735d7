package heos

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/strefethen/heos-hub-go/internal/host"
	"github.com/strefethen/heos-hub-go/internal/mediaplayer"
)

// FavoritePrefix marks a source name as an account favorite.
const FavoritePrefix = "Favorites__"

// SupportedFeatures is the feature mask of every HEOS entity.
const SupportedFeatures = mediaplayer.FeaturePlay | mediaplayer.FeatureStop | mediaplayer.FeaturePause |
	mediaplayer.FeaturePlayMedia | mediaplayer.FeaturePreviousTrack | mediaplayer.FeatureNextTrack |
	mediaplayer.FeatureSelectSource | mediaplayer.FeatureVolumeMute | mediaplayer.FeatureVolumeSet |
	mediaplayer.FeatureVolumeStep | mediaplayer.FeatureSeek

var (
	ErrSourceNotFound = mediaplayer.ErrSourceNotFound
	ErrNoDevice       = errors.New("entity has no device")
)

// Hub is the part of the host an adapter uses.
type Hub interface {
	ScheduleUpdate(entityID string)
	CreateTask(name string, fn func(ctx context.Context) error)
	AddExecutorJob(job func() error) error
}

// MediaPlayer exposes one HEOS player or group as a media-player entity.
// Property reads pass straight through to the device's cached attributes.
type MediaPlayer struct {
	device   Device
	identity identity
	id       string
	name     string
	hub      Hub
	logger   *log.Logger

	mu            sync.Mutex
	lastPlayState string
	subscription  SubscriptionID
	subscribed    bool
}

var (
	_ mediaplayer.Player = (*MediaPlayer)(nil)
	_ host.Renderer      = (*MediaPlayer)(nil)
	_ host.Updater       = (*MediaPlayer)(nil)
	_ host.Lifecycle     = (*MediaPlayer)(nil)
	_ host.Describer     = (*MediaPlayer)(nil)
)

// NewMediaPlayer wraps device. fallbackName is used when the device reports no name.
func NewMediaPlayer(device Device, kind DeviceKind, hub Hub, fallbackName string, logger *log.Logger) *MediaPlayer {
	if logger == nil {
		logger = log.Default()
	}
	ident := identityFor(kind)

	deviceID := 0
	deviceName := ""
	if device != nil {
		deviceID = device.ID()
		deviceName = device.Name()
	}

	return &MediaPlayer{
		device:   device,
		identity: ident,
		id:       ident.entityID(deviceID),
		name:     ident.displayName(withFallbackName(deviceName, fallbackName)),
		hub:      hub,
		logger:   logger,
	}
}

func (m *MediaPlayer) EntityID() string { return m.id }

func (m *MediaPlayer) Name() string { return m.name }

// Kind reports whether the entity wraps a player or a group.
func (m *MediaPlayer) Kind() DeviceKind { return m.identity.kind() }

// ShouldPoll is always false; devices push changes.
func (m *MediaPlayer) ShouldPoll() bool { return false }

func (m *MediaPlayer) Available() bool {
	return m.device != nil && m.device.Online()
}

func (m *MediaPlayer) Describe() host.Descriptor {
	desc := host.Descriptor{Platform: PlatformName, Kind: string(m.identity.kind())}
	if m.device != nil {
		desc.DeviceID = m.device.ID()
	}
	return desc
}

func (m *MediaPlayer) Render() any {
	return mediaplayer.SnapshotOf(m)
}

// State reads the device play state and remembers it for PlayPause.
func (m *MediaPlayer) State() mediaplayer.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		m.lastPlayState = m.device.PlayState()
	}
	return projectPlayState(m.lastPlayState)
}

func projectPlayState(playState string) mediaplayer.State {
	switch playState {
	case "stop", "pause":
		return mediaplayer.StatePaused
	case "play":
		return mediaplayer.StatePlaying
	default:
		return mediaplayer.StateUnknown
	}
}

func (m *MediaPlayer) VolumeLevel() float64 {
	if m.device == nil {
		return 0
	}
	return float64(m.device.Volume()) / 100.0
}

func (m *MediaPlayer) IsVolumeMuted() bool {
	return m.device != nil && m.device.Mute() == "on"
}

func (m *MediaPlayer) MediaContentID() string {
	if m.device == nil {
		return ""
	}
	return m.device.MediaID()
}

func (m *MediaPlayer) MediaContentType() string { return mediaplayer.ContentTypeMusic }

func (m *MediaPlayer) MediaTitle() string {
	if m.device == nil {
		return ""
	}
	return m.device.MediaTitle()
}

func (m *MediaPlayer) MediaArtist() string {
	if m.device == nil {
		return ""
	}
	return m.device.MediaArtist()
}

func (m *MediaPlayer) MediaAlbumName() string {
	if m.device == nil {
		return ""
	}
	return m.device.MediaAlbum()
}

func (m *MediaPlayer) MediaImageURL() string {
	if m.device == nil {
		return ""
	}
	return m.device.MediaImageURL()
}

func (m *MediaPlayer) MediaDuration() float64 {
	if m.device == nil {
		return 0
	}
	return float64(m.device.Duration()) / 1000.0
}

func (m *MediaPlayer) MediaPosition() float64 {
	if m.device == nil {
		return 0
	}
	return float64(m.device.CurrentPosition()) / 1000.0
}

func (m *MediaPlayer) MediaPositionUpdatedAt() time.Time {
	if m.device == nil {
		return time.Time{}
	}
	return m.device.PositionUpdatedAt()
}

func (m *MediaPlayer) Source() string {
	if m.device == nil {
		return ""
	}
	return m.device.SourceName()
}

func (m *MediaPlayer) SourceList() []string {
	if m.device == nil {
		return nil
	}
	return m.device.SourceList()
}

func (m *MediaPlayer) SupportedFeatures() mediaplayer.Feature { return SupportedFeatures }

// Commands

func (m *MediaPlayer) Play(ctx context.Context) error {
	return m.command("play", func(d Device) error { return d.Play(ctx) })
}

func (m *MediaPlayer) Pause(ctx context.Context) error {
	return m.command("pause", func(d Device) error { return d.Pause(ctx) })
}

func (m *MediaPlayer) Stop(ctx context.Context) error {
	return m.command("stop", func(d Device) error { return d.Stop(ctx) })
}

func (m *MediaPlayer) NextTrack(ctx context.Context) error {
	return m.command("next track", func(d Device) error { return d.PlayNext(ctx) })
}

func (m *MediaPlayer) PreviousTrack(ctx context.Context) error {
	return m.command("previous track", func(d Device) error { return d.PlayPrevious(ctx) })
}

// PlayPause toggles using the last play state seen, not a fresh device read.
func (m *MediaPlayer) PlayPause(ctx context.Context) error {
	m.mu.Lock()
	playing := m.lastPlayState == "play"
	m.mu.Unlock()

	if playing {
		return m.Pause(ctx)
	}
	return m.Play(ctx)
}

// SetVolumeLevel converts level in [0, 1] to the device's 0-100 scale.
func (m *MediaPlayer) SetVolumeLevel(ctx context.Context, level float64) error {
	volume := int(math.Round(level * 100))
	return m.command("set volume", func(d Device) error { return d.SetVolume(ctx, volume) })
}

// MuteVolume toggles mute. HEOS only exposes a toggle, so the requested
// value is not consulted.
func (m *MediaPlayer) MuteVolume(ctx context.Context, mute bool) error {
	return m.command("toggle mute", func(d Device) error { return d.ToggleMute(ctx) })
}

// SelectSource plays a favorite ("Favorites__<name>") or a music source by
// display name. Unknown names return ErrSourceNotFound without touching the device.
func (m *MediaPlayer) SelectSource(ctx context.Context, source string) error {
	if m.device == nil {
		return fmt.Errorf("select source on %s: %w", m.id, ErrNoDevice)
	}

	if name, ok := strings.CutPrefix(source, FavoritePrefix); ok {
		for _, favorite := range m.device.Favorites() {
			if favorite.Name == name {
				return m.command("play favorite", func(d Device) error { return d.PlayFavorite(ctx, favorite.MID) })
			}
		}
	} else {
		for _, musicSource := range m.device.MusicSources() {
			if musicSource.Name == source {
				return m.command("play source", func(d Device) error { return d.PlayFavorite(ctx, musicSource.SID) })
			}
		}
	}

	return fmt.Errorf("%w: %q on %s", ErrSourceNotFound, source, m.id)
}

// Seek is advertised but HEOS cannot seek; the request is logged and dropped.
func (m *MediaPlayer) Seek(ctx context.Context, position float64) error {
	m.logger.Printf("HEOS: seek to %.1fs on %s ignored", position, m.id)
	return nil
}

func (m *MediaPlayer) command(name string, call func(Device) error) error {
	if m.device == nil {
		return fmt.Errorf("%s on %s: %w", name, m.id, ErrNoDevice)
	}
	if err := call(m.device); err != nil {
		return fmt.Errorf("%s on %s: %w", name, m.id, err)
	}
	return nil
}

// Refresh

// Update asks the device to refresh its cached attributes.
func (m *MediaPlayer) Update(ctx context.Context) error {
	return m.command("request update", func(d Device) error { return d.RequestUpdate(ctx) })
}

// runUpdater hands the device refresh to the host worker pool and returns
// once the job is queued.
func (m *MediaPlayer) runUpdater(ctx context.Context) error {
	if m.device == nil {
		return nil
	}
	device := m.device
	if err := m.hub.AddExecutorJob(func() error { return device.RequestUpdate(ctx) }); err != nil {
		return fmt.Errorf("queue refresh for %s: %w", m.id, err)
	}
	return nil
}

// Observer registration

func (m *MediaPlayer) AddedToHost() {
	if m.device == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribed {
		return
	}
	m.subscription = m.device.Subscribe(m.onDeviceChanged)
	m.subscribed = true
}

func (m *MediaPlayer) WillRemoveFromHost() {
	m.mu.Lock()
	id, subscribed := m.subscription, m.subscribed
	m.subscribed = false
	m.mu.Unlock()

	if subscribed {
		m.device.Unsubscribe(id)
	}
}

func (m *MediaPlayer) onDeviceChanged() {
	m.mu.Lock()
	m.lastPlayState = m.device.PlayState()
	m.mu.Unlock()

	m.hub.ScheduleUpdate(m.id)
}
