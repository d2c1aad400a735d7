package fixture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strefethen/heos-hub-go/internal/heos"
)

var (
	ErrDeviceOffline = errors.New("device offline")
	ErrUnknownMedia  = errors.New("unknown favorite or source id")
	ErrVolumeRange   = errors.New("volume out of range")
)

// Device is a simulated player or group. Commands change its state and
// notify subscribers from a separate goroutine, like a device push would.
type Device struct {
	controller *Controller

	mu        sync.Mutex
	id        int
	name      string
	playState string
	volume    int
	mute      string
	online    bool
	source    string
	queue     []MediaSpec
	track     int
	position  int
	updatedAt time.Time
	listeners map[heos.SubscriptionID]func()
}

var _ heos.Device = (*Device)(nil)

func newDevice(c *Controller, spec DeviceSpec) *Device {
	online := true
	if spec.Online != nil {
		online = *spec.Online
	}
	mute := spec.Mute
	if mute == "" {
		mute = "off"
	}
	playState := spec.PlayState
	if playState == "" {
		playState = "stop"
	}
	d := &Device{
		controller: c,
		id:         spec.ID,
		name:       spec.Name,
		playState:  playState,
		volume:     spec.Volume,
		mute:       mute,
		online:     online,
		source:     spec.Source,
		queue:      spec.Queue,
		updatedAt:  c.now(),
		listeners:  make(map[heos.SubscriptionID]func()),
	}
	if len(d.queue) > 0 {
		d.position = d.queue[0].PositionMs
	}
	return d
}

func (d *Device) ID() int { return d.id }

func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

func (d *Device) PlayState() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playState
}

func (d *Device) Volume() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volume
}

func (d *Device) Mute() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mute
}

func (d *Device) MediaTitle() string    { return d.media().Title }
func (d *Device) MediaArtist() string   { return d.media().Artist }
func (d *Device) MediaAlbum() string    { return d.media().Album }
func (d *Device) MediaImageURL() string { return d.media().ImageURL }
func (d *Device) MediaID() string       { return d.media().ID }
func (d *Device) Duration() int         { return d.media().DurationMs }

func (d *Device) CurrentPosition() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

func (d *Device) PositionUpdatedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updatedAt
}

func (d *Device) Online() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

func (d *Device) SourceName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.source
}

// SourceList names the music sources followed by the account favorites.
func (d *Device) SourceList() []string {
	sources := d.controller.fleet.MusicSources
	favorites := d.controller.fleet.favorites()
	list := make([]string, 0, len(sources)+len(favorites))
	for _, source := range sources {
		list = append(list, source.Name)
	}
	for _, favorite := range favorites {
		list = append(list, heos.FavoritePrefix+favorite.Name)
	}
	return list
}

func (d *Device) Favorites() []heos.Favorite {
	return append([]heos.Favorite(nil), d.controller.fleet.favorites()...)
}

func (d *Device) MusicSources() []heos.MusicSource {
	return append([]heos.MusicSource(nil), d.controller.fleet.MusicSources...)
}

func (d *Device) media() MediaSpec {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mediaLocked()
}

// Commands

func (d *Device) Play(ctx context.Context) error {
	return d.mutate(ctx, func() error {
		d.playState = "play"
		return nil
	})
}

func (d *Device) Pause(ctx context.Context) error {
	return d.mutate(ctx, func() error {
		d.advancePosition()
		d.playState = "pause"
		return nil
	})
}

func (d *Device) Stop(ctx context.Context) error {
	return d.mutate(ctx, func() error {
		d.playState = "stop"
		d.position = 0
		return nil
	})
}

func (d *Device) PlayNext(ctx context.Context) error {
	return d.mutate(ctx, func() error {
		d.skip(1)
		return nil
	})
}

func (d *Device) PlayPrevious(ctx context.Context) error {
	return d.mutate(ctx, func() error {
		d.skip(-1)
		return nil
	})
}

func (d *Device) SetVolume(ctx context.Context, volume int) error {
	return d.mutate(ctx, func() error {
		if volume < 0 || volume > 100 {
			return fmt.Errorf("%w: %d", ErrVolumeRange, volume)
		}
		d.volume = volume
		return nil
	})
}

func (d *Device) ToggleMute(ctx context.Context) error {
	return d.mutate(ctx, func() error {
		if d.mute == "on" {
			d.mute = "off"
		} else {
			d.mute = "on"
		}
		return nil
	})
}

// PlayFavorite plays an account favorite by mid or a music source by sid.
func (d *Device) PlayFavorite(ctx context.Context, id string) error {
	return d.mutate(ctx, func() error {
		for _, favorite := range d.controller.fleet.favorites() {
			if favorite.MID == id {
				d.source = favorite.Name
				d.playState = "play"
				return nil
			}
		}
		for _, source := range d.controller.fleet.MusicSources {
			if source.SID == id {
				d.source = source.Name
				d.playState = "play"
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrUnknownMedia, id)
	})
}

// RequestUpdate brings the playback position up to date and notifies subscribers.
func (d *Device) RequestUpdate(ctx context.Context) error {
	return d.mutate(ctx, func() error {
		d.advancePosition()
		return nil
	})
}

func (d *Device) Subscribe(listener func()) heos.SubscriptionID {
	id := heos.SubscriptionID(uuid.NewString())
	d.mu.Lock()
	d.listeners[id] = listener
	d.mu.Unlock()
	return id
}

func (d *Device) Unsubscribe(id heos.SubscriptionID) {
	d.mu.Lock()
	delete(d.listeners, id)
	d.mu.Unlock()
}

// SetOnline simulates the device dropping off or rejoining the network.
func (d *Device) SetOnline(online bool) {
	d.mu.Lock()
	d.online = online
	d.mu.Unlock()
	d.notify()
}

// mutate runs change under the device lock and notifies on success.
func (d *Device) mutate(ctx context.Context, change func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.controller.checkOpen(); err != nil {
		return err
	}

	d.mu.Lock()
	if !d.online {
		d.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrDeviceOffline, d.id)
	}
	err := change()
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.notify()
	return nil
}

// advancePosition must be called with mu held.
func (d *Device) advancePosition() {
	now := d.controller.now()
	if d.playState == "play" {
		d.position += int(now.Sub(d.updatedAt) / time.Millisecond)
		if duration := d.mediaLocked().DurationMs; duration > 0 && d.position > duration {
			d.position = duration
		}
	}
	d.updatedAt = now
}

// skip must be called with mu held.
func (d *Device) skip(step int) {
	if len(d.queue) == 0 {
		return
	}
	d.track = (d.track + step + len(d.queue)) % len(d.queue)
	d.position = 0
	d.updatedAt = d.controller.now()
}

func (d *Device) mediaLocked() MediaSpec {
	if len(d.queue) == 0 {
		return MediaSpec{}
	}
	return d.queue[d.track]
}

func (d *Device) notify() {
	d.mu.Lock()
	listeners := make([]func(), 0, len(d.listeners))
	for _, listener := range d.listeners {
		listeners = append(listeners, listener)
	}
	d.mu.Unlock()

	for _, listener := range listeners {
		go listener()
	}
}
