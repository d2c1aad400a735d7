package fixture

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/heos-hub-go/internal/heos"
	"github.com/strefethen/heos-hub-go/internal/host"
	"github.com/strefethen/heos-hub-go/internal/mediaplayer"
)

const testFleet = `
host: 10.0.0.5
account:
  username: me@example.com
  password: pw
  favorites:
    - name: Jazz
      mid: m1
music_sources:
  - name: Pandora
    sid: "1"
players:
  - id: 1
    name: Kitchen
    play_state: play
    volume: 40
    queue:
      - id: a
        title: First
        duration_ms: 60000
      - id: b
        title: Second
        duration_ms: 90000
  - id: 2
    name: Den
    online: false
groups:
  - id: 10
    name: Downstairs
`

func writeFleet(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	fleet, err := Parse([]byte(testFleet))
	require.NoError(t, err)
	c, err := NewController(fleet, heos.ConnectOptions{})
	require.NoError(t, err)
	return c
}

func TestParseRejectsBadFleets(t *testing.T) {
	_, err := Parse([]byte("players: [{id: 1}, {id: 1}]"))
	require.ErrorIs(t, err, ErrInvalidFleet)

	_, err = Parse([]byte("players: [{id: 1, volume: 101}]"))
	require.ErrorIs(t, err, ErrInvalidFleet)

	_, err = Parse([]byte("players: [{id: 1, mute: maybe}]"))
	require.ErrorIs(t, err, ErrInvalidFleet)

	_, err = Parse([]byte("players: {"))
	require.ErrorIs(t, err, ErrInvalidFleet)

	// A player and a group may share an id.
	_, err = Parse([]byte("players: [{id: 1}]\ngroups: [{id: 1}]"))
	require.NoError(t, err)
}

func TestDialer(t *testing.T) {
	path := writeFleet(t, testFleet)
	ctx := context.Background()

	controller, err := Dialer(path)(ctx, heos.ConnectOptions{Host: "10.0.0.5", Username: "me@example.com", Password: "pw"})
	require.NoError(t, err)
	require.Len(t, controller.Players(), 2)
	require.Len(t, controller.Groups(), 1)

	_, err = Dialer(path)(ctx, heos.ConnectOptions{Host: "10.0.0.6"})
	require.ErrorIs(t, err, ErrHostNotFound)

	_, err = Dialer(path)(ctx, heos.ConnectOptions{Username: "me@example.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrSignInFailed)

	_, err = Dialer(filepath.Join(t.TempDir(), "missing.yaml"))(ctx, heos.ConnectOptions{})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDeviceDefaultsAndSources(t *testing.T) {
	c := newTestController(t)
	den, ok := c.Device(heos.KindPlayer, 2)
	require.True(t, ok)

	require.Equal(t, "stop", den.PlayState())
	require.Equal(t, "off", den.Mute())
	require.False(t, den.Online())
	require.Equal(t, []string{"Pandora", "Favorites__Jazz"}, den.SourceList())
	require.Equal(t, []heos.Favorite{{Name: "Jazz", MID: "m1"}}, den.Favorites())

	require.ErrorIs(t, den.Play(context.Background()), ErrDeviceOffline)
}

func TestDeviceCommandsMutateAndNotify(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()
	kitchen, ok := c.Device(heos.KindPlayer, 1)
	require.True(t, ok)

	var notified atomic.Int32
	id := kitchen.Subscribe(func() { notified.Add(1) })

	require.NoError(t, kitchen.SetVolume(ctx, 55))
	require.Equal(t, 55, kitchen.Volume())
	require.ErrorIs(t, kitchen.SetVolume(ctx, 120), ErrVolumeRange)

	require.NoError(t, kitchen.ToggleMute(ctx))
	require.Equal(t, "on", kitchen.Mute())

	require.Equal(t, "First", kitchen.MediaTitle())
	require.NoError(t, kitchen.PlayNext(ctx))
	require.Equal(t, "Second", kitchen.MediaTitle())
	require.NoError(t, kitchen.PlayNext(ctx))
	require.Equal(t, "First", kitchen.MediaTitle())
	require.NoError(t, kitchen.PlayPrevious(ctx))
	require.Equal(t, "Second", kitchen.MediaTitle())

	require.NoError(t, kitchen.PlayFavorite(ctx, "m1"))
	require.Equal(t, "Jazz", kitchen.SourceName())
	require.NoError(t, kitchen.PlayFavorite(ctx, "1"))
	require.Equal(t, "Pandora", kitchen.SourceName())
	require.ErrorIs(t, kitchen.PlayFavorite(ctx, "nope"), ErrUnknownMedia)

	require.Eventually(t, func() bool { return notified.Load() == 7 }, time.Second, 5*time.Millisecond)

	kitchen.Unsubscribe(id)
	require.NoError(t, kitchen.Stop(ctx))
	require.Equal(t, "stop", kitchen.PlayState())
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(7), notified.Load())
}

func TestRequestUpdateAdvancesPosition(t *testing.T) {
	c := newTestController(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	kitchen := newDevice(c, c.fleet.Players[0])

	now = now.Add(2500 * time.Millisecond)
	require.NoError(t, kitchen.RequestUpdate(context.Background()))
	require.Equal(t, 2500, kitchen.CurrentPosition())
	require.Equal(t, now, kitchen.PositionUpdatedAt())

	require.NoError(t, kitchen.Pause(context.Background()))
	now = now.Add(time.Minute)
	require.NoError(t, kitchen.RequestUpdate(context.Background()))
	require.Equal(t, 2500, kitchen.CurrentPosition())
}

func TestDiscoverAnnouncesDevice(t *testing.T) {
	c := newTestController(t)

	var announced []string
	c.OnNewDevice(func(device heos.Device, kind heos.DeviceKind) {
		announced = append(announced, string(kind)+":"+device.Name())
	})

	_, err := c.Discover(heos.KindPlayer, DeviceSpec{ID: 3, Name: "Patio"})
	require.NoError(t, err)
	_, err = c.Discover(heos.KindPlayer, DeviceSpec{ID: 3, Name: "Again"})
	require.ErrorIs(t, err, ErrDuplicateID)

	require.Equal(t, []string{"player:Patio"}, announced)
	require.Len(t, c.Players(), 3)
}

func TestClosedControllerRejectsCommands(t *testing.T) {
	c := newTestController(t)
	kitchen, _ := c.Device(heos.KindPlayer, 1)

	require.NoError(t, c.Close())
	require.ErrorIs(t, kitchen.Play(context.Background()), ErrClosed)
	_, err := c.Discover(heos.KindGroup, DeviceSpec{ID: 11})
	require.ErrorIs(t, err, ErrClosed)
}

func TestShippedFleetLoads(t *testing.T) {
	fleet, err := Load(filepath.Join("..", "..", "..", "assets", "fixtures", "heos-fleet.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, fleet.Players)
}

// End to end: the fixture controller behind heos.Setup and a running host.
func TestPlatformOverFixture(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	h, err := host.New(host.Options{Logger: logger})
	require.NoError(t, err)
	h.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Stop(ctx)
	})

	path := writeFleet(t, testFleet)
	var controller heos.Controller
	dial := func(ctx context.Context, opts heos.ConnectOptions) (heos.Controller, error) {
		var err error
		controller, err = Dialer(path)(ctx, opts)
		return controller, err
	}

	platform, err := heos.Setup(context.Background(), h, heos.PlatformConfig{}, dial, h.AddEntities,
		heos.SetupOptions{Logger: logger})
	require.NoError(t, err)
	require.Len(t, h.Entities(), 3)

	entity, ok := h.Entity("player-1")
	require.True(t, ok)
	player := entity.(*heos.MediaPlayer)
	require.NoError(t, player.SetVolumeLevel(context.Background(), 0.8))

	require.Eventually(t, func() bool {
		event, ok := h.State("player-1")
		if !ok {
			return false
		}
		snapshot, ok := event.State.(mediaplayer.Snapshot)
		return ok && snapshot.VolumeLevel == 0.8
	}, 2*time.Second, 10*time.Millisecond)

	_, err = controller.(*Controller).Discover(heos.KindPlayer, DeviceSpec{ID: 3, Name: "Patio"})
	require.NoError(t, err)
	_, ok = h.Entity("player-3")
	require.True(t, ok)
	require.Equal(t, 1, platform.Stats().Discovered)
}
