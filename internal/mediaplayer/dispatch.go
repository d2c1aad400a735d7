package mediaplayer

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// VolumeStep is the default step for volume_up and volume_down.
const VolumeStep = 0.1

var (
	ErrUnknownCommand     = errors.New("unknown command")
	ErrUnsupportedCommand = errors.New("command not supported by entity")
	ErrInvalidArgument    = errors.New("invalid command argument")

	// ErrSourceNotFound is returned by SelectSource for names the player does not know.
	ErrSourceNotFound = errors.New("source not found")
)

// Command names a media-player service call.
type Command string

const (
	CommandPlay          Command = "media_play"
	CommandPause         Command = "media_pause"
	CommandStop          Command = "media_stop"
	CommandNextTrack     Command = "media_next_track"
	CommandPreviousTrack Command = "media_previous_track"
	CommandPlayPause     Command = "media_play_pause"
	CommandSeek          Command = "media_seek"
	CommandVolumeSet     Command = "volume_set"
	CommandVolumeMute    Command = "volume_mute"
	CommandVolumeUp      Command = "volume_up"
	CommandVolumeDown    Command = "volume_down"
	CommandSelectSource  Command = "select_source"
)

// commandFeatures lists commands in display order with the features each needs.
var commandFeatures = []struct {
	command  Command
	required Feature
}{
	{CommandPlay, FeaturePlay},
	{CommandPause, FeaturePause},
	{CommandPlayPause, FeaturePlay | FeaturePause},
	{CommandStop, FeatureStop},
	{CommandNextTrack, FeatureNextTrack},
	{CommandPreviousTrack, FeaturePreviousTrack},
	{CommandSeek, FeatureSeek},
	{CommandVolumeSet, FeatureVolumeSet},
	{CommandVolumeMute, FeatureVolumeMute},
	{CommandVolumeUp, FeatureVolumeStep},
	{CommandVolumeDown, FeatureVolumeStep},
	{CommandSelectSource, FeatureSelectSource},
}

// Args carries the optional parameters of a command.
type Args struct {
	VolumeLevel   *float64 `json:"volume_level,omitempty"`
	IsVolumeMuted *bool    `json:"is_volume_muted,omitempty"`
	Source        string   `json:"source,omitempty"`
	Position      *float64 `json:"position,omitempty"`
}

// ParseCommand validates a command name.
func ParseCommand(name string) (Command, error) {
	for _, entry := range commandFeatures {
		if string(entry.command) == name {
			return entry.command, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

// RequiredFeature returns the feature bits a command needs.
func (c Command) RequiredFeature() Feature {
	for _, entry := range commandFeatures {
		if entry.command == c {
			return entry.required
		}
	}
	return 0
}

// SupportedCommands lists the commands allowed by a feature mask.
func SupportedCommands(features Feature) []Command {
	commands := make([]Command, 0, len(commandFeatures))
	for _, entry := range commandFeatures {
		if features.Has(entry.required) {
			commands = append(commands, entry.command)
		}
	}
	return commands
}

// Dispatch validates cmd against the player's features and args, then
// invokes the matching player method. Player errors are returned unchanged.
func Dispatch(ctx context.Context, p Player, cmd Command, args Args) error {
	required := cmd.RequiredFeature()
	if required == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	if !p.SupportedFeatures().Has(required) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedCommand, cmd, p.EntityID())
	}

	switch cmd {
	case CommandPlay:
		return p.Play(ctx)
	case CommandPause:
		return p.Pause(ctx)
	case CommandPlayPause:
		return p.PlayPause(ctx)
	case CommandStop:
		return p.Stop(ctx)
	case CommandNextTrack:
		return p.NextTrack(ctx)
	case CommandPreviousTrack:
		return p.PreviousTrack(ctx)
	case CommandSeek:
		if args.Position == nil || *args.Position < 0 || math.IsNaN(*args.Position) {
			return fmt.Errorf("%w: position must be a non-negative number of seconds", ErrInvalidArgument)
		}
		return p.Seek(ctx, *args.Position)
	case CommandVolumeSet:
		if args.VolumeLevel == nil || !validVolume(*args.VolumeLevel) {
			return fmt.Errorf("%w: volume_level must be between 0 and 1", ErrInvalidArgument)
		}
		return p.SetVolumeLevel(ctx, *args.VolumeLevel)
	case CommandVolumeMute:
		if args.IsVolumeMuted == nil {
			return fmt.Errorf("%w: is_volume_muted is required", ErrInvalidArgument)
		}
		return p.MuteVolume(ctx, *args.IsVolumeMuted)
	case CommandVolumeUp:
		if stepper, ok := p.(VolumeStepper); ok {
			return stepper.VolumeUp(ctx)
		}
		return p.SetVolumeLevel(ctx, clampVolume(p.VolumeLevel()+VolumeStep))
	case CommandVolumeDown:
		if stepper, ok := p.(VolumeStepper); ok {
			return stepper.VolumeDown(ctx)
		}
		return p.SetVolumeLevel(ctx, clampVolume(p.VolumeLevel()-VolumeStep))
	case CommandSelectSource:
		if args.Source == "" {
			return fmt.Errorf("%w: source is required", ErrInvalidArgument)
		}
		return p.SelectSource(ctx, args.Source)
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
}

func validVolume(level float64) bool {
	return !math.IsNaN(level) && level >= 0 && level <= 1
}

func clampVolume(level float64) float64 {
	return math.Round(math.Min(1, math.Max(0, level))*100) / 100
}
