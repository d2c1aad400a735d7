package mediaplayer

import "time"

// Snapshot is the rendered state of a player, as sent to clients.
type Snapshot struct {
	Object                 string     `json:"object"`
	EntityID               string     `json:"entity_id"`
	Name                   string     `json:"name"`
	State                  State      `json:"state"`
	Available              bool       `json:"available"`
	VolumeLevel            float64    `json:"volume_level"`
	IsVolumeMuted          bool       `json:"is_volume_muted"`
	MediaContentID         string     `json:"media_content_id,omitempty"`
	MediaContentType       string     `json:"media_content_type"`
	MediaTitle             string     `json:"media_title,omitempty"`
	MediaArtist            string     `json:"media_artist,omitempty"`
	MediaAlbumName         string     `json:"media_album_name,omitempty"`
	MediaImageURL          string     `json:"media_image_url,omitempty"`
	MediaDuration          float64    `json:"media_duration"`
	MediaPosition          float64    `json:"media_position"`
	MediaPositionUpdatedAt *time.Time `json:"media_position_updated_at,omitempty"`
	Source                 string     `json:"source,omitempty"`
	SourceList             []string   `json:"source_list"`
	SupportedFeatures      Feature    `json:"supported_features"`
	SupportedCommands      []Command  `json:"supported_commands"`
}

// SnapshotOf reads every property of p once.
func SnapshotOf(p Player) Snapshot {
	features := p.SupportedFeatures()
	snapshot := Snapshot{
		Object:            "media_player",
		EntityID:          p.EntityID(),
		Name:              p.Name(),
		State:             p.State(),
		Available:         p.Available(),
		VolumeLevel:       p.VolumeLevel(),
		IsVolumeMuted:     p.IsVolumeMuted(),
		MediaContentID:    p.MediaContentID(),
		MediaContentType:  p.MediaContentType(),
		MediaTitle:        p.MediaTitle(),
		MediaArtist:       p.MediaArtist(),
		MediaAlbumName:    p.MediaAlbumName(),
		MediaImageURL:     p.MediaImageURL(),
		MediaDuration:     p.MediaDuration(),
		MediaPosition:     p.MediaPosition(),
		Source:            p.Source(),
		SourceList:        p.SourceList(),
		SupportedFeatures: features,
		SupportedCommands: SupportedCommands(features),
	}
	if updated := p.MediaPositionUpdatedAt(); !updated.IsZero() {
		utc := updated.UTC()
		snapshot.MediaPositionUpdatedAt = &utc
	}
	if snapshot.SourceList == nil {
		snapshot.SourceList = []string{}
	}
	return snapshot
}
