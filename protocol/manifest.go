package protocol

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ManifestTypeMusicPlaylist = string(CategoryMusicPlaylist)

	DefaultIPFSGateway = "https://gateway.lighthouse.storage/ipfs/"

	unknownField = "Unknown"
)

type MarshalManifest struct {
	TotalItems   int  `json:"totalItems"`
	NestedStream bool `json:"nestedStream"`
}

type DataStream struct {
	Category        string          `json:"category"`
	Name            string          `json:"name"`
	Creator         string          `json:"creator"`
	CreatedOn       string          `json:"created_on"`
	LastModifiedOn  string          `json:"last_modified_on"`
	MarshalManifest MarshalManifest `json:"marshalManifest"`
}

type MusicTrack struct {
	Idx         int    `json:"idx"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	Src         string `json:"src"`
	CoverArtURL string `json:"cover_art_url"`
	Title       string `json:"title"`
}

type MusicPlaylistManifest struct {
	DataStream DataStream   `json:"data_stream"`
	Data       []MusicTrack `json:"data"`
}

type TrackMetadata struct {
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

type TrackFiles struct {
	AudioFileName    string `json:"audioFileName"`
	CoverArtFileName string `json:"coverArtFileName"`
}

type DefaultMetadata struct {
	Album    string `json:"album"`
	Category string `json:"category"`
}

// MusicPlaylistConfig describes a playlist before its files are uploaded.
// FilesMetadata and FileNames share the same track keys.
type MusicPlaylistConfig struct {
	Name            string                   `json:"name"`
	Creator         string                   `json:"creator"`
	FilesMetadata   map[string]TrackMetadata `json:"filesMetadata"`
	FileNames       map[string]TrackFiles    `json:"fileNames"`
	DefaultMetadata *DefaultMetadata         `json:"defaultMetadata,omitempty"`
}

// BuildMusicPlaylistManifest links uploaded files to the playlist tracks.
// Tracks are emitted in sorted key order; every track must have both its
// audio and cover art among uploaded.
func BuildMusicPlaylistManifest(cfg MusicPlaylistConfig, uploaded []UploadedFile, gateway string, now time.Time) (MusicPlaylistManifest, error) {
	if strings.TrimSpace(cfg.Name) == "" || strings.TrimSpace(cfg.Creator) == "" {
		return MusicPlaylistManifest{}, fmt.Errorf("%w: playlist name and creator required", ErrValidation)
	}
	if gateway == "" {
		gateway = DefaultIPFSGateway
	}
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}

	byName := make(map[string]UploadedFile, len(uploaded))
	for _, f := range uploaded {
		byName[f.FileName] = f
	}

	keys := make([]string, 0, len(cfg.FilesMetadata))
	for k := range cfg.FilesMetadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now = now.UTC()
	stamp := now.Format(time.RFC3339Nano)
	date := now.Format(time.DateOnly)

	tracks := make([]MusicTrack, 0, len(keys))
	for i, key := range keys {
		meta := cfg.FilesMetadata[key]
		names, ok := cfg.FileNames[key]
		if !ok {
			return MusicPlaylistManifest{}, fmt.Errorf("%w: file names not found for key %q", ErrValidation, key)
		}
		audio, ok := byName[names.AudioFileName]
		if !ok {
			return MusicPlaylistManifest{}, fmt.Errorf("%w: audio file not found: %s", ErrValidation, names.AudioFileName)
		}
		cover, ok := byName[names.CoverArtFileName]
		if !ok {
			return MusicPlaylistManifest{}, fmt.Errorf("%w: cover art file not found: %s", ErrValidation, names.CoverArtFileName)
		}

		tracks = append(tracks, MusicTrack{
			Idx:         i + 1,
			Date:        stamp,
			Category:    firstNonEmpty(meta.Category, cfg.defaultCategory()),
			Artist:      meta.Artist,
			Album:       firstNonEmpty(meta.Album, cfg.defaultAlbum()),
			Src:         gateway + audio.Hash,
			CoverArtURL: gateway + cover.Hash,
			Title:       meta.Title,
		})
	}

	return MusicPlaylistManifest{
		DataStream: DataStream{
			Category:       ManifestTypeMusicPlaylist,
			Name:           cfg.Name,
			Creator:        cfg.Creator,
			CreatedOn:      date,
			LastModifiedOn: date,
			MarshalManifest: MarshalManifest{
				TotalItems:   len(tracks),
				NestedStream: true,
			},
		},
		Data: tracks,
	}, nil
}

func (c MusicPlaylistConfig) defaultCategory() string {
	if c.DefaultMetadata == nil {
		return ""
	}
	return c.DefaultMetadata.Category
}

func (c MusicPlaylistConfig) defaultAlbum() string {
	if c.DefaultMetadata == nil {
		return ""
	}
	return c.DefaultMetadata.Album
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return unknownField
}
