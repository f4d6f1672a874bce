package protocol

import (
	"errors"
	"testing"
	"time"
)

func testUploads() []UploadedFile {
	return []UploadedFile{
		{Hash: "Qm123456789", FileName: "cosmic_spark.mp3", MimeType: "audio/mpeg", FolderHash: "Qm987654321", Category: CategoryMusicPlaylist},
		{Hash: "Qm234567890", FileName: "cosmic_spark_cover.jpeg", MimeType: "image/jpeg", FolderHash: "Qm987654321", Category: CategoryMusicPlaylist},
		{Hash: "Qm345678901", FileName: "stellar_dance.mp3", MimeType: "audio/mpeg", FolderHash: "Qm987654321", Category: CategoryMusicPlaylist},
		{Hash: "Qm456789012", FileName: "stellar_dance_cover.jpeg", MimeType: "image/jpeg", FolderHash: "Qm987654321", Category: CategoryMusicPlaylist},
	}
}

func testPlaylistConfig() MusicPlaylistConfig {
	return MusicPlaylistConfig{
		Name:    "Galaxy",
		Creator: "Ben",
		FilesMetadata: map[string]TrackMetadata{
			"stellar_dance": {Artist: "Star Light", Title: "Stellar Dance"},
			"cosmic_spark":  {Artist: "Gravity Pulse", Album: "Suno", Title: "Cosmic Spark", Category: "Electro pop"},
		},
		FileNames: map[string]TrackFiles{
			"cosmic_spark":  {AudioFileName: "cosmic_spark.mp3", CoverArtFileName: "cosmic_spark_cover.jpeg"},
			"stellar_dance": {AudioFileName: "stellar_dance.mp3", CoverArtFileName: "stellar_dance_cover.jpeg"},
		},
		DefaultMetadata: &DefaultMetadata{Album: "Default Album", Category: "Electronic"},
	}
}

func TestBuildMusicPlaylistManifest(t *testing.T) {
	now := time.Date(2024, 1, 18, 12, 0, 0, 0, time.UTC)
	m, err := BuildMusicPlaylistManifest(testPlaylistConfig(), testUploads(), "", now)
	if err != nil {
		t.Fatalf("BuildMusicPlaylistManifest: %v", err)
	}

	ds := m.DataStream
	if ds.Category != "musicplaylist" || ds.Name != "Galaxy" || ds.Creator != "Ben" {
		t.Fatalf("data_stream=%+v", ds)
	}
	if ds.CreatedOn != "2024-01-18" || ds.LastModifiedOn != "2024-01-18" {
		t.Fatalf("dates=%q/%q", ds.CreatedOn, ds.LastModifiedOn)
	}
	if ds.MarshalManifest.TotalItems != 2 || !ds.MarshalManifest.NestedStream {
		t.Fatalf("marshalManifest=%+v", ds.MarshalManifest)
	}

	if len(m.Data) != 2 {
		t.Fatalf("tracks=%d", len(m.Data))
	}
	first := m.Data[0]
	want := MusicTrack{
		Idx:         1,
		Date:        "2024-01-18T12:00:00Z",
		Category:    "Electro pop",
		Artist:      "Gravity Pulse",
		Album:       "Suno",
		Src:         "https://gateway.lighthouse.storage/ipfs/Qm123456789",
		CoverArtURL: "https://gateway.lighthouse.storage/ipfs/Qm234567890",
		Title:       "Cosmic Spark",
	}
	if first != want {
		t.Fatalf("track[0]=%+v\nwant     %+v", first, want)
	}

	second := m.Data[1]
	if second.Idx != 2 || second.Album != "Default Album" || second.Category != "Electronic" {
		t.Fatalf("track[1] defaults not applied: %+v", second)
	}
}

func TestBuildMusicPlaylistManifest_UnknownDefaults(t *testing.T) {
	cfg := testPlaylistConfig()
	cfg.DefaultMetadata = nil
	m, err := BuildMusicPlaylistManifest(cfg, testUploads(), "https://ipfs.example/ipfs", time.Now())
	if err != nil {
		t.Fatalf("BuildMusicPlaylistManifest: %v", err)
	}
	if m.Data[1].Album != "Unknown" || m.Data[1].Category != "Unknown" {
		t.Fatalf("track[1]=%+v", m.Data[1])
	}
	if m.Data[1].Src != "https://ipfs.example/ipfs/Qm345678901" {
		t.Fatalf("src=%q", m.Data[1].Src)
	}
}

func TestBuildMusicPlaylistManifest_MissingFiles(t *testing.T) {
	uploads := testUploads()

	noCover := append([]UploadedFile{}, uploads[0], uploads[2], uploads[3])
	if _, err := BuildMusicPlaylistManifest(testPlaylistConfig(), noCover, "", time.Now()); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing cover: want ErrValidation, got %v", err)
	}

	noAudio := uploads[1:]
	if _, err := BuildMusicPlaylistManifest(testPlaylistConfig(), noAudio, "", time.Now()); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing audio: want ErrValidation, got %v", err)
	}

	cfg := testPlaylistConfig()
	delete(cfg.FileNames, "cosmic_spark")
	if _, err := BuildMusicPlaylistManifest(cfg, uploads, "", time.Now()); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing file names: want ErrValidation, got %v", err)
	}
}
