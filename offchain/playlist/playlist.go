// Package playlist turns a local music folder into a playlist config and the
// files to upload for it.
//
// Layout:
//
//	<folder>/info.json   [{"<trackKey>": {"metadata": {...}}}, ...]
//	<folder>/audio/*     audio files, matched to tracks by key substring
//	<folder>/images/*    cover art, matched the same way
package playlist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/Abdullah1738/itheum-agent/offchain/storage"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

const (
	DefaultMaxCoverEdge = 1024

	audioContentType = "audio/mpeg"
	imageContentType = "image/jpeg"
)

type Options struct {
	// MaxCoverEdge bounds the longest side of cover art; 0 means
	// DefaultMaxCoverEdge, negative disables resizing.
	MaxCoverEdge int
	Log          *slog.Logger
}

type Playlist struct {
	Config protocol.MusicPlaylistConfig
	Audio  []storage.File
	Images []storage.File
}

// Files lists audio then images, the order the upload expects.
func (p Playlist) Files() []storage.File {
	out := make([]storage.File, 0, len(p.Audio)+len(p.Images))
	out = append(out, p.Audio...)
	return append(out, p.Images...)
}

type infoEntry map[string]struct {
	Metadata protocol.TrackMetadata `json:"metadata"`
}

func Build(folder, name, creator string, opts Options) (Playlist, error) {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxEdge := opts.MaxCoverEdge
	if maxEdge == 0 {
		maxEdge = DefaultMaxCoverEdge
	}

	base, err := filepath.Abs(folder)
	if err != nil {
		return Playlist{}, err
	}
	raw, err := os.ReadFile(filepath.Join(base, "info.json"))
	if err != nil {
		return Playlist{}, fmt.Errorf("read info.json: %w", err)
	}
	var entries []infoEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return Playlist{}, fmt.Errorf("%w: info.json: %w", protocol.ErrValidation, err)
	}

	audio, err := readDir(filepath.Join(base, "audio"), audioContentType, log)
	if err != nil {
		return Playlist{}, err
	}
	images, err := readDir(filepath.Join(base, "images"), imageContentType, log)
	if err != nil {
		return Playlist{}, err
	}
	if maxEdge > 0 {
		for i := range images {
			images[i] = fitCover(images[i], maxEdge, log)
		}
	}

	cfg := protocol.MusicPlaylistConfig{
		Name:          name,
		Creator:       creator,
		FilesMetadata: map[string]protocol.TrackMetadata{},
		FileNames:     map[string]protocol.TrackFiles{},
	}
	for _, entry := range entries {
		for key, track := range entry {
			cfg.FilesMetadata[key] = track.Metadata
			cfg.FileNames[key] = protocol.TrackFiles{
				AudioFileName:    matchName(audio, key),
				CoverArtFileName: matchName(images, key),
			}
		}
	}
	return Playlist{Config: cfg, Audio: audio, Images: images}, nil
}

// readDir loads the regular files of dir sorted by name. A missing dir is
// logged and yields no files.
func readDir(dir, contentType string, log *slog.Logger) ([]storage.File, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("playlist directory missing", "dir", dir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []storage.File
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		out = append(out, storage.File{Name: e.Name(), ContentType: contentType, Data: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func matchName(files []storage.File, key string) string {
	for _, f := range files {
		if strings.Contains(f.Name, key) {
			return f.Name
		}
	}
	return ""
}

// fitCover shrinks f to fit within maxEdge, re-encoding in the format its
// name implies. Anything that cannot be decoded or re-encoded is returned
// unchanged.
func fitCover(f storage.File, maxEdge int, log *slog.Logger) storage.File {
	format, err := imaging.FormatFromFilename(f.Name)
	if err != nil {
		return f
	}
	img, err := imaging.Decode(bytes.NewReader(f.Data))
	if err != nil {
		log.Warn("cover art not decodable, uploading as is", "file", f.Name, "err", err)
		return f
	}
	if !exceeds(img.Bounds(), maxEdge) {
		return f
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos), format); err != nil {
		log.Warn("cover art re-encode failed, uploading as is", "file", f.Name, "err", err)
		return f
	}
	log.Debug("cover art resized", "file", f.Name, "from", img.Bounds().Size().String(), "max_edge", maxEdge)
	f.Data = buf.Bytes()
	return f
}

func exceeds(b image.Rectangle, maxEdge int) bool {
	return b.Dx() > maxEdge || b.Dy() > maxEdge
}
