package hls

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"github.com/jmylchreest/ffhls/internal/storage"
)

// Variant describes one rendition of a master playlist.
type Variant struct {
	URI        string   `json:"uri" yaml:"uri"`
	Bandwidth  int      `json:"bandwidth" yaml:"bandwidth"`
	Resolution string   `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	Codecs     []string `json:"codecs,omitempty" yaml:"codecs,omitempty"`
	FrameRate  float64  `json:"frame_rate,omitempty" yaml:"frame_rate,omitempty"`

	Segments       int           `json:"segments" yaml:"segments"`
	TargetDuration int           `json:"target_duration" yaml:"target_duration"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
	Encrypted      bool          `json:"encrypted" yaml:"encrypted"`
	Keys           []string      `json:"keys,omitempty" yaml:"keys,omitempty"`
	EndList        bool          `json:"end_list" yaml:"end_list"`
}

// Inspection is the parsed structure of an exported rendition set.
type Inspection struct {
	Path     string    `json:"path" yaml:"path"`
	EndList  bool      `json:"end_list" yaml:"end_list"`
	Variants []Variant `json:"variants" yaml:"variants"`
}

// Inspect parses the master playlist at p and every rendition playlist it references.
func Inspect(ctx context.Context, disk storage.Disk, p string) (*Inspection, error) {
	data, err := disk.Get(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("reading master playlist: %w", err)
	}

	// #EXT-X-ENDLIST is a media playlist tag; the parser rejects it in a master.
	text, endList := stripEndList(string(data))
	mv, err := unmarshalMultivariant([]byte(withVersion(text)))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", p, err)
	}

	result := &Inspection{Path: p, EndList: endList}
	for _, v := range mv.Variants {
		if v == nil {
			continue
		}
		variant := Variant{
			URI:        v.URI,
			Bandwidth:  v.Bandwidth,
			Resolution: v.Resolution,
			Codecs:     v.Codecs,
		}
		if v.FrameRate != nil {
			variant.FrameRate = *v.FrameRate
		}

		mediaPath := path.Join(path.Dir(p), v.URI)
		mediaData, err := disk.Get(ctx, mediaPath)
		if err != nil {
			return nil, fmt.Errorf("reading playlist %s: %w", v.URI, err)
		}
		media, err := unmarshalMedia(mediaData)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", v.URI, err)
		}
		describeMedia(&variant, media)

		result.Variants = append(result.Variants, variant)
	}
	return result, nil
}

func describeMedia(v *Variant, media *playlist.Media) {
	v.TargetDuration = media.TargetDuration
	v.EndList = media.Endlist

	seen := make(map[string]bool)
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		v.Segments++
		v.Duration += seg.Duration
		if seg.Key != nil && seg.Key.URI != "" {
			v.Encrypted = true
			if !seen[seg.Key.URI] {
				seen[seg.Key.URI] = true
				v.Keys = append(v.Keys, seg.Key.URI)
			}
		}
	}
}

func stripEndList(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	found := false
	for _, line := range lines {
		if strings.TrimSpace(line) == tagEndList {
			found = true
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n"), found
}

// withVersion adds #EXT-X-VERSION:3 to playlists that carry no version tag.
func withVersion(text string) string {
	if strings.Contains(text, "#EXT-X-VERSION:") {
		return text
	}
	header, rest, _ := strings.Cut(text, "\n")
	return header + "\n#EXT-X-VERSION:3\n" + rest
}

func unmarshalMultivariant(data []byte) (*playlist.Multivariant, error) {
	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	mv, ok := pl.(*playlist.Multivariant)
	if !ok {
		return nil, fmt.Errorf("expected multivariant playlist, got media")
	}
	return mv, nil
}

func unmarshalMedia(data []byte) (*playlist.Media, error) {
	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	media, ok := pl.(*playlist.Media)
	if !ok {
		return nil, fmt.Errorf("expected media playlist, got multivariant")
	}
	return media, nil
}
