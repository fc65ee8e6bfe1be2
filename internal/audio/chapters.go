package audio

import (
	"fmt"
	"strings"
	"time"

	"github.com/simonhull/audiometa"
)

// Marker is a chapter marker placed at a time offset derived from the
// cumulative duration of prior chunks.
type Marker struct {
	Title string
	Start time.Duration
	End   time.Duration
}

// WriteTags writes title/author tags and chapter markers into a finished
// mp3/m4a/m4b container. WAV output carries no metadata and is skipped.
func WriteTags(path, format, title, author string, markers []Marker) error {
	switch strings.ToLower(format) {
	case FormatMP3, FormatM4A, FormatM4B:
	default:
		return nil
	}

	f, err := audiometa.Open(path)
	if err != nil {
		return fmt.Errorf("open output for tagging: %w", err)
	}
	defer f.Close()

	if title != "" {
		f.Tags.Title = title
		f.Tags.Album = title
	}
	if author != "" {
		f.Tags.Artist = author
		f.Tags.AlbumArtist = author
	}

	if len(markers) > 0 {
		chapters := make([]audiometa.Chapter, len(markers))
		for i, m := range markers {
			chapters[i] = audiometa.Chapter{
				Index:     i,
				Title:     m.Title,
				StartTime: m.Start,
				EndTime:   m.End,
			}
		}
		f.Chapters = chapters
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("save tags: %w", err)
	}
	return nil
}
