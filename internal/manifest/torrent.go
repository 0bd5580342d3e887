// Package manifest extracts file lists from bencoded .torrent payloads.
package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/bencode"
)

var (
	ErrInvalidTorrent = errors.New("invalid torrent file")
	ErrEmptyContent   = errors.New("empty torrent content")
)

type torrentFile struct {
	Info torrentInfo `bencode:"info"`
}

type torrentInfo struct {
	Name  string       `bencode:"name"`
	Files []fileRecord `bencode:"files"`
}

type fileRecord struct {
	Path []string `bencode:"path"`
}

// ParseTorrent decodes a .torrent payload and returns the file paths it
// contains. Multi-file torrents yield slash-joined paths; single-file
// torrents yield the info name.
func ParseTorrent(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, ErrEmptyContent
	}

	// Torrent files are bencoded dictionaries.
	if data[0] != 'd' {
		return nil, fmt.Errorf("%w: not a bencoded dictionary", ErrInvalidTorrent)
	}

	var torrent torrentFile
	if err := bencode.DecodeBytes(data, &torrent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTorrent, err)
	}

	if torrent.Info.Name == "" && len(torrent.Info.Files) == 0 {
		return nil, fmt.Errorf("%w: missing info dictionary", ErrInvalidTorrent)
	}

	// Single-file torrent: the info name is the file name.
	if len(torrent.Info.Files) == 0 {
		return []string{torrent.Info.Name}, nil
	}

	files := make([]string, 0, len(torrent.Info.Files))
	for _, f := range torrent.Info.Files {
		if len(f.Path) == 0 {
			continue
		}
		files = append(files, strings.Join(f.Path, "/"))
	}

	return files, nil
}
