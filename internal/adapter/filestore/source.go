package filestore

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/weather-mail-etl/internal/domain"
)

// DirSource serves the regular files of a directory as a single message, so
// attachments saved by hand can be converted without a mailbox.
type DirSource struct {
	dir string
}

// NewDirSource creates a DirSource over dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// FetchMessages returns one message holding every file in the directory,
// ordered by name. The message date is the newest file modification time.
func (d *DirSource) FetchMessages(ctx context.Context) ([]domain.Message, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, &domain.IOError{Op: "read dir", Path: d.dir, Err: err}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	msg := domain.Message{From: "file://" + d.dir, Subject: filepath.Base(d.dir)}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, &domain.IOError{Op: "stat", Path: e.Name(), Err: err}
		}
		path := filepath.Join(d.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &domain.IOError{Op: "read", Path: path, Err: err}
		}
		if info.ModTime().After(msg.Date) {
			msg.Date = info.ModTime()
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{FileName: e.Name(), Payload: data})
	}
	if len(msg.Attachments) == 0 {
		return nil, nil
	}
	return []domain.Message{msg}, nil
}
