// Package inbox keeps the files received from peers until the user saves them.
package inbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rudransh-shrivastava/peer-drop/internal/protocol"
)

var ErrNotFound = errors.New("file not found in inbox")

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Save records a decoded file from remoteID.
func (s *Store) Save(ctx context.Context, remoteID string, f *protocol.FilePayload) (*ReceivedFile, error) {
	if f == nil {
		return nil, protocol.ErrEmptyFileSelection
	}

	hash, err := protocol.HashFile(bytes.NewReader(f.Data))
	if err != nil {
		return nil, err
	}

	rf := &ReceivedFile{
		RemoteID:   remoteID,
		Name:       f.Name,
		MimeType:   protocol.DetectMimeType(f.Name, f.MimeType, f.Data),
		Size:       int64(len(f.Data)),
		Hash:       hash,
		Data:       f.Data,
		ReceivedAt: s.now().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(rf).Error; err != nil {
		return nil, fmt.Errorf("saving %s: %w", f.Name, err)
	}
	return rf, nil
}

// List returns metadata of every received file, oldest first. Data is not
// loaded.
func (s *Store) List(ctx context.Context) ([]ReceivedFile, error) {
	var files []ReceivedFile
	err := s.db.WithContext(ctx).
		Select("id", "remote_id", "name", "mime_type", "size", "hash", "received_at").
		Order("id").
		Find(&files).Error
	return files, err
}

func (s *Store) Get(ctx context.Context, id uint) (*ReceivedFile, error) {
	var rf ReceivedFile
	err := s.db.WithContext(ctx).First(&rf, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &rf, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ReceivedFile{}).Count(&n).Error
	return n, err
}

func (s *Store) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&ReceivedFile{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// Export writes file id into dir and returns its path. An existing file is
// never overwritten; a numbered name is picked instead.
func (s *Store) Export(ctx context.Context, id uint, dir string) (string, error) {
	rf, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := safeName(rf.Name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
		path := filepath.Join(dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}

		if _, err := f.Write(rf.Data); err != nil {
			_ = f.Close()
			return "", err
		}
		return path, f.Close()
	}
}

func safeName(name string) string {
	name = protocol.ExtractFileName(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}
