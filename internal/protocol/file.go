package protocol

import (
	"crypto/sha256"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// FileHandle is a file picked by the user but not read yet.
type FileHandle struct {
	Name     string
	MimeType string
	Size     int64
	Content  io.Reader
}

// OpenFile prepares a handle for path. The caller closes the returned file.
func OpenFile(path string) (*FileHandle, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s is a directory", path)
	}

	name := ExtractFileName(path)
	return &FileHandle{
		Name:     name,
		MimeType: mime.TypeByExtension(strings.ToLower(filepath.Ext(name))),
		Size:     info.Size(),
		Content:  f,
	}, f, nil
}

// EncodeFile reads the whole file into a FILE envelope.
func EncodeFile(fh *FileHandle) (Envelope, error) {
	if fh == nil || fh.Content == nil {
		return Envelope{}, ErrEmptyFileSelection
	}

	data, err := io.ReadAll(fh.Content)
	if err != nil {
		return Envelope{}, fmt.Errorf("reading %s: %w", fh.Name, err)
	}

	name := fh.Name
	if name == "" {
		name = "file"
	}
	return FileEnvelope(name, DetectMimeType(name, fh.MimeType, data), data), nil
}

// DetectMimeType prefers the declared type, then the extension, then the
// content itself.
func DetectMimeType(name, declared string, data []byte) string {
	if declared != "" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return DefaultMimeType
}

func HashFile(r io.Reader) (string, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// ExtractFileName returns the last path element, accepting both separators
// since names can come from a browser peer.
func ExtractFileName(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}
