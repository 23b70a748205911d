// Package storage keeps wave attachments on the local filesystem under
// <root>/<folder>/<number>/.
package storage

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrExtension rejects files whose extension is not allowed.
	ErrExtension = errors.New("storage: file extension not allowed")
	// ErrTooLarge rejects files above the size limit.
	ErrTooLarge = errors.New("storage: file too large")
	// ErrInvalidName rejects names that would escape the wave folder.
	ErrInvalidName = errors.New("storage: invalid name")
)

// Document describes a stored file.
type Document struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_at"`
}

// Store is a filesystem document store.
type Store struct {
	root    string
	maxSize int64
	allowed map[string]struct{}
}

// New prepares root and returns a Store. Extensions are matched case-insensitively.
func New(root string, maxSize int64, allowedExts []string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: root must be provided")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: prepare root: %w", err)
	}
	allowed := make(map[string]struct{}, len(allowedExts))
	for _, ext := range allowedExts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return &Store{root: root, maxSize: maxSize, allowed: allowed}, nil
}

// Check validates name and size before anything is written.
func (s *Store) Check(name string, size int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := s.allowed[ext]; !ok {
		return fmt.Errorf("%w: %s", ErrExtension, name)
	}
	if s.maxSize > 0 && size > s.maxSize {
		return fmt.Errorf("%w: %s (max %.1f MB)", ErrTooLarge, name, float64(s.maxSize)/(1024*1024))
	}
	return nil
}

// Save writes r as folder/number/name and returns the stored path.
func (s *Store) Save(folder, number, name string, r io.Reader) (string, error) {
	dir, err := s.dir(folder, number)
	if err != nil {
		return "", err
	}
	base, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if err := s.Check(base, 0); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, base)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxSize > 0 && n > s.maxSize {
		err = fmt.Errorf("%w: %s", ErrTooLarge, base)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// List returns the files stored for a wave ordered by name.
func (s *Store) List(folder, number string) ([]Document, error) {
	dir, err := s.dir(folder, number)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{Name: entry.Name(), Size: info.Size(), ModTime: info.ModTime().UTC()})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// Archive streams every file of a wave into a zip archive. A wave without
// documents yields an empty archive.
func (s *Store) Archive(w io.Writer, folder, number string) error {
	docs, err := s.List(folder, number)
	if err != nil {
		return err
	}
	dir, _ := s.dir(folder, number)
	zw := zip.NewWriter(w)
	for _, doc := range docs {
		if err := addFile(zw, filepath.Join(dir, doc.Name), doc); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, path string, doc Document) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := zw.CreateHeader(&zip.FileHeader{Name: doc.Name, Method: zip.Deflate, Modified: doc.ModTime})
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// Remove deletes the folder of a wave. A missing folder is not an error.
func (s *Store) Remove(folder, number string) error {
	dir, err := s.dir(folder, number)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (s *Store) dir(folder, number string) (string, error) {
	f, err := cleanName(folder)
	if err != nil {
		return "", err
	}
	n, err := cleanName(number)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, f, n), nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}
