// utils/file.go
package utils

import (
	"context"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore saves uploads under a directory served at PublicPrefix.
type LocalStore struct {
	Dir          string
	PublicPrefix string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir, PublicPrefix: "/uploads"}
}

// EnsureDir creates the uploads directory if it doesn't exist
func (s *LocalStore) EnsureDir() error {
	return os.MkdirAll(s.Dir, os.ModePerm)
}

// Save copies the uploaded file to Dir/key and returns its public path.
func (s *LocalStore) Save(_ context.Context, fileHeader *multipart.FileHeader, key string) (string, error) {
	destPath := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := SaveFile(fileHeader, destPath); err != nil {
		return "", err
	}
	return strings.TrimRight(s.PublicPrefix, "/") + "/" + strings.TrimLeft(key, "/"), nil
}

// SaveFile saves the uploaded file to the given destination path
func SaveFile(fileHeader *multipart.FileHeader, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, file)
	return err
}
