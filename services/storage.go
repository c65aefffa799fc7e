package services

import (
	"context"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore persists an uploaded file under key and returns its public URL.
// utils.R2Store and utils.LocalStore both satisfy it.
type FileStore interface {
	Save(ctx context.Context, fileHeader *multipart.FileHeader, key string) (string, error)
}

// uploadKey builds "<prefix>/<ownerID>/<uuid><ext>" so two uploads of the
// same file name never collide.
func uploadKey(prefix, ownerID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(prefix, ownerID, uuid.NewString()+ext)
}
