// Package saved manages durable archive snapshots of live backend
// projects: export/save, restore/import, download, and deletion.
package saved

import (
	"errors"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when a saved project does not exist for the
// requesting owner.
var ErrNotFound = errors.New("saved project not found")

// Project is the metadata row for one durable archive snapshot.
type Project struct {
	ID             string    `json:"id"`
	UserID         string    `json:"-"`
	Name           string    `json:"name"`
	ArchivePath    string    `json:"archivePath"`
	ThumbnailPath  *string   `json:"thumbnailPath"`
	RefineVersion  *string   `json:"openrefineVersion"`
	SourceFilename *string   `json:"sourceFilename"`
	SizeBytes      int64     `json:"sizeBytes"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	unsafePattern     = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// SanitizeFileComponent reduces a display name to a safe filename stem.
func SanitizeFileComponent(value string) string {
	compact := whitespacePattern.ReplaceAllString(strings.TrimSpace(value), "-")
	sanitized := unsafePattern.ReplaceAllString(compact, "")
	if sanitized == "" {
		return "project"
	}
	return sanitized
}

const nameRandAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateProjectName builds a backend project name unique enough to be
// found again by the by-name metadata lookup.
func GenerateProjectName(userID string) string {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteByte(nameRandAlphabet[rand.Intn(len(nameRandAlphabet))])
	}
	return userID + "_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + b.String()
}
