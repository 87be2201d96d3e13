// Package storage manages the per-project directory tree and atomic text
// writes described in the storage/layout component. The filesystem is
// secondary to the database: every path here is derivable from a project id
// and an index, never itself a source of truth.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Layout resolves canonical paths under a single projects root.
type Layout struct {
	root string
}

// New returns a Layout rooted at projectsRoot, creating it if absent.
func New(projectsRoot string) (*Layout, error) {
	if err := os.MkdirAll(projectsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create projects root: %w", err)
	}
	return &Layout{root: projectsRoot}, nil
}

// ProjectDir returns <root>/<project_id>.
func (l *Layout) ProjectDir(projectID uuid.UUID) string {
	return filepath.Join(l.root, projectID.String())
}

// EnsureProjectDirs creates the fixed subdirectory tree for a project.
func (l *Layout) EnsureProjectDirs(projectID uuid.UUID) error {
	dir := l.ProjectDir(projectID)
	for _, sub := range []string{"segments", "input_videos", "frames", "final"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("storage: create %s: %w", sub, err)
		}
	}
	return nil
}

// FullScriptPath returns the canonical full-script file path.
func (l *Layout) FullScriptPath(projectID uuid.UUID) string {
	return filepath.Join(l.ProjectDir(projectID), "full_script.txt")
}

// SegmentTextPath returns the canonical per-segment text export path.
func (l *Layout) SegmentTextPath(projectID uuid.UUID, index int) string {
	return filepath.Join(l.ProjectDir(projectID), "segments", fmt.Sprintf("segment_%03d.txt", index))
}

var allowedVideoExts = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".mkv": true, ".webm": true, ".avi": true,
}

// NormalizeVideoExt lowercases ext and defaults to .mp4 when not in the
// upload whitelist.
func NormalizeVideoExt(originalFilename string) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	if !allowedVideoExts[ext] {
		return ".mp4"
	}
	return ext
}

// IsAllowedVideoExt reports whether ext (lowercased, with leading dot) is in
// the upload whitelist. Unlike NormalizeVideoExt this distinguishes
// "no extension" (true — nothing to reject) from "unrecognized extension"
// (false), which the upload route needs to decide whether to reject the
// file outright versus silently default it.
func IsAllowedVideoExt(ext string) bool {
	ext = strings.ToLower(ext)
	if ext == "" {
		return true
	}
	return allowedVideoExts[ext]
}

// InputVideoPath returns the canonical uploaded-input path for a segment.
func (l *Layout) InputVideoPath(projectID uuid.UUID, index int, originalFilename string) string {
	ext := NormalizeVideoExt(originalFilename)
	return filepath.Join(l.ProjectDir(projectID), "input_videos", fmt.Sprintf("segment_%03d%s", index, ext))
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// ProjectShortID derives an 8-character, lowercase, zero-padded identifier
// from a project id, used in the short-id frame naming scheme.
func ProjectShortID(projectID uuid.UUID) string {
	clean := strings.ToLower(nonAlnum.ReplaceAllString(projectID.String(), ""))
	if len(clean) >= 8 {
		return clean[:8]
	}
	return clean + strings.Repeat("0", 8-len(clean))
}

// FrameBasename returns the stem (no extension) used for a segment's frame.
// This project holds the short-id naming variant stable per the resolved
// Open Question in SPEC_FULL.md §4.1.
func FrameBasename(projectID uuid.UUID, index int) string {
	return fmt.Sprintf("p%s_%03d", ProjectShortID(projectID), index+1)
}

// FramePath returns the canonical last-frame image path for a segment.
func (l *Layout) FramePath(projectID uuid.UUID, index int) string {
	return filepath.Join(l.ProjectDir(projectID), "frames", FrameBasename(projectID, index)+".jpg")
}

// FinalVideoPath returns the canonical final-assembly output path.
func (l *Layout) FinalVideoPath(projectID uuid.UUID) string {
	return filepath.Join(l.ProjectDir(projectID), "final", "output.mp4")
}

// AtomicWriteText writes content to path via a sibling temp file, fsync, and
// rename, tolerating a lingering temp file from a prior crash.
func AtomicWriteText(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("storage: rename into place: %w", err)
	}
	return nil
}

// CleanStaleTempFiles removes any lingering atomic-write temp files under
// root, tolerating a process crash between create and rename. Best-effort.
func CleanStaleTempFiles(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		name := info.Name()
		if strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-") {
			_ = os.Remove(path)
		}
		return nil
	})
}

// RemoveIfExists deletes path, tolerating its absence.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether path exists on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
