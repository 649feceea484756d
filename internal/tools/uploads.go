package tools

import (
	"crypto/sha256"
	"fmt"
	"sync"
)

// StagedFile is a file the model asked to deliver alongside its reply.
type StagedFile struct {
	Filename string
	Content  []byte
}

// Uploads accumulates files staged during one interaction. Safe for
// concurrent use; tool calls in a round dispatch in parallel.
type Uploads struct {
	mu    sync.Mutex
	files []StagedFile
	seen  map[string]bool
}

// NewUploads returns an empty upload set.
func NewUploads() *Uploads {
	return &Uploads{seen: make(map[string]bool)}
}

// Add stages a file. Returns false if an identical file (same name and
// content) was already staged, so repeated tool calls do not deliver
// duplicates.
func (u *Uploads) Add(filename string, content []byte) bool {
	key := fmt.Sprintf("%s:%x", filename, sha256.Sum256(content))

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.seen[key] {
		return false
	}
	u.seen[key] = true
	u.files = append(u.files, StagedFile{Filename: filename, Content: content})
	return true
}

// Count returns the number of staged files.
func (u *Uploads) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.files)
}

// Files returns the staged files in order of staging.
func (u *Uploads) Files() []StagedFile {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]StagedFile, len(u.files))
	copy(out, u.files)
	return out
}
