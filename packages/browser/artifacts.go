package browser

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Namer produces collision-free artifact filenames within the shared results
// directory. Workers write to the same directory concurrently, so names
// combine a timestamp, the worker id, the sanitized test name and a random
// suffix.
type Namer struct {
	dir      string
	workerID int
}

// NewNamer returns a namer rooted at dir for the given worker. Worker id 0
// is the sequential runner.
func NewNamer(dir string, workerID int) *Namer {
	return &Namer{dir: dir, workerID: workerID}
}

// Name returns an absolute path for a new artifact of the given kind.
func (n *Namer) Name(testName, ext string) string {
	stamp := time.Now().UTC().Format("20060102T150405.000")
	stamp = strings.ReplaceAll(stamp, ".", "")
	file := fmt.Sprintf("%s-w%d-%s-%s%s", stamp, n.workerID, Sanitize(testName), uuid.NewString()[:8], ext)
	return filepath.Join(n.dir, file)
}

// Sanitize makes a test name safe for use in a filename.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	s := b.String()
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}
