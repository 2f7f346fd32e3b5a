package session

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hypemix/hypemix/internal/apperr"
)

// TTL is how long a processing session stays valid. Expired sessions are
// refused for new work and their storage namespace is eligible for cleanup.
const TTL = 24 * time.Hour

// Namespace kinds under which a session's temporary blobs are stored.
const (
	KindMusicAudio  = "music-audio"
	KindCustomAudio = "custom-audio"
	KindTTSAudio    = "tts-audio"
	KindFinalAudio  = "final-audio"
)

// idPattern matches "<unix-ms>-<8 hex>", e.g. "1693406471234-a1b2c3d4".
var idPattern = regexp.MustCompile(`^\d{13}-[a-f0-9]{8}$`)

// Session identifies one end-to-end pipeline run. The id embeds its creation
// time so expiry can be checked without any persisted state.
type Session struct {
	ID        string
	CreatedAt time.Time
}

// New creates a session with a fresh id: creation timestamp in unix
// milliseconds plus a random 8-hex-char suffix.
func New() Session {
	now := time.Now()
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return Session{
		ID:        fmt.Sprintf("%013d-%s", now.UnixMilli(), suffix),
		CreatedAt: now,
	}
}

// Parse validates an id and recovers the embedded creation time.
func Parse(id string) (Session, error) {
	if !idPattern.MatchString(id) {
		return Session{}, apperr.New(apperr.ClassValidation, "Invalid session ID format")
	}
	millis, err := strconv.ParseInt(id[:13], 10, 64)
	if err != nil {
		return Session{}, apperr.New(apperr.ClassValidation, "Invalid session ID format")
	}
	return Session{ID: id, CreatedAt: time.UnixMilli(millis)}, nil
}

// Expired reports whether the session's TTL has elapsed at the given time.
func (s Session) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > TTL
}

// Namespace returns the storage key prefix for one content kind,
// e.g. "tts-audio/1693406471234-a1b2c3d4/".
func (s Session) Namespace(kind string) string {
	return fmt.Sprintf("%s/%s/", kind, s.ID)
}

// Namespaces returns every storage prefix a session may have written to.
// Cleanup walks all of them; listing an empty prefix is harmless.
func (s Session) Namespaces() []string {
	return []string{
		s.Namespace(KindMusicAudio),
		s.Namespace(KindCustomAudio),
		s.Namespace(KindTTSAudio),
		s.Namespace(KindFinalAudio),
	}
}

// TempDir returns the session-private temp directory under root. Two
// concurrent sessions never share a directory.
func (s Session) TempDir(root string) string {
	return filepath.Join(root, s.ID)
}
