package helper

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const collectionPrefix = "clarity_user__"

// SetupLogger configures the global zerolog logger. Unknown levels fall back to info.
func SetupLogger(level string, pretty bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
}

// GenerateUUID creates a random unique UUID string
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %w", err)
	}
	return id.String(), nil
}

// NewID is GenerateUUID for callers that cannot do anything useful with the error.
func NewID() string {
	return uuid.NewString()
}

// pretty print
func PrettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Println(string(b))
}

// CreateFolder makes dir and its parents if missing.
func CreateFolder(dir string) error {
	if err := os.MkdirAll(ExpandHome(dir), 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", dir, err)
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// SafeUserID makes an identity provider subject ("auth0|123", "a@b.c") usable in collection names.
// Bytes outside [A-Za-z0-9.-] become _xx hex escapes, so distinct ids never share a name and the
// result never contains "__".
func SafeUserID(userID string) string {
	var b strings.Builder
	for i := 0; i < len(userID); i++ {
		c := userID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}

// CollectionName is the vector collection for one user, or one notebook of that user.
func CollectionName(userID, notebookID string) string {
	name := collectionPrefix + SafeUserID(userID)
	if notebookID != "" {
		name += "__" + notebookID
	}
	return name
}

// IsUserCollection reports whether name belongs to userID (any notebook).
func IsUserCollection(name, userID string) bool {
	base := CollectionName(userID, "")
	return name == base || strings.HasPrefix(name, base+"__")
}

// ContentHash is the hex sha256 of text, used to skip re-ingesting identical documents.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
