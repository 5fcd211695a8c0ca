package staging

import (
	"fmt"
	"strconv"
	"strings"
)

// ArtifactName returns the fenced file name of a batch artifact:
// "<index>.<token>.<ext>". Only the name carrying a job's current token is
// accepted as that job's output.
func ArtifactName(index int, token, ext string) string {
	return fmt.Sprintf("%04d.%s.%s", index, token, strings.TrimPrefix(ext, "."))
}

// ParseArtifactName extracts the batch index and token from a fenced name.
// Trailing suffixes such as ".tmp" are tolerated.
func ParseArtifactName(name string) (index int, token string, ok bool) {
	parts := strings.SplitN(name, ".", 3)
	if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
		return 0, "", false
	}
	index, err := strconv.Atoi(parts[0])
	if err != nil || index < 1 {
		return 0, "", false
	}
	return index, parts[1], true
}
