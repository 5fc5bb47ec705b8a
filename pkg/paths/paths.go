package paths

import (
	"os"
)

// GetDataDir returns the data directory path.
// ZIPVIEW_DATA_DIR wins when set; inside Docker (/.dockerenv exists) the
// conventional /app/data is used; otherwise the current directory.
func GetDataDir() string {
	if dir := os.Getenv("ZIPVIEW_DATA_DIR"); dir != "" {
		return dir
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "/app/data"
	}
	return "."
}
