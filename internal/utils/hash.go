package utils

import "github.com/kurasuta/kurasuta-backend/internal/apierr"

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// ValidateSHA256 enforces the content-address format before anything touches
// the database or the filesystem.
func ValidateSHA256(hash string) error {
	if hash == "" {
		return apierr.InvalidUsage("SHA256 empty")
	}
	if len(hash) != 64 {
		return apierr.InvalidUsage("SHA256 hash needs to be of length 64")
	}
	for i := 0; i < len(hash); i++ {
		if !isHexDigit(hash[i]) {
			return apierr.InvalidUsage("SHA256 hash may only contain hex chars")
		}
	}
	return nil
}
