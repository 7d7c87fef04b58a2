package utils

import (
	"net/http"
	"strings"
	"testing"

	"github.com/kurasuta/kurasuta-backend/internal/apierr"
)

func TestValidateSHA256(t *testing.T) {
	valid := strings.Repeat("ab", 32)

	cases := []struct {
		name    string
		hash    string
		wantErr string
	}{
		{
			name: "lowercase_hex",
			hash: valid,
		},
		{
			name: "uppercase_hex",
			hash: strings.ToUpper(valid),
		},
		{
			name:    "empty",
			hash:    "",
			wantErr: "SHA256 empty",
		},
		{
			name:    "too_short",
			hash:    valid[:63],
			wantErr: "SHA256 hash needs to be of length 64",
		},
		{
			name:    "too_long",
			hash:    valid + "a",
			wantErr: "SHA256 hash needs to be of length 64",
		},
		{
			name:    "non_hex",
			hash:    valid[:63] + "g",
			wantErr: "SHA256 hash may only contain hex chars",
		},
		{
			name:    "path_traversal",
			hash:    "../" + valid[:61],
			wantErr: "SHA256 hash may only contain hex chars",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSHA256(tc.hash)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateSHA256(%q) = %v, want nil", tc.hash, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateSHA256(%q) = nil, want error %q", tc.hash, tc.wantErr)
			}
			if err.Error() != tc.wantErr {
				t.Fatalf("ValidateSHA256(%q) = %q, want %q", tc.hash, err.Error(), tc.wantErr)
			}
			if got := apierr.StatusOf(err); got != http.StatusBadRequest {
				t.Fatalf("StatusOf = %d, want %d", got, http.StatusBadRequest)
			}
		})
	}
}
