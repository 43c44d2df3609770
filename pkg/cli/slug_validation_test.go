package cli

import (
	"testing"
)

func TestValidateSellerSlug(t *testing.T) {
	tests := []struct {
		name    string
		slug    string
		wantErr bool
	}{
		{
			name: "valid slug",
			slug: "butterandcrumble",
		},
		{
			name: "valid slug with hyphen and digits",
			slug: "bake-shop-99",
		},
		{
			name:    "empty",
			slug:    "",
			wantErr: true,
		},
		{
			name:    "too short",
			slug:    "ab",
			wantErr: true,
		},
		{
			name:    "reserved path",
			slug:    "pricing",
			wantErr: true,
		},
		{
			name:    "uppercase rejected",
			slug:    "ButterAndCrumble",
			wantErr: true,
		},
		{
			name:    "path traversal rejected",
			slug:    "../etc/passwd",
			wantErr: true,
		},
		{
			name:    "spaces rejected",
			slug:    "butter and crumble",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSellerSlug(tt.slug)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSellerSlug(%q) error = %v, wantErr %v", tt.slug, err, tt.wantErr)
			}
		})
	}
}
