package credentials

import (
	"time"

	"github.com/google/uuid"
)

// Stored is a sealed credential row.
type Stored struct {
	UserID    uuid.UUID
	Sealed    string
	Cipher    string
	UpdatedAt time.Time
}

// Status is what the API reveals about a stored credential.
type Status struct {
	Present   bool       `json:"present"`
	Masked    string     `json:"masked,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type SaveRequest struct {
	APIKey string `json:"api_key" validate:"required,min=8,max=512"`
}

// mask keeps the last four characters.
func mask(key string) string {
	r := []rune(key)
	if len(r) <= 4 {
		return "****"
	}
	return "****" + string(r[len(r)-4:])
}
