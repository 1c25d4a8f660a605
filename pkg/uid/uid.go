package uid

import "github.com/google/uuid"

// New generates a random identifier in canonical UUID form.
func New() string {
	return uuid.New().String()
}

// Normalize returns id in canonical lowercase hyphenated form. It reports
// false when id is not a UUID.
func Normalize(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}
