package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mcclellann/snpLoans/pkg/models"
)

// LoadUsers reads the roster JSON file (an array of users).
func LoadUsers(path string) ([]*models.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster %s: %w", path, err)
	}
	return ParseUsers(data)
}

// ParseUsers decodes and validates roster JSON. Usernames must be present
// and unique, and roles must be "user" or "manager".
func ParseUsers(data []byte) ([]*models.User, error) {
	var users []*models.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to decode roster: %w", err)
	}

	seen := make(map[string]bool, len(users))
	for i, u := range users {
		if u == nil {
			return nil, fmt.Errorf("roster entry %d is null", i)
		}
		u.Username = strings.TrimSpace(u.Username)
		if u.Username == "" {
			return nil, fmt.Errorf("roster entry %d has no username", i)
		}
		if seen[u.Username] {
			return nil, fmt.Errorf("duplicate username %q in roster", u.Username)
		}
		seen[u.Username] = true
		if u.Role != models.RoleUser && u.Role != models.RoleManager {
			return nil, fmt.Errorf("user %q has unknown role %q", u.Username, u.Role)
		}
	}
	return users, nil
}
