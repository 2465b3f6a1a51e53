package access

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mcclellann/snpLoans/pkg/models"
)

const mapsSearchURL = "https://www.google.com/maps/search/?api=1&query="

// DirectoryEntry is the public contact card of a member. It never carries
// loan data.
type DirectoryEntry struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Initials string `json:"initials"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Email    string `json:"email"`
	CallURL  string `json:"call_url"`
	EmailURL string `json:"email_url"`
	MapURL   string `json:"map_url"`
}

// Directory lists member accounts whose username or contact details
// contain query, ignoring case. An empty query lists every member.
// Anyone may browse the directory.
func (g *Gate) Directory(ctx context.Context, query string) ([]DirectoryEntry, error) {
	members, err := g.members(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	entries := make([]DirectoryEntry, 0, len(members))
	for _, u := range members {
		if needle != "" && !matches(u, needle) {
			continue
		}
		entries = append(entries, newDirectoryEntry(u))
	}
	return entries, nil
}

func matches(u *models.User, needle string) bool {
	for _, field := range []string{u.Username, u.Profile.Name, u.Profile.Phone, u.Profile.Address, u.Profile.Email} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func newDirectoryEntry(u *models.User) DirectoryEntry {
	p := u.Profile
	return DirectoryEntry{
		Username: u.Username,
		Name:     p.Name,
		Initials: Initials(p.Name),
		Phone:    p.Phone,
		Address:  p.Address,
		Email:    p.Email,
		CallURL:  "tel:" + dialable(p.Phone),
		EmailURL: "mailto:" + p.Email,
		MapURL:   mapsSearchURL + url.QueryEscape(p.Address),
	}
}

// Initials returns the upper-cased first letters of the first two words
// of name.
func Initials(name string) string {
	var b strings.Builder
	for i, word := range strings.Fields(name) {
		if i == 2 {
			break
		}
		for _, r := range word {
			b.WriteRune(r)
			break
		}
	}
	return strings.ToUpper(b.String())
}

// dialable keeps the digits and plus signs of a phone number.
func dialable(phone string) string {
	return strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '+' {
			return r
		}
		return -1
	}, phone)
}
