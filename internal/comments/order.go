// Package comments holds the comment pinning and ordering rules.
package comments

import (
	"sort"

	"github.com/clipverse/backend/internal/models"
)

// Sort orders comments for display: the pinned comment first, then the rest
// newest first. Ties keep their input order.
func Sort(comments []models.Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		a, b := comments[i], comments[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// Pinned returns the pinned comment in comments, if any.
func Pinned(comments []models.Comment) (models.Comment, bool) {
	for _, c := range comments {
		if c.IsPinned {
			return c, true
		}
	}
	return models.Comment{}, false
}
