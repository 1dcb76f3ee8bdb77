// Package visibility decides which posts a viewer may see.
package visibility

import "github.com/pders01/synfeed/internal/model"

// Visible reports whether viewerID may see post. Only "private" restricts;
// every other value, known or not, is visible to everyone.
func Visible(post model.Post, viewerID string) bool {
	if post.Visibility == model.VisibilityPrivate {
		return post.AuthorID == viewerID
	}
	return true
}
