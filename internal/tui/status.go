package tui

import (
	"fmt"

	"github.com/pders01/synfeed/internal/media"
)

// StatusKind indicates the severity of the status line.
type StatusKind int

const (
	StatusInfo StatusKind = iota
	StatusSuccess
	StatusWarn
	StatusError
)

const (
	MsgLoading       = "Loading feed…"
	MsgRefreshing    = "Refreshing…"
	MsgSignedOut     = "Sign in to like or save posts"
	MsgNothingHere   = "No posts yet"
	MsgNothingToOpen = "Nothing to open in this post"
	MsgHelp          = "j/k move • l like • f save • o open • r refresh • q quit"
)

func MsgLoaded(n int) string {
	if n == 1 {
		return "1 post"
	}
	return fmt.Sprintf("%d posts", n)
}

func MsgToggled(kind string, active bool) string {
	switch {
	case kind == kindLike && active:
		return "Liked"
	case kind == kindLike:
		return "Like removed"
	case active:
		return "Saved to favorites"
	default:
		return "Removed from favorites"
	}
}

func MsgOpened(kind media.Type) string {
	return fmt.Sprintf("Opened %s", kind)
}
