// Package media opens a post's image or link in an external application.
package media

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/pders01/synfeed/internal/debuglog"
	"github.com/pders01/synfeed/internal/model"
)

var (
	ErrNothingToOpen = errors.New("media: post has no image or link")
	ErrNoOpener      = errors.New("media: no application found to open URL")
	ErrUnsafeURL     = errors.New("media: only http and https URLs can be opened")
)

type Type int

const (
	TypeImage Type = iota
	TypeLink
)

func (t Type) String() string {
	if t == TypeImage {
		return "image"
	}
	return "link"
}

var linkPattern = regexp.MustCompile(`https?://[^\s<>"'()]+`)

// Target returns what to open for p: its image, else the first link in its
// text.
func Target(p model.Post) (string, Type, bool) {
	if p.Type == model.PostTypeImage && p.ImageURL != "" {
		return p.ImageURL, TypeImage, true
	}
	if link := linkPattern.FindString(p.Text); link != "" {
		return strings.TrimRight(link, ".,;:!?"), TypeLink, true
	}
	return "", 0, false
}

type Launcher struct {
	opener []string
	start  func(name string, args ...string) error
}

type Option func(*Launcher)

// WithStarter replaces process launching, for tests.
func WithStarter(fn func(name string, args ...string) error) Option {
	return func(l *Launcher) { l.start = fn }
}

// NewLauncher opens URLs with opener, a command line that receives the URL
// as its last argument. An empty opener uses the platform default.
func NewLauncher(opener string, opts ...Option) *Launcher {
	if strings.TrimSpace(opener) == "" {
		opener = DefaultOpener()
	}
	l := &Launcher{opener: strings.Fields(opener), start: startDetached}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DefaultOpener returns the first platform opener found on PATH, or "".
func DefaultOpener() string {
	switch runtime.GOOS {
	case "darwin":
		return findCommand("open")
	case "windows":
		return findCommand("rundll32")
	default:
		return findCommand("xdg-open", "gio", "wslview")
	}
}

func findCommand(commands ...string) string {
	for _, cmd := range commands {
		if _, err := exec.LookPath(cmd); err == nil {
			return cmd
		}
	}
	return ""
}

func (l *Launcher) Open(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrUnsafeURL, raw)
	}
	if len(l.opener) == 0 {
		return ErrNoOpener
	}

	name := l.opener[0]
	args := append([]string(nil), l.opener[1:]...)
	if strings.EqualFold(strings.TrimSuffix(filepath.Base(name), ".exe"), "rundll32") && len(args) == 0 {
		args = append(args, "url.dll,FileProtocolHandler")
	}
	args = append(args, u.String())

	if err := l.start(name, args...); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	debuglog.Debugf("media: opened %s with %s", u, name)
	return nil
}

// OpenPost opens the target of p and reports what kind it was.
func (l *Launcher) OpenPost(p model.Post) (Type, error) {
	target, kind, ok := Target(p)
	if !ok {
		return 0, ErrNothingToOpen
	}
	return kind, l.Open(target)
}

// startDetached starts a GUI application without waiting for it.
func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
