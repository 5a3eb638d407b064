// Package page tracks the chat page the user last visited through the proxy
// and builds deep links back into it.
package page

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/audiofetch/internal/prefs"
	"github.com/dgnsrekt/audiofetch/internal/store"
)

// DefaultURL is the chat site loaded when nothing was visited yet.
const DefaultURL = "https://chatgpt.com"

// ErrUnexpectedHost is returned when an operation needs the page to be on
// the chat host but the last visited page is elsewhere.
var ErrUnexpectedHost = errors.New("page is not on the expected host")

var conversationPath = regexp.MustCompile(`/c/([a-zA-Z0-9-]+)`)

// Session remembers the last visited page.
type Session struct {
	mu      sync.Mutex
	backend prefs.Backend
	base    *url.URL
}

// NewSession creates a session for the chat site at baseURL (DefaultURL
// when empty).
func NewSession(backend prefs.Backend, baseURL string) (*Session, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	return &Session{backend: backend, base: base}, nil
}

// Host returns the expected page host.
func (s *Session) Host() string { return s.base.Hostname() }

// Base returns the chat site URL.
func (s *Session) Base() string { return s.base.String() }

// LastVisited returns the last visited URL, or the site URL.
func (s *Session) LastVisited() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := prefs.Get[string](s.backend, prefs.KeyLastVisitedURL); ok && u != "" {
		return u
	}
	return s.base.String()
}

// Visit records an absolute URL the page navigated to.
func (s *Session) Visit(rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		log.Debug("Ignoring navigation to invalid url", "url", rawURL)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := prefs.Set(s.backend, prefs.KeyLastVisitedURL, u.String()); err != nil {
		log.Warn("Could not persist last visited url", "error", err)
	}
}

// VisitPath records a navigation seen by the proxy, which only knows the
// path and query on the chat site.
func (s *Session) VisitPath(path, rawQuery string) {
	u := *s.base
	u.Path = s.base.Path + path
	u.RawQuery = rawQuery
	s.Visit(u.String())
}

// CurrentConversationID extracts the conversation from the last visited URL.
func (s *Session) CurrentConversationID() (string, bool) {
	m := conversationPath.FindStringSubmatch(s.LastVisited())
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ConversationURL links to a conversation on the chat site.
func (s *Session) ConversationURL(conversationID string) string {
	u := *s.base
	u.Path = s.base.Path + "/c/" + url.PathEscape(conversationID)
	return u.String()
}

// MessageURL links to a message; the fragment names the message id.
func (s *Session) MessageURL(conversationID, messageID string) string {
	link := s.ConversationURL(conversationID)
	if messageID != "" {
		link += "#" + url.PathEscape(messageID)
	}
	return link
}

// CheckHost fails with ErrUnexpectedHost unless the last visited page is on
// the chat host.
func (s *Session) CheckHost() error {
	last := s.LastVisited()
	u, err := url.Parse(last)
	if err != nil || !strings.EqualFold(u.Hostname(), s.Host()) {
		return fmt.Errorf("%w: %s is not on %s", ErrUnexpectedHost, last, s.Host())
	}
	return nil
}

// Forget deletes a downloaded item so its message can be downloaded again.
// The page must be on the chat host so connected pages can drop their own
// record of the message.
func (s *Session) Forget(st *store.Store, itemID string) error {
	if err := s.CheckHost(); err != nil {
		return err
	}
	return st.Delete(itemID)
}
