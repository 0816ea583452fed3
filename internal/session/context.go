package session

import (
	"sync"
	"time"
)

// Context holds what a session learns about its backend while it is
// connected. It is built when the session connects and dropped with it,
// so nothing leaks between sessions.
type Context struct {
	ID          string
	URL         string
	ConnectedAt time.Time

	mu               sync.Mutex
	missingFiles     map[string]struct{}
	unfetchableAddrs map[string]struct{}
}

func newContext(id, url string, now time.Time) *Context {
	return &Context{
		ID:               id,
		URL:              url,
		ConnectedAt:      now,
		missingFiles:     make(map[string]struct{}),
		unfetchableAddrs: make(map[string]struct{}),
	}
}

func (c *Context) IsMissingFile(fullname string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.missingFiles[fullname]
	return ok
}

func (c *Context) AddMissingFile(fullname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missingFiles[fullname] = struct{}{}
}

// ForgetMissingFile lets a file that has since appeared be fetched again.
func (c *Context) ForgetMissingFile(fullname string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.missingFiles, fullname)
}

func (c *Context) IsUnfetchableAddr(addr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.unfetchableAddrs[addr]
	return ok
}

func (c *Context) AddUnfetchableAddr(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unfetchableAddrs[addr] = struct{}{}
}
