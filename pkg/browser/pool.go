package browser

import (
	"fmt"
	"sync"
	"time"

	"github.com/omilabs/ridewire/pkg/logging"
)

// DefaultPoolTTL is the maximum age of a pooled browser context.
const DefaultPoolTTL = time.Hour

// Pool keeps one live headless browser context per uid so repeat bookings for
// the same user skip the expensive session setup. Entries are liveness-checked
// on every lookup and aged out by TTL.
//
// The entry table is guarded by a short-held mutex; browser handle operations
// are never performed while holding it.
type Pool struct {
	mu      sync.Mutex
	driver  Driver
	entries map[string]*poolEntry
	ttl     time.Duration
	log     *logging.Logger
}

type poolEntry struct {
	uid       string
	browser   Browser
	context   Context
	page      Page
	createdAt time.Time
}

// NewPool creates a pool on the given driver. A non-positive ttl falls back
// to DefaultPoolTTL.
func NewPool(driver Driver, ttl time.Duration, log *logging.Logger) *Pool {
	if ttl <= 0 {
		ttl = DefaultPoolTTL
	}
	return &Pool{
		driver:  driver,
		entries: make(map[string]*poolEntry),
		ttl:     ttl,
		log:     log,
	}
}

// GetOrCreate returns the live pooled page for uid, or launches a fresh
// headless browser seeded from sessionState when no entry exists or the
// pooled page has died. Liveness is checked, never assumed.
func (p *Pool) GetOrCreate(uid string, sessionState []byte) (Page, error) {
	p.mu.Lock()
	existing := p.entries[uid]
	p.mu.Unlock()

	if existing != nil {
		if !existing.page.IsClosed() {
			p.log.Debugf("reusing pooled browser for %s", uid)
			return existing.page, nil
		}
		p.log.Infof("pooled page for %s is dead, recreating", uid)
		closeEntry(existing)
	}

	p.log.Infof("creating pooled browser for %s", uid)
	entry, err := p.createEntry(uid, sessionState)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.entries[uid] = entry
	p.mu.Unlock()

	return entry.page, nil
}

func (p *Pool) createEntry(uid string, sessionState []byte) (*poolEntry, error) {
	b, err := p.driver.Launch(LaunchOptions{Headless: true})
	if err != nil {
		return nil, fmt.Errorf("failed to launch pooled browser: %w", err)
	}

	ctx, err := b.NewContext(sessionState)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create pooled context: %w", err)
	}

	page, err := ctx.NewPage()
	if err != nil {
		ctx.Close()
		b.Close()
		return nil, fmt.Errorf("failed to create pooled page: %w", err)
	}

	return &poolEntry{
		uid:       uid,
		browser:   b,
		context:   ctx,
		page:      page,
		createdAt: time.Now(),
	}, nil
}

// Close removes and closes the entry for uid. Already-closed handles are
// tolerated; missing entries are a no-op.
func (p *Pool) Close(uid string) {
	p.mu.Lock()
	entry := p.entries[uid]
	delete(p.entries, uid)
	p.mu.Unlock()

	if entry != nil {
		closeEntry(entry)
	}
}

// EvictExpired removes and closes every entry older than the pool TTL,
// returning the number evicted.
func (p *Pool) EvictExpired() int {
	now := time.Now()

	p.mu.Lock()
	var expired []*poolEntry
	for uid, entry := range p.entries {
		if now.Sub(entry.createdAt) > p.ttl {
			expired = append(expired, entry)
			delete(p.entries, uid)
		}
	}
	p.mu.Unlock()

	for _, entry := range expired {
		p.log.Infof("evicting expired browser for %s", entry.uid)
		closeEntry(entry)
	}
	return len(expired)
}

// Len returns the number of live entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Shutdown closes every entry and then releases the shared driver.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	entries := make([]*poolEntry, 0, len(p.entries))
	for uid, entry := range p.entries {
		entries = append(entries, entry)
		delete(p.entries, uid)
	}
	p.mu.Unlock()

	for _, entry := range entries {
		closeEntry(entry)
	}

	if err := p.driver.Stop(); err != nil {
		p.log.Warnf("error stopping browser driver: %v", err)
	}
}

// closeEntry tears down an entry's handles, tolerating ones already closed.
func closeEntry(e *poolEntry) {
	_ = e.page.Close()
	_ = e.context.Close()
	_ = e.browser.Close()
}
