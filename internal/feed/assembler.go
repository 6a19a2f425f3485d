// Package feed assembles the post feed shown to a viewer. An Assembler
// fetches pages of posts, enriches them for display and keeps the result in
// sync with pagination commands, deletions, authentication changes and
// refresh signals.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/blackmichael/postboard/internal/stream"
)

// Option configures an Assembler.
type Option func(*Assembler)

// WithPageSize sets the initial page size.
func WithPageSize(n int) Option {
	return func(a *Assembler) {
		if n > 0 && n <= domain.MaxPageSize {
			a.request.PageSize = n
		}
	}
}

// WithClock sets the time source used for relative ages.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithReenrichInterval recomputes the relative ages of the loaded page
// every d without fetching. Zero disables it.
func WithReenrichInterval(d time.Duration) Option {
	return func(a *Assembler) { a.reenrichInterval = d }
}

type commandKind int

const (
	cmdChangePage commandKind = iota
	cmdDelete
	cmdRefresh
	cmdToggleImage
)

type command struct {
	kind    commandKind
	request PageRequest
	postID  string
}

type fetchResult struct {
	seq     uint64
	request PageRequest
	page    *domain.PostPage
	err     error
}

type deleteResult struct {
	postID  string
	message string
	err     error
}

// Assembler owns the feed page and viewer state. All state changes happen
// on the goroutine running Run; other goroutines interact through commands
// and read published snapshots.
type Assembler struct {
	posts    PostSource
	auth     AuthSource
	refresh  RefreshSource
	notifier Notifier
	logger   *slog.Logger

	now              func() time.Time
	reenrichInterval time.Duration
	enricher         *Enricher

	commands chan command
	fetches  chan fetchResult
	deletes  chan deleteResult
	quit     chan struct{}
	done     chan struct{}

	started   atomic.Bool
	closeOnce sync.Once

	states  *stream.Broadcaster[State]
	mu      sync.RWMutex
	current State

	// Owned by the Run goroutine.
	cache       pageCache
	request     PageRequest
	viewer      Viewer
	identity    *ViewerIdentity
	status      Status
	seq         uint64
	fetching    bool
	deleting    int
	lastErr     error
	authSub     *stream.Subscription[bool]
	identitySub *stream.Subscription[domain.Identity]
	refreshSub  *stream.Subscription[struct{}]
	releaseOnce sync.Once
}

// NewAssembler creates an Assembler. notifier may be nil. Call Run to start
// it.
func NewAssembler(
	posts PostSource,
	auth AuthSource,
	refresh RefreshSource,
	notifier Notifier,
	logger *slog.Logger,
	opts ...Option,
) *Assembler {
	a := &Assembler{
		posts:    posts,
		auth:     auth,
		refresh:  refresh,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		commands: make(chan command, 16),
		fetches:  make(chan fetchResult),
		deletes:  make(chan deleteResult),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		states:   stream.NewBroadcaster[State](0),
		request:  PageRequest{PageSize: domain.DefaultPageSize, PageIndex: 1},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.enricher = NewEnricher(a.now, logger)
	a.current = State{Request: a.request}
	return a
}

// State returns the latest snapshot.
func (a *Assembler) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Subscribe returns a subscription that is sent every new snapshot. A slow
// reader may miss intermediate snapshots; State always returns the latest.
// The subscription ends when the assembler stops.
func (a *Assembler) Subscribe() *stream.Subscription[State] {
	return a.states.Subscribe()
}

// ChangePage loads the page described by ev.
func (a *Assembler) ChangePage(ev PageEvent) error {
	if ev.PageIndex < 0 || ev.PageSize < 1 || ev.PageSize > domain.MaxPageSize {
		return fmt.Errorf("%w: index %d, size %d", ErrInvalidPage, ev.PageIndex, ev.PageSize)
	}
	return a.send(command{
		kind:    cmdChangePage,
		request: PageRequest{PageSize: ev.PageSize, PageIndex: ev.PageIndex + 1},
	})
}

// Delete deletes a post and reloads the current page once it is gone.
func (a *Assembler) Delete(postID string) error {
	return a.send(command{kind: cmdDelete, postID: postID})
}

// Refresh reloads the current page.
func (a *Assembler) Refresh() error {
	return a.send(command{kind: cmdRefresh})
}

// ToggleImage opens or closes the image of a post on the current page.
func (a *Assembler) ToggleImage(postID string) error {
	return a.send(command{kind: cmdToggleImage, postID: postID})
}

// Close stops a running assembler. It is safe to call more than once and
// before Run.
func (a *Assembler) Close() {
	a.closeOnce.Do(func() { close(a.quit) })
}

// Done is closed once Run has returned.
func (a *Assembler) Done() <-chan struct{} {
	return a.done
}

func (a *Assembler) send(cmd command) error {
	select {
	case <-a.quit:
		return ErrClosed
	case <-a.done:
		return ErrClosed
	default:
	}

	select {
	case a.commands <- cmd:
		return nil
	case <-a.quit:
		return ErrClosed
	case <-a.done:
		return ErrClosed
	}
}

// Run subscribes to the auth, identity and refresh streams, loads the
// current page and processes events until ctx is cancelled or Close is
// called. Every subscription is released before Run returns.
func (a *Assembler) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(a.done)
	defer a.release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var tick <-chan time.Time
	if a.reenrichInterval > 0 {
		ticker := time.NewTicker(a.reenrichInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	a.logger.Info("feed assembler started", "page_size", a.request.PageSize, "page", a.request.PageIndex)
	a.initialize(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.quit:
			a.logger.Info("feed assembler closed")
			return nil

		case cmd := <-a.commands:
			a.handleCommand(ctx, cmd)
		case res := <-a.fetches:
			a.handleFetch(res)
		case res := <-a.deletes:
			a.handleDelete(ctx, res)

		case v, ok := <-a.authSub.C():
			if !ok {
				a.authSub = nil
				continue
			}
			a.applyAuth(v)
			a.publish()
		case id, ok := <-a.identitySub.C():
			if !ok {
				a.identitySub = nil
				continue
			}
			if a.applyIdentity(id) {
				a.publish()
			}
		case _, ok := <-a.refreshSub.C():
			if !ok {
				a.refreshSub = nil
				continue
			}
			a.logger.Debug("refresh signal received, reinitializing feed")
			a.initialize(ctx)

		case <-tick:
			a.reenrich()
		}
	}
}

// initialize drops any previous stream subscriptions, subscribes again,
// re-reads the current viewer and fetches the current page.
func (a *Assembler) initialize(ctx context.Context) {
	a.unsubscribe()
	a.authSub = a.auth.SubscribeAuthStatus()
	a.identitySub = a.auth.SubscribeIdentity()
	a.refreshSub = a.refresh.SubscribeRefresh()

	a.applyAuth(a.auth.Authenticated())
	a.applyIdentity(a.auth.Identity())
	a.fetch(ctx)
}

func (a *Assembler) unsubscribe() {
	a.authSub.Unsubscribe()
	a.identitySub.Unsubscribe()
	a.refreshSub.Unsubscribe()
	a.authSub, a.identitySub, a.refreshSub = nil, nil, nil
}

// release ends every subscription and the snapshot stream.
func (a *Assembler) release() {
	a.releaseOnce.Do(func() {
		a.unsubscribe()
		a.states.Close()
	})
}

func (a *Assembler) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdChangePage:
		a.request = cmd.request
		a.fetch(ctx)
	case cmdRefresh:
		a.fetch(ctx)
	case cmdDelete:
		a.delete(ctx, cmd.postID)
	case cmdToggleImage:
		if a.cache.toggle(cmd.postID) {
			a.publish()
		}
	}
}

// fetch issues a page fetch for the current request. Only the completion
// of the newest fetch is applied.
func (a *Assembler) fetch(ctx context.Context) {
	a.seq++
	seq, req := a.seq, a.request
	a.status = StatusLoading
	a.fetching = true
	a.publish()

	a.logger.Debug("fetching page", "seq", seq, "page_size", req.PageSize, "page", req.PageIndex)

	go func() {
		page, err := a.posts.FetchPosts(ctx, req.PageSize, req.PageIndex)
		select {
		case a.fetches <- fetchResult{seq: seq, request: req, page: page, err: err}:
		case <-a.done:
		}
	}()
}

func (a *Assembler) handleFetch(res fetchResult) {
	if res.seq != a.seq {
		a.logger.Debug("dropping stale page", "seq", res.seq, "latest", a.seq)
		return
	}
	a.fetching = false

	if res.err == nil && res.page == nil {
		res.err = fmt.Errorf("empty response")
	}
	if res.err != nil {
		a.status = StatusError
		a.lastErr = &FetchError{PageSize: res.request.PageSize, PageIndex: res.request.PageIndex, Err: res.err}
		a.logger.Error("failed to fetch posts", "page_size", res.request.PageSize, "page", res.request.PageIndex, "error", res.err)
		a.publish()
		return
	}

	posts := res.page.Posts
	if len(posts) > res.request.PageSize {
		a.logger.Warn("page larger than requested, truncating", "got", len(posts), "page_size", res.request.PageSize)
		posts = posts[:res.request.PageSize]
	}

	a.cache.replace(Page{
		Records:    a.enricher.Enrich(posts),
		TotalCount: res.page.Total,
		PageSize:   res.request.PageSize,
		PageIndex:  res.request.PageIndex,
	})
	a.status = StatusReady
	a.lastErr = nil
	a.publish()
}

func (a *Assembler) delete(ctx context.Context, postID string) {
	a.deleting++
	a.publish()

	go func() {
		msg, err := a.posts.DeletePost(ctx, postID)
		select {
		case a.deletes <- deleteResult{postID: postID, message: msg, err: err}:
		case <-a.done:
		}
	}()
}

func (a *Assembler) handleDelete(ctx context.Context, res deleteResult) {
	a.deleting--

	if res.err != nil {
		a.lastErr = &DeleteError{PostID: res.postID, Err: res.err}
		a.logger.Error("failed to delete post", "post_id", res.postID, "error", res.err)
		a.publish()
		return
	}

	a.logger.Info("post deleted", "post_id", res.postID)
	if a.notifier != nil && res.message != "" {
		a.notifier.Notify(res.message)
	}
	a.fetch(ctx)
}

func (a *Assembler) applyAuth(authenticated bool) {
	a.viewer.Authenticated = authenticated
	if !authenticated {
		a.identity = nil
	} else if a.identity == nil {
		a.applyIdentity(a.auth.Identity())
	}
	a.syncViewer()
}

// applyIdentity adopts id if it is complete. Partial identities are
// ignored.
func (a *Assembler) applyIdentity(id domain.Identity) bool {
	if !id.Complete() {
		return false
	}
	a.identity = &ViewerIdentity{ID: id.ID, DisplayName: id.DisplayName()}
	a.syncViewer()
	return true
}

func (a *Assembler) syncViewer() {
	if a.viewer.Authenticated {
		a.viewer.Identity = a.identity
	} else {
		a.viewer.Identity = nil
	}
}

func (a *Assembler) reenrich() {
	if len(a.cache.page.Records) == 0 {
		return
	}
	a.cache.setRecords(a.enricher.Reage(a.cache.page.Records))
	a.publish()
}

func (a *Assembler) publish() {
	s := State{
		Status:   a.status,
		Page:     a.cache.page,
		Request:  a.request,
		Viewer:   a.viewer,
		Loading:  a.fetching || a.deleting > 0,
		Err:      a.lastErr,
		Seq:      a.seq,
		expanded: a.cache.expanded,
	}

	a.mu.Lock()
	a.current = s
	a.mu.Unlock()

	a.states.Publish(s)
}
