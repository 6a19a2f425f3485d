package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/postboard/internal/domain"
	"github.com/blackmichael/postboard/internal/feed"
	"github.com/blackmichael/postboard/internal/realtime"
	"github.com/blackmichael/postboard/internal/stream"
	"github.com/blackmichael/postboard/internal/tui"
)

const listTimeout = 30 * time.Second

func signup(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	in := bufio.NewReader(c.App.Reader)
	var req domain.SignupRequest
	if req.FirstName, err = flagOrPrompt(c, in, "first-name", "First name: "); err != nil {
		return err
	}
	if req.LastName, err = flagOrPrompt(c, in, "last-name", "Last name: "); err != nil {
		return err
	}
	if req.Email, err = flagOrPrompt(c, in, "email", "Email: "); err != nil {
		return err
	}
	if req.Password, err = flagOrPrompt(c, in, "password", "Password: "); err != nil {
		return err
	}
	if c.String("password") == "" {
		confirm, err := prompt(in, c.App.Writer, "Confirm password: ")
		if err != nil {
			return err
		}
		if confirm != req.Password {
			return cli.Exit("passwords do not match", exitUsageError)
		}
	}

	if err := e.api.Signup(c.Context, req); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Account created for %s. Run `postboard login` to sign in.\n", req.Email)
	return nil
}

func login(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	in := bufio.NewReader(c.App.Reader)
	email, err := flagOrPrompt(c, in, "email", "Email: ")
	if err != nil {
		return err
	}
	password, err := flagOrPrompt(c, in, "password", "Password: ")
	if err != nil {
		return err
	}

	if err := e.session.Login(c.Context, email, password); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Logged in as %s\n", e.session.Identity().DisplayName())
	return nil
}

func logout(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.session.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "Logged out")
	return nil
}

func createPost(c *cli.Context) error {
	content := strings.Join(c.Args().Slice(), " ")
	image, err := readImage(c.Path("image"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}
	if strings.TrimSpace(content) == "" && image == nil {
		return cli.Exit("Usage: postboard post <text> [--image file]", exitUsageError)
	}

	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireSession(); err != nil {
		return err
	}

	post, err := e.api.CreatePost(c.Context, content, image)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Posted %s\n", post.ID)
	return nil
}

func editPost(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: postboard edit <post-id> <text>", exitUsageError)
	}
	image, err := readImage(c.Path("image"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}
	upd := domain.PostUpdate{
		Content:     strings.Join(c.Args().Tail(), " "),
		Image:       image,
		DeleteImage: c.Bool("delete-image"),
	}

	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireSession(); err != nil {
		return err
	}

	post, err := e.api.EditPost(c.Context, c.Args().First(), upd)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Updated %s\n", post.ID)
	return nil
}

func deletePost(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: postboard delete <post-id>", exitUsageError)
	}

	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.requireSession(); err != nil {
		return err
	}

	msg, err := e.api.DeletePost(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, msg)
	return nil
}

func listPosts(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	size := c.Int("size")
	if size == 0 {
		size = e.cfg.PageSize
	}
	page := c.Int("page")
	if page < 1 || size < 1 || size > domain.MaxPageSize {
		return cli.Exit(fmt.Sprintf("page must be at least 1 and size between 1 and %d", domain.MaxPageSize), exitUsageError)
	}

	if _, err := e.session.Restore(); err != nil {
		e.logger.Warn("ignoring unreadable session", "error", err)
	}

	asm := feed.NewAssembler(e.api, e.session, e.session, nil, e.logger, feed.WithPageSize(size))
	states := asm.Subscribe()
	defer states.Unsubscribe()

	ctx, cancel := context.WithTimeout(c.Context, listTimeout)
	defer cancel()
	go asm.Run(ctx)
	defer func() {
		asm.Close()
		<-asm.Done()
	}()

	want := feed.PageRequest{PageSize: size, PageIndex: page}
	if page != 1 {
		if err := asm.ChangePage(feed.PageEvent{PageIndex: page - 1, PageSize: size}); err != nil {
			return err
		}
	}

	s, err := waitForPage(ctx, states, want)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, newListing(s))
}

// waitForPage returns the first settled snapshot showing want.
func waitForPage(ctx context.Context, states *stream.Subscription[feed.State], want feed.PageRequest) (feed.State, error) {
	for {
		select {
		case <-ctx.Done():
			return feed.State{}, fmt.Errorf("waiting for posts: %w", ctx.Err())
		case s, ok := <-states.C():
			if !ok {
				return feed.State{}, feed.ErrClosed
			}
			if s.Request != want || s.Loading {
				continue
			}
			switch s.Status {
			case feed.StatusReady:
				return s, nil
			case feed.StatusError:
				return s, s.Err
			}
		}
	}
}

type listing struct {
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	Total    int          `json:"total"`
	Viewer   string       `json:"viewer,omitempty"`
	Posts    []listedPost `json:"posts"`
}

type listedPost struct {
	ID             string    `json:"id"`
	Creator        string    `json:"creator"`
	Content        string    `json:"content"`
	DisplayContent string    `json:"displayContent"`
	Date           time.Time `json:"date"`
	Age            string    `json:"age"`
	Edited         bool      `json:"edited"`
	ImageType      string    `json:"imageType,omitempty"`
	ImageBytes     int       `json:"imageBytes,omitempty"`
}

func newListing(s feed.State) listing {
	l := listing{
		Page:     s.Page.PageIndex,
		PageSize: s.Page.PageSize,
		Total:    s.Page.TotalCount,
		Posts:    make([]listedPost, 0, len(s.Page.Records)),
	}
	if s.Viewer.Identity != nil {
		l.Viewer = s.Viewer.Identity.DisplayName
	}
	for _, r := range s.Page.Records {
		p := listedPost{
			ID:             r.ID,
			Creator:        r.Creator,
			Content:        r.Content,
			DisplayContent: r.DisplayContent,
			Date:           r.Date,
			Age:            r.DateDiff,
			Edited:         r.Edited,
		}
		if r.ImageURL != "" {
			p.ImageType = r.Image.MimeType
			p.ImageBytes = len(r.Image.Binary)
		}
		l.Posts = append(l.Posts, p)
	}
	return l
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func browseFeed(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer e.Close()

	// Browsing works signed out; a saved session only adds the viewer.
	if _, err := e.session.Restore(); err != nil {
		e.logger.Warn("ignoring unreadable session", "error", err)
	}

	notices := tui.NewNotices(8)
	asm := feed.NewAssembler(e.api, e.session, e.session, notices, e.logger,
		feed.WithPageSize(e.cfg.PageSize),
		feed.WithReenrichInterval(e.cfg.ReenrichInterval.Duration),
	)

	// Another viewer changing posts reloads the feed the same way a token
	// refresh does.
	events, err := realtime.NewSubscriber(e.cfg.ServerURL, func(realtime.Event) {
		e.session.TriggerRefresh()
	}, e.logger)
	if err != nil {
		return fmt.Errorf("create event subscriber: %w", err)
	}

	model := tui.NewModel(asm, notices)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(asm.Run(ctx))
	})
	g.Go(func() error {
		return ignoreCanceled(events.Start(ctx))
	})

	_, runErr := tea.NewProgram(model, tea.WithAltScreen()).Run()

	cancel()
	asm.Close()
	if err := g.Wait(); err != nil {
		e.logger.Error("feed stopped with error", "error", err)
	}
	if runErr != nil {
		return fmt.Errorf("run feed view: %w", runErr)
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
