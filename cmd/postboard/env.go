package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/blackmichael/postboard/internal/client"
	"github.com/blackmichael/postboard/internal/config"
	"github.com/blackmichael/postboard/internal/domain"
	"github.com/blackmichael/postboard/internal/session"
)

// env is what every command needs: settings, a logger writing to the log
// file, the API client and the session manager.
type env struct {
	cfg     *config.ClientConfig
	logger  *slog.Logger
	api     *client.Client
	session *session.Manager
	logFile *os.File
}

func newEnv(c *cli.Context) (*env, error) {
	cfg, err := config.LoadClient(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if s := c.String("server"); s != "" {
		cfg.ServerURL = s
	}

	// The terminal belongs to the command output, so logs go to a file.
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	api := client.NewClient(cfg.ServerURL)
	return &env{
		cfg:     cfg,
		logger:  logger,
		api:     api,
		session: session.NewManager(api, cfg.SessionFile, logger),
		logFile: logFile,
	}, nil
}

func (e *env) Close() {
	e.session.Close()
	e.logFile.Close()
}

// requireSession restores the saved session or fails with a hint to log in.
func (e *env) requireSession() error {
	ok, err := e.session.Restore()
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		return cli.Exit("not logged in: run `postboard login` first", exitAuthError)
	}
	return nil
}

// prompt reads one line from r after writing label to w.
func prompt(r *bufio.Reader, w io.Writer, label string) (string, error) {
	fmt.Fprint(w, label)
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// flagOrPrompt returns the flag value, prompting for it when unset.
func flagOrPrompt(c *cli.Context, r *bufio.Reader, name, label string) (string, error) {
	if v := c.String(name); v != "" {
		return v, nil
	}
	return prompt(r, c.App.Writer, label)
}

// readImage loads an image file for upload. The MIME type is sniffed from
// its content.
func readImage(path string) (*domain.Image, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", path)
	}
	return &domain.Image{MimeType: http.DetectContentType(data), Binary: data}, nil
}
