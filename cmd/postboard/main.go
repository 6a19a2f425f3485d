package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	exitGeneralError = 1
	exitUsageError   = 2
	exitAuthError    = 3
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitGeneralError)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "postboard",
		Usage:   "Read and write posts on a postboard server",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: <user config dir>/postboard/config.toml)",
				EnvVars: []string{"POSTBOARD_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Server URL, overrides server_url from the config file",
				EnvVars: []string{"POSTBOARD_SERVER"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "signup",
				Usage: "Create an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "first-name", Usage: "First name"},
					&cli.StringFlag{Name: "last-name", Usage: "Last name"},
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Email address"},
					&cli.StringFlag{Name: "password", Usage: "Password (prompted when omitted)", EnvVars: []string{"POSTBOARD_PASSWORD"}},
				},
				Action: signup,
			},
			{
				Name:  "login",
				Usage: "Log in and remember the session",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Email address"},
					&cli.StringFlag{Name: "password", Usage: "Password (prompted when omitted)", EnvVars: []string{"POSTBOARD_PASSWORD"}},
				},
				Action: login,
			},
			{
				Name:   "logout",
				Usage:  "Forget the saved session",
				Action: logout,
			},
			{
				Name:      "post",
				Usage:     "Publish a post",
				ArgsUsage: "<text>",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: "image", Aliases: []string{"i"}, Usage: "Attach an image file"},
				},
				Action: createPost,
			},
			{
				Name:      "edit",
				Usage:     "Edit one of your posts",
				ArgsUsage: "<post-id> <text>",
				Flags: []cli.Flag{
					&cli.PathFlag{Name: "image", Aliases: []string{"i"}, Usage: "Replace the image"},
					&cli.BoolFlag{Name: "delete-image", Usage: "Remove the image"},
				},
				Action: editPost,
			},
			{
				Name:      "delete",
				Usage:     "Delete one of your posts",
				ArgsUsage: "<post-id>",
				Action:    deletePost,
			},
			{
				Name:  "list",
				Usage: "Print a page of the feed as JSON",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Value: 1, Usage: "Page number, starting at 1"},
					&cli.IntFlag{Name: "size", Aliases: []string{"s"}, Usage: "Posts per page (default: page_size from the config file)"},
				},
				Action: listPosts,
			},
			{
				Name:   "feed",
				Usage:  "Browse the feed interactively",
				Action: browseFeed,
			},
		},
	}
}
