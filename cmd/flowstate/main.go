package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flowstate/internal/client"
	"flowstate/internal/config"
	"flowstate/internal/mcp"
	"flowstate/internal/store"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: flowstate [serve|login|logout|whoami|telegram-code|mcp] [flags]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "serve"
	var args []string
	if flag.NArg() > 0 {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "serve":
		err = runServe(ctx)
	case "login":
		err = runLogin(ctx, args)
	case "logout":
		err = runLogout(ctx)
	case "whoami":
		err = runWhoami(ctx)
	case "telegram-code":
		err = runTelegramCode(ctx)
	case "mcp":
		err = runMCP(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newClient builds a gateway client from the saved session. FLOWSTATE_TOKEN
// takes precedence and is never written to disk.
func newClient() (*client.Client, error) {
	cfg := config.LoadClient()
	if cfg.Token != "" {
		session := client.NewSession("")
		if err := session.Set(cfg.Token, "", 0); err != nil {
			return nil, err
		}
		return client.New(cfg.APIURL, session), nil
	}
	session := client.NewSession(cfg.SessionPath)
	if err := session.Load(); err != nil {
		return nil, err
	}
	return client.New(cfg.APIURL, session), nil
}

func runLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "Account email")
	password := fs.String("password", os.Getenv("FLOWSTATE_PASSWORD"), "Account password (defaults to FLOWSTATE_PASSWORD)")
	signup := fs.Bool("signup", false, "Create the account first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("login requires -email and -password")
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	signIn := c.SignIn
	if *signup {
		signIn = c.SignUp
	}
	user, err := signIn(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Signed in as %s\n", user.Email)
	return nil
}

func runLogout(ctx context.Context) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.SignOut(ctx); err != nil {
		return err
	}
	fmt.Println("✓ Signed out")
	return nil
}

func runWhoami(ctx context.Context) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	user, err := c.User(ctx)
	if err != nil {
		return err
	}
	linked := "not linked"
	if user.TelegramLinked {
		linked = "linked"
	}
	fmt.Printf("%s (telegram %s)\n", user.Email, linked)
	return nil
}

func runTelegramCode(ctx context.Context) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	code, err := c.TelegramCode(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Send this to the bot:\n/start %s\n", code)
	return nil
}

// runMCP loads the signed-in user's data and serves it over stdio.
func runMCP(ctx context.Context) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	st := store.New(c)
	if err := st.Reload(ctx); err != nil {
		return fmt.Errorf("load data: %w", err)
	}
	return mcp.Serve(mcp.NewServer(st, nil))
}
