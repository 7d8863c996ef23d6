// Package authctl implements the operator CLI that drives the auth service directly and
// prints JSON results.
package authctl

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"identity-service/internal/auth/service"
	"identity-service/internal/token"
)

// Engine is the subset of *service.AuthService the CLI drives.
type Engine interface {
	Register(ctx context.Context, email, password string) (string, error)
	Login(ctx context.Context, email, password, userAgent, ipAddress string) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	Logout(ctx context.Context, sessionID string) error
	LogoutAll(ctx context.Context, userID string) (int, error)
	Authenticate(ctx context.Context, accessToken string) (*token.Claims, error)
	Me(ctx context.Context, claims *token.Claims) (*service.UserInfo, error)
}

// UserAdmin toggles account activation; *userrepo.SQLRepository implements it.
type UserAdmin interface {
	SetActive(ctx context.Context, id string, active bool) error
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ErrUsage is returned for an unknown command or bad flags.
var ErrUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, d deps, args []string) (any, error)
}

type deps struct {
	engine Engine
	users  UserAdmin
	lookup EnvLookup
	errOut io.Writer
}

var commands = map[string]command{
	"register":   {"register -email E [-password P]", runRegister},
	"login":      {"login -email E [-password P] [-user-agent UA] [-ip IP]", runLogin},
	"refresh":    {"refresh -token REFRESH", runRefresh},
	"logout":     {"logout -session ID", runLogout},
	"logout-all": {"logout-all -user ID", runLogoutAll},
	"me":         {"me -token ACCESS", runMe},
	"activate":   {"activate -user ID", runSetActive(true)},
	"deactivate": {"deactivate -user ID", runSetActive(false)},
}

// Run executes args[0] with the remaining args as its flags and writes the JSON result to out.
// Passwords default to AUTHCTL_PASSWORD so they stay out of shell history.
func Run(ctx context.Context, engine Engine, users UserAdmin, args []string, lookup EnvLookup, out, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	if len(args) == 0 {
		usage(errOut)
		return fmt.Errorf("%w: missing command", ErrUsage)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(errOut)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	result, err := cmd.run(ctx, deps{engine: engine, users: users, lookup: lookup, errOut: errOut}, args[1:])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "usage: authctl <command> [flags]")
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].summary)
	}
}

func newFlags(name string, d deps) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(d.errOut)
	return fs
}

func parse(fs *flag.FlagSet, args []string, required map[string]*string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	var missing []string
	for name, v := range required {
		if strings.TrimSpace(*v) == "" {
			missing = append(missing, "-"+name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s requires %s", ErrUsage, fs.Name(), strings.Join(missing, ", "))
	}
	return nil
}

func passwordDefault(d deps) string {
	v, _ := d.lookup("AUTHCTL_PASSWORD")
	return v
}

func runRegister(ctx context.Context, d deps, args []string) (any, error) {
	fs := newFlags("register", d)
	email := fs.String("email", "", "account email")
	password := fs.String("password", passwordDefault(d), "account password (default $AUTHCTL_PASSWORD)")
	if err := parse(fs, args, map[string]*string{"email": email, "password": password}); err != nil {
		return nil, err
	}
	id, err := d.engine.Register(ctx, *email, *password)
	if err != nil {
		return nil, err
	}
	return map[string]string{"user_id": id}, nil
}

func runLogin(ctx context.Context, d deps, args []string) (any, error) {
	fs := newFlags("login", d)
	email := fs.String("email", "", "account email")
	password := fs.String("password", passwordDefault(d), "account password (default $AUTHCTL_PASSWORD)")
	userAgent := fs.String("user-agent", "authctl", "user agent recorded on the session")
	ip := fs.String("ip", "", "client address recorded on the session")
	if err := parse(fs, args, map[string]*string{"email": email, "password": password}); err != nil {
		return nil, err
	}
	return d.engine.Login(ctx, *email, *password, *userAgent, *ip)
}

func runRefresh(ctx context.Context, d deps, args []string) (any, error) {
	fs := newFlags("refresh", d)
	tok := fs.String("token", "", "refresh token")
	if err := parse(fs, args, map[string]*string{"token": tok}); err != nil {
		return nil, err
	}
	return d.engine.Refresh(ctx, *tok)
}

func runLogout(ctx context.Context, d deps, args []string) (any, error) {
	fs := newFlags("logout", d)
	sessionID := fs.String("session", "", "session id")
	if err := parse(fs, args, map[string]*string{"session": sessionID}); err != nil {
		return nil, err
	}
	if err := d.engine.Logout(ctx, *sessionID); err != nil {
		return nil, err
	}
	return map[string]any{"session_id": *sessionID, "logged_out": true}, nil
}

func runLogoutAll(ctx context.Context, d deps, args []string) (any, error) {
	fs := newFlags("logout-all", d)
	userID := fs.String("user", "", "user id")
	if err := parse(fs, args, map[string]*string{"user": userID}); err != nil {
		return nil, err
	}
	n, err := d.engine.LogoutAll(ctx, *userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user_id": *userID, "sessions_removed": n}, nil
}

func runMe(ctx context.Context, d deps, args []string) (any, error) {
	fs := newFlags("me", d)
	tok := fs.String("token", "", "access token")
	if err := parse(fs, args, map[string]*string{"token": tok}); err != nil {
		return nil, err
	}
	claims, err := d.engine.Authenticate(ctx, *tok)
	if err != nil {
		return nil, err
	}
	return d.engine.Me(ctx, claims)
}

func runSetActive(active bool) func(context.Context, deps, []string) (any, error) {
	return func(ctx context.Context, d deps, args []string) (any, error) {
		name := "deactivate"
		if active {
			name = "activate"
		}
		fs := newFlags(name, d)
		userID := fs.String("user", "", "user id")
		if err := parse(fs, args, map[string]*string{"user": userID}); err != nil {
			return nil, err
		}
		if d.users == nil {
			return nil, fmt.Errorf("%s: no user store configured", name)
		}
		if err := d.users.SetActive(ctx, *userID, active); err != nil {
			return nil, err
		}
		return map[string]any{"user_id": *userID, "is_active": active}, nil
	}
}
