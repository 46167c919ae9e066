package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go-portal-client/internal/access"
	"go-portal-client/internal/client"
	"go-portal-client/internal/config"
	"go-portal-client/internal/model"
	"go-portal-client/internal/session"
)

// App wires config, session store, client, and guard together. Construction
// is explicit: nothing is initialized at import time, and Initialize runs
// exactly once here during bootstrap.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	session *session.Manager
	client  *client.Client
	guard   *access.Guard
	out     io.Writer
	in      io.Reader
}

func New(log *slog.Logger) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var store session.Store
	if key := cfg.SessionKeyBytes(); key != nil {
		store, err = session.NewEncryptedFileStore(cfg.SessionFile, key)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
	} else {
		store = session.NewFileStore(cfg.SessionFile)
	}

	sess := session.NewManager(store, cfg.AdminEmails, cfg.AdminUsernames)
	status := sess.Initialize()
	log.Debug("session initialized", "status", status.String())

	apiClient, err := client.New(cfg, sess, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build API client: %w", err)
	}

	return &App{
		cfg:     cfg,
		log:     log,
		session: sess,
		client:  apiClient,
		guard:   access.NewGuard(sess, cfg.SignInPath),
		out:     os.Stdout,
		in:      os.Stdin,
	}, nil
}

type route struct {
	path   string
	roles  []string
	public bool
}

var commandRoutes = map[string]route{
	"login":          {path: "/auth/signin", public: true},
	"register":       {path: "/auth/signup", public: true},
	"password-reset": {path: "/auth/reset", public: true},
	"logout":         {path: "/auth/signout", public: true},
	"whoami":         {path: "/profile"},
	"refresh":        {path: "/profile"},
	"users":          {path: "/users", roles: []string{model.RoleAdmin}},
	"list":           {path: "/records"},
	"get":            {path: "/records"},
	"delete":         {path: "/records", roles: []string{model.RoleAdmin}},
	"upload-image":   {path: "/images", roles: []string{model.RoleAdmin}},
	"menu":           {path: "/", public: true},
}

func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: portalctl <command> [args] (commands: login, register, logout, whoami, refresh, users, list, get, delete, upload-image, password-reset, menu)")
	}

	command, rest := args[0], args[1:]

	r, known := commandRoutes[command]
	if !known {
		return fmt.Errorf("unknown command %q", command)
	}

	switch result := a.guard.Check(r.path, r.roles, r.public); result.Decision {
	case access.DecisionRedirect:
		a.log.Info("sign-in required", "return_to", result.ReturnTo)
		return model.ErrSignInRequired
	case access.DecisionDeny:
		return fmt.Errorf("access denied: %s requires one of %v", r.path, r.roles)
	}

	switch command {
	case "login":
		return a.runLogin(ctx, rest)
	case "register":
		return a.runRegister(ctx, rest)
	case "logout":
		return a.client.Logout(ctx)
	case "whoami":
		return a.runWhoami(ctx)
	case "refresh":
		return a.client.Refresh(ctx)
	case "users":
		return a.runUsers(ctx, rest)
	case "list":
		return a.runList(ctx, rest)
	case "get":
		return a.runGet(ctx, rest)
	case "delete":
		return a.runDelete(ctx, rest)
	case "upload-image":
		return a.runUploadImage(ctx, rest)
	case "password-reset":
		return a.runPasswordReset(ctx, rest)
	case "menu":
		return a.runMenu()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *App) runLogin(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: portalctl login <username>")
	}

	password, err := a.readPassword()
	if err != nil {
		return err
	}

	result, err := a.client.Login(ctx, model.LoginRequest{Username: args[0], Password: password})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "signed in as %s\n", result.User.Username)
	return nil
}

func (a *App) runRegister(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: portalctl register <username> <email>")
	}

	password, err := a.readPassword()
	if err != nil {
		return err
	}

	result, err := a.client.Register(ctx, model.RegisterRequest{
		Username: args[0],
		Email:    args[1],
		Password: password,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "registered and signed in as %s\n", result.User.Username)
	return nil
}

func (a *App) runWhoami(ctx context.Context) error {
	user, err := a.client.Profile(ctx)
	if err != nil {
		// Fall back to the persisted record when the backend is unreachable.
		if cached := a.client.CurrentUser(); cached != nil {
			a.log.Warn("profile fetch failed, showing cached record", "error", err)
			user = cached
		} else {
			return err
		}
	}

	return a.printJSON(user)
}

func (a *App) runUsers(ctx context.Context, args []string) error {
	page := 1
	if len(args) == 1 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed < 1 {
			return fmt.Errorf("usage: portalctl users [page]")
		}
		page = parsed
	}

	result, err := a.client.ListUsers(ctx, page)
	if err != nil {
		return err
	}

	return a.printJSON(result)
}

func (a *App) runList(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: portalctl list <resource> [key=value ...]")
	}

	query := url.Values{}
	for _, arg := range args[1:] {
		key, value, found := strings.Cut(arg, "=")
		if !found {
			return fmt.Errorf("filter %q is not key=value", arg)
		}
		query.Set(key, value)
	}

	switch args[0] {
	case "districts":
		p, err := a.client.Districts.List(ctx, query)
		return printPage(a, p, err)
	case "collages":
		p, err := a.client.Collages.List(ctx, query)
		return printPage(a, p, err)
	case "members":
		p, err := a.client.Members.List(ctx, query)
		return printPage(a, p, err)
	case "financial-records":
		p, err := a.client.FinancialRecords.List(ctx, query)
		return printPage(a, p, err)
	case "timetables":
		p, err := a.client.Timetables.List(ctx, query)
		return printPage(a, p, err)
	case "images":
		p, err := a.client.Images.List(ctx, query)
		return printPage(a, p, err)
	case "writings":
		p, err := a.client.Writings.List(ctx, query)
		return printPage(a, p, err)
	case "messages":
		p, err := a.client.Messages.List(ctx, query)
		return printPage(a, p, err)
	default:
		return fmt.Errorf("unknown resource %q", args[0])
	}
}

func (a *App) runGet(ctx context.Context, args []string) error {
	name, id, err := resourceArgs(args, "get")
	if err != nil {
		return err
	}

	switch name {
	case "districts":
		v, err := a.client.Districts.Get(ctx, id)
		return printItem(a, v, err)
	case "collages":
		v, err := a.client.Collages.Get(ctx, id)
		return printItem(a, v, err)
	case "members":
		v, err := a.client.Members.Get(ctx, id)
		return printItem(a, v, err)
	case "financial-records":
		v, err := a.client.FinancialRecords.Get(ctx, id)
		return printItem(a, v, err)
	case "timetables":
		v, err := a.client.Timetables.Get(ctx, id)
		return printItem(a, v, err)
	case "images":
		v, err := a.client.Images.Get(ctx, id)
		return printItem(a, v, err)
	case "writings":
		v, err := a.client.Writings.Get(ctx, id)
		return printItem(a, v, err)
	case "messages":
		v, err := a.client.Messages.Get(ctx, id)
		return printItem(a, v, err)
	default:
		return fmt.Errorf("unknown resource %q", name)
	}
}

func (a *App) runDelete(ctx context.Context, args []string) error {
	name, id, err := resourceArgs(args, "delete")
	if err != nil {
		return err
	}

	switch name {
	case "districts":
		err = a.client.Districts.Delete(ctx, id)
	case "collages":
		err = a.client.Collages.Delete(ctx, id)
	case "members":
		err = a.client.Members.Delete(ctx, id)
	case "financial-records":
		err = a.client.FinancialRecords.Delete(ctx, id)
	case "timetables":
		err = a.client.Timetables.Delete(ctx, id)
	case "images":
		err = a.client.Images.Delete(ctx, id)
	case "writings":
		err = a.client.Writings.Delete(ctx, id)
	case "messages":
		err = a.client.Messages.Delete(ctx, id)
	default:
		return fmt.Errorf("unknown resource %q", name)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "deleted %s/%d\n", name, id)
	return nil
}

func (a *App) runUploadImage(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: portalctl upload-image <title> <file>")
	}

	file, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer file.Close()

	image, err := a.client.UploadImage(ctx, args[0], filepath.Base(args[1]), file)
	if err != nil {
		return err
	}

	return a.printJSON(image)
}

func (a *App) runPasswordReset(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: portalctl password-reset <email>")
	}

	if err := a.client.RequestPasswordReset(ctx, args[0]); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "password reset OTP sent")
	return nil
}

func (a *App) runMenu() error {
	role := ""
	if a.session.Authenticated() {
		role = a.session.Role()
	}

	for _, item := range access.VisibleMenu(defaultMenu(), role) {
		fmt.Fprintf(a.out, "%-20s %s\n", item.Title, item.Path)
	}

	return nil
}

func defaultMenu() []access.MenuItem {
	return []access.MenuItem{
		{Title: "Dashboard", Path: "/"},
		{Title: "Districts", Path: "/districts", Roles: []string{model.RoleAdmin}},
		{Title: "Collages", Path: "/collages", Roles: []string{model.RoleAdmin}},
		{Title: "Members", Path: "/members", Roles: []string{model.RoleAdmin, model.RoleUser}},
		{Title: "Finance", Path: "/financial-records", Roles: []string{model.RoleAdmin}},
		{Title: "Timetables", Path: "/timetables"},
		{Title: "Gallery", Path: "/images"},
		{Title: "Writings", Path: "/writings"},
		{Title: "Chat", Path: "/messages", Roles: []string{model.RoleAdmin, model.RoleUser}},
	}
}

func resourceArgs(args []string, command string) (string, int64, error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf("usage: portalctl %s <resource> <id>", command)
	}

	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("invalid id %q", args[1])
	}

	return args[0], id, nil
}

// readPassword takes the password from PORTAL_PASSWORD when set, otherwise
// reads one line from stdin.
func (a *App) readPassword() (string, error) {
	if password := strings.TrimSpace(os.Getenv("PORTAL_PASSWORD")); password != "" {
		return password, nil
	}

	fmt.Fprint(a.out, "password: ")
	reader := bufio.NewReader(a.in)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}

	password := strings.TrimSpace(line)
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	return password, nil
}

func (a *App) printJSON(value any) error {
	encoder := json.NewEncoder(a.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func printPage[T any](a *App, page *model.Page[T], err error) error {
	if err != nil {
		return err
	}

	return a.printJSON(page)
}

func printItem[T any](a *App, item *T, err error) error {
	if err != nil {
		return err
	}

	return a.printJSON(item)
}
