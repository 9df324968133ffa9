// Command syncback reconciles the Sent mailbox of configured accounts
// after messages are sent.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/pflag"

	"github.com/nhle/mail-syncback/internal/app"
	"github.com/nhle/mail-syncback/internal/credential"
	"github.com/nhle/mail-syncback/internal/logging"
	"github.com/nhle/mail-syncback/internal/model"
	"github.com/nhle/mail-syncback/internal/syncback"
	"github.com/nhle/mail-syncback/internal/theme"
)

const usage = `usage: syncback <command> [flags]

commands:
  login      store an account's IMAP password in the system keyring
  folders    refresh an account's mailbox list and roles
  import     store a canonical message read from a JSON file
  enqueue    queue a sent-folder reconciliation request
  reconcile  reconcile one message now and print its snapshot
  status     show a queued request
  run        process queued requests until interrupted`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, theme.HelpStyle.Render(usage))
		return 2
	}

	var err error
	switch args[0] {
	case "login":
		err = loginCmd(args[1:], stdout, stderr)
	case "folders":
		err = foldersCmd(args[1:], stdout, stderr)
	case "import":
		err = importCmd(args[1:], stdout, stderr)
	case "status":
		err = statusCmd(args[1:], stdout, stderr)
	case "enqueue":
		err = enqueueCmd(args[1:], stdout, stderr)
	case "reconcile":
		err = reconcileCmd(args[1:], stdout, stderr)
	case "run":
		err = runCmd(args[1:], stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, theme.HelpStyle.Render(usage))
		return 0
	default:
		fmt.Fprintln(stderr, theme.ErrorStyle.Render("unknown command: "+args[0]))
		fmt.Fprintln(stderr, theme.HelpStyle.Render(usage))
		return 2
	}

	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, theme.ErrorStyle.Render("error: ")+err.Error())
		return 1
	}
	return 0
}

// commonFlags are shared by every command.
type commonFlags struct {
	configPath string
	accountID  string
}

func newFlagSet(name string, stderr io.Writer, c *commonFlags, withAccount bool) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&c.configPath, "config", "c", model.DefaultConfigPath(), "path to config file")
	if withAccount {
		fs.StringVarP(&c.accountID, "account", "a", "", "account id")
	}
	return fs
}

// requestFlags holds the inputs of enqueue and reconcile.
type requestFlags struct {
	commonFlags
	messageID        string
	sentPerRecipient bool
}

func parseRequestFlags(name string, args []string, stderr io.Writer) (*requestFlags, error) {
	var f requestFlags
	fs := newFlagSet(name, stderr, &f.commonFlags, true)
	fs.StringVarP(&f.messageID, "message", "m", "", "local message id")
	fs.BoolVar(&f.sentPerRecipient, "per-recipient", false, "message was sent once per recipient")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.accountID == "" || f.messageID == "" {
		return nil, fmt.Errorf("%s: --account and --message are required", name)
	}
	return &f, nil
}

func (f *requestFlags) props() syncback.EnsureInSentProps {
	return syncback.EnsureInSentProps{
		MessageID:        f.messageID,
		SentPerRecipient: f.sentPerRecipient,
	}
}

// openApp loads config and wires the application.
func openApp(ctx context.Context, configPath string, stderr io.Writer) (*app.App, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Logging, stderr)
	return app.New(ctx, cfg, log)
}

func loginCmd(args []string, stdout, stderr io.Writer) error {
	var c commonFlags
	fs := newFlagSet("login", stderr, &c, true)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := model.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	acct := cfg.Account(c.accountID)
	if acct == nil {
		return fmt.Errorf("login: account %q is not configured in %s", c.accountID, c.configPath)
	}

	var password string
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP password").
				Description(fmt.Sprintf("%s on %s", acct.LoginName(), acct.IMAPHost)).
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("password is required")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if err := credential.SetIMAPPassword(acct.ID, password); err != nil {
		return err
	}

	fmt.Fprintln(stdout, loginSummary(acct))
	return nil
}

// loginSummary is the line printed after a password is saved.
func loginSummary(acct *model.Account) string {
	return theme.SuccessStyle.Render("saved") + " password for " + acct.ID + " " +
		theme.ProviderLabelStyle(acct.Provider).Render(string(acct.Provider))
}

func foldersCmd(args []string, stdout, stderr io.Writer) error {
	var c commonFlags
	fs := newFlagSet("folders", stderr, &c, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.accountID == "" {
		return errors.New("folders: --account is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, c.configPath, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	folders, err := a.SyncFolders(ctx, c.accountID)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, theme.HeaderStyle.Render(c.accountID))
	for _, f := range folders {
		role := f.Role
		if role == "" {
			role = "-"
		}
		fmt.Fprintf(stdout, "%-8s %s\n", role, f.Path)
	}
	return nil
}

func importCmd(args []string, stdout, stderr io.Writer) error {
	var (
		c    commonFlags
		path string
	)
	fs := newFlagSet("import", stderr, &c, true)
	fs.StringVarP(&path, "file", "f", "", "message JSON file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.accountID == "" || path == "" {
		return errors.New("import: --account and --file are required")
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("import: reading %s: %w", path, err)
	}

	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("import: decoding %s: %w", path, err)
	}

	ctx := context.Background()
	a, err := openApp(ctx, c.configPath, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.ImportMessage(ctx, c.accountID, msg)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, theme.SuccessStyle.Render("imported")+" "+id)
	return nil
}

func statusCmd(args []string, stdout, stderr io.Writer) error {
	var (
		c         commonFlags
		requestID string
	)
	fs := newFlagSet("status", stderr, &c, false)
	fs.StringVarP(&requestID, "request", "r", "", "request id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if requestID == "" {
		return errors.New("status: --request is required")
	}

	ctx := context.Background()
	a, err := openApp(ctx, c.configPath, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := a.Request(ctx, requestID)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s %s attempts=%d\n",
		theme.RequestStatusStyle(req.Status).Render(req.Status), req.ID, req.Attempts)
	if req.Error != "" {
		fmt.Fprintln(stdout, theme.ErrorStyle.Render(req.Error))
	}
	return nil
}

func enqueueCmd(args []string, stdout, stderr io.Writer) error {
	f, err := parseRequestFlags("enqueue", args, stderr)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, f.configPath, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.Enqueue(ctx, f.accountID, f.props())
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, theme.RequestStatusStyle(model.RequestStatusNew).Render(model.RequestStatusNew)+" "+id)
	return nil
}

func reconcileCmd(args []string, stdout, stderr io.Writer) error {
	f, err := parseRequestFlags("reconcile", args, stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, f.configPath, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	msg, err := a.Reconcile(ctx, f.accountID, f.props())
	if err != nil {
		return err
	}

	snapshot, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	fmt.Fprintln(stdout, theme.HeaderStyle.Render("sent folder reconciled"))
	fmt.Fprintln(stdout, theme.SnapshotStyle.Render(string(snapshot)))
	return nil
}

func runCmd(args []string, stderr io.Writer) error {
	var c commonFlags
	fs := newFlagSet("run", stderr, &c, false)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, c.configPath, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := a.Runner()
	runner.Start(ctx)
	<-ctx.Done()
	runner.Stop()
	return nil
}
