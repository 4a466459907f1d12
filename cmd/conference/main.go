// conference is a terminal multi-user chat client. It connects one XMPP
// account, joins the configured and bookmarked rooms, and takes commands
// such as /join, /say and /leave on its input line.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/meszmate/conference/internal/app"
	"github.com/meszmate/conference/internal/config"
	"github.com/meszmate/conference/internal/logging"
	"github.com/meszmate/conference/internal/storage/sqlite"
	"github.com/meszmate/conference/internal/ui"
	"github.com/meszmate/conference/internal/ui/theme"
)

// Keys in the app_state table
const (
	stateAccount = "last_account"
	stateTheme   = "theme"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, accountJID, password, server, nick, themeName string
	var port int
	var debug bool

	flagSet := pflag.NewFlagSet("conference", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to config.toml (default: $XDG_CONFIG_HOME/conference/config.toml)")
	flagSet.StringVarP(&accountJID, "account", "a", "", "account JID from accounts.toml (default: general.account, else the last one used, else the first)")
	flagSet.StringVar(&password, "password", "", "password for a session-only account not in accounts.toml")
	flagSet.StringVar(&server, "server", "", "server host to connect to instead of the JID's domain")
	flagSet.IntVar(&port, "port", 5222, "server port")
	flagSet.StringVarP(&nick, "nick", "n", "", "default room nickname")
	flagSet.StringVar(&themeName, "theme", "", "color theme (default: the last one used)")
	flagSet.BoolVarP(&debug, "debug", "d", false, "write debug output to the log file")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if nick != "" {
		cfg.MUC.DefaultNick = nick
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	// The terminal belongs to the UI, so logs only go to the file.
	if err := logging.Init(logging.Config{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Close()

	store := app.OpenStorage(cfg)

	if accountJID == "" {
		accountJID = cfg.General.Account
	}

	acc, err := selectAccount(accountJID, loadState(store, stateAccount), password, server, port)
	if err != nil {
		closeStorage(store)
		return err
	}
	if !acc.Session {
		saveState(store, stateAccount, acc.JID)
	}

	paths, err := config.GetPaths()
	if err != nil {
		closeStorage(store)
		return err
	}
	themes := theme.NewManager(filepath.Join(paths.ConfigDir, "themes"))
	if err := selectTheme(themes, themeName, loadState(store, stateTheme)); err != nil {
		closeStorage(store)
		return err
	}
	saveState(store, stateTheme, themes.CurrentName())

	application, err := app.New(cfg, acc, store)
	if err != nil {
		closeStorage(store)
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer application.Close()

	fmt.Printf("connecting as %s\n", acc.JID)
	if err := application.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	model := ui.NewModel(application, themes).OnThemeChange(func(name string) {
		saveState(store, stateTheme, name)
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	paths, err := config.GetPaths()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadFile(path, paths)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func loadState(store *sqlite.DB, key string) string {
	if store == nil {
		return ""
	}
	value, err := store.GetState(key)
	if err != nil {
		logging.Warn("failed to read %s: %v", key, err)
	}
	return value
}

func saveState(store *sqlite.DB, key, value string) {
	if store == nil {
		return
	}
	if err := store.SetState(key, value); err != nil {
		logging.Warn("failed to save %s: %v", key, err)
	}
}

func closeStorage(store *sqlite.DB) {
	if store != nil {
		store.Close()
	}
}

// selectTheme applies the requested theme, or else the remembered one, or
// else the default. Only an explicitly requested theme must exist.
func selectTheme(themes *theme.Manager, requested, remembered string) error {
	if requested != "" {
		if err := themes.SetTheme(requested); err != nil {
			return fmt.Errorf("%w (available: %s)", err, strings.Join(themes.AvailableThemes(), ", "))
		}
		return nil
	}
	if remembered != "" {
		if err := themes.SetTheme(remembered); err == nil {
			return nil
		}
		logging.Warn("remembered theme %s is no longer available", remembered)
	}
	return themes.SetTheme("default")
}

// selectAccount picks the account to connect. An explicit JID and password
// make a session-only account. Otherwise the account is looked up in
// accounts.toml: the requested one, else the last one used, else the first.
func selectAccount(jid, remembered, password, server string, port int) (config.Account, error) {
	if jid != "" && password != "" {
		return config.Account{
			JID:      jid,
			Password: password,
			Server:   server,
			Port:     port,
			Resource: "conference",
			Session:  true,
		}, nil
	}

	accounts, err := config.LoadAccounts()
	if err != nil {
		return config.Account{}, err
	}

	acc, ok := accounts.Find(jid)
	if jid == "" && remembered != "" {
		if last, found := accounts.Find(remembered); found {
			acc, ok = last, true
		} else {
			logging.Warn("last used account %s is not in accounts.toml", remembered)
		}
	}
	if !ok {
		if jid == "" {
			return config.Account{}, fmt.Errorf("no accounts configured; add one to accounts.toml or pass --account and --password")
		}
		return config.Account{}, fmt.Errorf("account %s not found in accounts.toml", jid)
	}
	if server != "" {
		acc.Server = server
	}
	return acc, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: conference [flags]\n\nFlags:\n")
	flagSet.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	for _, line := range app.Help() {
		fmt.Fprintf(os.Stderr, "  %s\n", line)
	}
	fmt.Fprintf(os.Stderr, "  /theme [name]\n")
}
