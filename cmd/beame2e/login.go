package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"beame2e/internal/browser"
	"beame2e/internal/cdp"
	"beame2e/internal/harness"
	"beame2e/internal/pw"
	"beame2e/internal/session"
	"beame2e/pkg/model"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in, wait for the app bootstrap and cache the session",
	Long: `Log in with the configured or given credentials. With --token-only the
credentials are exchanged for an access token and printed without a browser.
Otherwise a browser tab is driven through the login and the bootstrap
sequence, and the resulting localStorage is cached in the session store.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var (
	loginEmail     string
	loginPassword  string
	loginUI        bool
	loginTokenOnly bool
	loginEngine    string
	loginTarget    string
)

func init() {
	f := loginCmd.Flags()
	f.StringVar(&loginEmail, "email", "", "user email (defaults to user.email)")
	f.StringVar(&loginPassword, "password", "", "user password (defaults to user.password)")
	f.BoolVar(&loginUI, "ui", false, "log in through the login form instead of the token API")
	f.BoolVar(&loginTokenOnly, "token-only", false, "only exchange credentials and print the API token")
	f.StringVar(&loginEngine, "engine", "playwright", "browser engine: playwright or cdp")
	f.StringVar(&loginTarget, "target", "", "DevTools target id for the cdp engine (first page when empty)")
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	opts := model.LoginOptions{Email: loginEmail, Password: loginPassword, UI: loginUI, WithSession: true}
	if opts.Email == "" {
		opts.Email = cfg.User.Email
	}
	if opts.Password == "" {
		opts.Password = cfg.User.Password
	}

	if loginTokenOnly {
		b := session.NewBridge(session.Options{Config: cfg, Logger: log})
		tok, err := b.APIToken(ctx, opts.Email, opts.Password)
		if err != nil {
			return err
		}
		return printJSON(cmd, tok)
	}

	cfg.Session.Persist = true
	suite, err := harness.NewSuite(cfg, log)
	if err != nil {
		return err
	}
	defer suite.Close()

	tab, done, err := openTab(ctx)
	if err != nil {
		return err
	}
	defer done()

	c, err := suite.NewCase(ctx, "cli-login", tab)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Login(opts); err != nil {
		return err
	}
	tok, err := c.Bridge().StoredAccessToken(c.Context(), tab)
	if err != nil {
		return err
	}
	log.Info("登录完成，会话已缓存", "email", opts.Email)
	return printJSON(cmd, tok)
}

// openTab 按引擎打开标签页，返回的 done 负责释放浏览器资源
func openTab(ctx context.Context) (browser.Tab, func(), error) {
	switch loginEngine {
	case "cdp":
		m := cdp.New(cfg.Browser.DevToolsURL, cdp.Options{Workers: 8, Logger: log})
		tab, err := m.Attach(ctx, loginTarget)
		if err != nil {
			_ = m.Close()
			return nil, nil, err
		}
		return tab, func() {
			if err := m.Detach(tab.ID()); err != nil {
				log.Warn("分离页面目标失败", "target", tab.ID(), "error", err)
			}
			_ = m.Close()
		}, nil
	case "playwright":
		b, err := pw.Launch(cfg.Browser.Headless, log)
		if err != nil {
			return nil, nil, err
		}
		page, err := b.NewPage()
		if err != nil {
			_ = b.Close()
			return nil, nil, err
		}
		return page, func() { _ = b.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine %q", loginEngine)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
