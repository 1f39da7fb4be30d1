// Package setup is the interactive first-run form behind "ghwatch setup".
package setup

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/ghwatch/internal/credential"
	"github.com/nhle/ghwatch/internal/model"
	"github.com/nhle/ghwatch/internal/schedule"
)

// Keyring keys used for secrets entered in the form.
const (
	GitHubTokenKey     = "github-token"
	TelegramTokenKey   = "telegram-bot-token"
	MailboxPasswordKey = "mailbox-password"
)

// Form collects settings and writes them into an AppConfig. Secrets go to
// the keyring; only their references end up in the config file.
type Form struct {
	githubToken  string
	watchedRepos string
	autoWatch    bool
	schedule     string

	transport string

	telegramToken  string
	telegramChatID string

	natsURL     string
	natsSubject string

	redisAddr string
	redisKey  string

	mailHost     string
	mailPort     string
	mailUsername string
	mailPassword string
	mailTo       string

	// saveSecret stores a secret under a keyring key and returns its ref.
	saveSecret func(key, value string) (string, error)
}

// New creates a Form prefilled from cfg.
func New(cfg *model.AppConfig) *Form {
	return &Form{
		watchedRepos:   strings.Join(cfg.GitHub.WatchedRepos, ", "),
		autoWatch:      cfg.Monitoring.AutoWatchUserRepos,
		schedule:       cfg.Monitoring.Schedule,
		transport:      cfg.Delivery.Transport,
		telegramChatID: cfg.Delivery.Telegram.ChatID,
		natsURL:        cfg.Delivery.NATS.URL,
		natsSubject:    cfg.Delivery.NATS.Subject,
		redisAddr:      cfg.Delivery.Redis.Addr,
		redisKey:       cfg.Delivery.Redis.Key,
		mailHost:       cfg.Delivery.Mailbox.Host,
		mailPort:       cfg.Delivery.Mailbox.Port,
		mailUsername:   cfg.Delivery.Mailbox.Username,
		mailTo:         cfg.Delivery.Mailbox.To,
		saveSecret:     credential.SaveRef,
	}
}

// Build returns the huh form bound to f.
func (f *Form) Build(width int) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("GitHub token").
				Description("Personal access token, stored in the system keyring. Leave empty to keep using GITHUB_TOKEN").
				EchoMode(huh.EchoModePassword).
				Value(&f.githubToken),
			huh.NewInput().
				Title("Watched repositories").
				Description("Comma separated owner/name list").
				Placeholder("octocat/hello-world, acme/widget").
				Value(&f.watchedRepos).
				Validate(validateRepoList),
			huh.NewConfirm().
				Title("Discover my repositories").
				Description("Watch your most recently pushed repositories when the list is empty").
				Affirmative("Yes").
				Negative("No").
				Value(&f.autoWatch),
			huh.NewInput().
				Title("Schedule").
				Description("Cron expression or descriptor used by daemon mode").
				Placeholder("@every 20m").
				Value(&f.schedule).
				Validate(validateSchedule),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notification transport").
				Options(
					huh.NewOption("Telegram", "telegram"),
					huh.NewOption("NATS", "nats"),
					huh.NewOption("Redis list", "redis"),
					huh.NewOption("IMAP mailbox", "mailbox"),
					huh.NewOption("Log only", "log"),
				).
				Value(&f.transport),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Bot token").
				Description("Telegram bot token from @BotFather").
				EchoMode(huh.EchoModePassword).
				Value(&f.telegramToken),
			huh.NewInput().
				Title("Chat ID").
				Description("Numeric chat or channel ID").
				Value(&f.telegramChatID).
				Validate(validateChatID),
		).WithHideFunc(func() bool { return f.transport != "telegram" }),
		huh.NewGroup(
			huh.NewInput().
				Title("NATS URL").
				Placeholder("nats://127.0.0.1:4222").
				Value(&f.natsURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Subject").
				Placeholder("ghwatch.notifications").
				Value(&f.natsSubject).
				Validate(validateRequired("Subject")),
		).WithHideFunc(func() bool { return f.transport != "nats" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Redis address").
				Placeholder("127.0.0.1:6379").
				Value(&f.redisAddr).
				Validate(validateRequired("Address")),
			huh.NewInput().
				Title("List key").
				Placeholder("ghwatch:notifications").
				Value(&f.redisKey).
				Validate(validateRequired("List key")),
		).WithHideFunc(func() bool { return f.transport != "redis" }),
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP host").
				Placeholder("imap.example.com").
				Value(&f.mailHost).
				Validate(validateRequired("IMAP host")),
			huh.NewInput().
				Title("IMAP port").
				Placeholder("993").
				Value(&f.mailPort).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Value(&f.mailUsername).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description("Stored in the system keyring").
				EchoMode(huh.EchoModePassword).
				Value(&f.mailPassword),
			huh.NewInput().
				Title("To").
				Description("Recipient shown on appended messages").
				Placeholder("me@example.com").
				Value(&f.mailTo),
		).WithHideFunc(func() bool { return f.transport != "mailbox" }),
	).WithWidth(width)
}

// Apply writes the collected values into cfg and stores any entered
// secrets in the keyring.
func (f *Form) Apply(cfg *model.AppConfig) error {
	cfg.GitHub.WatchedRepos = splitRepos(f.watchedRepos)
	cfg.Monitoring.AutoWatchUserRepos = f.autoWatch
	if s := strings.TrimSpace(f.schedule); s != "" {
		cfg.Monitoring.Schedule = s
	}
	cfg.Delivery.Transport = f.transport

	if err := f.storeSecret(GitHubTokenKey, f.githubToken, &cfg.GitHub.TokenRef); err != nil {
		return err
	}

	switch f.transport {
	case "telegram":
		cfg.Delivery.Telegram.ChatID = strings.TrimSpace(f.telegramChatID)
		if err := f.storeSecret(TelegramTokenKey, f.telegramToken, &cfg.Delivery.Telegram.BotTokenRef); err != nil {
			return err
		}
	case "nats":
		cfg.Delivery.NATS.URL = strings.TrimSpace(f.natsURL)
		cfg.Delivery.NATS.Subject = strings.TrimSpace(f.natsSubject)
	case "redis":
		cfg.Delivery.Redis.Addr = strings.TrimSpace(f.redisAddr)
		cfg.Delivery.Redis.Key = strings.TrimSpace(f.redisKey)
	case "mailbox":
		cfg.Delivery.Mailbox.Host = strings.TrimSpace(f.mailHost)
		cfg.Delivery.Mailbox.Port = strings.TrimSpace(f.mailPort)
		cfg.Delivery.Mailbox.Username = strings.TrimSpace(f.mailUsername)
		cfg.Delivery.Mailbox.To = strings.TrimSpace(f.mailTo)
		if err := f.storeSecret(MailboxPasswordKey, f.mailPassword, &cfg.Delivery.Mailbox.PasswordRef); err != nil {
			return err
		}
	}

	return cfg.Validate()
}

// storeSecret saves a non-empty value under key and points ref at it.
// An empty value leaves ref unchanged.
func (f *Form) storeSecret(key, value string, ref *string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	saved, err := f.saveSecret(key, value)
	if err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	*ref = saved
	return nil
}

func splitRepos(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// --- Validators ---

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., nats://127.0.0.1:4222)")
	}
	return nil
}

func validatePort(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("port is required")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}

func validateRepoList(s string) error {
	for _, r := range splitRepos(s) {
		if !model.ValidRepoName(r) {
			return fmt.Errorf("%q is not owner/name", r)
		}
	}
	return nil
}

func validateSchedule(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	_, err := schedule.ParseSpec(s)
	return err
}

func validateChatID(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return fmt.Errorf("chat ID must be numeric")
	}
	return nil
}
