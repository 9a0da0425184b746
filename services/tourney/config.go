package tourney

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"repeatbot/lib/configutil"
	"repeatbot/lib/scrapers/repeatgg"

	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

const ConfigFile = "repeatbot.json5"

type Listing struct {
	Label string `json:"label"`
	URL   string `json:"url" validate:"required,url"`
}

type AuthConfig struct {
	// one of auto, snapshot, token, vault, profile
	Source Source `json:"source" validate:"omitempty,oneof=auto snapshot token vault profile"`
	// base64 encoded snapshot, normally from REPEAT_GG_AUTH_DATA
	Data         string `json:"data"`
	SessionToken string `json:"session_token"`
	VaultDir     string `json:"vault_dir"`
	VaultKey     string `json:"vault_key"`
	// a personal Chrome profile to copy the session from, e.g.
	// ~/.config/google-chrome/Default
	ImportProfile string `json:"import_profile"`
	// skip the plain HTTP check made before the browser starts
	SkipPreflight bool `json:"skip_preflight"`
}

// Millis is a duration in milliseconds. Config fields hold a *Millis so
// that an explicit 0 is kept instead of being replaced by the default.
type Millis int

func NewMillis(v int) *Millis {
	m := Millis(v)
	return &m
}

// Duration is 0 for an unset value.
func (m *Millis) Duration() time.Duration {
	if m == nil {
		return 0
	}
	return time.Duration(*m) * time.Millisecond
}

type BrowserConfig struct {
	ExecPath   string `json:"exec_path"`
	ProfileDir string `json:"profile_dir"`
	// visible browsers start maximized and stay open for LingerMs after
	// the run
	Visible     bool    `json:"visible"`
	UserAgent   string  `json:"user_agent"`
	RemoteURL   string  `json:"remote_url" validate:"omitempty,url"`
	LingerMs    *Millis `json:"linger_ms" validate:"omitempty,gte=0"`
	OpTimeoutMs *Millis `json:"op_timeout_ms" validate:"omitempty,gte=0"`
	ForceUnlock bool    `json:"force_unlock"`
}

type JoinConfig struct {
	// 0 means unlimited, counted across all listings
	MaxCandidates int     `json:"max_candidates" validate:"gte=0"`
	ListingWaitMs *Millis `json:"listing_wait_ms" validate:"omitempty,gte=0"`
	DetailWaitMs  *Millis `json:"detail_wait_ms" validate:"omitempty,gte=0"`
	DialogWaitMs  *Millis `json:"dialog_wait_ms" validate:"omitempty,gte=0"`
	DelayMs       *Millis `json:"delay_ms" validate:"omitempty,gte=0"`
	// page HTML and a screenshot are written here for candidates that
	// end in an error
	DebugDir string `json:"debug_dir"`
}

type ClaimConfig struct {
	Strategy   Strategy `json:"strategy" validate:"omitempty,oneof=bulk itemized none"`
	URL        string   `json:"url" validate:"omitempty,url"`
	PageWaitMs *Millis  `json:"page_wait_ms" validate:"omitempty,gte=0"`
	Caption    string   `json:"caption"`
}

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port" validate:"omitempty,gt=0,lt=65536"`
	EmailAddress string   `json:"email_address" validate:"omitempty,email"`
	Password     string   `json:"password"`
	To           []string `json:"to" validate:"omitempty,dive,email"`
}

func (c SmtpConfig) Enabled() bool {
	return c.Server != "" && len(c.To) > 0
}

type NotifyConfig struct {
	Smtp SmtpConfig `json:"smtp"`
}

// ScheduleConfig is only read by the daemon command.
type ScheduleConfig struct {
	// standard 5 field cron syntax or a descriptor like @every 6h
	Spec string `json:"spec"`
	// IANA name, local time when empty
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

// Location is the zone schedules are evaluated in.
func (c ScheduleConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

type Config struct {
	Listings []Listing      `json:"listings" validate:"required,min=1,dive"`
	Auth     AuthConfig     `json:"auth"`
	Browser  BrowserConfig  `json:"browser"`
	Join     JoinConfig     `json:"join"`
	Claim    ClaimConfig    `json:"claim"`
	Notify   NotifyConfig   `json:"notify"`
	Schedule ScheduleConfig `json:"schedule"`
}

func DefaultConfig() Config {
	return Config{
		Listings: []Listing{{Label: "Brawl Stars", URL: repeatgg.DefaultListingURL}},
		Auth: AuthConfig{
			Source:   SourceAuto,
			VaultDir: "<state>/vault",
		},
		Browser: BrowserConfig{
			ProfileDir:  "<state>/chrome_automation_profile",
			LingerMs:    NewMillis(10_000),
			OpTimeoutMs: NewMillis(30_000),
		},
		Join: JoinConfig{
			ListingWaitMs: NewMillis(15_000),
			DetailWaitMs:  NewMillis(10_000),
			DialogWaitMs:  NewMillis(1_000),
			DelayMs:       NewMillis(1_000),
		},
		Claim: ClaimConfig{
			Strategy:   StrategyBulk,
			URL:        repeatgg.ClaimPrizesURL,
			PageWaitMs: NewMillis(10_000),
			Caption:    repeatgg.DefaultClaimCaption,
		},
		Notify:   NotifyConfig{Smtp: SmtpConfig{Port: 587}},
		Schedule: ScheduleConfig{Spec: "@every 6h"},
	}
}

// ApplyEnv overlays the environment variables understood by the bot.
func (c *Config) ApplyEnv() {
	configutil.EnvString("REPEAT_GG_AUTH_DATA", &c.Auth.Data)
	configutil.EnvString("REPEAT_GG_SESSION_TOKEN", &c.Auth.SessionToken)
	configutil.EnvString("REPEATBOT_VAULT_KEY", &c.Auth.VaultKey)
	configutil.EnvString("CHROME_PATH", &c.Browser.ExecPath)

	var headless bool
	if configutil.EnvBool("REPEATBOT_HEADLESS", &headless) {
		c.Browser.Visible = !headless
	}

	var profilePath, profileName string
	if configutil.EnvString("PROFILE_PATH", &profilePath) {
		profileName = "Default"
		configutil.EnvString("PROFILE_NAME", &profileName)
		c.Auth.ImportProfile = filepath.Join(profilePath, profileName)
	}
}

// Unattended reports whether the process runs in CI or a hosted job, where
// nobody can log in interactively and no display is available.
func Unattended() bool {
	return configutil.AnySet("CI", "GITHUB_ACTIONS", "K_SERVICE")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return crerr.WithHint(
			crerr.Wrap(err, "invalid configuration"),
			"check "+ConfigFile+" and its .local override",
		)
	}
	return nil
}

// Resolve expands <state> paths in place.
func (c *Config) Resolve() error {
	for _, p := range []*string{&c.Browser.ProfileDir, &c.Auth.VaultDir, &c.Join.DebugDir} {
		if *p == "" {
			continue
		}
		resolved, err := configutil.ResolvePath(*p)
		if err != nil {
			return err
		}
		*p = resolved
	}
	return nil
}

// LoadConfig reads repeatbot.json5 (searched upward from the working
// directory, optional), applies environment overrides and defaults, then
// validates. An explicit path must exist.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	var err error
	if path != "" {
		cfg, err = configutil.ReadConfig[Config](path)
	} else {
		cfg, err = configutil.ReadRecursively[Config](ConfigFile)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	}
	if err != nil {
		return Config{}, crerr.WithHint(
			crerr.Wrap(err, "read config"),
			"the config file is JSON5, see repeatbot.example.json5",
		)
	}

	cfg.ApplyEnv()
	if err := configutil.ApplyDefaults(&cfg, DefaultConfig()); err != nil {
		return Config{}, err
	}
	if Unattended() {
		cfg.Browser.Visible = false
	}
	if err := cfg.Resolve(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}
