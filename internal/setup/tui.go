// Package setup is the interactive configuration wizard.
package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/gapeva/poolbot/config"
	"github.com/gapeva/poolbot/internal/domain"
)

const DefaultConfigFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers collected by the wizard.
type Answers struct {
	Platform      string
	Pair          string
	PollInterval  string
	KlineInterval string
	OrderFraction string
	MaxDrawdown   string
	Cooldown      string
	DatabaseURL   string
	APIAddr       string
}

// DefaultAnswers pre-filled wizard values.
func DefaultAnswers() Answers {
	return Answers{
		Platform:      config.PlatformSimulate,
		Pair:          "BTC_USDT",
		PollInterval:  "60s",
		KlineInterval: "4h",
		OrderFraction: "0.99",
		MaxDrawdown:   "0.05",
		Cooldown:      "24h",
		DatabaseURL:   "sqlite://poolbot.db",
		APIAddr:       ":8000",
	}
}

// ConfigTmp converts the answers into the YAML document.
func (a Answers) ConfigTmp() config.ConfigTmp {
	var tmp config.ConfigTmp
	tmp.Platform = a.Platform
	tmp.Pair = strings.ToUpper(strings.TrimSpace(a.Pair))
	tmp.PollInterval = a.PollInterval
	tmp.KlineInterval = a.KlineInterval
	tmp.OrderFraction = a.OrderFraction
	tmp.Risk.MaxDrawdown = a.MaxDrawdown
	tmp.Risk.Cooldown = a.Cooldown
	tmp.Database.URL = a.DatabaseURL
	tmp.API.Addr = a.APIAddr
	return tmp
}

// WriteConfig renders answers as YAML into path.
func WriteConfig(path string, a Answers) error {
	data, err := yaml.Marshal(a.ConfigTmp())
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}
	return nil
}

func header(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("POOLBOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
// Secrets are never asked for; they belong in the environment or a .env file.
func RunTUI(path string) error {
	if path == "" {
		path = DefaultConfigFile
	}
	a := DefaultAnswers()
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("POOLBOT CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Configure the pooled trading bot.\n"))

	header("STEP 1: PLATFORM")
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Exchange Platform").
				Options(
					huh.NewOption("Binance", config.PlatformBinance),
					huh.NewOption("Bybit", config.PlatformBybit),
					huh.NewOption("Simulation (paper trading)", config.PlatformSimulate),
				).
				Value(&a.Platform),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 2: ASSET")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trading Pair").
				Description("BASE_QUOTE, e.g. BTC_USDT").
				Value(&a.Pair).
				Validate(validatePair),
			huh.NewInput().
				Title("Order size").
				Description("Share of the quote balance spent on an entry (0-1]").
				Value(&a.OrderFraction).
				Validate(validateFraction(false)),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 3: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Tick interval").
				Description("Duration string (e.g. 30s, 1m)").
				Value(&a.PollInterval).
				Validate(validateDuration),
			huh.NewInput().
				Title("Candle interval").
				Description("Exchange kline interval (e.g. 15m, 1h, 4h)").
				Value(&a.KlineInterval),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 4: RISK")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Max drawdown").
				Description("Fraction of peak equity that freezes trading (e.g. 0.05)").
				Value(&a.MaxDrawdown).
				Validate(validateFraction(true)),
			huh.NewInput().
				Title("Freeze cooldown").
				Description("How long trading stays frozen (e.g. 24h)").
				Value(&a.Cooldown).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 5: STORAGE AND API")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Database URL").
				Description("postgres://... or sqlite://path").
				Value(&a.DatabaseURL),
			huh.NewInput().
				Title("API listen address").
				Value(&a.APIAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	header("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Platform: %s\nPair: %s\nOrder size: %s\nTick: %s\nCandles: %s\nMax drawdown: %s\nCooldown: %s\nDatabase: %s\nAPI: %s\n",
		a.Platform, a.Pair, a.OrderFraction, a.PollInterval, a.KlineInterval, a.MaxDrawdown, a.Cooldown, a.DatabaseURL, a.APIAddr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if err := WriteConfig(path, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	if a.Platform != config.PlatformSimulate {
		fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Set the exchange API keys in the environment or a .env file before starting the bot."))
	}
	return nil
}

func validatePair(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("pair cannot be empty")
	}
	if _, err := domain.ParsePair(s); err != nil {
		return fmt.Errorf("invalid format: must be BASE_QUOTE (e.g. BTC_USDT)")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a duration like 30s or 24h")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

// validateFraction accepts (0, 1], or (0, 1) when exclusive is set.
func validateFraction(exclusive bool) func(string) error {
	one := decimal.NewFromInt(1)
	return func(s string) error {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("must be a valid number")
		}
		if !d.IsPositive() || d.GreaterThan(one) || (exclusive && d.Equal(one)) {
			return fmt.Errorf("must be between 0 and 1")
		}
		return nil
	}
}
