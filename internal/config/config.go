package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "Asia/Seoul"
	configPathEnv     = "BRIEFING_SCANNER_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	serverPortEnv     = "PORT"
)

// Config holds high-level settings required across the application.
type Config struct {
	Tickers       []string              `yaml:"tickers"`
	Rules         map[string]TickerRule `yaml:"rules"`
	Source        SourceConfig          `yaml:"source"`
	Orchestrator  OrchestratorConfig    `yaml:"orchestrator"`
	Delivery      DeliveryConfig        `yaml:"delivery"`
	Notifications NotificationConfig    `yaml:"notifications"`
	Database      DatabaseConfig        `yaml:"database"`
	Scheduler     SchedulerConfig       `yaml:"scheduler"`
	Server        ServerConfig          `yaml:"server"`
	Browser       BrowserConfig         `yaml:"browser"`
	Market        MarketConfig          `yaml:"market"`
	Logging       LoggingConfig         `yaml:"logging"`
}

// TickerRule carries the per-ticker quirks of the source site: which
// section path serves the page, how long rendering is allowed to take,
// and an optional synthesis template for pages that load empty.
type TickerRule struct {
	Section         string `yaml:"section"`
	FullName        string `yaml:"fullName"`
	PageWaitSeconds int    `yaml:"pageWaitSeconds"`
	SettleSeconds   int    `yaml:"settleSeconds"`
	GapFillTemplate string `yaml:"gapFillTemplate"`
}

// PageWait bounds navigation plus the readiness wait for the page body.
func (r TickerRule) PageWait() time.Duration {
	if r.PageWaitSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(r.PageWaitSeconds) * time.Second
}

// Settle is the extra pause after readiness for client-side rendering.
func (r TickerRule) Settle() time.Duration {
	if r.SettleSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(r.SettleSeconds) * time.Second
}

// SectionPath is the site path segment serving this ticker's pages.
func (r TickerRule) SectionPath() string {
	if r.Section == "" {
		return "etf"
	}
	return r.Section
}

// SourceConfig names the markers and container identifiers the extractor
// matches against the source site's rendered markup. All rendering
// variants observed so far are listed here rather than hardcoded.
type SourceConfig struct {
	Origin             string            `yaml:"origin"`
	HeadingTag         string            `yaml:"headingTag"`
	HeadingMarker      string            `yaml:"headingMarker"`
	BriefingContainers []string          `yaml:"briefingContainers"`
	ItemContainer      string            `yaml:"itemContainer"`
	ItemBriefing       string            `yaml:"itemBriefing"`
	ItemInfo           string            `yaml:"itemInfo"`
	ArticleBlock       string            `yaml:"articleBlock"`
	ArticleTitle       string            `yaml:"articleTitle"`
	ArticleSource      string            `yaml:"articleSource"`
	SubjectMarker      string            `yaml:"subjectMarker"`
	RoseMarker         string            `yaml:"roseMarker"`
	FellMarker         string            `yaml:"fellMarker"`
	CurrencyMarker     string            `yaml:"currencyMarker"`
	TypeParam          string            `yaml:"typeParam"`
	TypeValue          string            `yaml:"typeValue"`
	IDParam            string            `yaml:"idParam"`
	DefaultID          string            `yaml:"defaultId"`
	ExtraParams        map[string]string `yaml:"extraParams"`
}

// OrchestratorConfig bounds one batch run.
type OrchestratorConfig struct {
	PerTickerSeconds int `yaml:"perTickerSeconds"`
	AggregateSeconds int `yaml:"aggregateSeconds"`
	PacingSeconds    int `yaml:"pacingSeconds"`
}

// PerTicker is the budget for a single ticker's fetch and extraction.
func (o OrchestratorConfig) PerTicker() time.Duration {
	if o.PerTickerSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(o.PerTickerSeconds) * time.Second
}

// Aggregate is the budget for the whole batch.
func (o OrchestratorConfig) Aggregate() time.Duration {
	if o.AggregateSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(o.AggregateSeconds) * time.Second
}

// Pacing is the idle gap inserted after each ticker.
func (o OrchestratorConfig) Pacing() time.Duration {
	if o.PacingSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(o.PacingSeconds) * time.Second
}

// DeliveryConfig tunes chunking and the optional image rendering path.
type DeliveryConfig struct {
	MaxChunkLength    int     `yaml:"maxChunkLength"`
	AsImage           *bool   `yaml:"asImage"`
	MessagesPerSecond float64 `yaml:"messagesPerSecond"`
}

// ChunkLength is the maximum rune count of one delivered text payload.
func (d DeliveryConfig) ChunkLength() int {
	if d.MaxChunkLength <= 0 {
		return 3000
	}
	return d.MaxChunkLength
}

// ImageMode reports whether briefings should be rendered as PNG cards.
func (d DeliveryConfig) ImageMode() bool {
	return d.AsImage != nil && *d.AsImage
}

// SendRate is the channel's outbound message rate in messages per second.
func (d DeliveryConfig) SendRate() float64 {
	if d.MessagesPerSecond <= 0 {
		return 1
	}
	return d.MessagesPerSecond
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN
// disables snapshot archiving.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines when the daily run should execute.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	RunOnStart     *bool          `yaml:"runOnStart"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Immediate reports whether a run fires right after startup in addition
// to the cron schedule.
func (s SchedulerConfig) Immediate() bool {
	return s.RunOnStart == nil || *s.RunOnStart
}

// ServerConfig describes the HTTP trigger and browse API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// BrowserConfig tunes the headless rendering session.
type BrowserConfig struct {
	Headless  *bool  `yaml:"headless"`
	UserAgent string `yaml:"userAgent"`
}

// IsHeadless defaults to true; set headless: false for local debugging.
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// MarketConfig describes the daily price history endpoint.
type MarketConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// LoggingConfig selects log level and an optional mirror file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Rule returns the per-ticker rule, falling back to an ETF-section rule
// with default waits for unknown tickers.
func (c Config) Rule(ticker string) TickerRule {
	if rule, ok := c.Rules[ticker]; ok {
		return rule
	}
	return TickerRule{Section: "etf"}
}

// PageURL builds the briefing page address for a ticker.
func (c Config) PageURL(ticker string) string {
	return fmt.Sprintf("%s/%s/%s/", c.Source.Origin, c.Rule(ticker).SectionPath(), ticker)
}

// Load reads YAML configuration from path (or from the path named by the
// BRIEFING_SCANNER_CONFIG environment variable when path is empty) and
// applies environment overrides on top.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Tickers) == 0 {
		cfg.Tickers = defaultConfig().Tickers
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(serverPortEnv); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if len(override.Tickers) > 0 {
		base.Tickers = override.Tickers
	}
	for ticker, rule := range override.Rules {
		merged := base.Rules[ticker]
		if rule.Section != "" {
			merged.Section = rule.Section
		}
		if rule.FullName != "" {
			merged.FullName = rule.FullName
		}
		if rule.PageWaitSeconds > 0 {
			merged.PageWaitSeconds = rule.PageWaitSeconds
		}
		if rule.SettleSeconds > 0 {
			merged.SettleSeconds = rule.SettleSeconds
		}
		if rule.GapFillTemplate != "" {
			merged.GapFillTemplate = rule.GapFillTemplate
		}
		base.Rules[ticker] = merged
	}

	base.Source = mergeSource(base.Source, override.Source)

	if override.Orchestrator.PerTickerSeconds > 0 {
		base.Orchestrator.PerTickerSeconds = override.Orchestrator.PerTickerSeconds
	}
	if override.Orchestrator.AggregateSeconds > 0 {
		base.Orchestrator.AggregateSeconds = override.Orchestrator.AggregateSeconds
	}
	if override.Orchestrator.PacingSeconds > 0 {
		base.Orchestrator.PacingSeconds = override.Orchestrator.PacingSeconds
	}

	if override.Delivery.MaxChunkLength > 0 {
		base.Delivery.MaxChunkLength = override.Delivery.MaxChunkLength
	}
	if override.Delivery.AsImage != nil {
		base.Delivery.AsImage = override.Delivery.AsImage
	}
	if override.Delivery.MessagesPerSecond > 0 {
		base.Delivery.MessagesPerSecond = override.Delivery.MessagesPerSecond
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}
	if override.Notifications.Telegram.APIBase != "" {
		base.Notifications.Telegram.APIBase = override.Notifications.Telegram.APIBase
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	if override.Scheduler.RunOnStart != nil {
		base.Scheduler.RunOnStart = override.Scheduler.RunOnStart
	}

	if override.Server.Port > 0 {
		base.Server.Port = override.Server.Port
	}

	if override.Browser.Headless != nil {
		base.Browser.Headless = override.Browser.Headless
	}
	if override.Browser.UserAgent != "" {
		base.Browser.UserAgent = override.Browser.UserAgent
	}

	if override.Market.Endpoint != "" {
		base.Market.Endpoint = override.Market.Endpoint
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.File != "" {
		base.Logging.File = override.Logging.File
	}

	return base
}

func mergeSource(base, override SourceConfig) SourceConfig {
	if override.Origin != "" {
		base.Origin = override.Origin
	}
	if override.HeadingTag != "" {
		base.HeadingTag = override.HeadingTag
	}
	if override.HeadingMarker != "" {
		base.HeadingMarker = override.HeadingMarker
	}
	if len(override.BriefingContainers) > 0 {
		base.BriefingContainers = override.BriefingContainers
	}
	if override.ItemContainer != "" {
		base.ItemContainer = override.ItemContainer
	}
	if override.ItemBriefing != "" {
		base.ItemBriefing = override.ItemBriefing
	}
	if override.ItemInfo != "" {
		base.ItemInfo = override.ItemInfo
	}
	if override.ArticleBlock != "" {
		base.ArticleBlock = override.ArticleBlock
	}
	if override.ArticleTitle != "" {
		base.ArticleTitle = override.ArticleTitle
	}
	if override.ArticleSource != "" {
		base.ArticleSource = override.ArticleSource
	}
	if override.SubjectMarker != "" {
		base.SubjectMarker = override.SubjectMarker
	}
	if override.RoseMarker != "" {
		base.RoseMarker = override.RoseMarker
	}
	if override.FellMarker != "" {
		base.FellMarker = override.FellMarker
	}
	if override.CurrencyMarker != "" {
		base.CurrencyMarker = override.CurrencyMarker
	}
	if override.TypeParam != "" {
		base.TypeParam = override.TypeParam
	}
	if override.TypeValue != "" {
		base.TypeValue = override.TypeValue
	}
	if override.IDParam != "" {
		base.IDParam = override.IDParam
	}
	if override.DefaultID != "" {
		base.DefaultID = override.DefaultID
	}
	if len(override.ExtraParams) > 0 {
		base.ExtraParams = override.ExtraParams
	}
	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Tickers: []string{"IGV", "SOXL", "BLK", "IVZ", "BRKU"},
		Rules: map[string]TickerRule{
			"IGV": {
				Section:         "etf",
				FullName:        "ISHARES TRUST EXPANDED TECH-SOFTWARE SECTOR ETF",
				PageWaitSeconds: 20,
				SettleSeconds:   3,
			},
			"SOXL": {
				Section:         "etf",
				FullName:        "DIREXION SHARES ETF TRUST DAILY SEMICONDUCTOR BULL 3X SHS",
				PageWaitSeconds: 15,
				SettleSeconds:   2,
			},
			"BLK": {
				Section:         "stock",
				FullName:        "BlackRock, Inc.",
				PageWaitSeconds: 25,
				SettleSeconds:   5,
				GapFillTemplate: "{date}, 블랙록(BLK)은 {change} {price}으로 마감했습니다. 블랙록은 세계 최대 자산운용사로, 특히 ETF 시장에서 강력한 입지를 보유하고 있습니다. 최근 Blackrock의 iShares ETF 상품들은 투자자들의 큰 관심을 끌고 있습니다.",
			},
			"IVZ": {
				Section:         "stock",
				FullName:        "Invesco Ltd.",
				PageWaitSeconds: 25,
				SettleSeconds:   5,
				GapFillTemplate: "{date}, 인베스코(IVZ)는 {change} {price}으로 마감했습니다. 인베스코는 글로벌 투자관리 회사로, 다양한 ETF 및 펀드 상품을 제공하고 있습니다. 인베스코는 최근 ETF 시장에서의 경쟁력 강화를 위한 다양한 전략을 추진하고 있습니다.",
			},
			"BRKU": {
				Section:         "etf",
				FullName:        "DIREXION DAILY BRKB BULL 2X SHARES",
				PageWaitSeconds: 15,
				SettleSeconds:   2,
				GapFillTemplate: "{prevDate}, DIREXION DAILY BRKB BULL 2X SHARES(BRKU)는 {change} {price}으로 마감하였습니다. 해당 ETF는 Berkshire Hathaway Inc.의 일일 변동성을 2배로 추종하는 구조를 가지고 있습니다. 따라서 Berkshire Hathaway Inc.의 긍정적인 시장 반응이 가격 상승에 기여하였습니다.",
			},
		},
		Source: SourceConfig{
			Origin:             "https://invest.zum.com",
			HeadingTag:         "h3",
			HeadingMarker:      "데일리 브리핑",
			BriefingContainers: []string{"styles_briefingInner__8_73I", "styles_briefingInner__WBq3C"},
			ItemContainer:      "styles_container__oDEu1",
			ItemBriefing:       "styles_briefing__t15bx",
			ItemInfo:           "styles_stockInfo__ttpG6",
			ArticleBlock:       "styles_article__0oE8K",
			ArticleTitle:       "styles_title__ummjn",
			ArticleSource:      "styles_info__OeSIl",
			SubjectMarker:      "주식이",
			RoseMarker:         "상승하여",
			FellMarker:         "하락하여",
			CurrencyMarker:     "달러에",
			TypeParam:          "doctype",
			TypeValue:          "news",
			IDParam:            "docid",
			DefaultID:          "5384592",
			ExtraParams:        map[string]string{"isdomestic": "false", "istrending": "false"},
		},
		Orchestrator: OrchestratorConfig{
			PerTickerSeconds: 30,
			AggregateSeconds: 120,
			PacingSeconds:    2,
		},
		Delivery: DeliveryConfig{MaxChunkLength: 3000, MessagesPerSecond: 1},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{APIBase: "https://api.telegram.org"},
		},
		Database:  DatabaseConfig{DSN: ""},
		Scheduler: SchedulerConfig{CronExpression: "0 9 * * *", Timezone: defaultTimezone, location: tz},
		Server:    ServerConfig{Port: 8000},
		Browser: BrowserConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
		},
		Market:  MarketConfig{Endpoint: "https://query1.finance.yahoo.com"},
		Logging: LoggingConfig{Level: "info"},
	}
}
