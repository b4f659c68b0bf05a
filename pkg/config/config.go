package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root of config.yaml. Tickers narrows the monitored set; empty
// means every portfolio ticker.
type Config struct {
	Environment string     `yaml:"environment" default:"development" validate:"required"`
	Log         Log        `yaml:"log"`
	Server      Server     `yaml:"server"`
	Metrics     Metrics    `yaml:"metrics"`
	Market      Market     `yaml:"market"`
	Portfolio   []Holding  `yaml:"portfolio" validate:"dive"`
	Tickers     []string   `yaml:"tickers"`
	Collector   Collector  `yaml:"collector"`
	Yahoo       Yahoo      `yaml:"yahoo"`
	Classifier  Classifier `yaml:"classifier"`
	Targets     Targets    `yaml:"targets"`
	Redis       Redis      `yaml:"redis"`
	Analyst     Analyst    `yaml:"analyst"`
	AI          AI         `yaml:"ai"`
	Monthly     Monthly    `yaml:"monthly"`
	Schedule    Schedule   `yaml:"schedule"`
	Kafka       Kafka      `yaml:"kafka"`
	ClickHouse  ClickHouse `yaml:"clickhouse"`
}

type Log struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

type Server struct {
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// Market describes the exchange session the gate checks against.
type Market struct {
	Timezone string   `yaml:"timezone" default:"America/New_York"`
	Open     string   `yaml:"open" default:"09:30"`
	Close    string   `yaml:"close" default:"16:00"`
	Holidays []string `yaml:"holidays"`
	// Bypass forces the gate: "", "open" or "closed".
	Bypass string `yaml:"bypass" validate:"omitempty,oneof=open closed"`
}

type Holding struct {
	Ticker string  `yaml:"ticker" validate:"required"`
	Buy    float64 `yaml:"buy" validate:"gt=0"`
	Sell   float64 `yaml:"sell" validate:"gt=0"`
}

type Retry struct {
	MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"min=1,max=10"`
	BackoffMin  time.Duration `yaml:"backoff_min" default:"500ms"`
	BackoffMax  time.Duration `yaml:"backoff_max" default:"8s"`
}

type Collector struct {
	Workers     int           `yaml:"workers" default:"4" validate:"min=1,max=64"`
	Deadline    time.Duration `yaml:"deadline" default:"45s"`
	CallTimeout time.Duration `yaml:"call_timeout" default:"10s"`
	Retry       Retry         `yaml:"retry"`
}

type Yahoo struct {
	QuoteURL   string  `yaml:"quote_url" default:"https://query1.finance.yahoo.com"`
	SummaryURL string  `yaml:"summary_url" default:"https://query2.finance.yahoo.com"`
	UserAgent  string  `yaml:"user_agent" default:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"`
	RPS        float64 `yaml:"rps" default:"4"`
	Burst      int     `yaml:"burst" default:"4"`
}

type Classifier struct {
	WatchBand float64 `yaml:"watch_band" default:"0.05" validate:"gte=0,lt=1"`
}

type Targets struct {
	Backend      string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
	CacheTTL     time.Duration `yaml:"cache_ttl" default:"5m" validate:"gte=0"`
	CacheCleanup time.Duration `yaml:"cache_cleanup" default:"5m" validate:"gt=0"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"3s"`
	KeyPrefix    string        `yaml:"key_prefix" default:"targets"`
}

type Redis struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"10"`
	Prefix   string `yaml:"prefix" default:"stocksentinel"`
}

type SourceToggle struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

type Analyst struct {
	CacheTTL      time.Duration `yaml:"cache_ttl" default:"1h"`
	StaleAfter    time.Duration `yaml:"stale_after" default:"720h"`
	ScrapeTimeout time.Duration `yaml:"scrape_timeout" default:"10s"`
	ScrapeRPS     float64       `yaml:"scrape_rps" default:"1"`
	Sources       struct {
		YahooAPI    SourceToggle `yaml:"yahoo_api"`
		MarketWatch SourceToggle `yaml:"marketwatch"`
		YahooWeb    SourceToggle `yaml:"yahoo_web"`
	} `yaml:"sources"`
	MarketWatchURL string `yaml:"marketwatch_url" default:"https://www.marketwatch.com"`
	YahooWebURL    string `yaml:"yahoo_web_url" default:"https://finance.yahoo.com"`
}

type AI struct {
	Provider     string        `yaml:"provider" default:"claude" validate:"oneof=claude gemini"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"api_key"`
	MaxTokens    int           `yaml:"max_tokens" default:"500"`
	Temperature  float64       `yaml:"temperature" default:"0.3"`
	Timeout      time.Duration `yaml:"timeout" default:"60s"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3" validate:"min=1,max=10"`
	BackoffMin   time.Duration `yaml:"backoff_min" default:"1s"`
	BackoffMax   time.Duration `yaml:"backoff_max" default:"20s"`
	MaxDeviation float64       `yaml:"max_deviation" default:"0.6"`
}

type Monthly struct {
	Workers       int           `yaml:"workers" default:"2" validate:"min=1,max=16"`
	CostPerTicker float64       `yaml:"cost_per_ticker" default:"0.5"`
	LockTTL       time.Duration `yaml:"lock_ttl" default:"10m"`
	HistoryPoints int           `yaml:"history_points" default:"30"`
}

type Schedule struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Daily   string `yaml:"daily" default:"0 */30 9-16 * * MON-FRI"`
	Monthly string `yaml:"monthly" default:"0 0 6 1 * *"`
}

type Kafka struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	ReportsTopic string   `yaml:"reports_topic" default:"sentinel.reports"`
	SummaryTopic string   `yaml:"summary_topic" default:"sentinel.summaries"`
	LogsTopic    string   `yaml:"logs_topic" default:"sentinel.logs"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"gzip"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"100ms"`
	} `yaml:"producer"`
}

type ClickHouse struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"stocksentinel"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
	AsyncInsert      bool          `yaml:"async_insert"`
	AsyncInsertWait  bool          `yaml:"async_insert_wait" default:"true"`
}

var validate = validator.New()

// Load reads a YAML configuration file, applies defaults and validates it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes raw YAML into a validated Config.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.normalize()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("SENTINEL_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("BYPASS_MARKET_HOURS"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BYPASS_MARKET_HOURS: %w", err)
		}
		if on {
			c.Market.Bypass = "open"
		}
	}
	if v := getenv("TICKERS"); v != "" {
		c.Tickers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("REDIS_ADDR port: %w", err)
			}
			c.Redis.Port = p
		}
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("ANTHROPIC_API_KEY"); v != "" && c.AI.Provider == "claude" {
		c.AI.APIKey = v
	}
	if v := getenv("GEMINI_API_KEY"); v != "" && c.AI.Provider == "gemini" {
		c.AI.APIKey = v
	}
	for env, toggle := range map[string]*SourceToggle{
		"ENABLE_MW_SCRAPE":     &c.Analyst.Sources.MarketWatch,
		"ENABLE_YF_WEB_SCRAPE": &c.Analyst.Sources.YahooWeb,
	} {
		if v := getenv(env); v != "" {
			on, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", env, err)
			}
			toggle.Enabled = on
		}
	}
	return nil
}

func (c *Config) normalize() {
	for i := range c.Portfolio {
		c.Portfolio[i].Ticker = strings.ToUpper(strings.TrimSpace(c.Portfolio[i].Ticker))
	}
	tickers := c.Tickers[:0]
	for _, t := range c.Tickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			tickers = append(tickers, t)
		}
	}
	c.Tickers = tickers
	if c.AI.Model == "" {
		switch c.AI.Provider {
		case "gemini":
			c.AI.Model = "gemini-2.0-flash"
		default:
			c.AI.Model = "claude-3-haiku-20240307"
		}
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("market.timezone: %w", err)
	}
	open, err := ParseClock(c.Market.Open)
	if err != nil {
		return fmt.Errorf("market.open: %w", err)
	}
	closing, err := ParseClock(c.Market.Close)
	if err != nil {
		return fmt.Errorf("market.close: %w", err)
	}
	if closing <= open {
		return fmt.Errorf("market.close must be after market.open")
	}
	for _, d := range c.Market.Holidays {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return fmt.Errorf("market.holidays: %q is not YYYY-MM-DD", d)
		}
	}
	seen := make(map[string]bool, len(c.Portfolio))
	for _, h := range c.Portfolio {
		if h.Buy >= h.Sell {
			return fmt.Errorf("portfolio %s: buy must be below sell", h.Ticker)
		}
		if seen[h.Ticker] {
			return fmt.Errorf("portfolio %s: duplicate ticker", h.Ticker)
		}
		seen[h.Ticker] = true
	}
	if c.Collector.Retry.BackoffMax < c.Collector.Retry.BackoffMin {
		return fmt.Errorf("collector.retry.backoff_max must be >= backoff_min")
	}
	if c.AI.BackoffMax < c.AI.BackoffMin {
		return fmt.Errorf("ai.backoff_max must be >= backoff_min")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// ParseClock converts "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
