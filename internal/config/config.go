package config

import (
	"fmt"
	"os"

	"SupplySentinel/internal/model"
	"SupplySentinel/internal/token"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// TierSpec is one sale tier in the config file. Amounts are whole tokens.
type TierSpec struct {
	PriceUSD string `yaml:"price_usd"`
	Capacity string `yaml:"capacity"`
}

// GrantSpec is a vesting grant applied once at first start.
type GrantSpec struct {
	Beneficiary  string `yaml:"beneficiary"`
	Pool         string `yaml:"pool"`
	Amount       string `yaml:"amount"`
	CliffDays    int    `yaml:"cliff_days"`
	DurationDays int    `yaml:"duration_days"`
	CliffBps     uint32 `yaml:"cliff_bps"`
}

// InstrumentSpec is an accepted payment instrument.
type InstrumentSpec struct {
	Symbol   string `yaml:"symbol"`
	Decimals int32  `yaml:"decimals"`
}

// Config holds all application configuration. Token amounts are whole-token
// decimal strings; they are parsed into base units by the accessors below.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	PriceFeed struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"price_feed"`
	Supply struct {
		Total       string            `yaml:"total"`
		Allocations map[string]string `yaml:"allocations"`
	} `yaml:"supply"`
	Grants        []GrantSpec `yaml:"grants"`
	TransferGuard struct {
		WindowHours    int    `yaml:"window_hours"`
		DailyCap       string `yaml:"daily_cap"`
		LargeThreshold string `yaml:"large_threshold"`
	} `yaml:"transfer_guard"`
	PriceGuard struct {
		MinIntervalMinutes int    `yaml:"min_interval_minutes"`
		MaxChangePct       string `yaml:"max_change_pct"`
	} `yaml:"price_guard"`
	Sale struct {
		MinPurchase string     `yaml:"min_purchase"`
		WhaleLimit  string     `yaml:"whale_limit"`
		RaiseCapUSD string     `yaml:"raise_cap_usd"`
		Tiers       []TierSpec `yaml:"tiers"`
	} `yaml:"sale"`
	Instruments []InstrumentSpec `yaml:"instruments"`
	Treasury    struct {
		Approvers           []string          `yaml:"approvers"`
		RequiredApprovals   int               `yaml:"required_approvals"`
		ExecutionDelayHours int               `yaml:"execution_delay_hours"`
		ProposalTTLDays     int               `yaml:"proposal_ttl_days"`
		Budgets             map[string]string `yaml:"budgets"`
	} `yaml:"treasury"`
	Schedule struct {
		ReleaseCron string `yaml:"release_cron"`
		ExpiryCron  string `yaml:"expiry_cron"`
		MonthlyCron string `yaml:"monthly_cron"`
		PriceCron   string `yaml:"price_cron"`
	} `yaml:"schedule"`
	Engine struct {
		StateFile string `yaml:"state_file"`
	} `yaml:"engine"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("PRICE_FEED_BASE_URL"); v != "" {
		cfg.PriceFeed.BaseURL = v
	}
	if v := os.Getenv("PRICE_FEED_API_KEY"); v != "" {
		cfg.PriceFeed.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("STATE_FILE"); v != "" {
		cfg.Engine.StateFile = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Supply.Total == "" {
		cfg.Supply.Total = "1000000000"
	}
	if len(cfg.Supply.Allocations) == 0 {
		cfg.Supply.Allocations = map[string]string{
			string(model.PoolOperational):       "250000000",
			string(model.PoolFounder):           "150000000",
			string(model.PoolTreasury):          "200000000",
			string(model.PoolEcosystem):         "150000000",
			string(model.PoolPrivateSale):       "100000000",
			string(model.PoolAdvisor):           "50000000",
			string(model.PoolEmergencyOverride): "100000000",
		}
	}
	if cfg.TransferGuard.WindowHours == 0 {
		cfg.TransferGuard.WindowHours = 24
	}
	if cfg.TransferGuard.DailyCap == "" {
		cfg.TransferGuard.DailyCap = "50000000"
	}
	if cfg.TransferGuard.LargeThreshold == "" {
		cfg.TransferGuard.LargeThreshold = "1000000"
	}
	if cfg.PriceGuard.MinIntervalMinutes == 0 {
		cfg.PriceGuard.MinIntervalMinutes = 60
	}
	if cfg.PriceGuard.MaxChangePct == "" {
		cfg.PriceGuard.MaxChangePct = "0.10"
	}
	if cfg.Sale.MinPurchase == "" {
		cfg.Sale.MinPurchase = "10000"
	}
	if cfg.Sale.WhaleLimit == "" {
		cfg.Sale.WhaleLimit = "5000000"
	}
	if len(cfg.Sale.Tiers) == 0 {
		// Ten tiers of 10M tokens from $0.100 to $0.145 in $0.005 steps.
		price := decimal.NewFromFloat(0.100)
		step := decimal.NewFromFloat(0.005)
		for i := 0; i < 10; i++ {
			cfg.Sale.Tiers = append(cfg.Sale.Tiers, TierSpec{
				PriceUSD: price.StringFixed(3),
				Capacity: "10000000",
			})
			price = price.Add(step)
		}
	}
	if len(cfg.Instruments) == 0 {
		cfg.Instruments = []InstrumentSpec{
			{Symbol: "USDT", Decimals: 6},
			{Symbol: "USDC", Decimals: 6},
			{Symbol: "ETH", Decimals: 18},
		}
	}
	if cfg.Treasury.RequiredApprovals == 0 {
		cfg.Treasury.RequiredApprovals = 2
	}
	if cfg.Treasury.ExecutionDelayHours == 0 {
		cfg.Treasury.ExecutionDelayHours = 48
	}
	if cfg.Treasury.ProposalTTLDays == 0 {
		cfg.Treasury.ProposalTTLDays = 7
	}
	if len(cfg.Treasury.Budgets) == 0 {
		cfg.Treasury.Budgets = map[string]string{
			string(model.CategoryDevelopment): "20000000",
			string(model.CategoryMarketing):   "15000000",
			string(model.CategoryOperations):  "15000000",
			string(model.CategoryInvestments): "25000000",
			string(model.CategoryEmergency):   "15000000",
			string(model.CategoryGovernance):  "10000000",
		}
	}
	if cfg.Schedule.ReleaseCron == "" {
		cfg.Schedule.ReleaseCron = "0 0 * * * *"
	}
	if cfg.Schedule.ExpiryCron == "" {
		cfg.Schedule.ExpiryCron = "0 30 * * * *"
	}
	if cfg.Schedule.MonthlyCron == "" {
		cfg.Schedule.MonthlyCron = "0 0 0 1 * *"
	}
	if cfg.Schedule.PriceCron == "" {
		cfg.Schedule.PriceCron = "0 */15 * * * *"
	}
	if cfg.Engine.StateFile == "" {
		cfg.Engine.StateFile = "data/engine_state.json"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/supply_sentinel.db"
	}
}

// Validate checks that all required fields are set and parseable.
func (c *Config) Validate() error {
	total, err := c.TotalSupply()
	if err != nil {
		return err
	}
	alloc, err := c.Allocations()
	if err != nil {
		return err
	}
	sum := new(uint256.Int)
	for _, a := range alloc {
		sum.Add(sum, a)
	}
	if sum.Cmp(total) != 0 {
		return fmt.Errorf("supply.allocations sum to %s, supply.total is %s", sum.Dec(), total.Dec())
	}
	if _, err := c.Tiers(); err != nil {
		return err
	}
	if _, err := c.Budgets(); err != nil {
		return err
	}
	if _, err := c.Amount("transfer_guard.daily_cap", c.TransferGuard.DailyCap); err != nil {
		return err
	}
	if _, err := c.Amount("transfer_guard.large_threshold", c.TransferGuard.LargeThreshold); err != nil {
		return err
	}
	if _, err := c.Amount("sale.min_purchase", c.Sale.MinPurchase); err != nil {
		return err
	}
	if _, err := c.Amount("sale.whale_limit", c.Sale.WhaleLimit); err != nil {
		return err
	}
	if _, err := decimal.NewFromString(c.PriceGuard.MaxChangePct); err != nil {
		return fmt.Errorf("price_guard.max_change_pct: %w", err)
	}
	if len(c.Treasury.Approvers) == 0 {
		return fmt.Errorf("treasury.approvers is required")
	}
	if c.Treasury.RequiredApprovals > len(c.Treasury.Approvers) {
		return fmt.Errorf("treasury.required_approvals %d exceeds %d approvers",
			c.Treasury.RequiredApprovals, len(c.Treasury.Approvers))
	}
	for i, g := range c.Grants {
		if _, err := c.Amount(fmt.Sprintf("grants[%d].amount", i), g.Amount); err != nil {
			return err
		}
		if _, ok := alloc[model.PoolID(g.Pool)]; !ok {
			return fmt.Errorf("grants[%d].pool %q is not an allocated pool", i, g.Pool)
		}
		if g.DurationDays <= 0 || g.CliffDays > g.DurationDays {
			return fmt.Errorf("grants[%d]: bad cliff/duration", i)
		}
	}
	return nil
}

// Amount parses a whole-token config value into base units.
func (c *Config) Amount(field, value string) (*uint256.Int, error) {
	a, err := token.ParseWhole(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return a, nil
}

// TotalSupply returns the fixed supply in base units.
func (c *Config) TotalSupply() (*uint256.Int, error) {
	return c.Amount("supply.total", c.Supply.Total)
}

// Allocations returns the initial pool allocations in base units.
func (c *Config) Allocations() (map[model.PoolID]*uint256.Int, error) {
	out := make(map[model.PoolID]*uint256.Int, len(c.Supply.Allocations))
	for pool, amount := range c.Supply.Allocations {
		a, err := c.Amount("supply.allocations."+pool, amount)
		if err != nil {
			return nil, err
		}
		out[model.PoolID(pool)] = a
	}
	return out, nil
}

// Tiers returns the configured sale tier table.
func (c *Config) Tiers() ([]*model.SaleTier, error) {
	tiers := make([]*model.SaleTier, len(c.Sale.Tiers))
	for i, spec := range c.Sale.Tiers {
		price, err := decimal.NewFromString(spec.PriceUSD)
		if err != nil {
			return nil, fmt.Errorf("sale.tiers[%d].price_usd: %w", i, err)
		}
		capacity, err := c.Amount(fmt.Sprintf("sale.tiers[%d].capacity", i), spec.Capacity)
		if err != nil {
			return nil, err
		}
		tiers[i] = &model.SaleTier{
			Index:          i,
			UnitPriceUSD:   price,
			CapacityTokens: capacity,
			SoldTokens:     new(uint256.Int),
		}
	}
	return tiers, nil
}

// Budgets returns the monthly treasury limits per category in base units.
func (c *Config) Budgets() (map[model.Category]*uint256.Int, error) {
	out := make(map[model.Category]*uint256.Int, len(c.Treasury.Budgets))
	for cat, amount := range c.Treasury.Budgets {
		a, err := c.Amount("treasury.budgets."+cat, amount)
		if err != nil {
			return nil, err
		}
		out[model.Category(cat)] = a
	}
	return out, nil
}

// RaiseCapUSD returns the optional sale raise cap; zero means uncapped.
func (c *Config) RaiseCapUSD() (decimal.Decimal, error) {
	if c.Sale.RaiseCapUSD == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(c.Sale.RaiseCapUSD)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sale.raise_cap_usd: %w", err)
	}
	return v, nil
}

// PaymentInstruments returns the accepted payment instruments.
func (c *Config) PaymentInstruments() []model.PaymentInstrument {
	out := make([]model.PaymentInstrument, len(c.Instruments))
	for i, spec := range c.Instruments {
		out[i] = model.PaymentInstrument{Symbol: spec.Symbol, Decimals: spec.Decimals}
	}
	return out
}
