package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type FeeTier struct {
	Name        string
	MaxCapacity int
	Percentage  decimal.Decimal
}

type Config struct {
	CRDBDSN      string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	OTLPEndpoint string

	Currency string
	OrderTTL time.Duration
	CartTTL  time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	// PaymentSkipVerify disables webhook signature verification. Non-production only.
	PaymentSkipVerify bool

	RefundReleasesInventory bool

	FeeTiers   []FeeTier
	MinimumFee decimal.Decimal
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	orderTTL, _ := time.ParseDuration(os.Getenv("ORDER_TTL"))
	if orderTTL == 0 {
		orderTTL = 30 * time.Minute
	}
	cartTTL, _ := time.ParseDuration(os.Getenv("CART_TTL"))
	if cartTTL == 0 {
		cartTTL = 2 * time.Hour
	}

	currency := os.Getenv("CURRENCY")
	if currency == "" {
		currency = "GBP"
	}

	return &Config{
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		Currency: currency,
		OrderTTL: orderTTL,
		CartTTL:  cartTTL,

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentSkipVerify:   os.Getenv("PAYMENT_SKIP_VERIFY") == "true",

		RefundReleasesInventory: os.Getenv("REFUND_RELEASES_INVENTORY") == "true",

		FeeTiers:   loadFeeTiers(),
		MinimumFee: decimalEnv("MINIMUM_PAID_EVENT_FEE", "15"),
	}, nil
}

func loadFeeTiers() []FeeTier {
	defaults := []FeeTier{
		{Name: "Community", MaxCapacity: 50, Percentage: decimal.RequireFromString("4.0")},
		{Name: "Small", MaxCapacity: 200, Percentage: decimal.RequireFromString("3.5")},
		{Name: "Medium", MaxCapacity: 500, Percentage: decimal.RequireFromString("3.0")},
		{Name: "Large", MaxCapacity: 999999, Percentage: decimal.RequireFromString("2.5")},
	}

	tiers := make([]FeeTier, len(defaults))
	for i, def := range defaults {
		n := strconv.Itoa(i + 1)
		tier := def
		if v := os.Getenv("TIER_" + n + "_NAME"); v != "" {
			tier.Name = v
		}
		if v := os.Getenv("TIER_" + n + "_MAX_CAPACITY"); v != "" {
			if c, err := strconv.Atoi(v); err == nil {
				tier.MaxCapacity = c
			}
		}
		if v := os.Getenv("TIER_" + n + "_PERCENTAGE"); v != "" {
			if p, err := decimal.NewFromString(v); err == nil {
				tier.Percentage = p
			}
		}
		tiers[i] = tier
	}
	return tiers
}

func decimalEnv(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}
