package configs

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"
)

var (
	JWTSecret       string
	DefaultCurrency string
)

// =======================
// ENV LOADER
// =======================
func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("⚠️ Tidak menemukan .env file, menggunakan ENV dari sistem")
		} else {
			log.Println("✅ .env file berhasil dimuat!")
		}
	} else {
		log.Println("🚀 Running in Railway, menggunakan ENV dari sistem")
	}

	JWTSecret = GetEnv("JWT_SECRET")
	DefaultCurrency = GetEnv("BILLING_CURRENCY", "UGX")

	if JWTSecret == "" {
		log.Println("❌ JWT_SECRET belum diset!")
	}
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if !exists && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

func GetEnvBool(key string, def bool) bool {
	v, exists := os.LookupEnv(key)
	if !exists {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func GetEnvDuration(key string, def time.Duration) time.Duration {
	v, exists := os.LookupEnv(key)
	if !exists {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

/* =========================================================
   Gateway & billing config
========================================================= */

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	CallbackSecret string // shared secret untuk HMAC verifikasi callback
}

type CardProConfig struct {
	BaseURL       string
	SecretKey     string // bearer secret untuk REST call
	WebhookSecret string // HMAC key untuk signature header webhook
}

type MidtransConfig struct {
	ServerKey  string
	Production bool
}

type BillingConfig struct {
	GatewayTimeout    time.Duration // batas waktu call initiate/queryStatus
	ReconcileInterval time.Duration // interval sweep payment pending
	PendingStaleAfter time.Duration // umur minimal sebelum payment pending di-poll
	PendingMaxAge     time.Duration // lewat ini payment pending dianggap TIMEOUT
	OverdueInterval   time.Duration // interval sweep invoice overdue
}

func LoadMpesa() MpesaConfig {
	return MpesaConfig{
		BaseURL:        GetEnv("MPESA_BASE_URL", "https://api.safaricom.co.ke"),
		ConsumerKey:    GetEnv("MPESA_CONSUMER_KEY"),
		ConsumerSecret: GetEnv("MPESA_CONSUMER_SECRET"),
		ShortCode:      GetEnv("MPESA_SHORTCODE"),
		Passkey:        GetEnv("MPESA_PASSKEY"),
		CallbackURL:    GetEnv("MPESA_CALLBACK_URL"),
		CallbackSecret: GetEnv("MPESA_CALLBACK_SECRET"),
	}
}

func LoadCardPro() CardProConfig {
	return CardProConfig{
		BaseURL:       GetEnv("CARDPRO_BASE_URL"),
		SecretKey:     GetEnv("CARDPRO_SECRET_KEY"),
		WebhookSecret: GetEnv("CARDPRO_WEBHOOK_SECRET"),
	}
}

func LoadMidtrans() MidtransConfig {
	return MidtransConfig{
		ServerKey:  GetEnv("MIDTRANS_SERVER_KEY"),
		Production: GetEnvBool("MIDTRANS_PRODUCTION", false),
	}
}

func LoadBilling() BillingConfig {
	return BillingConfig{
		GatewayTimeout:    GetEnvDuration("GATEWAY_TIMEOUT", 10*time.Second),
		ReconcileInterval: GetEnvDuration("RECONCILE_INTERVAL", 2*time.Minute),
		PendingStaleAfter: GetEnvDuration("PENDING_STALE_AFTER", 3*time.Minute),
		PendingMaxAge:     GetEnvDuration("PENDING_MAX_AGE", 2*time.Hour),
		OverdueInterval:   GetEnvDuration("OVERDUE_SWEEP_INTERVAL", 1*time.Hour),
	}
}

// =======================
// GORM LOGGER CUSTOM
// =======================
type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormLogger.LogLevel
}

func NewGormLogger() gormLogger.Interface {
	return &GormLogger{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      gormLogger.Warn,
	}
}

func (l *GormLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	l.LogLevel = level
	return l
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	log.Printf("[INFO] "+msg, data...)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	log.Printf("[WARN] "+msg, data...)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	log.Printf("[ERROR] "+msg, data...)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	file := utils.FileWithLineNum()

	if err != nil {
		log.Printf("[ERROR] %s | %v | %s | %d rows | %s", file, err, elapsed, rows, sql)
	} else if elapsed > l.SlowThreshold {
		log.Printf("[SLOW SQL] %s | %s | %d rows | %s", file, elapsed, rows, sql)
	}
}
