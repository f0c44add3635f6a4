package scraper

import (
	"time"

	"github.com/henk-ai/fabric-backend/internal/logger"
	"github.com/henk-ai/fabric-backend/internal/utils"
)

type Config struct {
	BaseURL      string
	StockURL     string
	ImageBaseURL string
	Username     string
	Password     string

	UserAgent         string
	RequestTimeout    time.Duration
	MinDelay          time.Duration
	MaxDelay          time.Duration
	RequestsPerSecond float64
	Burst             int

	MaxReauthAttempts int
	ImageConcurrency  int
	ImageDir          string
	ImageMaxDimension int
	JPEGQuality       int
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		BaseURL:      utils.GetEnv("FORMENS_BASE_URL", "https://b2b2.formens.ro", log),
		StockURL:     utils.GetEnv("FORMENS_STOCK_URL", "https://b2b2.formens.ro/stocktisue", log),
		ImageBaseURL: utils.GetEnv("FORMENS_IMAGE_BASE_URL", "https://b2b2.formens.ro/documente/marketing", log),
		Username:     utils.GetEnv("FORMENS_USERNAME", "", log),
		Password:     utils.GetEnv("FORMENS_PASSWORD", "", nil),

		UserAgent:         utils.GetEnv("SCRAPER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36", log),
		RequestTimeout:    time.Duration(utils.GetEnvAsInt("SCRAPER_TIMEOUT_SECONDS", 30, log)) * time.Second,
		MinDelay:          time.Duration(utils.GetEnvAsFloat("SCRAPER_DELAY_MIN", 1.0, log) * float64(time.Second)),
		MaxDelay:          time.Duration(utils.GetEnvAsFloat("SCRAPER_DELAY_MAX", 3.0, log) * float64(time.Second)),
		RequestsPerSecond: utils.GetEnvAsFloat("SCRAPER_REQUESTS_PER_SECOND", 1.0, log),
		Burst:             utils.GetEnvAsInt("SCRAPER_BURST", 2, log),

		MaxReauthAttempts: utils.GetEnvAsInt("SCRAPER_MAX_REAUTH_ATTEMPTS", 2, log),
		ImageConcurrency:  utils.GetEnvAsInt("SCRAPER_IMAGE_CONCURRENCY", 4, log),
		ImageDir:          utils.GetEnv("FABRIC_IMAGE_STORAGE", "./storage/fabrics/images", log),
		ImageMaxDimension: utils.GetEnvAsInt("IMAGE_MAX_DIMENSION", 2048, log),
		JPEGQuality:       utils.GetEnvAsInt("IMAGE_QUALITY", 90, log),
	}
}
