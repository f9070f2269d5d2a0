package config

import "time"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	Mpesa      Mpesa      `envPrefix:"MPESA_"`
	Stripe     Stripe     `envPrefix:"STRIPE_"`
	Reconciler Reconciler `envPrefix:"RECONCILER_"`
}

type Mpesa struct {
	BaseApiURL     string `env:"BASE_API_URL"`
	ConsumerKey    string `env:"CONSUMER_KEY"`
	ConsumerSecret string `env:"CONSUMER_SECRET"`
	ShortCode      string `env:"SHORT_CODE"`
	Passkey        string `env:"PASSKEY"`
	InitiatorName  string `env:"INITIATOR_NAME"`
	// encrypted initiator password, required by B2C and status queries
	SecurityCredential string `env:"SECURITY_CREDENTIAL"`
}

type Stripe struct {
	BaseApiURL    string `env:"BASE_API_URL" envDefault:"https://api.stripe.com"`
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

type Reconciler struct {
	Interval time.Duration `env:"INTERVAL" envDefault:"2m"`
	// a pending payment is a candidate once its last update is older than this
	PendingThreshold time.Duration `env:"PENDING_THRESHOLD" envDefault:"5m"`
	// bound the candidate scan so old abandoned payments drop out eventually
	Lookback     time.Duration `env:"LOOKBACK" envDefault:"24h"`
	Concurrency  int           `env:"CONCURRENCY" envDefault:"4"`
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" envDefault:"10s"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}
