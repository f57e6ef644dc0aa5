package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"yieldledger/native/accrual"
	nativecommon "yieldledger/native/common"
	"yieldledger/observability/otel"
)

// Ledger holds the accrual engine settings.
type Ledger struct {
	// SaleStart is the RFC3339 instant hour 0 begins. Empty leaves the sale
	// to be started explicitly.
	SaleStart string `toml:"SaleStart" yaml:"saleStart,omitempty"`
	IDPolicy  string `toml:"IDPolicy" yaml:"idPolicy"`
	// AccrualInterval is how often the serve loop settles elapsed hours.
	AccrualInterval string   `toml:"AccrualInterval" yaml:"accrualInterval"`
	Paused          []string `toml:"Paused" yaml:"paused,omitempty"`
	// MaxSplitChildren caps the children one split may create. Zero uses
	// accrual.DefaultMaxSplitChildren.
	MaxSplitChildren uint64 `toml:"MaxSplitChildren" yaml:"maxSplitChildren"`
}

// Start parses SaleStart. ok is false when no start is configured.
func (l Ledger) Start() (start time.Time, ok bool, err error) {
	if l.SaleStart == "" {
		return time.Time{}, false, nil
	}
	start, err = time.Parse(time.RFC3339, l.SaleStart)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("config: Ledger.SaleStart: %w", err)
	}
	return start.UTC(), true, nil
}

// Interval parses AccrualInterval.
func (l Ledger) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(l.AccrualInterval)
	if err != nil {
		return 0, fmt.Errorf("config: Ledger.AccrualInterval: %w", err)
	}
	return d, nil
}

// Policy returns the claim id seeding policy.
func (l Ledger) Policy() accrual.IDPolicy {
	return accrual.IDPolicy(l.IDPolicy)
}

// Pauses builds the pause view from the Paused module list.
func (l Ledger) Pauses() *nativecommon.Pauses {
	return nativecommon.NewPauses(l.Paused...)
}

// Curve carries the yield curve coefficients as exact decimal strings.
type Curve struct {
	Base      string `toml:"Base" yaml:"base"`
	Slope     string `toml:"Slope" yaml:"slope"`
	Asymptote string `toml:"Asymptote" yaml:"asymptote"`
	Knee      string `toml:"Knee" yaml:"knee"`
}

// DefaultCurve renders accrual.DefaultCurve into its config form.
func DefaultCurve() Curve {
	c := accrual.DefaultCurve()
	return Curve{
		Base:      c.Base.String(),
		Slope:     c.Slope.String(),
		Asymptote: c.Asymptote.String(),
		Knee:      c.Knee.String(),
	}
}

// Build parses the coefficients into an evaluable curve.
func (c Curve) Build() (accrual.Curve, error) {
	var out accrual.Curve
	fields := []struct {
		name string
		raw  string
		dst  *accrual.Decimal
	}{
		{"Base", c.Base, &out.Base},
		{"Slope", c.Slope, &out.Slope},
		{"Asymptote", c.Asymptote, &out.Asymptote},
		{"Knee", c.Knee, &out.Knee},
	}
	for _, f := range fields {
		value, err := accrual.ParseDecimal(f.raw)
		if err != nil {
			return accrual.Curve{}, fmt.Errorf("config: Curve.%s: %w", f.name, err)
		}
		*f.dst = value
	}
	if err := out.Validate(); err != nil {
		return accrual.Curve{}, fmt.Errorf("config: Curve: %w", err)
	}
	return out, nil
}

// Vesting describes the principal reserve released on a weekly cadence.
// Weeks == 0 disables vesting.
type Vesting struct {
	Weeks        uint64 `toml:"Weeks" yaml:"weeks"`
	PeriodHours  uint64 `toml:"PeriodHours" yaml:"periodHours"`
	ReserveUnits uint64 `toml:"ReserveUnits" yaml:"reserveUnits"`
}

// Plan converts the section into the engine's vesting plan.
func (v Vesting) Plan() accrual.VestingPlan {
	return accrual.VestingPlan{
		Weeks:        v.Weeks,
		Period:       time.Duration(v.PeriodHours) * time.Hour,
		ReserveUnits: v.ReserveUnits,
	}
}

// Access maps ledger operations to the callers allowed to run them. An empty
// table allows everyone.
type Access struct {
	Roles map[string][]string `toml:"Roles" yaml:"roles,omitempty"`
	// RequestsPerEpoch caps each caller's mutations per EpochSeconds. Zero
	// disables the cap.
	RequestsPerEpoch uint32 `toml:"RequestsPerEpoch" yaml:"requestsPerEpoch,omitempty"`
	EpochSeconds     uint32 `toml:"EpochSeconds" yaml:"epochSeconds,omitempty"`

	// TokenSecretEnv names the environment variable holding the HS256 key
	// for caller tokens. When set, commands take their identity from a
	// verified token instead of --caller.
	TokenSecretEnv string `toml:"TokenSecretEnv" yaml:"tokenSecretEnv,omitempty"`
	TokenIssuer    string `toml:"TokenIssuer" yaml:"tokenIssuer,omitempty"`
	TokenAudience  string `toml:"TokenAudience" yaml:"tokenAudience,omitempty"`
	TokenLeewaySec int    `toml:"TokenLeewaySec" yaml:"tokenLeewaySec,omitempty"`
}

// TokensEnabled reports whether caller tokens are required.
func (a Access) TokensEnabled() bool { return strings.TrimSpace(a.TokenSecretEnv) != "" }

// Verifier builds the caller token verifier from the configured secret.
func (a Access) Verifier() (*nativecommon.TokenVerifier, error) {
	name := strings.TrimSpace(a.TokenSecretEnv)
	if name == "" {
		return nil, fmt.Errorf("config: Access.TokenSecretEnv required")
	}
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return nil, fmt.Errorf("config: environment variable %s is empty", name)
	}
	return nativecommon.NewTokenVerifier(nativecommon.TokenConfig{
		Secret:   []byte(value),
		Issuer:   strings.TrimSpace(a.TokenIssuer),
		Audience: strings.TrimSpace(a.TokenAudience),
		Leeway:   time.Duration(a.TokenLeewaySec) * time.Second,
	})
}

// Controller builds the access check installed on the engine.
func (a Access) Controller() accrual.AccessControl {
	var base nativecommon.Authorizer = nativecommon.AllowAll{}
	if len(a.Roles) > 0 {
		base = nativecommon.NewRoleTable(a.Roles)
	}
	if a.RequestsPerEpoch == 0 {
		return base
	}
	return &nativecommon.QuotaGate{
		Next:  base,
		Quota: nativecommon.Quota{MaxRequests: a.RequestsPerEpoch, EpochSeconds: a.EpochSeconds},
	}
}

// RPC configures the read-only reporting API.
type RPC struct {
	ListenAddress  string `toml:"ListenAddress" yaml:"listenAddress"`
	EventBuffer    int    `toml:"EventBuffer" yaml:"eventBuffer"`
	ReadTimeoutSec int    `toml:"ReadTimeoutSec" yaml:"readTimeoutSec"`

	// RequestsPerMinute caps each client address. Zero disables limiting.
	RequestsPerMinute float64 `toml:"RequestsPerMinute" yaml:"requestsPerMinute"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// ReadTimeout returns the HTTP read timeout.
func (r RPC) ReadTimeout() time.Duration {
	return time.Duration(r.ReadTimeoutSec) * time.Second
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	Headers     string  `toml:"Headers" yaml:"headers,omitempty"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
}

// OTel converts the section into the exporter configuration.
func (t Telemetry) OTel(service, version, env string) otel.Config {
	return otel.Config{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    env,
		Endpoint:       t.Endpoint,
		Insecure:       t.Insecure,
		Headers:        otel.ParseHeaders(t.Headers),
		Metrics:        t.Metrics,
		Traces:         t.Traces,
		SampleRatio:    t.SampleRatio,
	}
}

// Webhook forwards ledger events to an HTTP endpoint. An empty Endpoint
// disables delivery.
type Webhook struct {
	Endpoint  string   `toml:"Endpoint" yaml:"endpoint,omitempty"`
	SecretEnv string   `toml:"SecretEnv" yaml:"secretEnv,omitempty"`
	Events    []string `toml:"Events" yaml:"events,omitempty"`
}

// Enabled reports whether an endpoint is configured.
func (w Webhook) Enabled() bool { return strings.TrimSpace(w.Endpoint) != "" }

// Secret reads the signing secret from the configured environment variable.
func (w Webhook) Secret() ([]byte, error) {
	name := strings.TrimSpace(w.SecretEnv)
	if name == "" {
		return nil, fmt.Errorf("config: Webhook.SecretEnv required")
	}
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return nil, fmt.Errorf("config: environment variable %s is empty", name)
	}
	return []byte(value), nil
}
