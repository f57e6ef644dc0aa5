package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"yieldledger/native/accrual"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// MinAccrualInterval bounds how often the serve loop may settle.
var MinAccrualInterval = time.Second

// Validate reports the first setting the node cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: DataDir required", ErrInvalidConfig)
	}
	if _, _, err := c.Ledger.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch c.Ledger.Policy() {
	case accrual.IDPolicySequential, accrual.IDPolicyHourly:
	default:
		return fmt.Errorf("%w: Ledger.IDPolicy %q", ErrInvalidConfig, c.Ledger.IDPolicy)
	}
	interval, err := c.Ledger.Interval()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if interval < MinAccrualInterval {
		return fmt.Errorf("%w: Ledger.AccrualInterval below %s", ErrInvalidConfig, MinAccrualInterval)
	}
	if c.Ledger.MaxSplitChildren == 1 {
		return fmt.Errorf("%w: Ledger.MaxSplitChildren must be 0 or at least 2", ErrInvalidConfig)
	}
	if c.Access.TokenLeewaySec < 0 {
		return fmt.Errorf("%w: Access.TokenLeewaySec must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Curve.Build(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Vesting.Weeks > 0 && c.Vesting.PeriodHours == 0 {
		return fmt.Errorf("%w: Vesting.PeriodHours must be positive", ErrInvalidConfig)
	}
	if c.Vesting.Weeks == 0 && c.Vesting.ReserveUnits > 0 {
		return fmt.Errorf("%w: Vesting.ReserveUnits set without Weeks", ErrInvalidConfig)
	}
	if c.RPC.ListenAddress != "" {
		if _, _, err := net.SplitHostPort(c.RPC.ListenAddress); err != nil {
			return fmt.Errorf("%w: RPC.ListenAddress: %v", ErrInvalidConfig, err)
		}
	}
	if c.RPC.EventBuffer < 0 || c.RPC.ReadTimeoutSec < 0 || c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("%w: RPC limits must not be negative", ErrInvalidConfig)
	}
	if c.Webhook.Enabled() && c.Webhook.SecretEnv == "" {
		return fmt.Errorf("%w: Webhook.SecretEnv required with Webhook.Endpoint", ErrInvalidConfig)
	}
	if c.Telemetry.SampleRatio < 0 {
		return fmt.Errorf("%w: Telemetry.SampleRatio must not be negative", ErrInvalidConfig)
	}
	return nil
}
