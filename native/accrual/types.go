package accrual

import "time"

// Operations gated by the AccessControl collaborator.
const (
	OpStartSale       = "start_sale"
	OpDeposit         = "deposit"
	OpSplit           = "split"
	OpRedeem          = "redeem"
	OpWithdrawVesting = "withdraw_vesting"
	OpAdvance         = "advance"
	OpSettle          = "settle"
)

// AssetKind labels value realised through the AssetTransfer collaborator.
type AssetKind string

const (
	AssetPrincipal AssetKind = "principal"
	AssetYield     AssetKind = "yield"
	AssetVested    AssetKind = "vested"
)

// Claim is a principal stake entitled to a share of every hour's yield from
// MintHour onwards.
type Claim struct {
	ID         uint64  `json:"id"`
	MintHour   uint64  `json:"mintHour"`
	Principal  uint64  `json:"principal"`
	TrustShare Decimal `json:"trustShare"`
}

// Clone returns a copy safe to hand to callers.
func (c *Claim) Clone() *Claim {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// ClaimStatus records why a claim id is no longer live.
type ClaimStatus uint8

const (
	ClaimStatusLive ClaimStatus = iota
	ClaimStatusRedeemed
	ClaimStatusSplit
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimStatusLive:
		return "live"
	case ClaimStatusRedeemed:
		return "redeemed"
	case ClaimStatusSplit:
		return "split"
	default:
		return "unknown"
	}
}

// Tombstone marks a retired claim id so it is never reallocated.
type Tombstone struct {
	Status ClaimStatus
	Hour   uint64
}

// ClaimView pairs a claim with the yield accrued through Watermark.
type ClaimView struct {
	Claim     Claim   `json:"claim"`
	Yield     Decimal `json:"yield"`
	Watermark uint64  `json:"watermark"`
}

// MintEntry is one hour of the cumulative mint index.
type MintEntry struct {
	Hour       uint64 `json:"hour"`
	Cumulative uint64 `json:"cumulative"`
}

// Totals are the ledger-wide counters backing the supply invariant:
// LivePrincipal + Redeemed + VestingReleased == Minted, and every unit of
// allocated yield is either owed to a live claim or already redeemed.
type Totals struct {
	Minted          uint64  `json:"minted"`
	LiveClaims      uint64  `json:"liveClaims"`
	LivePrincipal   uint64  `json:"livePrincipal"`
	Redeemed        uint64  `json:"redeemed"`
	VestingReleased uint64  `json:"vestingReleased"`
	YieldEmitted    Decimal `json:"yieldEmitted"`
	YieldAllocated  Decimal `json:"yieldAllocated"`
	YieldRedeemed   Decimal `json:"yieldRedeemed"`
}

// YieldDust is the part of the emitted yield no claim received: floor
// rounding remainders plus the shares of principal that was redeemed.
func (t Totals) YieldDust() Decimal {
	dust, err := t.YieldEmitted.Sub(t.YieldAllocated)
	if err != nil {
		return Zero()
	}
	return dust
}

// VestingPlan describes the principal reserve released on a fixed schedule.
// A zero Weeks value disables vesting.
type VestingPlan struct {
	Weeks        uint64        `json:"weeks"`
	Period       time.Duration `json:"period"`
	ReserveUnits uint64        `json:"reserveUnits"`
}

// VestingEntry is one release epoch.
type VestingEntry struct {
	Index uint64    `json:"index"`
	Epoch time.Time `json:"epoch"`
	Used  bool      `json:"used"`
}

// VestingState summarises the reserve being vested.
type VestingState struct {
	Start     time.Time     `json:"start"`
	Period    time.Duration `json:"period"`
	Weeks     uint64        `json:"weeks"`
	Reserve   uint64        `json:"reserve"`
	PerPeriod uint64        `json:"perPeriod"`
	Released  uint64        `json:"released"`
}

// Remaining returns the reserve not yet released.
func (s VestingState) Remaining() uint64 {
	if s.Released >= s.Reserve {
		return 0
	}
	return s.Reserve - s.Released
}

// End returns the instant the full vesting duration has elapsed.
func (s VestingState) End() time.Time {
	return s.Start.Add(time.Duration(s.Weeks) * s.Period)
}

// VestingSchedule is the read model exposed to reporting.
type VestingSchedule struct {
	State   VestingState   `json:"state"`
	Entries []VestingEntry `json:"entries"`
}

// DepositRequest mints a new claim. Backing is contributed to the reserve
// pool and the returned shares become the claim's trust share.
type DepositRequest struct {
	Principal uint64
	Backing   Decimal
}

// DepositReceipt reports the claim created by a deposit.
type DepositReceipt struct {
	ClaimID    uint64      `json:"claimId"`
	MintHour   uint64      `json:"mintHour"`
	Principal  uint64      `json:"principal"`
	TrustShare Decimal     `json:"trustShare"`
	Asset      AssetHandle `json:"asset"`
}

// SplitResult lists the children that replaced a split claim.
type SplitResult struct {
	First uint64   `json:"first"`
	Rest  []uint64 `json:"rest"`
}

// IDs returns every child id, first child included.
func (r SplitResult) IDs() []uint64 {
	return append([]uint64{r.First}, r.Rest...)
}

// RedeemRequest retires a claim. Principal, when set, is burned through the
// AssetTransfer collaborator.
type RedeemRequest struct {
	ClaimID   uint64
	Principal AssetHandle
}

// RedeemReceipt reports the value released by a redemption.
type RedeemReceipt struct {
	Claim      Claim       `json:"claim"`
	Yield      Decimal     `json:"yield"`
	YieldAsset AssetHandle `json:"yieldAsset"`
	Backing    Decimal     `json:"backing"`
}

// VestingReceipt reports a vesting withdrawal.
type VestingReceipt struct {
	Released uint64      `json:"released"`
	Epochs   []uint64    `json:"epochs"`
	Dust     bool        `json:"dust"`
	Asset    AssetHandle `json:"asset"`
}

// AdvanceSummary describes one accrual pass.
type AdvanceSummary struct {
	FromHour     uint64  `json:"fromHour"`
	ThroughHour  uint64  `json:"throughHour"`
	Hours        uint64  `json:"hours"`
	ClaimUpdates uint64  `json:"claimUpdates"`
	Emitted      Decimal `json:"emitted"`
	Allocated    Decimal `json:"allocated"`
	Watermark    uint64  `json:"watermark"`
}

// Snapshot is a consistent read of the whole ledger for exports.
type Snapshot struct {
	TakenAt   time.Time        `json:"takenAt"`
	Watermark uint64           `json:"watermark"`
	Totals    Totals           `json:"totals"`
	Claims    []*ClaimView     `json:"claims"`
	Mint      []MintEntry      `json:"mint"`
	Vesting   *VestingSchedule `json:"vesting,omitempty"`
}
