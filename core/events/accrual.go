package events

import (
	"strconv"
	"strings"
)

const (
	TypeSaleStarted     = "accrual.sale_started"
	TypeClaimDeposited  = "accrual.claim_deposited"
	TypeClaimSplit      = "accrual.claim_split"
	TypeClaimRedeemed   = "accrual.claim_redeemed"
	TypeYieldAdvanced   = "accrual.yield_advanced"
	TypeVestingReleased = "accrual.vesting_released"
	TypeLedgerHalted    = "accrual.ledger_halted"
)

// SaleStarted marks the reference instant hours are counted from.
type SaleStarted struct {
	Start        int64
	VestingWeeks uint64
	Reserve      uint64
}

func (SaleStarted) EventType() string { return TypeSaleStarted }

func (e SaleStarted) Record() *Record {
	return &Record{Type: TypeSaleStarted, Attributes: map[string]string{
		"start":        strconv.FormatInt(e.Start, 10),
		"vestingWeeks": strconv.FormatUint(e.VestingWeeks, 10),
		"reserve":      strconv.FormatUint(e.Reserve, 10),
	}}
}

// ClaimDeposited is emitted when a deposit creates a claim.
type ClaimDeposited struct {
	ClaimID    uint64
	MintHour   uint64
	Principal  uint64
	TrustShare string
}

func (ClaimDeposited) EventType() string { return TypeClaimDeposited }

func (e ClaimDeposited) Record() *Record {
	attrs := map[string]string{
		"claim":     strconv.FormatUint(e.ClaimID, 10),
		"mintHour":  strconv.FormatUint(e.MintHour, 10),
		"principal": strconv.FormatUint(e.Principal, 10),
	}
	if share := strings.TrimSpace(e.TrustShare); share != "" {
		attrs["trustShare"] = share
	}
	return &Record{Type: TypeClaimDeposited, Attributes: attrs}
}

// ClaimSplit is emitted when a claim is replaced by its children.
type ClaimSplit struct {
	Parent   uint64
	Children []uint64
}

func (ClaimSplit) EventType() string { return TypeClaimSplit }

func (e ClaimSplit) Record() *Record {
	children := make([]string, len(e.Children))
	for i, id := range e.Children {
		children[i] = strconv.FormatUint(id, 10)
	}
	return &Record{Type: TypeClaimSplit, Attributes: map[string]string{
		"parent":   strconv.FormatUint(e.Parent, 10),
		"children": strings.Join(children, ","),
	}}
}

// ClaimRedeemed is emitted when a claim is retired and its yield paid out.
type ClaimRedeemed struct {
	ClaimID   uint64
	Principal uint64
	Yield     string
	Backing   string
}

func (ClaimRedeemed) EventType() string { return TypeClaimRedeemed }

func (e ClaimRedeemed) Record() *Record {
	return &Record{Type: TypeClaimRedeemed, Attributes: map[string]string{
		"claim":     strconv.FormatUint(e.ClaimID, 10),
		"principal": strconv.FormatUint(e.Principal, 10),
		"yield":     e.Yield,
		"backing":   e.Backing,
	}}
}

// YieldAdvanced is emitted after an accrual pass moved the watermark.
type YieldAdvanced struct {
	FromHour  uint64
	Watermark uint64
	Emitted   string
	Allocated string
}

func (YieldAdvanced) EventType() string { return TypeYieldAdvanced }

func (e YieldAdvanced) Record() *Record {
	return &Record{Type: TypeYieldAdvanced, Attributes: map[string]string{
		"from":      strconv.FormatUint(e.FromHour, 10),
		"watermark": strconv.FormatUint(e.Watermark, 10),
		"emitted":   e.Emitted,
		"allocated": e.Allocated,
	}}
}

// VestingReleased is emitted when reserve principal is released.
type VestingReleased struct {
	Amount uint64
	Epochs []uint64
	Dust   bool
}

func (VestingReleased) EventType() string { return TypeVestingReleased }

func (e VestingReleased) Record() *Record {
	epochs := make([]string, len(e.Epochs))
	for i, idx := range e.Epochs {
		epochs[i] = strconv.FormatUint(idx, 10)
	}
	return &Record{Type: TypeVestingReleased, Attributes: map[string]string{
		"amount": strconv.FormatUint(e.Amount, 10),
		"epochs": strings.Join(epochs, ","),
		"dust":   strconv.FormatBool(e.Dust),
	}}
}

// LedgerHalted is emitted once when an invariant violation stops the ledger.
type LedgerHalted struct {
	Operation string
	Reason    string
}

func (LedgerHalted) EventType() string { return TypeLedgerHalted }

func (e LedgerHalted) Record() *Record {
	return &Record{Type: TypeLedgerHalted, Attributes: map[string]string{
		"operation": e.Operation,
		"reason":    e.Reason,
	}}
}
