package accrual

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

type storedClaim struct {
	MintHour   uint64
	Principal  uint64
	TrustShare []byte
}

type storedTombstone struct {
	Status uint8
	Hour   uint64
}

type storedTotals struct {
	Minted          uint64
	LiveClaims      uint64
	LivePrincipal   uint64
	Redeemed        uint64
	VestingReleased uint64
	YieldEmitted    []byte
	YieldAllocated  []byte
	YieldRedeemed   []byte
}

type storedVestingState struct {
	Start     uint64
	Period    uint64
	Weeks     uint64
	Reserve   uint64
	PerPeriod uint64
	Released  uint64
}

type storedVestingEntry struct {
	Epoch uint64
	Used  bool
}

func encodeClaim(c *Claim) ([]byte, error) {
	return rlp.EncodeToBytes(storedClaim{
		MintHour:   c.MintHour,
		Principal:  c.Principal,
		TrustShare: c.TrustShare.Bytes(),
	})
}

func decodeClaim(id uint64, raw []byte) (*Claim, error) {
	var stored storedClaim
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("accrual: decode claim %d: %w", id, err)
	}
	share, err := DecimalFromBytes(stored.TrustShare)
	if err != nil {
		return nil, fmt.Errorf("accrual: decode claim %d trust share: %w", id, err)
	}
	return &Claim{ID: id, MintHour: stored.MintHour, Principal: stored.Principal, TrustShare: share}, nil
}

func encodeTombstone(t Tombstone) ([]byte, error) {
	return rlp.EncodeToBytes(storedTombstone{Status: uint8(t.Status), Hour: t.Hour})
}

func decodeTombstone(raw []byte) (*Tombstone, error) {
	var stored storedTombstone
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("accrual: decode tombstone: %w", err)
	}
	return &Tombstone{Status: ClaimStatus(stored.Status), Hour: stored.Hour}, nil
}

func encodeTotals(t *Totals) ([]byte, error) {
	return rlp.EncodeToBytes(storedTotals{
		Minted:          t.Minted,
		LiveClaims:      t.LiveClaims,
		LivePrincipal:   t.LivePrincipal,
		Redeemed:        t.Redeemed,
		VestingReleased: t.VestingReleased,
		YieldEmitted:    t.YieldEmitted.Bytes(),
		YieldAllocated:  t.YieldAllocated.Bytes(),
		YieldRedeemed:   t.YieldRedeemed.Bytes(),
	})
}

func decodeTotals(raw []byte) (*Totals, error) {
	var stored storedTotals
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("accrual: decode totals: %w", err)
	}
	out := &Totals{
		Minted:          stored.Minted,
		LiveClaims:      stored.LiveClaims,
		LivePrincipal:   stored.LivePrincipal,
		Redeemed:        stored.Redeemed,
		VestingReleased: stored.VestingReleased,
	}
	var err error
	if out.YieldEmitted, err = DecimalFromBytes(stored.YieldEmitted); err != nil {
		return nil, err
	}
	if out.YieldAllocated, err = DecimalFromBytes(stored.YieldAllocated); err != nil {
		return nil, err
	}
	if out.YieldRedeemed, err = DecimalFromBytes(stored.YieldRedeemed); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeVestingState(s *VestingState) ([]byte, error) {
	return rlp.EncodeToBytes(storedVestingState{
		Start:     uint64(s.Start.Unix()),
		Period:    uint64(s.Period),
		Weeks:     s.Weeks,
		Reserve:   s.Reserve,
		PerPeriod: s.PerPeriod,
		Released:  s.Released,
	})
}

func decodeVestingState(raw []byte) (*VestingState, error) {
	var stored storedVestingState
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("accrual: decode vesting state: %w", err)
	}
	return &VestingState{
		Start:     time.Unix(int64(stored.Start), 0).UTC(),
		Period:    time.Duration(stored.Period),
		Weeks:     stored.Weeks,
		Reserve:   stored.Reserve,
		PerPeriod: stored.PerPeriod,
		Released:  stored.Released,
	}, nil
}

func encodeVestingEntry(e VestingEntry) ([]byte, error) {
	return rlp.EncodeToBytes(storedVestingEntry{Epoch: uint64(e.Epoch.Unix()), Used: e.Used})
}

func decodeVestingEntry(index uint64, raw []byte) (VestingEntry, error) {
	var stored storedVestingEntry
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return VestingEntry{}, fmt.Errorf("accrual: decode vesting entry %d: %w", index, err)
	}
	return VestingEntry{Index: index, Epoch: time.Unix(int64(stored.Epoch), 0).UTC(), Used: stored.Used}, nil
}
