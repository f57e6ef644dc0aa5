package accrual

// DefaultMaxSplitChildren caps the children of a single Split unless the
// engine is configured otherwise.
const DefaultMaxSplitChildren uint64 = 1024

// splitPart is the principal, trust share and yield assigned to one child.
type splitPart struct {
	Principal  uint64
	TrustShare Decimal
	Yield      Decimal
}

// planSplit divides a claim into n parts. The first part absorbs the
// remainder of every integer and decimal division, so the parts always sum
// back to the inputs.
func planSplit(principal uint64, n uint64, trustShare, yield Decimal) ([]splitPart, error) {
	if n < 2 {
		return nil, ErrSplitCount
	}
	if n > principal {
		return nil, ErrSplitTooLarge
	}
	rest := principal / n
	first := principal - rest*(n-1)

	restTrust, err := trustShare.MulDiv(rest, principal)
	if err != nil {
		return nil, err
	}
	restYield, err := yield.MulDiv(rest, principal)
	if err != nil {
		return nil, err
	}
	firstTrust, err := remainderShare(trustShare, restTrust, n-1)
	if err != nil {
		return nil, err
	}
	firstYield, err := remainderShare(yield, restYield, n-1)
	if err != nil {
		return nil, err
	}

	parts := make([]splitPart, n)
	parts[0] = splitPart{Principal: first, TrustShare: firstTrust, Yield: firstYield}
	for i := uint64(1); i < n; i++ {
		parts[i] = splitPart{Principal: rest, TrustShare: restTrust, Yield: restYield}
	}
	return parts, nil
}

func remainderShare(total, each Decimal, count uint64) (Decimal, error) {
	allocated, err := each.MulUint(count)
	if err != nil {
		return Decimal{}, err
	}
	return total.Sub(allocated)
}

// verifySplit checks the children reconstruct the parent exactly.
func verifySplit(parent *Claim, parentYield Decimal, children []*Claim, childYields []Decimal) error {
	var principal uint64
	trust := Zero()
	yield := Zero()
	for i, child := range children {
		if child.Principal == 0 {
			return invariantf("split child %d has zero principal", child.ID)
		}
		if child.MintHour != parent.MintHour {
			return invariantf("split child %d mint hour %d differs from parent %d", child.ID, child.MintHour, parent.MintHour)
		}
		if principal+child.Principal < principal {
			return invariantf("split principal overflow")
		}
		principal += child.Principal
		var err error
		if trust, err = trust.Add(child.TrustShare); err != nil {
			return invariantf("split trust share overflow")
		}
		if yield, err = yield.Add(childYields[i]); err != nil {
			return invariantf("split yield overflow")
		}
	}
	if principal != parent.Principal {
		return invariantf("split principal %d != parent %d", principal, parent.Principal)
	}
	if !trust.Equal(parent.TrustShare) {
		return invariantf("split trust share %s != parent %s", trust, parent.TrustShare)
	}
	if !yield.Equal(parentYield) {
		return invariantf("split yield %s != parent %s", yield, parentYield)
	}
	return nil
}
