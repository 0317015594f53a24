package registry

// NewReserved returns the product's aggregate reserved count after applying
// a signed delta (positive claims more units, negative releases them). It is
// the single source of truth for "can this many more units be claimed" and
// must be evaluated against the same snapshot the subsequent conditional
// write is conditioned on.
func NewReserved(p Product, delta int) (int, error) {
	// A delta beyond the product's total quantity can never fit; rejecting
	// it here also keeps the sums below from wrapping on a huge request.
	if delta > p.Quantity {
		return 0, &QuantityError{Requested: delta, Available: p.Available()}
	}
	next := p.Reserved + delta
	if next < 0 {
		return 0, &QuantityError{Requested: delta, Available: p.Available()}
	}
	if next > p.Quantity-p.Purchased {
		return 0, &QuantityError{Requested: delta, Available: p.Available()}
	}
	return next, nil
}

// Delta returns the signed adjustment that moves a reservation from its
// current quantity to the requested one. Requesting the current quantity is
// ErrNoChange; requesting zero or less is ErrInvalidQuantity, since
// releasing a reservation entirely goes through cancel.
func Delta(current, requested int) (int, error) {
	if requested <= 0 {
		return 0, ErrInvalidQuantity
	}
	if requested == current {
		return 0, ErrNoChange
	}
	return requested - current, nil
}
