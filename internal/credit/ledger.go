package credit

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotMinter             = errors.New("caller is not a minter")
	ErrSupplyOverflow        = errors.New("total supply overflow")
	ErrZeroAmount            = errors.New("amount must be positive")
)

// Ledger is a fungible balance store in the smallest credit
// denomination. It is the single money substrate for the marketplace:
// renter balances, owner payouts, the escrow custody account and the
// insurance fund are all ordinary accounts here, so a rental lifecycle
// is a pure transfer and total supply moves only through Mint and Burn.
type Ledger struct {
	mu          sync.Mutex
	balances    map[string]uint64
	allowances  map[string]map[string]uint64
	minters     map[string]struct{}
	totalSupply uint64
}

// NewLedger creates an empty ledger with the given minter accounts.
func NewLedger(minters ...string) *Ledger {
	l := &Ledger{
		balances:   make(map[string]uint64),
		allowances: make(map[string]map[string]uint64),
		minters:    make(map[string]struct{}),
	}
	for _, m := range minters {
		l.minters[m] = struct{}{}
	}
	return l
}

// BalanceOf returns the balance of holder. Unknown accounts hold zero.
func (l *Ledger) BalanceOf(holder string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[holder]
}

// TotalSupply returns the amount ever minted minus the amount burned.
func (l *Ledger) TotalSupply() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalSupply
}

// Mint creates amount new credits in to's account. Caller must hold the
// minter role.
func (l *Ledger) Mint(caller, to string, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.minters[caller]; !ok {
		return ErrNotMinter
	}
	if l.totalSupply > math.MaxUint64-amount {
		return ErrSupplyOverflow
	}
	l.totalSupply += amount
	l.balances[to] += amount
	return nil
}

// Burn destroys amount credits from the caller's own balance.
func (l *Ledger) Burn(caller string, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[caller] < amount {
		return ErrInsufficientBalance
	}
	l.balances[caller] -= amount
	l.totalSupply -= amount
	return nil
}

// Transfer moves amount from from's balance to to's balance.
func (l *Ledger) Transfer(from, to string, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(from, to, amount)
}

// Approve lets spender move up to amount from owner's balance via
// TransferFrom. A new approval overwrites the previous one.
func (l *Ledger) Approve(owner, spender string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[string]uint64)
	}
	l.allowances[owner][spender] = amount
}

// Allowance returns how much spender may still move from owner.
func (l *Ledger) Allowance(owner, spender string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[owner][spender]
}

// TransferFrom moves amount from from's balance to to's balance on the
// strength of a prior approval to spender. The allowance is reduced by
// the amount moved.
func (l *Ledger) TransferFrom(spender, from, to string, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.allowances[from][spender] < amount {
		return ErrInsufficientAllowance
	}
	if err := l.transferLocked(from, to, amount); err != nil {
		return err
	}
	l.allowances[from][spender] -= amount
	return nil
}

func (l *Ledger) transferLocked(from, to string, amount uint64) error {
	if l.balances[from] < amount {
		return ErrInsufficientBalance
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}
