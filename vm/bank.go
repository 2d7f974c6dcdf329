package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/tolelom/battlechain/core"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Debit takes amount from addr's balance.
func Debit(st core.State, addr string, amount uint64) error {
	acc, err := st.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc.Balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, acc.Balance, amount)
	}
	acc.Balance -= amount
	return st.SetAccount(acc)
}

// Credit adds amount to addr's balance, creating the account if needed.
func Credit(st core.State, addr string, amount uint64) error {
	acc, err := st.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc.Balance > math.MaxUint64-amount {
		return fmt.Errorf("balance overflow for %s", addr)
	}
	acc.Balance += amount
	return st.SetAccount(acc)
}
