package hello

import (
	"fmt"

	"github.com/govm-net/hellokv/core"
)

// GetMetadata returns a copy of the metadata
func (s *State) GetMetadata() Metadata {
	return s.Metadata
}

func (s *State) GetOwner() core.AccountID {
	return s.Owner
}

// GetData returns the value stored under key, ok is false if it was never written
func (s *State) GetData(ctx core.Context, key string) (value string, ok bool, err error) {
	return s.data.Get(ctx, key)
}

func (s *State) Hello(name string) string {
	return fmt.Sprintf("Hello, %s! This is %s contract.", name, ContractName)
}

// SetData stores value under key, replacing any previous value. Owner only.
func (s *State) SetData(ctx core.Context, key, value string) error {
	if err := s.assertOwner(ctx); err != nil {
		return err
	}
	if err := s.data.Insert(ctx, key, value); err != nil {
		return fmt.Errorf("failed to store %q: %w", key, err)
	}
	ctx.Log(DataSetEvent(key, value))
	return nil
}

// Donate acknowledges the attached deposit. Nothing is recorded in state.
func (s *State) Donate(ctx core.Context) string {
	amount := ctx.AttachedDeposit().Dec()
	donor := ctx.Predecessor()
	ctx.Log(DonationEvent(donor, amount))
	return fmt.Sprintf("Thank you %s for donating %s yoctoNEAR!", donor, amount)
}

func (s *State) assertOwner(ctx core.Context) error {
	if ctx.Predecessor() != s.Owner {
		return fmt.Errorf("%w: Only the owner can call this method", core.ErrUnauthorized)
	}
	return nil
}
