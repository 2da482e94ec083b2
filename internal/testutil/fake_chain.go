// Package testutil provides configurable test fakes for kycgate interfaces.
package testutil

import (
	"context"
	"sync"

	kycgate "github.com/eugener/kycgate/internal"
)

// FakeChain is a configurable chain reader. Unset funcs return a zero value
// and no error. Call counts are kept per method.
type FakeChain struct {
	BlockNumberFn func(ctx context.Context) (uint64, error)
	TrustScoreFn  func(ctx context.Context, addr kycgate.Address) (uint64, error)
	KYCStatusFn   func(ctx context.Context, addr kycgate.Address) (kycgate.KYCStatus, error)

	mu    sync.Mutex
	calls map[string]int
}

func (f *FakeChain) count(method string) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
	f.mu.Unlock()
}

// Calls returns how many times method was invoked.
func (f *FakeChain) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// BlockNumber delegates to BlockNumberFn.
func (f *FakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	f.count("BlockNumber")
	if f.BlockNumberFn != nil {
		return f.BlockNumberFn(ctx)
	}
	return 0, nil
}

// TrustScore delegates to TrustScoreFn.
func (f *FakeChain) TrustScore(ctx context.Context, addr kycgate.Address) (uint64, error) {
	f.count("TrustScore")
	if f.TrustScoreFn != nil {
		return f.TrustScoreFn(ctx, addr)
	}
	return 0, nil
}

// KYCStatus delegates to KYCStatusFn.
func (f *FakeChain) KYCStatus(ctx context.Context, addr kycgate.Address) (kycgate.KYCStatus, error) {
	f.count("KYCStatus")
	if f.KYCStatusFn != nil {
		return f.KYCStatusFn(ctx, addr)
	}
	return kycgate.KYCNone, nil
}
