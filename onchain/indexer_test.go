package onchain

import (
	"context"
	"testing"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type fakeSubscription struct {
	errCh chan error
}

func (f *fakeSubscription) Unsubscribe() {}

func (f *fakeSubscription) Err() <-chan error { return f.errCh }

type fakeSubscriber struct {
	logs chan<- coretypes.Log
	sub  *fakeSubscription
}

func (f *fakeSubscriber) SubscribeFilterLogs(_ context.Context, _ gethcore.FilterQuery, ch chan<- coretypes.Log) (gethcore.Subscription, error) {
	f.logs = ch
	f.sub = &fakeSubscription{errCh: make(chan error, 1)}
	return f.sub, nil
}

func TestIndexerDispatchesBySignature(t *testing.T) {
	subscriber := &fakeSubscriber{}
	ix := NewIndexer(subscriber, common.HexToAddress(DefaultContractAddress))

	handled := make(chan coretypes.Log, 1)
	ix.On(SigOrderCreated, func(_ context.Context, entry coretypes.Log) {
		handled <- entry
	})

	if err := ix.Start(context.Background()); err != nil {
		t.Fatalf("start indexer: %v", err)
	}
	defer ix.Stop()

	subscriber.logs <- coretypes.Log{
		Topics: []common.Hash{crypto.Keccak256Hash([]byte(SigOrderCreated))},
	}
	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}

	// A log with an unregistered signature must be dropped without blocking.
	subscriber.logs <- coretypes.Log{
		Topics: []common.Hash{crypto.Keccak256Hash([]byte(SigOrderCompleted))},
	}
	select {
	case <-handled:
		t.Fatal("unexpected dispatch for unregistered signature")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIndexerStopIsIdempotent(t *testing.T) {
	subscriber := &fakeSubscriber{}
	ix := NewIndexer(subscriber, common.HexToAddress(DefaultContractAddress))
	if err := ix.Start(context.Background()); err != nil {
		t.Fatalf("start indexer: %v", err)
	}
	ix.Stop()
	ix.Stop()

	if err := ix.Start(context.Background()); err != nil {
		t.Fatalf("restart indexer: %v", err)
	}
	ix.Stop()
}
