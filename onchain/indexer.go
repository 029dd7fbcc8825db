package onchain

import (
	"context"
	"log/slog"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "github.com/pinai-network/agent-sdk-go/pkg/errors"
	"github.com/pinai-network/agent-sdk-go/pkg/logger"
)

// Event signatures emitted by the intent matching contract.
const (
	SigOrderCreated     = "OrderCreated(uint256,address,uint8,uint256)"
	SigOrderMatched     = "OrderMatched(uint256,uint256,string)"
	SigAddressesTracked = "AddressesTracked(uint256,address[])"
	SigOrderCompleted   = "OrderCompleted(uint256,uint256)"
)

// LogHandler reacts to one decoded contract log.
type LogHandler func(ctx context.Context, log coretypes.Log)

// LogSubscriber is the slice of the chain client the indexer needs.
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q gethcore.FilterQuery, ch chan<- coretypes.Log) (gethcore.Subscription, error)
}

// Indexer watches a contract for events and dispatches them to handlers keyed
// by event signature. Logs with no registered handler are dropped silently.
type Indexer struct {
	subscriber LogSubscriber
	contract   common.Address
	log        *slog.Logger

	mu       sync.Mutex
	handlers map[common.Hash]LogHandler
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewIndexer builds an indexer over the given contract.
func NewIndexer(subscriber LogSubscriber, contract common.Address) *Indexer {
	return &Indexer{
		subscriber: subscriber,
		contract:   contract,
		handlers:   make(map[common.Hash]LogHandler),
		log:        logger.Named("indexer"),
	}
}

// On registers a handler for an event signature such as SigOrderCreated.
// Registration must happen before Start.
func (ix *Indexer) On(signature string, handler LogHandler) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.handlers[crypto.Keccak256Hash([]byte(signature))] = handler
}

// Start subscribes to the contract logs and dispatches until ctx is cancelled
// or Stop is called.
func (ix *Indexer) Start(ctx context.Context) error {
	ix.mu.Lock()
	if ix.running {
		ix.mu.Unlock()
		return xerrors.New(xerrors.CodeConflict, "indexer already running")
	}
	if ix.subscriber == nil {
		ix.mu.Unlock()
		return xerrors.New(xerrors.CodeInvalidArgument, "indexer needs a log subscriber")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	ix.cancel = cancel
	ix.done = make(chan struct{})
	ix.running = true
	ix.mu.Unlock()

	logs := make(chan coretypes.Log, 64)
	sub, err := ix.subscriber.SubscribeFilterLogs(loopCtx, gethcore.FilterQuery{
		Addresses: []common.Address{ix.contract},
	}, logs)
	if err != nil {
		ix.mu.Lock()
		ix.running = false
		ix.mu.Unlock()
		cancel()
		close(ix.done)
		return xerrors.Wrap(xerrors.CodeChainFailure, err, "subscribe to contract logs")
	}

	go ix.loop(loopCtx, sub, logs)
	ix.log.Info("indexer started", slog.String("contract", ix.contract.Hex()))
	return nil
}

func (ix *Indexer) loop(ctx context.Context, sub gethcore.Subscription, logs <-chan coretypes.Log) {
	defer func() {
		sub.Unsubscribe()
		ix.mu.Lock()
		ix.running = false
		ix.mu.Unlock()
		close(ix.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				ix.log.Error("log subscription failed", slog.Any("error", err))
			}
			return
		case entry := <-logs:
			ix.dispatch(ctx, entry)
		}
	}
}

func (ix *Indexer) dispatch(ctx context.Context, entry coretypes.Log) {
	if len(entry.Topics) == 0 {
		return
	}
	ix.mu.Lock()
	handler := ix.handlers[entry.Topics[0]]
	ix.mu.Unlock()
	if handler == nil {
		return
	}
	handler(ctx, entry)
}

// Stop cancels the subscription loop and waits for it to exit.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	if !ix.running {
		ix.mu.Unlock()
		return
	}
	cancel := ix.cancel
	done := ix.done
	ix.mu.Unlock()

	cancel()
	<-done
	ix.log.Info("indexer stopped")
}
