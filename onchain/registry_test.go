package onchain

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func TestTruncateCapsLongFields(t *testing.T) {
	long := strings.Repeat("x", MaxFieldLength+50)
	if got := Truncate(long); len(got) != MaxFieldLength {
		t.Fatalf("expected %d chars, got %d", MaxFieldLength, len(got))
	}
	short := "fits"
	if got := Truncate(short); got != short {
		t.Fatalf("short string must pass through, got %q", got)
	}
}

func TestCategoryOfIsDeterministic(t *testing.T) {
	a := CategoryOf("ECHO")
	b := CategoryOf("ECHO")
	if a != b {
		t.Fatal("category hash must be deterministic")
	}
	if a == CategoryOf("OTHER") {
		t.Fatal("different tickers must hash differently")
	}
	if a == (common.Hash{}) {
		t.Fatal("category hash must not be zero")
	}
}

func TestAgentManageABIPacksCalls(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(agentManageABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	create, err := parsed.Pack("create",
		common.HexToAddress("0x0000000000000000000000000000000000000001"),
		"name", "ECHO", "description",
		big.NewInt(42),
		CategoryOf("ECHO"),
	)
	if err != nil {
		t.Fatalf("pack create: %v", err)
	}
	if len(create) == 0 {
		t.Fatal("empty create calldata")
	}
	update, err := parsed.Pack("updateAgentStatusByAgentId", big.NewInt(42), uint8(statusDisabled))
	if err != nil {
		t.Fatalf("pack status update: %v", err)
	}
	if len(update) == 0 {
		t.Fatal("empty update calldata")
	}
}

func TestNewRegistryValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewRegistry(ctx, Config{}); err == nil {
		t.Fatal("expected error for missing rpc url")
	}
	if _, err := NewRegistry(ctx, Config{RPCURL: "http://127.0.0.1:8545"}); err == nil {
		t.Fatal("expected error for missing private key")
	}
	if _, err := NewRegistry(ctx, Config{RPCURL: "http://127.0.0.1:8545", PrivateKey: "not-hex"}); err == nil {
		t.Fatal("expected error for malformed private key")
	}
}
