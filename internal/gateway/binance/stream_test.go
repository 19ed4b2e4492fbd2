package binance

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMarkStream_StopAfterFailedStart(t *testing.T) {
	// Nothing listens on this port; the initial dial fails.
	stream := NewMarkStream("ws://127.0.0.1:1", []string{"BTCUSDT"}, nil)
	if err := stream.Start(context.Background()); err == nil {
		t.Fatal("Start() = nil, want dial error")
	}

	stopped := make(chan struct{})
	go func() {
		stream.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after a failed Start")
	}
}

func TestMarkStream_LatestMissesWhenStale(t *testing.T) {
	stream := NewMarkStream("", []string{"BTCUSDT"}, nil)
	stream.MaxAge = 5 * time.Millisecond

	if _, ok := stream.Latest("BTCUSDT"); ok {
		t.Fatal("Latest() hit with no quote cached")
	}

	stream.mu.Lock()
	stream.latest["BTCUSDT"] = markQuote{
		price: decimal.RequireFromString("45000.10"),
		at:    time.Now(),
	}
	stream.mu.Unlock()

	price, ok := stream.Latest("BTCUSDT")
	if !ok {
		t.Fatal("Latest() missed a fresh quote")
	}
	if !price.Equal(decimal.RequireFromString("45000.10")) {
		t.Errorf("Latest() = %s, want 45000.10", price)
	}

	time.Sleep(10 * time.Millisecond)
	if _, ok := stream.Latest("BTCUSDT"); ok {
		t.Error("Latest() hit after the quote went stale")
	}
}
