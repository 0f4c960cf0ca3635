package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseInterval(t *testing.T) {
	for _, iv := range Intervals() {
		got, err := ParseInterval(string(iv))
		if err != nil {
			t.Fatalf("ParseInterval(%q) returned error: %v", iv, err)
		}
		if got != iv {
			t.Errorf("ParseInterval(%q) = %q, want %q", iv, got, iv)
		}
		if got.Duration() == 0 {
			t.Errorf("%q.Duration() = 0", iv)
		}
	}

	if _, err := ParseInterval("2h"); err == nil {
		t.Error("ParseInterval(\"2h\") should fail")
	}
}

func TestSignalValidate(t *testing.T) {
	tests := []struct {
		name     string
		side     Side
		strength string
		wantErr  error
	}{
		{"zero strength", SideBuy, "0", nil},
		{"full strength", SideSell, "1", nil},
		{"half strength", SideBuy, "0.5", nil},
		{"above one", SideBuy, "1.5", ErrInvalidStrength},
		{"negative", SideSell, "-0.01", ErrInvalidStrength},
		{"bad side", Side("HOLD"), "1", ErrInvalidSide},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Signal{Side: tt.side, Symbol: "BTC-USD", Strength: decimal.RequireFromString(tt.strength)}
			err := sig.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() returned unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPositionClose(t *testing.T) {
	pos := Position{
		Symbol:     "BTC-USD",
		Quantity:   decimal.NewFromInt(10),
		EntryPrice: decimal.NewFromInt(100),
		EntryTime:  1000,
	}

	trade := pos.Close(decimal.NewFromInt(90), 2000)

	if !trade.PnL.Equal(decimal.NewFromInt(-100)) {
		t.Errorf("PnL = %s, want -100", trade.PnL)
	}
	if trade.EntryTime != 1000 || trade.ExitTime != 2000 {
		t.Errorf("times = (%d, %d), want (1000, 2000)", trade.EntryTime, trade.ExitTime)
	}
	if !trade.ReturnPct().Equal(decimal.RequireFromString("-0.1")) {
		t.Errorf("ReturnPct() = %s, want -0.1", trade.ReturnPct())
	}
}

func TestCandleTime(t *testing.T) {
	c := Candle{Timestamp: 1704067200}
	if got := c.Time().Format("2006-01-02"); got != "2024-01-01" {
		t.Errorf("Time() = %s, want 2024-01-01", got)
	}
}
