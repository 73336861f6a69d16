package redis_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/evetabi/settlement/internal/cache/redis"
	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
)

func TestKeysAreNamespaced(t *testing.T) {
	if got := redis.LockKey("archive"); got != "settlement:lock:archive" {
		t.Errorf("LockKey() = %q", got)
	}
	if got := redis.RateLimitKey("ip:10.0.0.1"); got != "settlement:ratelimit:ip:10.0.0.1" {
		t.Errorf("RateLimitKey() = %q", got)
	}
}

func TestEncodeEvent(t *testing.T) {
	marketID := uuid.New()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := domain.NewEvent(domain.EventDisputeFiled, marketID, domain.DisputeFiledPayload{MarketStatus: domain.StatusDisputed}, at)

	data, err := redis.EncodeEvent(ev)
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		ID        uuid.UUID        `json:"id"`
		Type      domain.EventType `json:"type"`
		MarketID  uuid.UUID        `json:"market_id"`
		Timestamp time.Time        `json:"timestamp"`
		Payload   struct {
			MarketStatus string `json:"market_status"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != ev.ID || got.Type != domain.EventDisputeFiled || got.MarketID != marketID || !got.Timestamp.Equal(at) {
		t.Errorf("decoded envelope = %+v", got)
	}
	if got.Payload.MarketStatus != "disputed" {
		t.Errorf("payload.market_status = %q, want disputed", got.Payload.MarketStatus)
	}
}
