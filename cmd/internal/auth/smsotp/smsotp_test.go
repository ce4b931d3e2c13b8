package smsotp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"beauty/cmd/internal/auth/ratelimit"
	"beauty/cmd/internal/notify"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (c *captureSender) Send(ctx context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureSender) lastCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		t.Fatalf("no message sent")
	}
	body := c.msgs[len(c.msgs)-1].Body
	i := strings.LastIndex(body, " ")
	return body[i+1:]
}

func newTestService(t *testing.T) (*Service, *captureSender, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sender := &captureSender{}
	svc := NewService(DefaultConfig(), NewRedisStore(client), ratelimit.NewRedisLimiter(client), sender)
	return svc, sender, mr
}

const testPhone = "+15551230000"

func TestRequestThenVerify(t *testing.T) {
	svc, sender, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Request(ctx, testPhone); err != nil {
		t.Fatalf("Request: %v", err)
	}
	code := sender.lastCode(t)
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	if err := svc.Verify(ctx, testPhone, code); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// Single use.
	err := svc.Verify(ctx, testPhone, code)
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("want ErrCodeExpired after consumption, got %v", err)
	}
}

func TestVerify_WrongCodeBudget(t *testing.T) {
	svc, sender, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Request(ctx, testPhone); err != nil {
		t.Fatalf("Request: %v", err)
	}
	code := sender.lastCode(t)

	for i := 0; i < 3; i++ {
		err := svc.Verify(ctx, testPhone, "000000")
		if !errors.Is(err, ErrVerificationFailed) {
			t.Fatalf("try %d: want ErrVerificationFailed, got %v", i, err)
		}
	}

	// Budget exhausted burns the code; even the right one is dead now.
	err := svc.Verify(ctx, testPhone, code)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want ErrRateLimited after three misses, got %v", err)
	}
	err = svc.Verify(ctx, testPhone, code)
	if !errors.Is(err, ErrRateLimited) && !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("burned code must never verify, got %v", err)
	}
}

func TestRequest_BudgetPerHour(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Request(ctx, testPhone); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := svc.Request(ctx, testPhone); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want ErrRateLimited on fourth request, got %v", err)
	}

	mr.FastForward(time.Hour + time.Second)
	if err := svc.Request(ctx, testPhone); err != nil {
		t.Fatalf("request after window: %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	svc, sender, mr := newTestService(t)
	ctx := context.Background()

	if err := svc.Request(ctx, testPhone); err != nil {
		t.Fatalf("Request: %v", err)
	}
	code := sender.lastCode(t)

	mr.FastForward(6 * time.Minute)

	err := svc.Verify(ctx, testPhone, code)
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("want ErrCodeExpired, got %v", err)
	}
}

func TestRequest_FreshCodeReplacesOld(t *testing.T) {
	svc, sender, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Request(ctx, testPhone); err != nil {
		t.Fatalf("first request: %v", err)
	}
	old := sender.lastCode(t)

	// Spend some verification budget on the old code.
	_ = svc.Verify(ctx, testPhone, "000000")
	_ = svc.Verify(ctx, testPhone, "000000")

	if err := svc.Request(ctx, testPhone); err != nil {
		t.Fatalf("second request: %v", err)
	}
	fresh := sender.lastCode(t)

	if old != fresh {
		if err := svc.Verify(ctx, testPhone, old); err == nil {
			t.Fatalf("old code must not verify after replacement")
		}
	}

	// The new code carries a full budget again.
	for i := 0; i < 2; i++ {
		if err := svc.Verify(ctx, testPhone, "111111"); !errors.Is(err, ErrVerificationFailed) {
			t.Fatalf("budget try %d: got %v", i, err)
		}
	}
	if err := svc.Verify(ctx, testPhone, fresh); err != nil {
		t.Fatalf("fresh code on last try: %v", err)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.SaveCode(ctx, testPhone, "hash", 20*time.Millisecond); err != nil {
		t.Fatalf("SaveCode: %v", err)
	}
	if h, err := store.LoadCodeHash(ctx, testPhone); err != nil || h != "hash" {
		t.Fatalf("LoadCodeHash: %q %v", h, err)
	}

	time.Sleep(30 * time.Millisecond)
	if _, err := store.LoadCodeHash(ctx, testPhone); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("want ErrCodeExpired, got %v", err)
	}
}
