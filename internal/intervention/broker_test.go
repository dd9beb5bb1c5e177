package intervention

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestBroker(opts ...BrokerOption) *Broker {
	opts = append([]BrokerOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return NewBroker(opts...)
}

func echoHandlers() HandlerTable {
	h := func(ctx context.Context, iv *Intervention) (string, error) {
		return "handled " + string(iv.Kind), nil
	}
	return HandlerTable{
		QuestionToParticipant: h,
		BroadcastQuestion:     h,
		AddInformation:        h,
		SkipRound:             h,
		Terminate:             h,
	}
}

func TestSubmitValidatesPayload(t *testing.T) {
	b := newTestBroker()

	cases := []struct {
		kind    Kind
		payload Payload
		ok      bool
	}{
		{QuestionToParticipant, Payload{Target: "cardiology", Question: "dosage?"}, true},
		{QuestionToParticipant, Payload{Question: "dosage?"}, false},
		{QuestionToParticipant, Payload{Target: "cardiology"}, false},
		{BroadcastQuestion, Payload{Question: "any objections?"}, true},
		{BroadcastQuestion, Payload{}, false},
		{AddInformation, Payload{Information: "allergy to penicillin"}, true},
		{AddInformation, Payload{}, false},
		{SkipRound, Payload{}, true},
		{Terminate, Payload{}, true},
		{Kind("bogus"), Payload{}, false},
	}
	for _, tc := range cases {
		_, err := b.Submit("s1", tc.kind, tc.payload)
		if tc.ok && err != nil {
			t.Errorf("Submit(%s) unexpected error: %v", tc.kind, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("Submit(%s) expected error, got nil", tc.kind)
		}
	}
}

func TestNextClaimsInFIFOOrder(t *testing.T) {
	b := newTestBroker()

	var ids []string
	for i := 0; i < 5; i++ {
		iv, err := b.Submit("s1", BroadcastQuestion, Payload{Question: fmt.Sprintf("q%d", i)})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, iv.ID)
	}
	if got := b.Pending(); got != 5 {
		t.Fatalf("Pending = %d, want 5", got)
	}

	for i := 0; i < 5; i++ {
		iv := b.Next()
		if iv == nil {
			t.Fatalf("Next returned nil at %d", i)
		}
		if iv.ID != ids[i] {
			t.Errorf("claim %d = %s, want %s", i, iv.ID, ids[i])
		}
		if iv.Status != StatusProcessing {
			t.Errorf("claimed status = %s, want processing", iv.Status)
		}
	}
	if iv := b.Next(); iv != nil {
		t.Fatalf("Next on empty queue = %v, want nil", iv)
	}
}

func TestResolveLifecycle(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	iv, err := b.Submit("s1", QuestionToParticipant, Payload{Target: "oncology", Question: "staging?"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if iv.Status != StatusPending {
		t.Fatalf("submitted status = %s, want pending", iv.Status)
	}

	claimed := b.Next()
	done, err := b.Resolve(ctx, claimed.ID, echoHandlers())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("resolved status = %s, want completed", done.Status)
	}
	if done.Response != "handled question_to_participant" {
		t.Errorf("response = %q", done.Response)
	}
	if done.ResolvedAt.IsZero() {
		t.Error("ResolvedAt not set")
	}

	got, err := b.Status(iv.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
}

func TestResolveRejectsDoubleClaim(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	iv, _ := b.Submit("s1", SkipRound, Payload{})

	// not yet claimed
	if _, err := b.Resolve(ctx, iv.ID, echoHandlers()); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("Resolve before claim = %v, want ErrAlreadyClaimed", err)
	}

	b.Next()
	if _, err := b.Resolve(ctx, iv.ID, echoHandlers()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// terminal statuses are immutable
	if _, err := b.Resolve(ctx, iv.ID, echoHandlers()); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second Resolve = %v, want ErrAlreadyClaimed", err)
	}
}

func TestResolveHandlerFailure(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	iv, _ := b.Submit("s1", Terminate, Payload{})
	b.Next()

	done, err := b.Resolve(ctx, iv.ID, HandlerTable{
		Terminate: func(ctx context.Context, iv *Intervention) (string, error) {
			return "", errors.New("downstream unavailable")
		},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if done.Status != StatusFailed {
		t.Errorf("status = %s, want failed", done.Status)
	}
	if done.Err != "downstream unavailable" {
		t.Errorf("err = %q", done.Err)
	}
}

func TestResolveContainsHandlerPanic(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	iv, _ := b.Submit("s1", SkipRound, Payload{})
	b.Next()

	done, err := b.Resolve(ctx, iv.ID, HandlerTable{
		SkipRound: func(ctx context.Context, iv *Intervention) (string, error) {
			panic("boom")
		},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if done.Status != StatusFailed {
		t.Errorf("status = %s, want failed", done.Status)
	}
}

func TestResolveMissingHandler(t *testing.T) {
	b := newTestBroker()
	ctx := context.Background()

	iv, _ := b.Submit("s1", SkipRound, Payload{})
	b.Next()

	done, err := b.Resolve(ctx, iv.ID, HandlerTable{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if done.Status != StatusFailed {
		t.Errorf("status = %s, want failed", done.Status)
	}
}

func TestHistoryOrderAndFilter(t *testing.T) {
	now := time.Now()
	b := newTestBroker(WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	ctx := context.Background()

	a, _ := b.Submit("s1", SkipRound, Payload{})
	c, _ := b.Submit("s2", Terminate, Payload{})
	d, _ := b.Submit("s1", BroadcastQuestion, Payload{Question: "q"})

	for i := 0; i < 3; i++ {
		claimed := b.Next()
		if _, err := b.Resolve(ctx, claimed.ID, echoHandlers()); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}

	all := b.History("")
	if len(all) != 3 {
		t.Fatalf("History() len = %d, want 3", len(all))
	}
	wantOrder := []string{a.ID, c.ID, d.ID}
	for i, iv := range all {
		if iv.ID != wantOrder[i] {
			t.Errorf("history[%d] = %s, want %s", i, iv.ID, wantOrder[i])
		}
	}
	for i := 1; i < len(all); i++ {
		if all[i].ResolvedAt.Before(all[i-1].ResolvedAt) {
			t.Errorf("resolution timestamps out of order at %d", i)
		}
	}

	s1 := b.History("s1")
	if len(s1) != 2 {
		t.Fatalf("History(s1) len = %d, want 2", len(s1))
	}
	if s1[0].ID != a.ID || s1[1].ID != d.ID {
		t.Errorf("History(s1) = [%s %s]", s1[0].ID, s1[1].ID)
	}
}

func TestHistoryExcludesUnresolved(t *testing.T) {
	b := newTestBroker()

	b.Submit("s1", SkipRound, Payload{})
	b.Next() // claimed, never resolved

	if got := b.History(""); len(got) != 0 {
		t.Fatalf("History len = %d, want 0", len(got))
	}
}

func TestStatusUnknownID(t *testing.T) {
	b := newTestBroker()
	if _, err := b.Status("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Status = %v, want ErrNotFound", err)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseKind(%s) = %v, %v", k, got, err)
		}
	}
	if _, err := ParseKind("reboot"); err == nil {
		t.Error("ParseKind(reboot) expected error")
	}
}
