// internal/buffer/buffer_test.go
package buffer

import (
	"testing"
	"time"

	"github.com/user/studychat/internal/types"
)

func TestAppendProvisional(t *testing.T) {
	b := New("abc")
	m, err := b.AppendProvisional("hello")
	if err != nil {
		t.Fatal(err)
	}
	if !m.ID.Provisional() {
		t.Errorf("expected provisional id, got %s", m.ID)
	}
	if !m.Pending || m.Role != types.RoleUser {
		t.Errorf("unexpected message: %+v", m)
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 message, got %d", b.Len())
	}

	if _, err := b.AppendProvisional("again"); err != ErrProvisionalExists {
		t.Errorf("expected ErrProvisionalExists, got %v", err)
	}
}

func TestConfirmProvisionalInPlace(t *testing.T) {
	b := New("abc")
	m, _ := b.AppendProvisional("hello")

	if err := b.ConfirmProvisional(nil); err != nil {
		t.Fatal(err)
	}
	if m.Pending {
		t.Error("expected pending flag cleared")
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 message, got %d", b.Len())
	}
}

func TestConfirmProvisionalReplacement(t *testing.T) {
	b := New("abc")
	before, _ := b.AppendProvisional("hi 1")
	lenBefore := b.Len()

	authoritative := &types.Message{
		ID:        "srv-1",
		Role:      types.RoleUser,
		Content:   "hi 1",
		CreatedAt: time.Now(),
	}
	if err := b.ConfirmProvisional(authoritative); err != nil {
		t.Fatal(err)
	}

	// Exactly 1:1: same length, provisional twin gone, position preserved.
	if b.Len() != lenBefore {
		t.Errorf("expected length %d, got %d", lenBefore, b.Len())
	}
	msgs := b.Snapshot()
	for _, m := range msgs {
		if m.ID == before.ID {
			t.Error("provisional twin still present after replacement")
		}
	}
	if msgs[0].ID != "srv-1" || msgs[0].Seq != before.Seq {
		t.Errorf("authoritative message not at provisional position: %+v", msgs[0])
	}
}

func TestRollbackProvisional(t *testing.T) {
	b := New("")
	if _, err := b.AppendProvisional("first ever"); err != nil {
		t.Fatal(err)
	}
	if err := b.RollbackProvisional(); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 {
		t.Errorf("expected empty buffer after rollback, got %d messages", b.Len())
	}
	if err := b.RollbackProvisional(); err != ErrNoProvisional {
		t.Errorf("expected ErrNoProvisional, got %v", err)
	}
}

func TestRollbackProvisionalRemovesStreamedAssistant(t *testing.T) {
	b := New("")
	if _, err := b.AppendProvisional("first ever"); err != nil {
		t.Fatal(err)
	}
	b.AppendChunk("early content")

	if err := b.RollbackProvisional(); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer after rollback, got %d messages: %+v", b.Len(), b.Snapshot())
	}
	// the exchange state is fully reset: a new send starts clean
	if _, err := b.AppendProvisional("try again"); err != nil {
		t.Fatal(err)
	}
	b.AppendChunk("fresh")
	if b.Len() != 2 {
		t.Errorf("expected user + assistant after new exchange, got %d", b.Len())
	}
}

func TestAppendChunkOrdering(t *testing.T) {
	b := New("abc")
	_, _ = b.AppendProvisional("say hello")

	for _, chunk := range []string{"Hel", "lo, ", "world"} {
		b.AppendChunk(chunk)
	}

	msgs := b.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("expected user + assistant, got %d messages", len(msgs))
	}
	assistant := msgs[1]
	if assistant.Role != types.RoleAssistant || !assistant.Streaming {
		t.Errorf("unexpected assistant message: %+v", assistant)
	}
	if assistant.Content != "Hello, world" {
		t.Errorf("expected %q, got %q", "Hello, world", assistant.Content)
	}
	if assistant.Seq <= msgs[0].Seq {
		t.Error("assistant message must order after its triggering user message")
	}

	b.FinishStream()
	if b.Snapshot()[1].Streaming {
		t.Error("expected streaming flag cleared")
	}
}

func TestFailStreamRetainsContent(t *testing.T) {
	b := New("abc")
	_, _ = b.AppendProvisional("q")
	b.AppendChunk("partial answ")
	b.FailStream()

	msgs := b.Snapshot()
	assistant := msgs[len(msgs)-1]
	if !assistant.Errored || assistant.Streaming {
		t.Errorf("unexpected flags: %+v", assistant)
	}
	if assistant.Content != "partial answ" {
		t.Errorf("streamed content must be retained, got %q", assistant.Content)
	}
}

func TestFailStreamBeforeAssistantContent(t *testing.T) {
	b := New("abc")
	m, _ := b.AppendProvisional("q")
	b.FailStream()

	if !m.Errored || m.Pending {
		t.Errorf("expected errored provisional message, got %+v", m)
	}
	if b.Len() != 1 {
		t.Errorf("provisional must stay visible, got %d messages", b.Len())
	}
}

func TestBindSession(t *testing.T) {
	b := New("")
	_, _ = b.AppendProvisional("first")
	b.AppendChunk("reply")
	b.BindSession("abc")

	if b.SessionID() != "abc" {
		t.Errorf("expected session abc, got %s", b.SessionID())
	}
	for _, m := range b.Snapshot() {
		if m.SessionID != "abc" {
			t.Errorf("message not re-homed: %+v", m)
		}
	}
}

func TestResetDiscardsTransientState(t *testing.T) {
	b := New("abc")
	_, _ = b.AppendProvisional("old")
	b.AppendChunk("old reply")

	history := []*types.Message{
		{ID: "srv-1", Role: types.RoleUser, Content: "hi"},
		{ID: "srv-2", Role: types.RoleAssistant, Content: "hello"},
	}
	b.Reset("xyz", history)

	if b.Len() != 2 || b.SessionID() != "xyz" {
		t.Errorf("unexpected buffer state: len=%d session=%s", b.Len(), b.SessionID())
	}
	if _, err := b.AppendProvisional("new"); err != nil {
		t.Errorf("expected provisional slot free after reset: %v", err)
	}
}
