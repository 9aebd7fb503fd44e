package mailbox

import (
	"fmt"
	"sync"
	"testing"
)

func TestSendAndCheckOrdering(t *testing.T) {
	m := New()
	m.Send("alice", "patricia", "first", "please plan this")
	m.Send("alice", "patricia", "second", "and this")

	msgs := m.Check("patricia")
	if len(msgs) != 2 {
		t.Fatalf("unread = %d, want 2", len(msgs))
	}
	if msgs[0].Subject != "first" || msgs[1].Subject != "second" {
		t.Errorf("order = %q, %q", msgs[0].Subject, msgs[1].Subject)
	}

	// A second check delivers nothing; messages are read at most once.
	if again := m.Check("patricia"); len(again) != 0 {
		t.Errorf("re-check delivered %d messages", len(again))
	}
}

func TestCheckOtherAgentSeesNothing(t *testing.T) {
	m := New()
	m.Send("alice", "patricia", "private", "for patricia only")
	if msgs := m.Check("debbie"); len(msgs) != 0 {
		t.Errorf("debbie received %d messages", len(msgs))
	}
}

func TestReplyRoutesToSender(t *testing.T) {
	m := New()
	id := m.Send("alice", "patricia", "question", "can you plan this?")
	m.Check("patricia")

	replyID, err := m.Reply(id, "on it")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if replyID == id {
		t.Error("reply reused the original id")
	}

	msgs := m.Check("alice")
	if len(msgs) != 1 {
		t.Fatalf("alice unread = %d, want 1", len(msgs))
	}
	reply := msgs[0]
	if reply.From != "patricia" || reply.To != "alice" {
		t.Errorf("reply routing = %s -> %s", reply.From, reply.To)
	}
	if reply.Subject != "Re: question" || reply.ReplyTo != id {
		t.Errorf("reply = %+v", reply)
	}
}

func TestReplyUnknownMessage(t *testing.T) {
	m := New()
	if _, err := m.Reply("nope", "hello?"); err == nil {
		t.Error("reply to unknown id succeeded")
	}
}

func TestConcurrentSendAndCheck(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				m.Send(fmt.Sprintf("agent_%d", g), "collector", "s", "b")
			}
		}(g)
	}
	wg.Wait()

	if msgs := m.Check("collector"); len(msgs) != 200 {
		t.Errorf("delivered = %d, want 200", len(msgs))
	}
	if msgs := m.Check("collector"); len(msgs) != 0 {
		t.Errorf("leftover unread = %d", len(msgs))
	}
}
