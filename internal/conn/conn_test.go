package conn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/duel/internal/failure"
	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/game/gametest"
	"github.com/DoyleJ11/duel/internal/protocol"
)

// fakeService accepts "Bearer good" and answers each join with a state frame.
// Joining "drop" makes it hang up.
type fakeService struct {
	mu       sync.Mutex
	received []protocol.Outbound
}

func (f *fakeService) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			o, _, err := protocol.DecodeOutbound(data)
			if err != nil {
				t.Errorf("decode outbound: %v", err)
				return
			}
			f.mu.Lock()
			f.received = append(f.received, o)
			f.mu.Unlock()

			join, ok := o.(protocol.Join)
			if !ok {
				continue
			}
			if join.SessionID == "drop" {
				c.Close(websocket.StatusGoingAway, "bye")
				return
			}
			sess := gametest.Active(game.KindTicTacToe, gametest.Self)
			sess.ID = join.SessionID
			out, _ := protocol.EncodeInbound(protocol.StateEvent{Session: sess})
			if err := c.Write(ctx, websocket.MessageText, out); err != nil {
				return
			}
		}
	}
}

func (f *fakeService) joins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.received {
		if _, ok := o.(protocol.Join); ok {
			n++
		}
	}
	return n
}

func startService(t *testing.T) (*fakeService, string) {
	t.Helper()
	svc := &fakeService{}
	srv := httptest.NewServer(svc.handler(t))
	t.Cleanup(srv.Close)
	return svc, "ws" + strings.TrimPrefix(srv.URL, "http")
}

type collector struct {
	events chan protocol.Inbound
}

func newCollector() *collector { return &collector{events: make(chan protocol.Inbound, 16)} }

func (c *collector) dispatch(ctx context.Context, ev protocol.Inbound) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *collector) next(t *testing.T) protocol.Inbound {
	t.Helper()
	select {
	case ev := <-c.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event dispatched")
		return nil
	}
}

func TestDial_MissingCredentialIsAuthFailure(t *testing.T) {
	_, err := Dial(context.Background(), Options{URL: "ws://127.0.0.1:1/ws"}, "  ", newCollector().dispatch, nil)
	assert.ErrorIs(t, err, failure.ErrAuth)
}

func TestDial_RefusedCredentialIsAuthFailure(t *testing.T) {
	_, url := startService(t)
	_, err := Dial(context.Background(), Options{URL: url}, "bad", newCollector().dispatch, nil)
	assert.ErrorIs(t, err, failure.ErrAuth)
	assert.True(t, failure.IsFatal(err))
}

func TestDial_UnreachableIsTransportFailure(t *testing.T) {
	_, err := Dial(context.Background(), Options{URL: "ws://127.0.0.1:1/ws", DialTimeout: time.Second}, "good", newCollector().dispatch, nil)
	assert.ErrorIs(t, err, failure.ErrTransport)
}

func TestJoin_DeliversStateAndIsIdempotent(t *testing.T) {
	svc, url := startService(t)
	col := newCollector()
	c, err := Dial(context.Background(), Options{URL: url}, "good", col.dispatch, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Join("sess-1"))
	require.NoError(t, c.Join("sess-1"))

	ev, ok := col.next(t).(protocol.StateEvent)
	require.True(t, ok)
	assert.Equal(t, "sess-1", ev.Session.ID)

	// A later frame proves the duplicate join never went out.
	require.NoError(t, c.Send(protocol.Forfeit{SessionID: "sess-1"}))
	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return len(svc.received) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, svc.joins())
}

func TestRemoteClose_DispatchesDisconnectedOnce(t *testing.T) {
	_, url := startService(t)
	col := newCollector()
	c, err := Dial(context.Background(), Options{URL: url}, "good", col.dispatch, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Join("drop"))

	ev, ok := col.next(t).(protocol.Disconnected)
	require.True(t, ok)
	assert.ErrorIs(t, ev.Err, failure.ErrTransport)
	assert.True(t, c.Down())

	err = c.Send(protocol.Forfeit{SessionID: "drop"})
	assert.ErrorIs(t, err, failure.ErrTransport)

	select {
	case extra := <-col.events:
		t.Fatalf("unexpected event after disconnect: %#v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClose_StopsDispatchAndRejectsSends(t *testing.T) {
	_, url := startService(t)
	col := newCollector()
	c, err := Dial(context.Background(), Options{URL: url}, "good", col.dispatch, nil)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Join("sess-1"), failure.ErrTransport)
	select {
	case ev := <-col.events:
		t.Fatalf("dispatch after close: %#v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClose_DoesNotWaitOnBlockedDispatch(t *testing.T) {
	_, url := startService(t)
	blocked := make(chan struct{}, 1)
	dispatch := func(ctx context.Context, ev protocol.Inbound) {
		blocked <- struct{}{}
		<-ctx.Done()
	}
	c, err := Dial(context.Background(), Options{URL: url}, "good", dispatch, nil)
	require.NoError(t, err)
	require.NoError(t, c.Join("sess-1"))

	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("state frame never dispatched")
	}

	start := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(start), time.Second)
}
