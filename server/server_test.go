package server_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"gotest.tools/v3/assert"

	"github.com/cardtable/tricksync/codec"
	"github.com/cardtable/tricksync/eventlog"
	"github.com/cardtable/tricksync/match"
	"github.com/cardtable/tricksync/server"
	"github.com/cardtable/tricksync/service"
	"github.com/cardtable/tricksync/store"
)

type fixture struct {
	srv   *server.Server
	svc   *service.Service
	hub   *eventlog.Hub
	store *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := store.New(client)
	hub := eventlog.NewHub()
	svc := service.New(st, eventlog.New(client, eventlog.DefaultCap),
		service.DefaultConfig(), service.WithHub(hub))
	srv := server.New(svc, hub)
	t.Cleanup(func() { _ = srv.Shutdown() })
	return &fixture{srv: srv, svc: svc, hub: hub, store: st}
}

func (f *fixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	bz, err := codec.Encode(body)
	assert.NilError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(bz))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.srv.App().Test(req, -1)
	assert.NilError(t, err)
	return resp
}

func decodeResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	bz, err := io.ReadAll(resp.Body)
	assert.NilError(t, err)
	val, err := codec.Decode[T](bz)
	assert.NilError(t, err)
	return val
}

// seatFour joins four players through the HTTP surface and returns the match.
func (f *fixture) seatFour(t *testing.T) (string, match.Snapshot) {
	t.Helper()
	var matchID string
	for i := 0; i < match.NumSeats; i++ {
		resp := f.post(t, "/matches/find", service.FindMatchRequest{
			GameType: match.Hearts,
			PlayerID: fmt.Sprintf("p%d", i),
		})
		assert.Equal(t, resp.StatusCode, http.StatusOK)
		reply := decodeResponse[service.FindMatchReply](t, resp)
		if matchID == "" {
			matchID = reply.MatchID
		}
		assert.Equal(t, reply.MatchID, matchID)
	}
	snap, _, err := f.store.Snapshot(context.Background(), matchID)
	assert.NilError(t, err)
	return matchID, snap
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	resp, err := f.srv.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	assert.NilError(t, err)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	reply := decodeResponse[server.HealthReply](t, resp)
	assert.Check(t, reply.IsServerRunning)
	assert.Equal(t, reply.EventSubscribers, 0)
}

func TestCreateLobbyEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/lobbies", service.CreateLobbyRequest{GameType: match.Spades})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	lobby := decodeResponse[service.CreateLobbyReply](t, resp)
	assert.Check(t, lobby.LobbyID != "")

	// The advertised lobby is what matchmaking hands out next.
	joinResp := f.post(t, "/matches/find", service.FindMatchRequest{
		GameType: match.Spades,
		PlayerID: "p0",
	})
	assert.Equal(t, joinResp.StatusCode, http.StatusOK)
	join := decodeResponse[service.FindMatchReply](t, joinResp)
	assert.Equal(t, join.MatchID, lobby.LobbyID)

	// A second lobby for the same slot conflicts.
	dupResp := f.post(t, "/lobbies", service.CreateLobbyRequest{GameType: match.Spades})
	assert.Equal(t, dupResp.StatusCode, http.StatusConflict)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/matches/find", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.srv.App().Test(req, -1)
	assert.NilError(t, err)
	assert.Equal(t, resp.StatusCode, http.StatusBadRequest)
	body := decodeResponse[server.ErrorResponse](t, resp)
	assert.Equal(t, body.Error.Code, "HTTP")
}

func TestUnknownMatchIsNotFound(t *testing.T) {
	f := newFixture(t)
	resp, err := f.srv.App().Test(
		httptest.NewRequest(http.MethodGet, "/matches/ghost/snapshot", nil), -1)
	assert.NilError(t, err)
	assert.Equal(t, resp.StatusCode, http.StatusNotFound)
	body := decodeResponse[server.ErrorResponse](t, resp)
	assert.Equal(t, body.Error.Code, "NOT_FOUND")
}

func TestStaleRevisionIsConflict(t *testing.T) {
	f := newFixture(t)
	matchID, snap := f.seatFour(t)

	seat := snap.TurnIndex
	hand := snap.Hands[seat]
	resp := f.post(t, "/matches/"+matchID+"/pass", service.SubmitPassRequest{
		PlayerID:         snap.Players[seat].ID,
		CardIDs:          []string{hand[0].ID(), hand[1].ID(), hand[2].ID()},
		ExpectedRevision: snap.Revision + 10,
	})
	assert.Equal(t, resp.StatusCode, http.StatusConflict)
	body := decodeResponse[server.ErrorResponse](t, resp)
	assert.Equal(t, body.Error.Code, "REVISION_MISMATCH")
}

func TestPassThroughHTTPAdvancesRevision(t *testing.T) {
	f := newFixture(t)
	matchID, snap := f.seatFour(t)

	seat := snap.TurnIndex
	hand := snap.Hands[seat]
	resp := f.post(t, "/matches/"+matchID+"/pass", service.SubmitPassRequest{
		PlayerID:         snap.Players[seat].ID,
		CardIDs:          []string{hand[0].ID(), hand[1].ID(), hand[2].ID()},
		ExpectedRevision: snap.Revision,
	})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	reply := decodeResponse[server.SubmitReply](t, resp)
	assert.Equal(t, reply.Delta.Revision, snap.Revision+1)

	// Subscribe over HTTP sees the pass.
	subResp := f.post(t, "/matches/"+matchID+"/subscribe", service.SubscribeRequest{})
	assert.Equal(t, subResp.StatusCode, http.StatusOK)
	sub := decodeResponse[service.SubscribeReply](t, subResp)
	assert.Check(t, sub.SubscriptionID != "")
	assert.Check(t, len(sub.Events) > 0)
}

func TestTimeoutBeforeDeadlineDoesNotProgress(t *testing.T) {
	f := newFixture(t)
	matchID, snap := f.seatFour(t)

	resp := f.post(t, "/matches/"+matchID+"/timeout", struct{}{})
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	reply := decodeResponse[server.TimeoutReply](t, resp)
	assert.Check(t, !reply.Progressed)

	current, _, err := f.store.Snapshot(context.Background(), matchID)
	assert.NilError(t, err)
	assert.Equal(t, current.Revision, snap.Revision)
}

func wsURL(addr, matchID string) string {
	return fmt.Sprintf("ws://%s/events/%s", addr, matchID)
}

func TestWebSocketReceivesMatchEvents(t *testing.T) {
	f := newFixture(t)
	matchID, snap := f.seatFour(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	go func() { _ = f.srv.App().Listener(ln) }()

	dial, _, err := websocket.DefaultDialer.Dial(wsURL(ln.Addr().String(), matchID), nil)
	assert.NilError(t, err)
	defer func() { _ = dial.Close() }()

	// The dial returns on the handshake; wait for the hub registration so the
	// broadcast below cannot slip past an unsubscribed connection.
	deadline := time.Now().Add(5 * time.Second)
	for f.hub.ConnectionCount() == 0 {
		assert.Check(t, time.Now().Before(deadline), "subscriber never registered")
		time.Sleep(10 * time.Millisecond)
	}

	seat := snap.TurnIndex
	hand := snap.Hands[seat]
	_, err = f.svc.SubmitPass(context.Background(), service.SubmitPassRequest{
		MatchID:          matchID,
		PlayerID:         snap.Players[seat].ID,
		CardIDs:          []string{hand[0].ID(), hand[1].ID(), hand[2].ID()},
		ExpectedRevision: snap.Revision,
	})
	assert.NilError(t, err)

	assert.NilError(t, dial.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, message, err := dial.ReadMessage()
	assert.NilError(t, err)
	ev, err := codec.Decode[eventlog.Event](message)
	assert.NilError(t, err)
	assert.Equal(t, ev.Type, eventlog.TypeCardsPassed)
	assert.Equal(t, ev.MatchID, matchID)
	assert.Equal(t, ev.Revision, snap.Revision+1)
	assert.Equal(t, ev.Payload.Revision, snap.Revision+1)
}
