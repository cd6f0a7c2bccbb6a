package observer

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"evita/internal/protocol"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/observe" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients=%d want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readType(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev, ok, err := protocol.Decode(b)
	if err != nil || !ok {
		t.Fatalf("decode %s: ok=%v err=%v", b, ok, err)
	}
	return ev
}

func newServer(h *Hub) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observe", h.Handler())
	return httptest.NewServer(mux)
}

func TestHub_FiltersDivisionsUnlessRequested(t *testing.T) {
	h := NewHub(Options{})
	srv := newServer(h)
	defer srv.Close()

	plain := dial(t, srv, "")
	defer plain.Close()
	withDiv := dial(t, srv, "?divisions=1")
	defer withDiv.Close()
	waitClients(t, h, 2)

	_ = h.WriteEvent(&protocol.StepMsg{Type: protocol.TypeStep, ProtocolVersion: protocol.Version})
	_ = h.WriteEvent(&protocol.DivisionMsg{Type: protocol.TypeDivision, ProtocolVersion: protocol.Version, Offspring: 7})
	_ = h.WriteEvent(&protocol.TimesliceMsg{Type: protocol.TypeTimeslice, ProtocolVersion: protocol.Version, Timeslice: 3})

	if ev := readType(t, plain); ev.EventType() != protocol.TypeTimeslice {
		t.Fatalf("plain client got %s first", ev.EventType())
	}
	ev := readType(t, withDiv)
	d, ok := ev.(*protocol.DivisionMsg)
	if !ok || d.Offspring != 7 {
		t.Fatalf("divisions client got %#v", ev)
	}
	ts, ok := readType(t, withDiv).(*protocol.TimesliceMsg)
	if !ok || ts.Timeslice != 3 {
		t.Fatalf("expected timeslice 3, got %#v", ts)
	}
}

func TestHub_NewClientGetsLatestTimeslice(t *testing.T) {
	h := NewHub(Options{})
	srv := newServer(h)
	defer srv.Close()

	_ = h.WriteEvent(&protocol.TimesliceMsg{Type: protocol.TypeTimeslice, ProtocolVersion: protocol.Version, Timeslice: 1})
	_ = h.WriteEvent(&protocol.TimesliceMsg{Type: protocol.TypeTimeslice, ProtocolVersion: protocol.Version, Timeslice: 2})

	conn := dial(t, srv, "")
	defer conn.Close()
	ts, ok := readType(t, conn).(*protocol.TimesliceMsg)
	if !ok || ts.Timeslice != 2 {
		t.Fatalf("expected timeslice 2, got %#v", ts)
	}
}

func TestHub_LeaveOnClose(t *testing.T) {
	h := NewHub(Options{})
	srv := newServer(h)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitClients(t, h, 1)
	_ = conn.Close()
	waitClients(t, h, 0)
}

func TestSendLatest_EvictsOldest(t *testing.T) {
	ch := make(chan []byte, 2)
	if !sendLatest(ch, []byte("a")) || !sendLatest(ch, []byte("b")) {
		t.Fatalf("expected room for two frames")
	}
	if sendLatest(ch, []byte("c")) {
		t.Fatalf("expected a drop on a full queue")
	}
	if got := string(<-ch) + string(<-ch); got != "bc" {
		t.Fatalf("got %q want bc", got)
	}
}

func TestHub_LoopbackOnly(t *testing.T) {
	h := NewHub(Options{LoopbackOnly: true})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/observe", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	h.Handler()(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("code=%d want 403", rr.Code)
	}
}

func TestHub_NilIsNoop(t *testing.T) {
	var h *Hub
	if err := h.WriteEvent(&protocol.TimesliceMsg{}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if h.Clients() != 0 || h.Dropped() != 0 {
		t.Fatalf("nil hub reported state")
	}
}
