package app_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/formscribe/internal/app"
	"github.com/MrWong99/formscribe/internal/bridge"
	"github.com/MrWong99/formscribe/internal/config"
	"github.com/MrWong99/formscribe/internal/registry"
	"github.com/MrWong99/formscribe/internal/session"
	"github.com/MrWong99/formscribe/internal/store"
	sttmock "github.com/MrWong99/formscribe/pkg/provider/stt/mock"
	"github.com/MrWong99/formscribe/pkg/types"
)

func labelled(ref, label string) registry.Candidate {
	return registry.Candidate{
		Ref:     ref,
		Control: registry.ControlText,
		Visible: true,
		Signals: []registry.Signal{{Provenance: registry.ProvenanceLabelFor, Text: label}},
	}
}

type hostFixture struct {
	app   *app.App
	conn  *websocket.Conn
	state *store.FileStore
}

// newHostFixture serves an app whose speech recognizer is the connected
// host and dials it.
func newHostFixture(t *testing.T) *hostFixture {
	t.Helper()
	cfg := testConfig(t)
	cfg.Store.Backend = config.StoreFile
	cfg.Store.Path = filepath.Join(t.TempDir(), "state.yaml")

	hub := bridge.New()
	a, err := app.New(context.Background(), cfg, &app.Providers{LLM: scribeLLM(), STT: hub}, app.WithHub(hub))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return &hostFixture{app: a, conn: conn, state: store.NewFileStore(cfg.Store.Path)}
}

func (f *hostFixture) send(t *testing.T, msg bridge.Inbound) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, f.conn, msg); err != nil {
		t.Fatalf("write %s: %v", msg.Type, err)
	}
}

// await reads messages until one of type typ arrives.
func (f *hostFixture) await(t *testing.T, typ string) bridge.Outbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		var msg bridge.Outbound
		if err := wsjson.Read(ctx, f.conn, &msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

func TestSessionManager_HostDictation(t *testing.T) {
	t.Parallel()
	f := newHostFixture(t)

	f.send(t, bridge.Inbound{Type: bridge.TypeSurface, Candidates: []registry.Candidate{
		labelled("f-name", "Full Name"),
		labelled("f-city", "City"),
	}})
	f.send(t, bridge.Inbound{Type: bridge.TypeDictate, Label: "full name"})
	if st := f.await(t, bridge.TypeStatus); st.State != session.StatusListening {
		t.Fatalf("status = %+v, want listening", st)
	}

	f.send(t, bridge.Inbound{Type: bridge.TypeTranscript, Text: "Ada", Index: 0})
	f.send(t, bridge.Inbound{Type: bridge.TypeTranscript, Text: "Ada Lovelace", IsFinal: true, Confidence: 0.9})
	w := f.await(t, bridge.TypeWrite)
	if w.Label != "Full Name" || w.Ref != "f-name" || w.Value != "Ada Lovelace" {
		t.Errorf("write = %+v", w)
	}

	f.send(t, bridge.Inbound{Type: bridge.TypeRecognitionEnd})
	fin := f.await(t, bridge.TypeFinal)
	if fin.Label != "Full Name" || fin.Transcript != "Ada Lovelace" || fin.Confidence != 0.9 {
		t.Errorf("final = %+v", fin)
	}

	got, ok, err := f.state.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	want := store.Confirmation{Value: "Ada Lovelace", Confidence: 0.9, Label: "Full Name"}
	if got != want {
		t.Errorf("persisted = %+v, want %+v", got, want)
	}
	if last, ok := f.app.Sessions().LastConfirmed(); !ok || last != want {
		t.Errorf("LastConfirmed = %+v, %v", last, ok)
	}
	if f.app.Controller().Mode() != session.ModeIdle {
		t.Errorf("mode = %v, want idle", f.app.Controller().Mode())
	}
}

func TestSessionManager_HostAmbient(t *testing.T) {
	t.Parallel()
	f := newHostFixture(t)

	f.send(t, bridge.Inbound{Type: bridge.TypeSurface, Candidates: []registry.Candidate{
		labelled("f-name", "Full Name"),
		labelled("f-city", "City"),
	}})
	f.send(t, bridge.Inbound{Type: bridge.TypeAmbientStart})
	if st := f.await(t, bridge.TypeStatus); st.State != session.StatusListening {
		t.Fatalf("status = %+v, want listening", st)
	}

	f.send(t, bridge.Inbound{Type: bridge.TypeTranscript, Text: "I live in London", IsFinal: true})
	w := f.await(t, bridge.TypeWrite)
	if w.Label != "City" || w.Value != "London" {
		t.Errorf("write = %+v", w)
	}

	// A dropped connection on the host side is transient in ambient mode.
	f.send(t, bridge.Inbound{Type: bridge.TypeRecognitionError, Code: "network"})
	if st := f.await(t, bridge.TypeStatus); st.State != session.StatusRestarting {
		t.Errorf("status = %+v, want restarting", st)
	}
	if st := f.await(t, bridge.TypeStatus); st.State != session.StatusListening {
		t.Errorf("status = %+v, want listening after restart", st)
	}

	f.send(t, bridge.Inbound{Type: bridge.TypeStop})
	if st := f.await(t, bridge.TypeStatus); st.State != session.StatusInactive {
		t.Errorf("status = %+v, want inactive", st)
	}
}

func TestSessionManager_FatalRecognitionError(t *testing.T) {
	t.Parallel()
	f := newHostFixture(t)

	f.send(t, bridge.Inbound{Type: bridge.TypeSurface, Candidates: []registry.Candidate{labelled("f-name", "Full Name")}})
	f.send(t, bridge.Inbound{Type: bridge.TypeDictate, Label: "Full Name"})
	f.await(t, bridge.TypeStatus)

	f.send(t, bridge.Inbound{Type: bridge.TypeRecognitionError, Code: "not-allowed"})
	e := f.await(t, bridge.TypeError)
	if e.Kind != bridge.KindRecognition || e.Message != "Microphone access denied." {
		t.Errorf("error = %+v", e)
	}
}

func TestSessionManager_CommandErrors(t *testing.T) {
	t.Parallel()
	f := newHostFixture(t)

	f.send(t, bridge.Inbound{Type: bridge.TypeAmbientStart})
	f.await(t, bridge.TypeStatus)
	f.send(t, bridge.Inbound{Type: bridge.TypeDictate, Label: "Full Name"})
	e := f.await(t, bridge.TypeError)
	if e.Kind != bridge.KindCommand || !strings.Contains(e.Message, "busy") {
		t.Errorf("error = %+v, want recognizer busy", e)
	}
}

// newCaptureApp builds an app without an llm whose recognizer is p and whose
// surface is fixed, for driving its SessionManager directly.
func newCaptureApp(t *testing.T, p *sttmock.Provider) *app.App {
	t.Helper()
	providers := &app.Providers{STT: p}
	surface := registry.SurfaceFunc(func(context.Context) ([]registry.Candidate, error) {
		return []registry.Candidate{labelled("f-name", "Full Name")}, nil
	})
	a, err := app.New(context.Background(), testConfig(t), providers,
		app.WithSurface(surface),
		app.WithWriter(registry.NewMemoryWriter()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestSessionManager_StopAndAudio(t *testing.T) {
	t.Parallel()
	p := &sttmock.Provider{}
	a := newCaptureApp(t, p)
	sm := a.Sessions()
	ctx := context.Background()

	if err := sm.Stop(ctx); err != nil {
		t.Errorf("Stop while idle = %v", err)
	}
	if err := sm.Audio([]byte{1}); err != nil {
		t.Errorf("Audio while idle = %v", err)
	}
	if err := sm.AmbientStart(ctx); !errors.Is(err, app.ErrAmbientUnavailable) {
		t.Errorf("AmbientStart without llm = %v", err)
	}

	sm.Surface(ctx, nil)
	if err := sm.Dictate(ctx, "Full Name"); err != nil {
		t.Fatalf("Dictate: %v", err)
	}
	if err := sm.Audio([]byte{1, 2}); err != nil {
		t.Fatalf("Audio: %v", err)
	}
	sess := p.Started()[0]
	sess.FinalsCh <- types.Transcript{Text: "Grace Hopper", IsFinal: true, Confidence: 0.8}

	deadline := time.Now().Add(2 * time.Second)
	for a.Registry().Snapshot()["Full Name"] != "Grace Hopper" {
		if time.Now().After(deadline) {
			t.Fatal("dictated value never written")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sm.Disconnected(ctx)
	if a.Controller().Mode() != session.ModeIdle {
		t.Errorf("mode after disconnect = %v", a.Controller().Mode())
	}
	if sess.Closed() == 0 {
		t.Error("recognizer stream not closed")
	}
	if got := len(sess.SendAudioCalls); got != 1 {
		t.Errorf("audio chunks = %d, want 1", got)
	}
	if last, ok := sm.LastConfirmed(); !ok || last.Value != "Grace Hopper" {
		t.Errorf("LastConfirmed = %+v, %v", last, ok)
	}
}
