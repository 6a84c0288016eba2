package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/gear/compiler"
	"github.com/chazu/gear/module"
	"github.com/chazu/gear/status"
	"github.com/chazu/gear/vm"
)

const spinSource = `native func running();
let answer = 42;
func spin() {
    var n = 0;
    while (running()) {
        n = n + 1;
    }
    return n;
}
`

// newDebugWorker compiles spinSource into a fresh runtime owned by a worker.
// The running native reports the returned flag.
func newDebugWorker(t *testing.T) (*Worker[*vm.Runtime], *atomic.Bool) {
	t.Helper()
	c := compiler.New(compiler.Config{Name: "spin", Target: module.Library})
	u := c.NewUnit()
	u.SetProperty(compiler.PropName, "spin")
	u.SetProperty(compiler.PropDisplayName, "spin.gear")
	u.SetProperty(compiler.PropSource, spinSource)
	if err := c.Compile(); err != nil {
		t.Fatalf("Compile: %v\n%v", err, c.Diagnostics())
	}
	rt, err := vm.New(vm.Config{})
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	if err := c.BuildToRuntime(module.Library, rt); err != nil {
		t.Fatalf("BuildToRuntime: %v", err)
	}

	flag := new(atomic.Bool)
	err = rt.ImplementFunction("running", func(rt *vm.Runtime, argc int) int {
		rt.SetBool(vm.Return, flag.Load())
		return 0
	})
	if err != nil {
		t.Fatalf("ImplementFunction: %v", err)
	}

	w := NewWorker(rt)
	t.Cleanup(func() {
		w.Do(func(rt *vm.Runtime) interface{} { return rt.Close() })
		w.Stop()
	})
	return w, flag
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func call(t *testing.T, baseURL, procedure string) (map[string]interface{}, error) {
	t.Helper()
	client := connect.NewClient[emptypb.Empty, structpb.Struct](http.DefaultClient, baseURL+procedure)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := client.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	return res.Msg.AsMap(), nil
}

func mustCall(t *testing.T, baseURL, procedure string) map[string]interface{} {
	t.Helper()
	m, err := call(t, baseURL, procedure)
	if err != nil {
		t.Fatalf("%s: %v", procedure, err)
	}
	return m
}

func listOf(t *testing.T, m map[string]interface{}, key string) []map[string]interface{} {
	t.Helper()
	raw, ok := m[key].([]interface{})
	if !ok {
		t.Fatalf("%s: not a list: %v", key, m[key])
	}
	out := make([]map[string]interface{}, len(raw))
	for i, e := range raw {
		out[i] = e.(map[string]interface{})
	}
	return out
}

func TestDebugProcedures(t *testing.T) {
	w, _ := newDebugWorker(t)
	s := NewDebugServer(w)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	attach := mustCall(t, ts.URL, AttachProcedure)
	if attach["service"] != DebugServiceName || attach["version"] != module.Version {
		t.Errorf("Attach = %v", attach)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.WaitForClient(ctx); err != nil {
		t.Errorf("WaitForClient after Attach: %v", err)
	}

	t.Run("Symbols", func(t *testing.T) {
		res := mustCall(t, ts.URL, SymbolsProcedure)
		found := false
		for _, sym := range listOf(t, res, "symbols") {
			if sym["name"] == "answer" {
				found = true
				if sym["value"] != "42" {
					t.Errorf("answer = %v, want 42", sym["value"])
				}
			}
		}
		if !found {
			t.Errorf("answer not in symbols: %v", res["symbols"])
		}
		stats, ok := res["stats"].(map[string]interface{})
		if !ok || stats["symbols"].(float64) < 1 {
			t.Errorf("stats = %v", res["stats"])
		}
	})

	t.Run("Registers", func(t *testing.T) {
		w.Do(func(rt *vm.Runtime) interface{} { return rt.SetInt(vm.Param(0), 7) })
		res := mustCall(t, ts.URL, RegistersProcedure)
		want := strconv.FormatUint(uint64(vm.Param(0)), 10)
		found := false
		for _, r := range listOf(t, res, "registers") {
			if r["register"] == want {
				found = true
				if r["value"] != "7" || r["name"] != "PARAM(0)" {
					t.Errorf("register = %v", r)
				}
			}
		}
		if !found {
			t.Errorf("PARAM(0) not listed: %v", res["registers"])
		}
	})

	t.Run("FramesIdle", func(t *testing.T) {
		res := mustCall(t, ts.URL, FramesProcedure)
		if frames := listOf(t, res, "frames"); len(frames) != 0 {
			t.Errorf("idle runtime has frames: %v", frames)
		}
	})
}

func TestDebugFramesDuringCall(t *testing.T) {
	w, running := newDebugWorker(t)
	s, err := StartDebugServer(context.Background(), w, DebugOptions{Address: "127.0.0.1", Port: freePort(t)})
	if err != nil {
		t.Fatalf("StartDebugServer: %v", err)
	}
	defer StopDebugServer(w)
	base := "http://" + s.Addr()

	running.Store(true)
	defer running.Store(false)
	done := make(chan interface{}, 1)
	go func() {
		v, err := w.Do(func(rt *vm.Runtime) interface{} {
			if err := rt.CallByName("spin", 0); err != nil {
				return err
			}
			return rt.GetInt(vm.Return)
		})
		if err != nil {
			v = err
		}
		done <- v
	}()

	// The call may not have started yet, and its first safe point precedes
	// any line; poll until the loop body shows up.
	inLoop := func(frames []map[string]interface{}) bool {
		if len(frames) == 0 {
			return false
		}
		line, _ := frames[0]["line"].(float64)
		return line == 5 || line == 6
	}
	var frames []map[string]interface{}
	deadline := time.Now().Add(5 * time.Second)
	for !inLoop(frames) && time.Now().Before(deadline) {
		frames = listOf(t, mustCall(t, base, FramesProcedure), "frames")
		if !inLoop(frames) {
			time.Sleep(5 * time.Millisecond)
		}
	}
	running.Store(false)

	if !inLoop(frames) {
		t.Fatalf("no frame inside the loop observed: %v", frames)
	}
	top := frames[0]
	if top["function"] != "spin" || top["unit"] != "spin.gear" || top["native"] != false {
		t.Errorf("top frame = %v", top)
	}
	hasN := false
	for _, l := range top["locals"].([]interface{}) {
		if l.(map[string]interface{})["name"] == "$0" {
			hasN = true
		}
	}
	if !hasN {
		t.Errorf("locals = %v", top["locals"])
	}

	select {
	case v := <-done:
		if n, ok := v.(int64); !ok || n < 0 {
			t.Errorf("spin returned %v", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("spin did not finish")
	}
}

func TestStartDebugServerTwice(t *testing.T) {
	w, _ := newDebugWorker(t)
	opts := DebugOptions{Address: "127.0.0.1", Port: freePort(t)}

	if _, err := StartDebugServer(context.Background(), w, opts); err != nil {
		t.Fatalf("first start: %v", err)
	}
	opts.Port = freePort(t)
	if _, err := StartDebugServer(context.Background(), w, opts); !status.Is(err, status.DebugServer) {
		t.Errorf("second start: got %v, want DebugServer", err)
	}

	if err := StopDebugServer(w); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := StopDebugServer(w); err != nil {
		t.Errorf("stop without a server: %v", err)
	}
	s, err := StartDebugServer(context.Background(), w, opts)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	StopDebugServer(w)
	if _, err := call(t, "http://"+s.Addr(), AttachProcedure); err == nil {
		t.Error("stopped server still answers")
	}
}

func TestStartDebugServerPortInUse(t *testing.T) {
	w, _ := newDebugWorker(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	opts := DebugOptions{Address: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}
	if _, err := StartDebugServer(context.Background(), w, opts); !status.Is(err, status.DebugServer) {
		t.Fatalf("got %v, want DebugServer", err)
	}

	// The failed start left no debugger attached.
	v, _ := w.Do(func(rt *vm.Runtime) interface{} { return rt.Debugger() == nil })
	if v != true {
		t.Error("debugger still attached after a failed start")
	}
}

func TestStartDebugServerWait(t *testing.T) {
	w, _ := newDebugWorker(t)
	port := freePort(t)

	type started struct {
		s   *DebugServer
		err error
	}
	ch := make(chan started, 1)
	go func() {
		s, err := StartDebugServer(context.Background(), w, DebugOptions{Address: "127.0.0.1", Port: port, Wait: true})
		ch <- started{s, err}
	}()

	select {
	case st := <-ch:
		t.Fatalf("returned before a client attached: %v", st.err)
	case <-time.After(50 * time.Millisecond):
	}

	base := "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := call(t, base, AttachProcedure); err == nil {
			break
		} else if time.Now().After(deadline) {
			t.Fatalf("Attach: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case st := <-ch:
		if st.err != nil {
			t.Fatalf("StartDebugServer: %v", st.err)
		}
		StopDebugServer(w)
	case <-time.After(5 * time.Second):
		t.Fatal("StartDebugServer still waiting after Attach")
	}
}

func TestStartDebugServerWaitCanceled(t *testing.T) {
	w, _ := newDebugWorker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := StartDebugServer(ctx, w, DebugOptions{Address: "127.0.0.1", Port: freePort(t), Wait: true})
	if err != context.DeadlineExceeded {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	v, _ := w.Do(func(rt *vm.Runtime) interface{} { return rt.Debugger() == nil })
	if v != true {
		t.Error("debugger still attached after a canceled wait")
	}
}

func TestRuntimeCloseStopsDebugServer(t *testing.T) {
	w, _ := newDebugWorker(t)
	s, err := StartDebugServer(context.Background(), w, DebugOptions{Address: "127.0.0.1", Port: freePort(t)})
	if err != nil {
		t.Fatalf("StartDebugServer: %v", err)
	}

	w.Do(func(rt *vm.Runtime) interface{} { return rt.Close() })

	if err := s.WaitForClient(context.Background()); !status.Is(err, status.DebugServer) {
		t.Errorf("WaitForClient after close: got %v, want DebugServer", err)
	}
	if _, err := call(t, "http://"+s.Addr(), FramesProcedure); err == nil {
		t.Error("closed server still answers")
	}
}
