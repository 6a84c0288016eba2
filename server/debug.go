package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/gear/module"
	"github.com/chazu/gear/status"
	"github.com/chazu/gear/vm"
)

var log = commonlog.GetLogger("gear.server")

// Debug server defaults.
const (
	DefaultDebugAddress = "0.0.0.0"
	DefaultDebugPort    = 9229
)

// DebugServiceName is the fully qualified name of the debug RPC service.
const DebugServiceName = "gear.debug.v1.DebugService"

// Procedure paths of the debug service. Every procedure takes an empty
// request and answers with a struct.
const (
	AttachProcedure    = "/" + DebugServiceName + "/Attach"
	FramesProcedure    = "/" + DebugServiceName + "/Frames"
	RegistersProcedure = "/" + DebugServiceName + "/Registers"
	SymbolsProcedure   = "/" + DebugServiceName + "/Symbols"
)

// DebugOptions configures StartDebugServer. Zero fields take the defaults.
type DebugOptions struct {
	Address string
	Port    int
	// Wait makes StartDebugServer block until a client attaches.
	Wait bool
}

// DefaultDebugOptions returns the options used for zero fields.
func DefaultDebugOptions() DebugOptions {
	return DebugOptions{Address: DefaultDebugAddress, Port: DefaultDebugPort}
}

// DebugServer exposes read-only runtime introspection over Connect RPC. It
// is a vm.Debugger: at each checkpoint it serves queued inspections on the
// runtime's goroutine, so the runtime must be driven through the worker
// while the server runs.
type DebugServer struct {
	worker *Worker[*vm.Runtime]
	mux    *http.ServeMux
	srv    *http.Server
	ln     net.Listener

	attached   chan struct{}
	attachOnce sync.Once
	done       chan struct{}
	closeOnce  sync.Once
}

// NewDebugServer creates a debug server for the runtime owned by w. It does
// not listen or attach; see StartDebugServer.
func NewDebugServer(w *Worker[*vm.Runtime]) *DebugServer {
	s := &DebugServer{
		worker:   w,
		mux:      http.NewServeMux(),
		attached: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.mux.Handle(AttachProcedure, connect.NewUnaryHandler(AttachProcedure, s.Attach))
	s.mux.Handle(FramesProcedure, connect.NewUnaryHandler(FramesProcedure, s.Frames))
	s.mux.Handle(RegistersProcedure, connect.NewUnaryHandler(RegistersProcedure, s.Registers))
	s.mux.Handle(SymbolsProcedure, connect.NewUnaryHandler(SymbolsProcedure, s.Symbols))
	return s
}

// StartDebugServer attaches a debug server to the runtime owned by w and
// starts listening on opts.Address:opts.Port. Starting a second server on
// one runtime fails with DebugServer. With opts.Wait it blocks until a
// client calls Attach or ctx ends.
func StartDebugServer(ctx context.Context, w *Worker[*vm.Runtime], opts DebugOptions) (*DebugServer, error) {
	def := DefaultDebugOptions()
	if opts.Address == "" {
		opts.Address = def.Address
	}
	if opts.Port == 0 {
		opts.Port = def.Port
	}

	s := NewDebugServer(w)
	if err := doErr(w, func(rt *vm.Runtime) error { return rt.AttachDebugger(s) }); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(opts.Address, strconv.Itoa(opts.Port))
	if err := s.listen(addr); err != nil {
		StopDebugServer(w)
		return nil, status.Errorf(status.DebugServer, "debug server on %s: %w", addr, err)
	}
	log.Infof("debug server listening on %s", s.Addr())

	if opts.Wait {
		log.Infof("waiting for a debugger to attach")
		if err := s.WaitForClient(ctx); err != nil {
			StopDebugServer(w)
			return nil, err
		}
	}
	return s, nil
}

// StopDebugServer detaches and closes the debug server of the runtime owned
// by w. It is a no-op when none runs.
func StopDebugServer(w *Worker[*vm.Runtime]) error {
	return doErr(w, func(rt *vm.Runtime) error { return rt.DetachDebugger() })
}

func (s *DebugServer) listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s.mux}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("debug server: %s", err)
		}
	}()
	return nil
}

// Addr returns the address the server listens on, or "" if it does not.
func (s *DebugServer) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Handler returns the HTTP handler serving the debug procedures.
func (s *DebugServer) Handler() http.Handler { return s.mux }

// WaitForClient blocks until a client has called Attach, the server is
// closed, or ctx ends.
func (s *DebugServer) WaitForClient(ctx context.Context) error {
	select {
	case <-s.attached:
		return nil
	case <-s.done:
		return status.Errorf(status.DebugServer, "debug server closed before a client attached")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Checkpoint implements vm.Debugger.
func (s *DebugServer) Checkpoint(*vm.Runtime) {
	s.worker.ServeInspections()
}

// Close implements vm.Debugger. It stops listening without waiting for
// in-flight requests.
func (s *DebugServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.srv != nil {
			err = s.srv.Close()
			log.Infof("debug server on %s stopped", s.Addr())
		}
	})
	return err
}

// ---------------------------------------------------------------------------
// Procedures
// ---------------------------------------------------------------------------

// Attach registers a client and describes the server.
func (s *DebugServer) Attach(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	s.attachOnce.Do(func() {
		close(s.attached)
		log.Infof("debugger attached from %s", req.Peer().Addr)
	})
	return structResponse(map[string]interface{}{
		"service": DebugServiceName,
		"version": module.Version,
	})
}

// Frames returns the call stack, innermost frame first.
func (s *DebugServer) Frames(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.inspect(ctx, func(rt *vm.Runtime) map[string]interface{} {
		frames := rt.Frames()
		list := make([]interface{}, len(frames))
		for i, fr := range frames {
			list[i] = map[string]interface{}{
				"id":       fr.ID,
				"function": fr.Function,
				"unit":     fr.Unit,
				"line":     fr.Line,
				"native":   fr.Native,
				"locals":   variables(fr.Locals),
			}
		}
		return map[string]interface{}{"frames": list}
	})
}

// Registers returns the registers in use.
func (s *DebugServer) Registers(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.inspect(ctx, func(rt *vm.Runtime) map[string]interface{} {
		regs := rt.Registers()
		list := make([]interface{}, len(regs))
		for i, r := range regs {
			list[i] = map[string]interface{}{
				"register": strconv.FormatUint(uint64(r.Register), 10),
				"name":     r.Name,
				"value":    r.Value,
				"type":     r.Type,
			}
		}
		return map[string]interface{}{"registers": list}
	})
}

// Symbols returns the symbol table and runtime counters.
func (s *DebugServer) Symbols(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.inspect(ctx, func(rt *vm.Runtime) map[string]interface{} {
		st := rt.Stats()
		return map[string]interface{}{
			"symbols": variables(rt.Symbols()),
			"stats": map[string]interface{}{
				"liveObjects":   st.LiveObjects,
				"collections":   st.Collections,
				"reclaimed":     st.Reclaimed,
				"bytesSinceGC":  st.BytesSinceGC,
				"liveRegisters": st.LiveRegisters,
				"symbols":       st.Symbols,
				"callDepth":     st.CallDepth,
			},
		}
	})
}

// inspect runs fn on the runtime goroutine and converts its result.
func (s *DebugServer) inspect(ctx context.Context, fn func(*vm.Runtime) map[string]interface{}) (*connect.Response[structpb.Struct], error) {
	select {
	case <-s.done:
		return nil, connect.NewError(connect.CodeUnavailable, fmt.Errorf("debug server closed"))
	default:
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	v, err := s.worker.Inspect(ctx, func(rt *vm.Runtime) interface{} { return fn(rt) })
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return structResponse(v.(map[string]interface{}))
}

func structResponse(m map[string]interface{}) (*connect.Response[structpb.Struct], error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

func variables(vars []vm.Variable) []interface{} {
	list := make([]interface{}, len(vars))
	for i, v := range vars {
		list[i] = map[string]interface{}{"name": v.Name, "value": v.Value, "type": v.Type}
	}
	return list
}

// doErr runs fn on the worker and returns its error.
func doErr[T any](w *Worker[T], fn func(T) error) error {
	v, err := w.Do(func(inst T) interface{} { return fn(inst) })
	if err != nil {
		return err
	}
	if e, ok := v.(error); ok && e != nil {
		return e
	}
	return nil
}
