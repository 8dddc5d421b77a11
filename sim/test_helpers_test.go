package sim

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/traffic-sim/traffic-sim/sim/backend"
)

// fakeBackend is an in-process stand-in for the external socket-protocol
// simulator: a TCP server speaking the wire protocol with a deterministic
// scripted vehicle population. One vehicle enters on the first step,
// cruises, and leaves on step leaveAt; the backend reports done once it is
// gone.
type fakeBackend struct {
	t  *testing.T
	ln net.Listener

	failLoad        bool // reply to load-network with an error
	dropAt          int  // close the connection when this step is requested (0 = never)
	dropAfterResets int  // only drop once this many resets have happened
	leaveAt         int  // step at which the scripted vehicle leaves (default 5)

	mu     sync.Mutex
	step   int
	clock  float64
	speeds map[string]float64 // last commanded speeds
	resets int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeBackend{t: t, ln: ln, leaveAt: 5, speeds: map[string]float64{}}
	t.Cleanup(func() { ln.Close() })
	go f.acceptLoop()
	return f
}

func (f *fakeBackend) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeBackend) commandedSpeed(id string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.speeds[id]
	return v, ok
}

func (f *fakeBackend) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func (f *fakeBackend) acceptLoop() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.serve(conn)
	}
}

func (f *fakeBackend) serve(conn net.Conn) {
	defer conn.Close()
	for {
		cmd, payload, err := backend.ReadFrame(conn)
		if err != nil {
			return
		}
		switch cmd {
		case backend.CmdHandshake:
			_ = backend.WriteReply(conn, cmd, []byte("v1"))
		case backend.CmdLoadNetwork:
			if f.failLoad {
				_ = backend.WriteErrorReply(conn, cmd, "no such network file")
				continue
			}
			_ = backend.WriteReply(conn, cmd, nil)
		case backend.CmdReset:
			f.mu.Lock()
			f.step = 0
			f.clock = 0
			f.resets++
			f.mu.Unlock()
			_ = backend.WriteReply(conn, cmd, nil)
		case backend.CmdSetSpeeds:
			cmds, err := backend.DecodeSpeedCommands(payload)
			if err != nil {
				_ = backend.WriteErrorReply(conn, cmd, err.Error())
				continue
			}
			f.mu.Lock()
			for id, v := range cmds {
				f.speeds[id] = v
			}
			f.mu.Unlock()
			_ = backend.WriteReply(conn, cmd, nil)
		case backend.CmdSimStep:
			stepSize, err := backend.DecodeStepRequest(payload)
			if err != nil {
				_ = backend.WriteErrorReply(conn, cmd, err.Error())
				continue
			}
			f.mu.Lock()
			f.step++
			f.clock += stepSize
			res := f.scripted()
			drop := f.dropAt > 0 && f.step >= f.dropAt && f.resets >= f.dropAfterResets
			f.mu.Unlock()
			if drop {
				return // simulate a crashed simulator mid-step
			}
			_ = backend.WriteReply(conn, cmd, backend.EncodeStepResult(res))
		case backend.CmdClose:
			_ = backend.WriteReply(conn, cmd, nil)
			return
		default:
			_ = backend.WriteErrorReply(conn, cmd, "unknown command")
		}
	}
}

// scripted builds the snapshot for the current step. Caller holds f.mu.
func (f *fakeBackend) scripted() *backend.StepResult {
	res := &backend.StepResult{Time: f.clock}
	speed := 10.0
	if v, ok := f.speeds["v0"]; ok {
		speed = v
	}
	switch {
	case f.step == 1:
		res.Entered = []string{"v0"}
		res.Vehicles = []backend.VehicleRecord{{ID: "v0", Speed: speed, Edge: "e1", Pos: 0}}
	case f.step < f.leaveAt:
		res.Vehicles = []backend.VehicleRecord{{ID: "v0", Speed: speed, Edge: "e1", Pos: float64(f.step)}}
	case f.step == f.leaveAt:
		res.Left = []string{"v0"}
		res.Done = true
	default:
		res.Done = true
	}
	return res
}
