// Wire codec for the socket-protocol backend.
//
// Frames are length-prefixed: uint32 payload length, one command byte, then
// the payload. Replies carry a status byte (statusOK or statusErr) ahead of
// the payload; an error reply's payload is the failure message.

package backend

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
)

// Command bytes understood by the backend.
const (
	CmdHandshake   byte = 0x01
	CmdLoadNetwork byte = 0x02
	CmdSimStep     byte = 0x03
	CmdReset       byte = 0x04
	CmdSetSpeeds   byte = 0x05
	CmdClose       byte = 0x7F
)

const (
	statusOK  byte = 0x00
	statusErr byte = 0x01
)

// maxFrameSize caps a single frame; a snapshot for even a large subnetwork
// stays well under this.
const maxFrameSize = 64 << 20

// Smallest possible wire size of each variable-length element, used to
// bound collection counts against the payload that is actually present.
const (
	minVehicleRecordSize = 20 // two length-prefixed strings + two float64s
	minStringSize        = 2  // length prefix of an empty string
	minSpeedCommandSize  = 10 // length-prefixed string + float64
)

// VehicleRecord is one vehicle's observation inside a step reply.
type VehicleRecord struct {
	ID    string
	Speed float64 // m/s
	Edge  string
	Pos   float64 // meters from edge start
}

// StepResult is the full post-step snapshot the backend returns for one
// completed simulation step.
type StepResult struct {
	Done     bool    // backend reported a terminal condition
	Time     float64 // simulation time after the step, seconds
	Vehicles []VehicleRecord
	Entered  []string // ids of vehicles that entered the network this step
	Left     []string // ids of vehicles that left the network this step
}

// WriteFrame writes one command frame to the connection.
func WriteFrame(conn net.Conn, cmd byte, payload []byte) error {
	hdr := make([]byte, 5)
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(payload)))
	hdr[4] = cmd
	if _, err := conn.Write(hdr); err != nil {
		return err
	}
	if len(payload) == 0 {
		// A zero-byte Write puts nothing on the wire but blocks forever on
		// synchronous conns like net.Pipe, which never see a matching read.
		return nil
	}
	_, err := conn.Write(payload)
	return err
}

// ReadFrame reads one frame and returns its command byte and payload.
func ReadFrame(conn net.Conn) (byte, []byte, error) {
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:4])
	if n > maxFrameSize {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return 0, nil, err
	}
	return hdr[4], payload, nil
}

// WriteReply writes an OK reply frame echoing the request command.
func WriteReply(conn net.Conn, cmd byte, payload []byte) error {
	return WriteFrame(conn, cmd, append([]byte{statusOK}, payload...))
}

// WriteErrorReply writes a failure reply carrying the message.
func WriteErrorReply(conn net.Conn, cmd byte, msg string) error {
	return WriteFrame(conn, cmd, append([]byte{statusErr}, []byte(msg)...))
}

// decodeReply strips the status byte, turning error replies into errors.
func decodeReply(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty reply")
	}
	switch payload[0] {
	case statusOK:
		return payload[1:], nil
	case statusErr:
		return nil, fmt.Errorf("backend: %s", string(payload[1:]))
	default:
		return nil, fmt.Errorf("unknown reply status 0x%02x", payload[0])
	}
}

// --- payload encoding helpers ---

func appendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

func appendFloat64(b []byte, v float64) []byte {
	return binary.BigEndian.AppendUint64(b, math.Float64bits(v))
}

func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

type payloadReader struct {
	buf []byte
	err error
}

func (r *payloadReader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 4 {
		r.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v
}

func (r *payloadReader) float64() float64 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 8 {
		r.err = io.ErrUnexpectedEOF
		return 0
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(r.buf))
	r.buf = r.buf[8:]
	return v
}

func (r *payloadReader) string() string {
	if r.err != nil {
		return ""
	}
	if len(r.buf) < 2 {
		r.err = io.ErrUnexpectedEOF
		return ""
	}
	n := int(binary.BigEndian.Uint16(r.buf))
	r.buf = r.buf[2:]
	if len(r.buf) < n {
		r.err = io.ErrUnexpectedEOF
		return ""
	}
	s := string(r.buf[:n])
	r.buf = r.buf[n:]
	return s
}

// count reads a collection length and rejects any count whose elements
// could not possibly fit in the remaining payload. Pre-sizing from an
// unchecked wire count would let a desynced backend force an allocation
// of arbitrary size.
func (r *payloadReader) count(minElemSize int) uint32 {
	n := r.uint32()
	if r.err != nil {
		return 0
	}
	if uint64(n) > uint64(len(r.buf))/uint64(minElemSize) {
		r.err = fmt.Errorf("count %d exceeds the %d remaining payload bytes", n, len(r.buf))
		return 0
	}
	return n
}

func (r *payloadReader) bool() bool {
	if r.err != nil {
		return false
	}
	if len(r.buf) < 1 {
		r.err = io.ErrUnexpectedEOF
		return false
	}
	v := r.buf[0] != 0
	r.buf = r.buf[1:]
	return v
}

// EncodeStepRequest encodes the step-size payload of a CmdSimStep frame.
func EncodeStepRequest(stepSize float64) []byte {
	return appendFloat64(nil, stepSize)
}

// DecodeStepRequest decodes a CmdSimStep payload.
func DecodeStepRequest(payload []byte) (float64, error) {
	r := &payloadReader{buf: payload}
	v := r.float64()
	return v, r.err
}

// EncodeStepResult encodes a step reply snapshot.
func EncodeStepResult(res *StepResult) []byte {
	b := make([]byte, 0, 64+32*len(res.Vehicles))
	if res.Done {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = appendFloat64(b, res.Time)
	b = appendUint32(b, uint32(len(res.Vehicles)))
	for _, v := range res.Vehicles {
		b = appendString(b, v.ID)
		b = appendFloat64(b, v.Speed)
		b = appendString(b, v.Edge)
		b = appendFloat64(b, v.Pos)
	}
	b = appendUint32(b, uint32(len(res.Entered)))
	for _, id := range res.Entered {
		b = appendString(b, id)
	}
	b = appendUint32(b, uint32(len(res.Left)))
	for _, id := range res.Left {
		b = appendString(b, id)
	}
	return b
}

// DecodeStepResult decodes a step reply snapshot.
func DecodeStepResult(payload []byte) (*StepResult, error) {
	r := &payloadReader{buf: payload}
	res := &StepResult{}
	res.Done = r.bool()
	res.Time = r.float64()

	nveh := r.count(minVehicleRecordSize)
	if r.err == nil {
		res.Vehicles = make([]VehicleRecord, 0, nveh)
		for i := uint32(0); i < nveh && r.err == nil; i++ {
			res.Vehicles = append(res.Vehicles, VehicleRecord{
				ID:    r.string(),
				Speed: r.float64(),
				Edge:  r.string(),
				Pos:   r.float64(),
			})
		}
	}
	nin := r.count(minStringSize)
	for i := uint32(0); i < nin && r.err == nil; i++ {
		res.Entered = append(res.Entered, r.string())
	}
	nout := r.count(minStringSize)
	for i := uint32(0); i < nout && r.err == nil; i++ {
		res.Left = append(res.Left, r.string())
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode step result: %w", r.err)
	}
	return res, nil
}

// EncodeSpeedCommands encodes a CmdSetSpeeds payload of id -> target speed.
// Iteration order does not matter to the backend.
func EncodeSpeedCommands(cmds map[string]float64) []byte {
	b := appendUint32(nil, uint32(len(cmds)))
	for id, v := range cmds {
		b = appendString(b, id)
		b = appendFloat64(b, v)
	}
	return b
}

// DecodeSpeedCommands decodes a CmdSetSpeeds payload.
func DecodeSpeedCommands(payload []byte) (map[string]float64, error) {
	r := &payloadReader{buf: payload}
	n := r.count(minSpeedCommandSize)
	if r.err != nil {
		return nil, fmt.Errorf("decode speed commands: %w", r.err)
	}
	cmds := make(map[string]float64, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		id := r.string()
		v := r.float64()
		cmds[id] = v
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode speed commands: %w", r.err)
	}
	return cmds, nil
}
