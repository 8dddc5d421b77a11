package native

import (
	"bufio"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// emissionWriter appends one <timestep> element per completed step to an
// emission XML file. The closing tag is written on close, so the file is
// only guaranteed parseable after the engine shuts down.
type emissionWriter struct {
	path   string
	file   *os.File
	w      *bufio.Writer
	closed bool
}

func newEmissionWriter(path string) (*emissionWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	ew := &emissionWriter{path: path, file: f, w: bufio.NewWriter(f)}
	fmt.Fprintln(ew.w, `<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintln(ew.w, `<emission-export>`)
	return ew, nil
}

func (ew *emissionWriter) writeStep(time float64, vehicles []VehicleObs) error {
	if ew.closed {
		return fmt.Errorf("emission writer closed")
	}
	fmt.Fprintf(ew.w, "    <timestep time=\"%.2f\">\n", time)
	for _, v := range vehicles {
		fmt.Fprintf(ew.w, "        <vehicle id=%q speed=\"%.4f\" pos=\"%.4f\" edge=%q/>\n",
			v.ID, v.Speed, v.Pos, v.Edge)
	}
	fmt.Fprintln(ew.w, "    </timestep>")
	return ew.w.Flush()
}

// close finalizes the document. Idempotent and best-effort: teardown must
// never fail the caller.
func (ew *emissionWriter) close() {
	if ew.closed {
		return
	}
	ew.closed = true
	fmt.Fprintln(ew.w, `</emission-export>`)
	if err := ew.w.Flush(); err != nil {
		logrus.Debugf("emission flush %s: %v", ew.path, err)
	}
	if err := ew.file.Close(); err != nil {
		logrus.Debugf("emission close %s: %v", ew.path, err)
	}
}
