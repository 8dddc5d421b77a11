// Package emission consumes the backend-written emission log after a run:
// it waits for the file to settle, converts the XML into a tabular CSV
// artifact with one row per (time, vehicle) observation, and leaves the
// deletion of the source to the caller.
package emission

import (
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var csvHeader = []string{"time", "id", "speed", "pos", "edge"}

// ConvertToCSV parses an emission XML log and writes the sibling .csv
// artifact. Returns the path of the CSV file.
func ConvertToCSV(xmlPath string) (string, error) {
	in, err := os.Open(xmlPath)
	if err != nil {
		return "", err
	}
	defer in.Close()

	csvPath := strings.TrimSuffix(xmlPath, ".xml") + ".csv"
	out, err := os.Create(csvPath)
	if err != nil {
		return "", err
	}

	w := csv.NewWriter(out)
	if err := convert(in, w); err != nil {
		out.Close()
		if rmErr := os.Remove(csvPath); rmErr != nil {
			logrus.Debugf("removing partial csv %s: %v", csvPath, rmErr)
		}
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return csvPath, nil
}

// convert streams timestep/vehicle elements into CSV rows. Emission files
// can be large, so the document is never held in memory as a whole.
func convert(in io.Reader, w *csv.Writer) error {
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	dec := xml.NewDecoder(in)
	var curTime string
	rows := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("malformed emission log: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "timestep":
			curTime = attr(start, "time")
		case "vehicle":
			if curTime == "" {
				return fmt.Errorf("malformed emission log: vehicle element outside a timestep")
			}
			row := []string{
				curTime,
				attr(start, "id"),
				attr(start, "speed"),
				attr(start, "pos"),
				attr(start, "edge"),
			}
			if err := w.Write(row); err != nil {
				return err
			}
			rows++
		}
	}
	logrus.Debugf("emission conversion wrote %d observation rows", rows)
	return nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
