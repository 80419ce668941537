// Package calllog persists a local history of calls — peer, duration,
// verificator name, and whether the call was encrypted — as a sequence
// of CBOR-encoded records, one per call.
package calllog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FileName is the call-history file's name under the identity directory.
const FileName = "call-history.cbor"

// Record is one completed call's history entry.
type Record struct {
	Peer        string    `cbor:"peer"`
	StartedAt   time.Time `cbor:"started_at"`
	EndedAt     time.Time `cbor:"ended_at"`
	Verificator string    `cbor:"verificator,omitempty"`
	Encrypted   bool      `cbor:"encrypted"`
}

// Duration returns how long the call lasted.
func (r Record) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encOptions.TimeTag = cbor.EncTagRequired
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("calllog: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		TimeTag:        cbor.DecTagOptional,
	}.DecMode()
	if err != nil {
		panic("calllog: CBOR decoder initialization failed: " + err.Error())
	}
}

// Append encodes record as CBOR and appends it to the call-history file
// under dir, creating it if necessary.
func Append(dir string, record Record) error {
	path := filepath.Join(dir, FileName)
	data, err := encMode.Marshal(record)
	if err != nil {
		return fmt.Errorf("calllog: marshal record: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("calllog: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("calllog: write %s: %w", path, err)
	}
	return nil
}

// Load reads every record from the call-history file under dir, in
// append order. A missing file returns an empty slice, not an error.
func Load(dir string) ([]Record, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("calllog: read %s: %w", path, err)
	}

	var records []Record
	dec := decMode.NewDecoder(bytes.NewReader(data))
	for {
		var record Record
		if err := dec.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("calllog: decode record %d: %w", len(records), err)
		}
		records = append(records, record)
	}
	return records, nil
}
