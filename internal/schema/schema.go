// Package schema validates event logs against the versioned JSON Schema of
// the wire format. The schema document is embedded so validation needs no
// files at runtime.
package schema

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed event-v1.schema.json
var eventSchemaJSON string

var eventSchema = jsonschema.MustCompileString("event-v1.schema.json", eventSchemaJSON)

// maxLineSize bounds a single JSONL record, matching the log codec.
const maxLineSize = 1 << 20

// EventSchemaJSON returns the embedded schema document.
func EventSchemaJSON() string {
	return eventSchemaJSON
}

// ValidateEvent checks one JSON event record against the schema.
func ValidateEvent(raw []byte) error {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}
	return eventSchema.Validate(instance)
}

// ValidateLog checks a JSONL stream record by record and returns the number
// of valid records. Blank lines are skipped; the first violation stops the
// scan and is reported with its 1-based line number.
func ValidateLog(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	valid := 0
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := ValidateEvent(raw); err != nil {
			return valid, fmt.Errorf("line %d: %w", line, err)
		}
		valid++
	}
	if err := sc.Err(); err != nil {
		return valid, fmt.Errorf("read log: %w", err)
	}
	return valid, nil
}
