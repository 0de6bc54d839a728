// Package ingest turns client log batches into cold-storage objects. Each
// envelope carries base64'd, gzip'd line batches keyed by partition; the sink
// parses them, writes Raw and Parsed objects, and finishes a flushed
// partition with a Flush marker object that triggers compilation.
package ingest

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// Envelope is the wire format of one ingest batch. The field names and
// nesting are fixed by the client protocol.
type Envelope struct {
	Records []Record `json:"Records"`
}

// Record is one envelope entry.
type Record struct {
	Kinesis KinesisRecord `json:"kinesis"`
}

// KinesisRecord carries a partition key and the opaque payload.
type KinesisRecord struct {
	PartitionKey string `json:"partitionKey"`
	Data         string `json:"data"`
}

// Payload is the decoded record body: the raw log lines, in client order.
type Payload struct {
	Logs []string `json:"logs"`
}

// DecodeEnvelope deserializes an envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode ingest envelope: %w", err)
	}
	return &env, nil
}

// DecodePayload unwraps one record's body: base64, then gzip, then JSON.
func DecodePayload(data string) (*Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode record base64: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to open record gzip: %w", err)
	}
	defer gz.Close()

	body, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress record: %w", err)
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode record payload: %w", err)
	}
	return &payload, nil
}

// EncodePayload builds a record body the way clients do. Used by tests and
// the replay tool.
func EncodePayload(p *Payload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(body); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ObjectCreated notifies the compiler that a cold-storage object landed.
type ObjectCreated struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}
