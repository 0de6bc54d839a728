package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/matchlog/matchlog/internal/combatlog"
	"github.com/matchlog/matchlog/internal/combatlog/hslog"
	"github.com/matchlog/matchlog/internal/combatlog/wowlog"
	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/objstore"
	"github.com/matchlog/matchlog/internal/queue"
	"github.com/matchlog/matchlog/internal/statestore"
	"github.com/matchlog/matchlog/internal/utils"
)

// Sink consumes ingest envelopes and writes cold-storage shards. Per
// partition and envelope it produces at most one Raw object, one Parsed
// object and, if the batch carried the flush sentinel, one Flush object. The
// Flush object is always written last so its trigger only fires once the
// data shards are durable.
type Sink struct {
	store          objstore.Store
	states         statestore.Store
	publisher      queue.Publisher
	bucket         string
	triggerSubject string
	grammars       map[combatlog.Game]combatlog.Grammar
	cache          *stateCache
	maxRetries     int
	logger         *logging.Logger
}

// NewSink creates a sink writing into the given bucket and publishing flush
// triggers on triggerSubject.
func NewSink(store objstore.Store, states statestore.Store, publisher queue.Publisher, bucket, triggerSubject string, cacheSize int, logger *logging.Logger) *Sink {
	if cacheSize <= 0 {
		cacheSize = utils.ParseStateCacheSize
	}

	return &Sink{
		store:          store,
		states:         states,
		publisher:      publisher,
		bucket:         bucket,
		triggerSubject: triggerSubject,
		grammars: map[combatlog.Game]combatlog.Grammar{
			combatlog.GameWow: wowlog.NewGrammar(),
			combatlog.GameHs:  hslog.NewGrammar(),
		},
		cache:      newStateCache(cacheSize),
		maxRetries: utils.DefaultMaxRetries,
		logger:     logger.With("component", "ingest"),
	}
}

// HandleEnvelope processes one envelope. A batch that fails to decode fails
// the whole delivery so the queue redelivers it; individual records that fail
// to decode are logged and dropped.
func (s *Sink) HandleEnvelope(ctx context.Context, data []byte) error {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return fmt.Errorf("failed to decode ingest envelope: %w", err)
	}

	// Group lines by partition, preserving arrival order within each.
	var order []string
	batches := make(map[string][]string)
	for _, rec := range env.Records {
		payload, err := DecodePayload(rec.Kinesis.Data)
		if err != nil {
			s.logger.Error("Dropping undecodable record",
				"partition", rec.Kinesis.PartitionKey, "error", err)
			continue
		}
		if _, seen := batches[rec.Kinesis.PartitionKey]; !seen {
			order = append(order, rec.Kinesis.PartitionKey)
		}
		batches[rec.Kinesis.PartitionKey] = append(batches[rec.Kinesis.PartitionKey], payload.Logs...)
	}

	var triggers []queue.BatchMessage
	for _, partitionID := range order {
		flushKey, err := s.processPartition(ctx, partitionID, batches[partitionID])
		if err != nil {
			return fmt.Errorf("failed to process partition %s: %w", partitionID, err)
		}
		if flushKey == "" {
			continue
		}

		trigger, err := json.Marshal(&ObjectCreated{Bucket: s.bucket, Key: flushKey})
		if err != nil {
			return err
		}
		triggers = append(triggers, queue.BatchMessage{Subject: s.triggerSubject, Data: trigger})
	}

	if len(triggers) > 0 {
		if _, err := s.publisher.PublishBatch(ctx, triggers); err != nil {
			return fmt.Errorf("failed to publish flush triggers: %w", err)
		}
	}
	return nil
}

// processPartition writes the partition's shards and returns the Flush
// object key if the batch ended the session.
func (s *Sink) processPartition(ctx context.Context, partitionID string, lines []string) (string, error) {
	game, _, err := combatlog.SplitPartition(partitionID)
	if err != nil {
		s.logger.Error("Dropping batch for bad partition key", "partition", partitionID, "error", err)
		return "", nil
	}
	grammar := s.grammars[game]

	state, err := s.partitionState(ctx, partitionID)
	if err != nil {
		return "", err
	}

	raw := newShard()
	parsed := newShard()
	flush := false

	for _, line := range lines {
		if line == combatlog.FlushSentinel {
			// The sentinel is part of the client's stream: echo it raw so
			// the Raw shard replays input lines one for one, but never
			// parse it.
			flush = true
			if err := raw.add(grammar.RawPacket(partitionID, time.Now().UTC(), line).Data); err != nil {
				return "", err
			}
			continue
		}

		enc, perr := s.safeParse(grammar, partitionID, line, state)

		// The raw echo keeps the client's line even when parsing fails;
		// without an event timestamp it is stamped with arrival time.
		tm := time.Now().UTC()
		if perr == nil {
			tm = enc.Time
		}
		if err := raw.add(grammar.RawPacket(partitionID, tm, line).Data); err != nil {
			return "", err
		}

		if perr != nil {
			s.logger.Warn("Dropping unparseable line", "partition", partitionID, "error", perr)
			continue
		}
		if err := parsed.add(enc.Data); err != nil {
			return "", err
		}
	}

	if raw.count > 0 {
		if err := s.uploadShard(ctx, combatlog.FormRaw, partitionID, raw); err != nil {
			return "", err
		}
	}
	if parsed.count > 0 {
		if err := s.uploadShard(ctx, combatlog.FormParsed, partitionID, parsed); err != nil {
			return "", err
		}
	}

	if !flush {
		return "", nil
	}

	flushShard := newShard()
	if err := flushShard.add(grammar.FlushPacket(partitionID).Data); err != nil {
		return "", err
	}
	key := objectKey(combatlog.FormFlush, partitionID)
	if err := s.upload(ctx, key, flushShard); err != nil {
		return "", err
	}

	s.logger.Info("Flushed partition", "partition", partitionID, "key", key)
	return key, nil
}

// safeParse isolates one line as its own unit of work so a grammar bug
// cannot take down the whole batch.
func (s *Sink) safeParse(grammar combatlog.Grammar, partitionID, line string, state *combatlog.ParseState) (enc combatlog.Encoded, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	return grammar.ParseLine(partitionID, line, state)
}

// partitionState returns the partition's parse state, going to the durable
// store only on a cache miss. A partition without stored state parses with
// defaults; any other store failure fails the batch so the queue redelivers
// it once the store recovers.
func (s *Sink) partitionState(ctx context.Context, partitionID string) (*combatlog.ParseState, error) {
	if state, ok := s.cache.get(partitionID); ok {
		return state, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, utils.StateFetchTimeout)
	defer cancel()

	state, err := s.states.Get(fetchCtx, partitionID)
	if err != nil {
		if !statestore.IsNotFound(err) {
			return nil, fmt.Errorf("failed to fetch parse state for %s: %w", partitionID, err)
		}
		state = &combatlog.ParseState{PartitionID: partitionID}
	}

	s.cache.put(partitionID, state)
	return state, nil
}

func (s *Sink) uploadShard(ctx context.Context, form combatlog.Form, partitionID string, sh *shard) error {
	return s.upload(ctx, objectKey(form, partitionID), sh)
}

// upload stores a finished shard, retrying transient failures with capped
// backoff.
func (s *Sink) upload(ctx context.Context, key string, sh *shard) error {
	data, err := sh.finish()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(utils.RetryBackoff(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if lastErr = s.store.Put(ctx, s.bucket, key, bytes.NewReader(data)); lastErr == nil {
			return nil
		}
		s.logger.Warn("Retrying shard upload", "key", key, "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("failed to upload %s after %d attempts: %w", key, s.maxRetries, lastErr)
}

func objectKey(form combatlog.Form, partitionID string) string {
	return fmt.Sprintf("form=%s/partition=%s/combatlog_%d_%s.gz",
		form, partitionID, time.Now().UnixMilli(), uuid.NewString())
}

// shard accumulates gzip'd NDJSON packet lines for one object.
type shard struct {
	buf   bytes.Buffer
	gz    *gzip.Writer
	count int
}

func newShard() *shard {
	sh := &shard{}
	sh.gz = gzip.NewWriter(&sh.buf)
	return sh
}

func (sh *shard) add(packetLine []byte) error {
	if _, err := sh.gz.Write(packetLine); err != nil {
		return err
	}
	if _, err := sh.gz.Write([]byte{'\n'}); err != nil {
		return err
	}
	sh.count++
	return nil
}

func (sh *shard) finish() ([]byte, error) {
	if err := sh.gz.Close(); err != nil {
		return nil, err
	}
	return sh.buf.Bytes(), nil
}
