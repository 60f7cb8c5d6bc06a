package store

import (
	"fmt"
	"time"

	"github.com/sicko7947/idemflow"
)

// DynamoDB schema constants for single-table design
const (
	// Table attributes
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrEntityType = "entity_type"
	AttrData       = "data"
	AttrCreatedAt  = "created_at"
	AttrTTL        = "ttl"

	// Entity types
	EntityTypeResult     = "Result"
	EntityTypeCheckpoint = "Checkpoint"
)

// sortableTime is a fixed-width UTC layout so sort keys order by time
const sortableTime = "2006-01-02T15:04:05.000000000Z"

// Key builders for single-table design

// Result keys: PK=IDEMPOTENCY#{key}, SK=RESULT
func resultPK(key idemflow.Key) string {
	return fmt.Sprintf("IDEMPOTENCY#%s", key)
}

func resultSK() string {
	return "RESULT"
}

// Checkpoint keys: PK=WORKFLOW#{workflowID}, SK=CHECKPOINT#{createdAt}#{checkpointID}
func checkpointPK(workflowID string) string {
	return fmt.Sprintf("WORKFLOW#%s", workflowID)
}

func checkpointSK(createdAt time.Time, checkpointID string) string {
	return fmt.Sprintf("%s%s#%s", checkpointPrefix(), createdAt.UTC().Format(sortableTime), checkpointID)
}

// Prefix for range queries
func checkpointPrefix() string {
	return "CHECKPOINT#"
}

// Redis keys

func redisResultKey(prefix string, key idemflow.Key) string {
	return fmt.Sprintf("%s:result:%s", prefix, key)
}

func redisCheckpointKey(prefix, workflowID string) string {
	return fmt.Sprintf("%s:checkpoints:%s", prefix, workflowID)
}
