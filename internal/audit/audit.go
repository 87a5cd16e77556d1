package audit

import (
	"context"
	"sort"
	"time"

	"github.com/bazaar/bazaar/backend/identity/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
)

// Event types written to the security trail.
const (
	SessionCreated         = "session_created"
	SessionMigrated        = "session_migrated"
	DeviceBindingViolation = "device_binding_violation"
	LogoutAll              = "logout_all"
)

// Event is one security-relevant occurrence.
type Event struct {
	Type      string            `bson:"type" json:"type"`
	UserID    string            `bson:"userId" json:"userId"`
	DeviceID  string            `bson:"deviceId,omitempty" json:"deviceId,omitempty"`
	SessionID string            `bson:"sessionId,omitempty" json:"sessionId,omitempty"`
	IPAddress string            `bson:"ipAddress,omitempty" json:"ipAddress,omitempty"`
	Details   map[string]string `bson:"details,omitempty" json:"details,omitempty"`
	At        time.Time         `bson:"at" json:"at"`
}

// Recorder persists events. Implementations never fail the caller: errors
// are logged.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// MongoRecorder appends events to a collection (security_events).
type MongoRecorder struct {
	col *mongo.Collection
}

func NewMongoRecorder(col *mongo.Collection) *MongoRecorder {
	return &MongoRecorder{col: col}
}

func (r *MongoRecorder) Record(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if _, err := r.col.InsertOne(ctx, e); err != nil {
		logger.Errorw("audit insert failed", "type", e.Type, "userId", e.UserID, "error", err)
	}
}

// LogRecorder writes events to the process logger.
type LogRecorder struct{}

func (LogRecorder) Record(_ context.Context, e Event) {
	kv := []interface{}{"type", e.Type, "userId", e.UserID}
	if e.DeviceID != "" {
		kv = append(kv, "deviceId", e.DeviceID)
	}
	if e.SessionID != "" {
		kv = append(kv, "sessionId", e.SessionID)
	}
	if e.IPAddress != "" {
		kv = append(kv, "ip", e.IPAddress)
	}
	for _, k := range sortedKeys(e.Details) {
		kv = append(kv, k, e.Details[k])
	}
	logger.Infow("security event", kv...)
}

// NopRecorder discards events.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) {}

// Multi fans an event out to several recorders.
func Multi(recorders ...Recorder) Recorder {
	return multi(recorders)
}

type multi []Recorder

func (m multi) Record(ctx context.Context, e Event) {
	for _, r := range m {
		r.Record(ctx, e)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
