package eventbus

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hydr0g3nz/tcg_order_core/internal/platform/errkind"
)

// MongoDedup implements Dedup on a Mongo collection with a TTL index,
// the same (message_id, order_id)-keyed idempotency-record shape used
// by traffic-tacos-inventory-api's DynamoDB IdempotencyItem, adapted
// to the store this core already uses instead of adding a second
// database technology just for deduplication.
type MongoDedup struct {
	collection *mongo.Collection
	window     time.Duration
}

type dedupRecord struct {
	Key       string    `bson:"_id"`
	MessageID string    `bson:"message_id"`
	OrderID   string    `bson:"order_id"`
	SeenAt    time.Time `bson:"seen_at"`
}

// NewMongoDedup wires the dedup window from spec.md §6
// (EVENT_DEDUP_WINDOW_HOURS, default 24h).
func NewMongoDedup(db *mongo.Database, window time.Duration) *MongoDedup {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &MongoDedup{collection: db.Collection("event_dedup"), window: window}
}

func (d *MongoDedup) EnsureIndexes(ctx context.Context) error {
	_, err := d.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "seen_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(d.window.Seconds())),
	})
	return err
}

// SeenBefore is a read-only existence check, performed before the
// handler runs. It must not record anything itself — recording happens
// in MarkSeen, once the handler has actually succeeded, in the same
// order traffic-tacos-inventory-api's commitQuantityReservation
// commits the reservation before calling PutIdempotency.
func (d *MongoDedup) SeenBefore(ctx context.Context, messageID, orderID string) (bool, error) {
	key := messageID + ":" + orderID
	err := d.collection.FindOne(ctx, bson.M{"_id": key}).Err()
	if err == nil {
		return true, nil
	}
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	return false, errkind.Wrap(errkind.Transient, "dedup check", err)
}

// MarkSeen records (messageID, orderID) as processed. Called only after
// the handler returns nil; a duplicate-key error here means a
// concurrent delivery already recorded the same key and is not an
// error.
func (d *MongoDedup) MarkSeen(ctx context.Context, messageID, orderID string) error {
	key := messageID + ":" + orderID
	_, err := d.collection.InsertOne(ctx, dedupRecord{
		Key:       key,
		MessageID: messageID,
		OrderID:   orderID,
		SeenAt:    time.Now(),
	})
	if err == nil || mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return errkind.Wrap(errkind.Transient, "dedup mark", err)
}
