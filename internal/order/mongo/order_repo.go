// Package mongo implements the Order Store (spec.md §4.B) against
// MongoDB, grounded on the teacher's
// order_service/adapter/repository/mongo package: the same
// FindOne/ReplaceOne/collection-per-aggregate shape, generalized to
// the compare-and-set status update and separate append-only history
// collection spec.md §5/§6 require.
package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hydr0g3nz/tcg_order_core/internal/order/entity"
	"github.com/hydr0g3nz/tcg_order_core/internal/order/mongo/model"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/errkind"
)

type OrderRepository struct {
	orders  *mongo.Collection
	history *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{
		orders:  db.Collection("orders"),
		history: db.Collection("order_status_history"),
	}
}

func (r *OrderRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = r.history.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	return err
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*entity.Order, error) {
	var m model.OrderModel
	err := r.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, errkind.NotFoundf("order %s not found", id)
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "get order", err)
	}
	return m.ToEntity(), nil
}

func (r *OrderRepository) Insert(ctx context.Context, o *entity.Order) error {
	_, err := r.orders.InsertOne(ctx, model.FromEntity(o))
	if mongo.IsDuplicateKeyError(err) {
		return errkind.Conflictf("order %s already exists", o.ID)
	}
	if err != nil {
		return errkind.Wrap(errkind.Transient, "insert order", err)
	}
	return nil
}

// UpdateCAS replaces the order document only if its currently stored
// status still equals expectedStatus (spec.md §5 compare-and-set).
func (r *OrderRepository) UpdateCAS(ctx context.Context, o *entity.Order, expectedStatus entity.Status) error {
	filter := bson.M{"_id": o.ID, "status": string(expectedStatus)}
	result, err := r.orders.ReplaceOne(ctx, filter, model.FromEntity(o))
	if err != nil {
		return errkind.Wrap(errkind.Transient, "update order", err)
	}
	if result.MatchedCount == 0 {
		if _, getErr := r.Get(ctx, o.ID); getErr != nil {
			return getErr
		}
		return errkind.Conflictf("order %s status changed concurrently, expected %s", o.ID, expectedStatus)
	}
	return nil
}

func (r *OrderRepository) ListForCustomer(ctx context.Context, customerID string, page, pageSize int) ([]*entity.Order, int64, error) {
	filter := bson.M{"customer_id": customerID}

	total, err := r.orders.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, errkind.Wrap(errkind.Transient, "count orders", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := r.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, errkind.Wrap(errkind.Transient, "list orders", err)
	}
	defer cursor.Close(ctx)

	var models []model.OrderModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, 0, errkind.Wrap(errkind.Transient, "decode orders", err)
	}

	orders := make([]*entity.Order, len(models))
	for i, m := range models {
		orders[i] = m.ToEntity()
	}
	return orders, total, nil
}

func (r *OrderRepository) AppendHistory(ctx context.Context, entry entity.HistoryEntry) error {
	_, err := r.history.InsertOne(ctx, model.HistoryFromEntity(entry))
	if err != nil {
		return errkind.Wrap(errkind.Transient, "append order history", err)
	}
	return nil
}

func (r *OrderRepository) History(ctx context.Context, orderID string) ([]entity.HistoryEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := r.history.Find(ctx, bson.M{"order_id": orderID}, opts)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "list order history", err)
	}
	defer cursor.Close(ctx)

	var models []model.HistoryModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, errkind.Wrap(errkind.Transient, "decode order history", err)
	}

	out := make([]entity.HistoryEntry, len(models))
	for i, m := range models {
		out[i] = m.ToEntity()
	}
	return out, nil
}
