package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hydr0g3nz/tcg_order_core/internal/catalog/entity"
	"github.com/hydr0g3nz/tcg_order_core/internal/catalog/mongo/model"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/errkind"
)

type ReservationRepository struct {
	collection *mongo.Collection
}

func NewReservationRepository(db *mongo.Database) *ReservationRepository {
	return &ReservationRepository{collection: db.Collection("reservations")}
}

// EnsureIndexes creates the expires_at and status indexes (spec.md §6)
// plus a partial-unique index enforcing "order_id UNIQUE among
// Active" reservations.
func (r *ReservationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{
			Keys: bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(entity.ReservationActive)}),
		},
	})
	return err
}

func (r *ReservationRepository) GetByOrder(ctx context.Context, orderID string) (*entity.Reservation, error) {
	var m model.ReservationModel
	err := r.collection.FindOne(ctx, bson.M{"order_id": orderID}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errkind.NotFoundf("no reservation for order %s", orderID)
		}
		return nil, errkind.Wrap(errkind.Transient, "get reservation by order", err)
	}
	return m.ToEntity(), nil
}

func (r *ReservationRepository) Insert(ctx context.Context, res *entity.Reservation) error {
	existing, err := r.collection.CountDocuments(ctx, bson.M{
		"order_id": res.OrderID,
		"status":   bson.M{"$in": []string{string(entity.ReservationActive), string(entity.ReservationConfirmed)}},
	})
	if err != nil {
		return errkind.Wrap(errkind.Transient, "check existing reservation", err)
	}
	if existing > 0 {
		return errkind.Conflictf("an active or confirmed reservation already exists for order %s", res.OrderID)
	}

	m := model.ReservationFromEntity(res)
	_, err = r.collection.InsertOne(ctx, m)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errkind.Conflictf("an active reservation already exists for order %s", res.OrderID)
		}
		return errkind.Wrap(errkind.Transient, "insert reservation", err)
	}
	return nil
}

func (r *ReservationRepository) Update(ctx context.Context, res *entity.Reservation) error {
	m := model.ReservationFromEntity(res)
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": res.ID}, m)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "update reservation", err)
	}
	if result.MatchedCount == 0 {
		return errkind.NotFoundf("reservation %s not found", res.ID)
	}
	return nil
}

func (r *ReservationRepository) ListExpiring(ctx context.Context, now time.Time, limit int) ([]*entity.Reservation, error) {
	filter := bson.M{
		"status":     string(entity.ReservationActive),
		"expires_at": bson.M{"$lte": now},
	}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "list expiring reservations", err)
	}
	defer cursor.Close(ctx)

	var models []model.ReservationModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, errkind.Wrap(errkind.Transient, "decode expiring reservations", err)
	}

	out := make([]*entity.Reservation, len(models))
	for i, m := range models {
		out[i] = m.ToEntity()
	}
	return out, nil
}
