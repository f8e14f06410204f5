// Package mongo implements the Item & Reservation Store (spec.md
// §4.A) on top of go.mongodb.org/mongo-driver, following the teacher's
// adapter/repository/mongo shape: a thin struct wrapping a
// *mongo.Collection, ToEntity/FromEntity at the boundary.
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

type ItemRepository struct {
	collection *mongo.Collection
}

func NewItemRepository(db *mongo.Database) *ItemRepository {
	return &ItemRepository{collection: db.Collection("items")}
}

// EnsureIndexes creates the text index on (name, set_name) and the
// compound (set_code, collector_number) index from spec.md §6. Called
// once at startup, not on every request.
func (r *ItemRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "name", Value: "text"}, {Key: "card.set_name", Value: "text"}},
		},
		{
			Keys: bson.D{{Key: "card.set_code", Value: 1}, {Key: "card.collector_number", Value: 1}},
		},
	})
	return err
}

func (r *ItemRepository) GetItem(ctx context.Context, id string) (*entity.Item, error) {
	var m model.ItemModel
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errkind.NotFoundf("item %s not found", id)
		}
		return nil, errkind.Wrap(errkind.Transient, "get item", err)
	}
	return m.ToEntity(), nil
}

func (r *ItemRepository) GetItemsForUpdate(ctx context.Context, ids []string) (map[string]*entity.Item, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "get items for update", err)
	}
	defer cursor.Close(ctx)

	var models []model.ItemModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, errkind.Wrap(errkind.Transient, "decode items", err)
	}

	out := make(map[string]*entity.Item, len(models))
	for _, m := range models {
		item := m.ToEntity()
		out[item.ID] = item
	}
	return out, nil
}

func (r *ItemRepository) UpsertItem(ctx context.Context, item *entity.Item) error {
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.LastUpdated = now

	existing, err := r.collection.CountDocuments(ctx, bson.M{"_id": item.ID})
	if err != nil {
		return errkind.Wrap(errkind.Transient, "check existing item", err)
	}
	if existing == 0 {
		// Creator of a new item always starts with ReservedQty == 0
		// (spec.md §4.A), regardless of what the caller supplied.
		item.ReservedQty = 0
	}

	m := model.ItemFromEntity(item)
	_, err = r.collection.ReplaceOne(ctx, bson.M{"_id": item.ID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return errkind.Wrap(errkind.Transient, "upsert item", err)
	}
	return nil
}

func (r *ItemRepository) UpdateItemFields(ctx context.Context, id string, patch entity.ItemPatch) (*entity.Item, error) {
	set := bson.M{"last_updated": time.Now()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.PriceCents != nil {
		set["price_cents"] = int64(*patch.PriceCents)
	}
	if patch.AvailableQty != nil {
		set["available_quantity"] = *patch.AvailableQty
	}
	if patch.ImageURL != nil {
		set["image_url"] = *patch.ImageURL
	}
	if patch.Card != nil {
		c := model.CardAttributes(*patch.Card)
		set["card"] = c
	}
	if patch.Sealed != nil {
		s := model.SealedAttributes(*patch.Sealed)
		set["sealed"] = s
	}

	result := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var m model.ItemModel
	if err := result.Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errkind.NotFoundf("item %s not found", id)
		}
		return nil, errkind.Wrap(errkind.Transient, "update item fields", err)
	}
	return m.ToEntity(), nil
}

func (r *ItemRepository) UpdateReservedQty(ctx context.Context, id string, reservedDelta, availableDelta int) error {
	filter := bson.M{
		"_id":                id,
		"reserved_quantity":  bson.M{"$gte": -reservedDelta},
		"available_quantity": bson.M{"$gte": -availableDelta},
	}
	update := bson.M{
		"$inc": bson.M{
			"reserved_quantity":  reservedDelta,
			"available_quantity": availableDelta,
		},
		"$set": bson.M{"last_updated": time.Now()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "update reserved qty", err)
	}
	if result.MatchedCount == 0 {
		return errkind.Conflictf("item %s quantity invariant violated for delta reserved=%d available=%d", id, reservedDelta, availableDelta)
	}
	return nil
}

func (r *ItemRepository) DeleteItem(ctx context.Context, id string) error {
	item, err := r.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if item.ReservedQty > 0 {
		return errkind.Conflictf("item %s has an active reservation and cannot be deleted", id)
	}
	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errkind.Wrap(errkind.Transient, "delete item", err)
	}
	return nil
}
