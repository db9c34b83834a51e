package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const productsCollection = "products"

type productDocument struct {
	ID     primitive.ObjectID   `bson:"_id"`
	Name   string               `bson:"name"`
	Price  primitive.Decimal128 `bson:"price"`
	Stock  int                  `bson:"stock"`
	Images []string             `bson:"images"`
}

var snapshotProjection = bson.M{"name": 1, "price": 1, "stock": 1, "images": 1}

type mongoCatalog struct {
	collection *mongo.Collection
}

// NewMongoCatalog reads the products collection shared with the catalog
// service.
func NewMongoCatalog(db *mongo.Database) Catalog {
	return &mongoCatalog{collection: db.Collection(productsCollection)}
}

func (m *mongoCatalog) GetProduct(ctx context.Context, productID string) (*domain.ProductSnapshot, error) {
	oid, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return nil, domain.ErrProductNotFound
	}

	var doc productDocument
	opts := options.FindOne().SetProjection(snapshotProjection)
	err = m.collection.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get product")
	}

	snapshot, err := toSnapshot(doc)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (m *mongoCatalog) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.ProductSnapshot, error) {
	ids := make([]primitive.ObjectID, 0, len(productIDs))
	for _, id := range productIDs {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			ids = append(ids, oid)
		}
	}
	result := make(map[string]domain.ProductSnapshot, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	opts := options.Find().SetProjection(snapshotProjection)
	cursor, err := m.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query products")
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc productDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "failed to decode product")
		}
		snapshot, err := toSnapshot(doc)
		if err != nil {
			return nil, err
		}
		result[snapshot.ID] = snapshot
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, "cursor iteration error")
	}
	return result, nil
}

func (m *mongoCatalog) DecrementStock(ctx context.Context, productID string, qty int) error {
	oid, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return domain.ErrProductNotFound
	}

	filter := bson.M{"_id": oid, "stock": bson.M{"$gte": qty}}
	update := bson.M{"$inc": bson.M{"stock": -qty}}
	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return errors.Wrap(err, "failed to decrement stock")
	}
	if result.MatchedCount == 1 {
		return nil
	}

	current, err := m.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	return &domain.InsufficientStockError{ProductID: productID, Requested: qty, Available: current.Stock}
}

func toSnapshot(doc productDocument) (domain.ProductSnapshot, error) {
	price, err := decimal.NewFromString(doc.Price.String())
	if err != nil {
		return domain.ProductSnapshot{}, errors.Wrapf(err, "invalid price for product %s", doc.ID.Hex())
	}
	return domain.ProductSnapshot{
		ID:     doc.ID.Hex(),
		Name:   doc.Name,
		Price:  price,
		Stock:  doc.Stock,
		Images: doc.Images,
	}, nil
}
