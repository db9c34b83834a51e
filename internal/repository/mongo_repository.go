package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	cartsCollection = "carts"
	versionField    = "__v"
)

// cartDocument keeps the field names of the existing carts collection.
type cartDocument struct {
	ID        primitive.ObjectID    `bson:"_id,omitempty"`
	UserID    primitive.ObjectID    `bson:"userId"`
	Products  []cartProductDocument `bson:"products"`
	Version   int64                 `bson:"__v"`
	CreatedAt time.Time             `bson:"createdAt"`
	UpdatedAt time.Time             `bson:"updatedAt"`
}

type cartProductDocument struct {
	ProductID primitive.ObjectID `bson:"productId"`
	Quantity  int                `bson:"quantity"`
	AddedAt   time.Time          `bson:"addedAt,omitempty"`
}

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection(cartsCollection),
	}
}

func (m *mongoRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrCartNotFound
	}

	var doc cartDocument
	err = m.collection.FindOne(ctx, bson.M{"userId": oid}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, errors.Wrap(err, "failed to get cart")
	}

	return cartFromDocument(doc), nil
}

func (m *mongoRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	doc, err := cartToDocument(cart)
	if err != nil {
		return err
	}

	if cart.ID == "" {
		doc.Version = 0
		res, err := m.collection.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			// someone else created the user's cart first
			return ErrVersionConflict
		}
		if err != nil {
			return errors.Wrap(err, "failed to insert cart")
		}
		cart.ID = res.InsertedID.(primitive.ObjectID).Hex()
		cart.Version = 0
		return nil
	}

	filter := versionFilter(doc.ID, cart.Version)
	update := bson.M{
		"$set": bson.M{
			"products":   doc.Products,
			"updatedAt":  doc.UpdatedAt,
			versionField: cart.Version + 1,
		},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return errors.Wrap(err, "failed to update cart")
	}
	if result.MatchedCount == 0 {
		return ErrVersionConflict
	}

	cart.Version++
	return nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updatedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return errors.Wrap(err, "failed to create cart indexes")
	}

	return nil
}

// versionFilter matches id at the given version. Documents written before the
// version key existed count as version 0.
func versionFilter(id primitive.ObjectID, version int64) bson.M {
	if version == 0 {
		return bson.M{
			"_id": id,
			"$or": bson.A{
				bson.M{versionField: 0},
				bson.M{versionField: bson.M{"$exists": false}},
			},
		}
	}
	return bson.M{"_id": id, versionField: version}
}

func cartFromDocument(doc cartDocument) *domain.Cart {
	items := make([]domain.CartItem, 0, len(doc.Products))
	for _, p := range doc.Products {
		items = append(items, domain.CartItem{
			ProductID: p.ProductID.Hex(),
			Quantity:  p.Quantity,
			AddedAt:   p.AddedAt,
		})
	}
	return &domain.Cart{
		ID:        doc.ID.Hex(),
		UserID:    doc.UserID.Hex(),
		Items:     items,
		Version:   doc.Version,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func cartToDocument(cart *domain.Cart) (cartDocument, error) {
	userID, err := primitive.ObjectIDFromHex(cart.UserID)
	if err != nil {
		return cartDocument{}, errors.Wrapf(err, "invalid user id %q", cart.UserID)
	}

	doc := cartDocument{
		UserID:    userID,
		Products:  make([]cartProductDocument, 0, len(cart.Items)),
		Version:   cart.Version,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	if cart.ID != "" {
		if doc.ID, err = primitive.ObjectIDFromHex(cart.ID); err != nil {
			return cartDocument{}, errors.Wrapf(err, "invalid cart id %q", cart.ID)
		}
	}

	for _, item := range cart.Items {
		productID, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return cartDocument{}, errors.Wrapf(err, "invalid product id %q", item.ProductID)
		}
		doc.Products = append(doc.Products, cartProductDocument{
			ProductID: productID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}
	return doc, nil
}
