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

const loyaltyCollection = "loyaltypoints"

// loyaltyDocument keeps the field names of the existing loyaltypoints
// collection. OpeningBalance is absent on legacy documents.
type loyaltyDocument struct {
	ID             primitive.ObjectID    `bson:"_id,omitempty"`
	UserID         primitive.ObjectID    `bson:"user_id"`
	OpeningBalance *int64                `bson:"openingBalance,omitempty"`
	TotalPoints    int64                 `bson:"totalPoints"`
	PointsHistory  []pointsEntryDocument `bson:"pointsHistory"`
	Version        int64                 `bson:"__v"`
	CreatedAt      time.Time             `bson:"createdAt"`
	UpdatedAt      time.Time             `bson:"updatedAt"`
}

// pointsEntryDocument: legacy entries only carry the subdocument _id, new ones
// carry entryId.
type pointsEntryDocument struct {
	LegacyID        primitive.ObjectID `bson:"_id,omitempty"`
	EntryID         string             `bson:"entryId,omitempty"`
	TransactionType string             `bson:"transactionType"`
	Points          int64              `bson:"points"`
	Description     string             `bson:"description"`
	Reference       string             `bson:"reference,omitempty"`
	Date            time.Time          `bson:"date"`
}

type mongoLoyaltyRepository struct {
	collection *mongo.Collection
}

func NewMongoLoyaltyRepository(db *mongo.Database) LoyaltyRepository {
	return &mongoLoyaltyRepository{
		collection: db.Collection(loyaltyCollection),
	}
}

func (m *mongoLoyaltyRepository) GetAccount(ctx context.Context, userID string) (*domain.LoyaltyAccount, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrAccountNotFound
	}

	var doc loyaltyDocument
	err = m.collection.FindOne(ctx, bson.M{"user_id": oid}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "failed to get loyalty account")
	}

	account := accountFromDocument(doc)
	account.MarkCommitted()
	return account, nil
}

// SaveAccount only pushes ledger entries appended since the account was
// loaded; stored history is never rewritten.
func (m *mongoLoyaltyRepository) SaveAccount(ctx context.Context, account *domain.LoyaltyAccount) error {
	userID, err := primitive.ObjectIDFromHex(account.UserID)
	if err != nil {
		return errors.Wrapf(err, "invalid user id %q", account.UserID)
	}
	entries := entriesToDocuments(account.Uncommitted())

	if account.ID == "" {
		opening := account.OpeningBalance
		doc := loyaltyDocument{
			UserID:         userID,
			OpeningBalance: &opening,
			TotalPoints:    account.TotalPoints,
			PointsHistory:  entriesToDocuments(account.PointsHistory),
			CreatedAt:      account.CreatedAt,
			UpdatedAt:      account.UpdatedAt,
		}
		res, err := m.collection.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return ErrVersionConflict
		}
		if err != nil {
			return errors.Wrap(err, "failed to insert loyalty account")
		}
		account.ID = res.InsertedID.(primitive.ObjectID).Hex()
		account.Version = 0
		account.MarkCommitted()
		return nil
	}

	id, err := primitive.ObjectIDFromHex(account.ID)
	if err != nil {
		return errors.Wrapf(err, "invalid account id %q", account.ID)
	}

	update := bson.M{
		"$set": bson.M{
			"totalPoints":    account.TotalPoints,
			"openingBalance": account.OpeningBalance,
			"updatedAt":      account.UpdatedAt,
			versionField:     account.Version + 1,
		},
	}
	if len(entries) > 0 {
		update["$push"] = bson.M{"pointsHistory": bson.M{"$each": entries}}
	}

	result, err := m.collection.UpdateOne(ctx, versionFilter(id, account.Version), update)
	if err != nil {
		return errors.Wrap(err, "failed to update loyalty account")
	}
	if result.MatchedCount == 0 {
		return ErrVersionConflict
	}

	account.Version++
	account.MarkCommitted()
	return nil
}

func (m *mongoLoyaltyRepository) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create loyalty indexes")
	}
	return nil
}

func accountFromDocument(doc loyaltyDocument) *domain.LoyaltyAccount {
	history := make([]domain.PointsTransaction, 0, len(doc.PointsHistory))
	for _, e := range doc.PointsHistory {
		tx := domain.PointsTransaction{
			ID:          e.EntryID,
			Type:        domain.TransactionType(e.TransactionType),
			Points:      e.Points,
			Description: e.Description,
			Reference:   e.Reference,
			OccurredAt:  e.Date,
		}
		if tx.ID == "" && !e.LegacyID.IsZero() {
			tx.ID = e.LegacyID.Hex()
		}
		history = append(history, tx)
	}

	account := &domain.LoyaltyAccount{
		ID:            doc.ID.Hex(),
		UserID:        doc.UserID.Hex(),
		TotalPoints:   doc.TotalPoints,
		PointsHistory: history,
		Version:       doc.Version,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if doc.OpeningBalance != nil {
		account.OpeningBalance = *doc.OpeningBalance
	} else {
		// legacy account: whatever the ledger does not explain predates it
		account.OpeningBalance = doc.TotalPoints - account.LedgerBalance()
	}
	return account
}

func entriesToDocuments(entries []domain.PointsTransaction) []pointsEntryDocument {
	docs := make([]pointsEntryDocument, 0, len(entries))
	for _, tx := range entries {
		docs = append(docs, pointsEntryDocument{
			EntryID:         tx.ID,
			TransactionType: string(tx.Type),
			Points:          tx.Points,
			Description:     tx.Description,
			Reference:       tx.Reference,
			Date:            tx.OccurredAt,
		})
	}
	return docs
}
