package session

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/modalmesh/groundrag/pkg/chunk"
	"github.com/modalmesh/groundrag/pkg/retrieve"
)

// MongoArchive persists turn history in MongoDB.
type MongoArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoArchive(ctx context.Context, uri, database, collection string) (*MongoArchive, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		collection = "conversation_turns"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoArchive{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

type turnDoc struct {
	SessionID string        `bson:"session_id"`
	TurnID    string        `bson:"turn_id"`
	Query     string        `bson:"query"`
	Answer    string        `bson:"answer"`
	Evidence  []evidenceDoc `bson:"evidence"`
	Citations []citationDoc `bson:"citations"`
	CreatedAt time.Time     `bson:"created_at"`
}

type evidenceDoc struct {
	ContentID     string  `bson:"content_id"`
	DocumentID    string  `bson:"document_id"`
	DocumentTitle string  `bson:"document_title"`
	Text          string  `bson:"content_text"`
	Modality      string  `bson:"modality"`
	Locator       string  `bson:"locator"`
	Score         float64 `bson:"score"`
}

type citationDoc struct {
	ContentID     string `bson:"content_id"`
	DocumentTitle string `bson:"document_title"`
	Locator       string `bson:"locator"`
}

func encodeTurn(sessionID string, turn Turn) turnDoc {
	doc := turnDoc{
		SessionID: sessionID,
		TurnID:    turn.ID,
		Query:     turn.Query,
		Answer:    turn.Answer,
		CreatedAt: turn.CreatedAt,
	}
	for _, item := range turn.Evidence {
		doc.Evidence = append(doc.Evidence, evidenceDoc{
			ContentID:     item.Chunk.ContentID,
			DocumentID:    item.Chunk.DocumentID,
			DocumentTitle: item.Chunk.DocumentTitle,
			Text:          item.Chunk.Text,
			Modality:      string(item.Chunk.Modality),
			Locator:       item.Chunk.Locator.String(),
			Score:         item.Score,
		})
	}
	for _, c := range turn.Citations {
		doc.Citations = append(doc.Citations, citationDoc{
			ContentID:     c.ContentID,
			DocumentTitle: c.DocumentTitle,
			Locator:       c.Locator.String(),
		})
	}
	return doc
}

func decodeTurn(doc turnDoc) Turn {
	turn := Turn{
		ID:        doc.TurnID,
		Query:     doc.Query,
		Answer:    doc.Answer,
		CreatedAt: doc.CreatedAt,
	}
	for _, e := range doc.Evidence {
		turn.Evidence = append(turn.Evidence, retrieve.EvidenceItem{
			Chunk: chunk.Chunk{
				ContentID:     e.ContentID,
				DocumentID:    e.DocumentID,
				DocumentTitle: e.DocumentTitle,
				Text:          e.Text,
				Modality:      chunk.Modality(e.Modality),
				Locator:       chunk.ParseLocator(e.Locator),
			},
			Score: e.Score,
		})
	}
	for _, c := range doc.Citations {
		turn.Citations = append(turn.Citations, retrieve.Citation{
			ContentID:     c.ContentID,
			DocumentTitle: c.DocumentTitle,
			Locator:       chunk.ParseLocator(c.Locator),
		})
	}
	return turn
}

func (a *MongoArchive) SaveTurn(ctx context.Context, sessionID string, turn Turn) error {
	if a == nil || a.collection == nil {
		return nil
	}
	_, err := a.collection.InsertOne(ctx, encodeTurn(sessionID, turn))
	return err
}

func (a *MongoArchive) ListTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	if a == nil || a.collection == nil {
		return nil, nil
	}
	cursor, err := a.collection.Find(ctx, bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var turns []Turn
	for cursor.Next(ctx) {
		var doc turnDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		turns = append(turns, decodeTurn(doc))
	}
	return turns, cursor.Err()
}

const mongoCloseTimeout = 5 * time.Second

// Close disconnects from MongoDB.
func (a *MongoArchive) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return a.client.Disconnect(ctx)
}
