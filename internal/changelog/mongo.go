package changelog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLog opens MongoDB change streams on collections of one database.
// Before images need changeStreamPreAndPostImages enabled on the collection
// (see EnablePreImages); without them updates carry no Before and deletes
// carry only the document key.
type MongoLog struct {
	db     *mongo.Database
	logger *slog.Logger
}

var _ Log = (*MongoLog)(nil)

// NewMongoLog creates a change log over db.
func NewMongoLog(db *mongo.Database, logger *slog.Logger) *MongoLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoLog{
		db:     db,
		logger: logger.With("component", "changelog"),
	}
}

// codeNamespaceNotFound is returned by collMod on a missing collection.
const codeNamespaceNotFound = 26

// EnablePreImages turns on changeStreamPreAndPostImages for each collection,
// creating collections that do not exist yet with it enabled.
func (l *MongoLog) EnablePreImages(ctx context.Context, collections []string) error {
	enabled := bson.M{"enabled": true}
	for _, coll := range collections {
		err := l.db.RunCommand(ctx, bson.D{
			{Key: "collMod", Value: coll},
			{Key: "changeStreamPreAndPostImages", Value: enabled},
		}).Err()

		var se mongo.ServerError
		if errors.As(err, &se) && se.HasErrorCode(codeNamespaceNotFound) {
			err = l.db.RunCommand(ctx, bson.D{
				{Key: "create", Value: coll},
				{Key: "changeStreamPreAndPostImages", Value: enabled},
			}).Err()
		}
		if err != nil {
			return fmt.Errorf("failed to enable pre-images on %s: %w", coll, err)
		}
		l.logger.Debug("pre-images enabled", "collection", coll)
	}
	return nil
}

// Open implements Log.
func (l *MongoLog) Open(ctx context.Context, collection string, cursor []byte) (Stream, error) {
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	if len(cursor) > 0 {
		opts.SetResumeAfter(bson.Raw(cursor))
	}

	cs, err := l.db.Collection(collection).Watch(ctx, watchPipeline(), opts)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to open change stream on %s: %w", collection, err))
	}

	l.logger.Debug("change stream opened", "collection", collection, "resumed", len(cursor) > 0)
	return &mongoStream{cs: cs, collection: collection, logger: l.logger}, nil
}

func watchPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType": bson.M{"$in": bson.A{
				string(OperationInsert),
				string(OperationUpdate),
				string(OperationReplace),
				string(OperationDelete),
			}},
		}}},
	}
}

type rawChange struct {
	OperationType            string `bson:"operationType"`
	FullDocument             bson.M `bson:"fullDocument"`
	FullDocumentBeforeChange bson.M `bson:"fullDocumentBeforeChange"`
	DocumentKey              bson.M `bson:"documentKey"`
}

type mongoStream struct {
	cs         *mongo.ChangeStream
	collection string
	logger     *slog.Logger
}

func (s *mongoStream) Next(ctx context.Context) (*ChangeEvent, error) {
	for s.cs.Next(ctx) {
		var raw rawChange
		if err := s.cs.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode change event: %w", err)
		}

		op := Operation(raw.OperationType)
		if !op.IsValid() {
			s.logger.Debug("skipping change event", "collection", s.collection, "operation", raw.OperationType)
			continue
		}

		evt := &ChangeEvent{
			Collection: s.collection,
			Operation:  op,
			Cursor:     append([]byte(nil), s.cs.ResumeToken()...),
		}
		if raw.FullDocumentBeforeChange != nil {
			evt.Before = Document(raw.FullDocumentBeforeChange)
		} else if op == OperationDelete && raw.DocumentKey != nil {
			evt.Before = Document(raw.DocumentKey)
		}
		if raw.FullDocument != nil && op != OperationDelete {
			evt.After = Document(raw.FullDocument)
		}
		return evt, nil
	}

	if err := s.cs.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, classify(fmt.Errorf("change stream error: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *mongoStream) Close(ctx context.Context) error {
	return s.cs.Close(ctx)
}

// classify marks cursor errors with ErrCursorInvalid.
func classify(err error) error {
	if IsCursorInvalid(err) && !errors.Is(err, ErrCursorInvalid) {
		return fmt.Errorf("%w: %w", ErrCursorInvalid, err)
	}
	return err
}
