// Package audit writes an audit trail of dispatched batch members into a
// MongoDB collection.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	eventbus "github.com/hanpama/odatabatch/internal/eventbus"
	events "github.com/hanpama/odatabatch/internal/events"
	reqid "github.com/hanpama/odatabatch/internal/reqid"
)

// Document kinds.
const (
	KindDispatch  = "dispatch"
	KindChangeSet = "changeset"
)

// Collection is the subset of *mongo.Collection the recorder writes through.
type Collection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Options configures a Recorder.
type Options struct {
	// Timeout bounds each insert.
	Timeout time.Duration
	// Now stamps inserted_at.
	Now func() time.Time
}

// Option mutates Options.
type Option func(*Options)

func WithTimeout(d time.Duration) Option     { return func(o *Options) { o.Timeout = d } }
func WithClock(now func() time.Time) Option { return func(o *Options) { o.Now = now } }

// Recorder inserts one document per finished dispatch and change set.
type Recorder struct {
	coll   Collection
	logger zerolog.Logger
	opt    Options
}

// NewRecorder returns a Recorder writing into coll. Insert failures are
// logged to logger and otherwise ignored.
func NewRecorder(coll Collection, logger zerolog.Logger, opts ...Option) *Recorder {
	o := Options{Timeout: 2 * time.Second, Now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return &Recorder{coll: coll, logger: logger, opt: o}
}

// Register subscribes r to the global event bus.
func (r *Recorder) Register() (unsubscribe func()) {
	u1 := eventbus.Subscribe(func(ctx context.Context, e events.DispatchFinish) {
		r.insert(ctx, bson.D{
			{Key: "request_id", Value: ridOf(ctx)},
			{Key: "kind", Value: KindDispatch},
			{Key: "operation", Value: e.Operation},
			{Key: "member", Value: e.Member},
			{Key: "method", Value: e.Method},
			{Key: "path", Value: e.Path},
			{Key: "content_id", Value: e.ContentID},
			{Key: "status", Value: e.Status},
			{Key: "inserted_at", Value: r.opt.Now()},
		})
	})
	u2 := eventbus.Subscribe(func(ctx context.Context, e events.ChangeSetFinish) {
		doc := bson.D{
			{Key: "request_id", Value: ridOf(ctx)},
			{Key: "kind", Value: KindChangeSet},
			{Key: "operation", Value: e.Operation},
			{Key: "size", Value: e.Size},
			{Key: "dispatched", Value: e.Dispatched},
			{Key: "state", Value: e.State.String()},
		}
		if e.Err != nil {
			doc = append(doc, bson.E{Key: "error", Value: e.Err.Error()})
		}
		r.insert(ctx, append(doc, bson.E{Key: "inserted_at", Value: r.opt.Now()}))
	})
	return func() {
		u1()
		u2()
	}
}

func (r *Recorder) insert(ctx context.Context, doc bson.D) {
	// The trail is written even when the batch request was cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opt.Timeout)
	defer cancel()
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		r.logger.Warn().Int64("request_id", ridOf(ctx)).Msgf("Failed to insert audit log %s", err.Error())
	}
}

func ridOf(ctx context.Context) int64 {
	rid, _ := reqid.FromContext(ctx)
	return rid
}

// Connect opens a MongoDB client for url and returns the named collection
// together with a function disconnecting the client.
func Connect(ctx context.Context, url, database, collection string) (*mongo.Collection, func(context.Context) error, error) {
	client, err := mongo.NewClient(options.Client().ApplyURI(url))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return client.Database(database).Collection(collection), client.Disconnect, nil
}
