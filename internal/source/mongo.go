package source

import (
	"context"
	"fmt"
	"time"

	mgo "github.com/juju/mgo/v3"
)

// Collection names in the source database.
const (
	collTextbooks            = "textbooks"
	collPassageSets          = "passagesets"
	collQuestions            = "questions"
	collSystemPrompts        = "systemprompts"
	collSystemPromptVersions = "systempromptversions"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultBatchSize   = 100
)

// Mongo is a Connector backed by a MongoDB database.
type Mongo struct {
	session *mgo.Session
	db      string
	batch   int
}

// MongoOption configures dialing.
type MongoOption func(*Mongo)

// WithBatchSize sets the cursor batch size used for enumeration.
func WithBatchSize(n int) MongoOption {
	return func(m *Mongo) {
		if n > 0 {
			m.batch = n
		}
	}
}

// DialMongo connects to the source database. The database name comes from the
// URI path unless database is non-empty. The returned connector holds one
// session for the whole run; callers close it exactly once.
func DialMongo(uri, database string, opts ...MongoOption) (*Mongo, error) {
	info, err := mgo.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse source uri: %w", err)
	}
	info.Timeout = defaultDialTimeout

	if database == "" {
		database = info.Database
	}
	if database == "" {
		return nil, fmt.Errorf("source uri %q names no database and none was configured", uri)
	}

	session, err := mgo.DialWithInfo(info)
	if err != nil {
		return nil, fmt.Errorf("dial source: %w", err)
	}
	session.SetMode(mgo.Monotonic, true)

	m := &Mongo{session: session, db: database, batch: defaultBatchSize}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Ping verifies the session is still live.
func (m *Mongo) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.session.Ping(); err != nil {
		return fmt.Errorf("ping source: %w", err)
	}
	return nil
}

// Close shuts down the session.
func (m *Mongo) Close() error {
	m.session.Close()
	return nil
}

func (m *Mongo) EachTextbook(ctx context.Context, fn func(TextbookDoc) error) error {
	return each(ctx, m, collTextbooks, fn)
}

func (m *Mongo) EachPassageSet(ctx context.Context, fn func(PassageSetDoc) error) error {
	return each(ctx, m, collPassageSets, fn)
}

func (m *Mongo) EachQuestion(ctx context.Context, fn func(QuestionDoc) error) error {
	return each(ctx, m, collQuestions, fn)
}

func (m *Mongo) EachSystemPrompt(ctx context.Context, fn func(SystemPromptDoc) error) error {
	return each(ctx, m, collSystemPrompts, fn)
}

func (m *Mongo) EachSystemPromptVersion(ctx context.Context, fn func(SystemPromptVersionDoc) error) error {
	return each(ctx, m, collSystemPromptVersions, fn)
}

// each streams every document of a collection through fn, one at a time, in
// _id order so progress is deterministic. The context is consulted between
// documents only; an in-flight document always completes.
func each[D any](ctx context.Context, m *Mongo, coll string, fn func(D) error) error {
	iter := m.session.DB(m.db).C(coll).Find(nil).Sort("_id").Batch(m.batch).Iter()
	for {
		if err := ctx.Err(); err != nil {
			_ = iter.Close()
			return err
		}
		var doc D
		if !iter.Next(&doc) {
			break
		}
		if err := fn(doc); err != nil {
			_ = iter.Close()
			return err
		}
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("read %s: %w", coll, err)
	}
	return nil
}
