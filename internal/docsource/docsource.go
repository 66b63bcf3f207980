// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package docsource is the physical wire-driver collaborator spec.md §6
// leaves as an external interface: it owns the one *mongo.Client this
// process holds, samples collections for the Schema Inference Engine,
// executes a compiled pipeline for the tabular-client collaborator, and
// implements session.CurrentOpProbe so a Session can cancel an in-flight
// execution by its correlation tag.
package docsource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docbridge/docbridge/internal/inference"
	"github.com/docbridge/docbridge/internal/querycontext"
	"github.com/docbridge/docbridge/internal/session"
)

var _ session.CurrentOpProbe = (*Source)(nil)

// Source owns one physical connection and the database it scans.
type Source struct {
	client *mongo.Client
	tracer trace.Tracer
	name   string
	dbName string
}

// Connect dials uri and verifies the connection, mirroring the teacher's
// mongodb source's Initialize/Ping sequence.
func Connect(ctx context.Context, tracer trace.Tracer, name, dbName, uri, appName string) (*Source, error) {
	ctx, span := tracer.Start(ctx, "docbridge.docsource.connect", trace.WithAttributes(attribute.String("docbridge.source", name)))
	defer span.End()

	clientOpts := options.Client().ApplyURI(uri).SetAppName(appName)
	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("unable to create document store client: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("unable to connect successfully: %w", err)
	}
	return &Source{client: client, tracer: tracer, name: name, dbName: dbName}, nil
}

// Close disconnects the underlying client.
func (s *Source) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Database exposes the bound *mongo.Database to same-module callers that
// need it directly (the schema store backends).
func (s *Source) Database() *mongo.Database {
	return s.client.Database(s.dbName)
}

// cursorSource adapts a *mongo.Cursor to inference.DocumentSource.
type cursorSource struct {
	cur *mongo.Cursor
}

func (c *cursorSource) Next(ctx context.Context) (bson.D, bool, error) {
	if !c.cur.Next(ctx) {
		if err := c.cur.Err(); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	var doc bson.D
	if err := c.cur.Decode(&doc); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Sample opens a document sequence over collectionName using method and
// limit (spec.md §6.1 scanMethod). The caller is responsible for closing
// the returned cursor's underlying resources by draining it to
// completion; InferCollection drains it unless reading or visiting a
// document fails, in which case it returns that error early.
func (s *Source) Sample(ctx context.Context, collectionName string, method inference.SampleMethod, limit int64) (inference.DocumentSource, error) {
	coll := s.Database().Collection(collectionName)

	if method == inference.SampleRandom {
		pipeline := mongo.Pipeline{
			{{Key: "$sample", Value: bson.D{{Key: "size", Value: limit}}}},
		}
		cur, err := coll.Aggregate(ctx, pipeline)
		if err != nil {
			return nil, fmt.Errorf("sampling %q randomly: %w", collectionName, err)
		}
		return &cursorSource{cur: cur}, nil
	}

	findOpts := options.Find().SetLimit(limit)
	switch method {
	case inference.SampleIDForward:
		findOpts = findOpts.SetSort(bson.D{{Key: "_id", Value: 1}})
	case inference.SampleIDReverse:
		findOpts = findOpts.SetSort(bson.D{{Key: "_id", Value: -1}})
	case inference.SampleAll:
		// no sort, no implicit ordering guarantee
	}
	cur, err := coll.Find(ctx, bson.D{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("sampling %q: %w", collectionName, err)
	}
	return &cursorSource{cur: cur}, nil
}

// Execute runs qc's compiled pipeline and decodes every result document
// into a generic JSON-shaped value, the same Extended-JSON round-trip the
// teacher's mongodb source uses to hand documents to its own callers.
// correlationTag, when non-empty, is embedded as the aggregation's
// $comment so Kill can find and cancel this exact operation later
// (spec.md §5: "a UUID correlation tag embedded in the pipeline's
// $comment"). A context deadline is translated into the aggregation's
// maxTimeMS so the server itself enforces the same bound the caller does.
func (s *Source) Execute(ctx context.Context, qc *querycontext.QueryContext, correlationTag string) ([]any, error) {
	coll := s.Database().Collection(qc.CollectionName)

	aggOpts := options.Aggregate()
	if correlationTag != "" {
		aggOpts = aggOpts.SetComment(correlationTag)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			aggOpts = aggOpts.SetMaxTime(remaining)
		}
	}

	cur, err := coll.Aggregate(ctx, qc.Pipeline, aggOpts)
	if err != nil {
		return nil, fmt.Errorf("executing pipeline on %q: %w", qc.CollectionName, err)
	}
	defer cur.Close(ctx)

	var rows []bson.D
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decoding pipeline results: %w", err)
	}

	out := make([]any, 0, len(rows))
	for _, row := range rows {
		ext, err := bson.MarshalExtJSON(row, false, false)
		if err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal(ext, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Kill satisfies session.CurrentOpProbe: it looks up the operation
// tagged with correlationTag via the admin database's $currentOp
// aggregation stage (matching on the comment Execute embedded) and kills
// it with killOp, implementing spec.md §5's cancellation path.
func (s *Source) Kill(ctx context.Context, correlationTag string) error {
	admin := s.client.Database("admin")
	pipeline := mongo.Pipeline{
		{{Key: "$currentOp", Value: bson.D{}}},
		{{Key: "$match", Value: bson.D{{Key: "command.comment", Value: correlationTag}}}},
	}
	cur, err := admin.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("looking up operation for correlation tag %q: %w", correlationTag, err)
	}
	defer cur.Close(ctx)

	var ops []struct {
		OpID any `bson:"opid"`
	}
	if err := cur.All(ctx, &ops); err != nil {
		return fmt.Errorf("decoding currentOp results: %w", err)
	}
	for _, op := range ops {
		if err := admin.RunCommand(ctx, bson.D{{Key: "killOp", Value: 1}, {Key: "op", Value: op.OpID}}).Err(); err != nil {
			return fmt.Errorf("killing operation for correlation tag %q: %w", correlationTag, err)
		}
	}
	return nil
}
