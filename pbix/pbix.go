// Package pbix binds the five decode stages (XPress9, ABF, embedded
// SQLite metadata, semantic/column schema, VertiPaq column decode) into
// one entry point: ParsePbixDataModel.
package pbix

import (
	"fmt"

	"github.com/google/uuid"

	"pbixdecode/internal/abf"
	"pbixdecode/internal/columnschema"
	"pbixdecode/internal/config"
	"pbixdecode/internal/metadata"
	"pbixdecode/internal/model"
	"pbixdecode/internal/progress"
	"pbixdecode/internal/sqlitedb"
	"pbixdecode/internal/vertipaq"
	"pbixdecode/internal/xpress9"
)

// pipelineStages is the fixed stage sequence ParsePbixDataModel reports
// through its progress.Tracker.
const pipelineStages = 5

// Codec is the runtime-supplied XPress9 implementation required to
// decompress the DataModel stream; see xpress9.Codec.
type Codec = xpress9.Codec

// DecodeSession identifies one ParsePbixDataModel call; its SessionID is
// included in every error ParsePbixDataModel returns so concurrent decodes
// are distinguishable. Progress messages do not carry it.
type DecodeSession struct {
	SessionID uuid.UUID
	Options   *config.Options
}

// Result is the output of a decode: the normalized semantic model plus a
// table extractor façade for on-demand column data.
type Result struct {
	Session  DecodeSession
	Model    *model.SemanticModel
	Extractor *vertipaq.Extractor
}

// ParsePbixDataModel decompresses dataModel via codec, parses the
// resulting ABF container, reads its embedded SQLite metadata database,
// assembles the semantic and column schemas, and returns a Result ready
// for on-demand table extraction. opts may be nil, in which case
// config.Default() is used. onProgress may be nil (equivalent to
// progress.NoOp); it is reported through a fresh progress.Tracker, one
// stage per pipeline step.
func ParsePbixDataModel(dataModel []byte, codec Codec, opts *config.Options, onProgress progress.Callback) (*Result, error) {
	if opts == nil {
		defaults := config.Default()
		opts = &defaults
	}
	session := DecodeSession{SessionID: uuid.New(), Options: opts}
	tracker := progress.NewTracker(onProgress, pipelineStages)

	tracker.StartStage("decompress", -1)
	abfBytes, err := xpress9.Decompress(dataModel, codec)
	if err != nil {
		return nil, fmt.Errorf("pbix: session %s: decompressing DataModel: %w", session.SessionID, err)
	}
	tracker.CompleteStage("decompress", int64(len(abfBytes)))

	tracker.StartStage("abf", -1)
	index, err := abf.Parse(abfBytes)
	if err != nil {
		return nil, fmt.Errorf("pbix: session %s: parsing ABF container: %w", session.SessionID, err)
	}
	tracker.CompleteStage("abf", int64(len(index.FileNames())))

	sqliteBytes, err := index.GetDataSlice("metadata.sqlitedb")
	if err != nil {
		return nil, fmt.Errorf("pbix: session %s: reading metadata.sqlitedb: %w", session.SessionID, err)
	}

	tracker.StartStage("sqlite", -1)
	db, err := sqlitedb.Open(sqliteBytes)
	if err != nil {
		return nil, fmt.Errorf("pbix: session %s: opening embedded SQLite metadata: %w", session.SessionID, err)
	}
	tracker.CompleteStage("sqlite", int64(len(sqliteBytes)))

	tracker.StartStage("metadata", -1)
	schema, err := metadata.Build(db)
	if err != nil {
		return nil, fmt.Errorf("pbix: session %s: building semantic schema: %w", session.SessionID, err)
	}
	schema.Model.CompatibilityLevel = opts.MinCompatibilityLevel
	tracker.CompleteStage("metadata", int64(len(schema.Model.Tables)))

	tracker.StartStage("columns", -1)
	columns, err := columnschema.Build(db, schema)
	if err != nil {
		return nil, fmt.Errorf("pbix: session %s: building column schema: %w", session.SessionID, err)
	}
	tracker.CompleteStage("columns", int64(len(columns)))

	tableNames := make([]string, 0, len(schema.TableNames))
	for _, name := range schema.TableNames {
		tableNames = append(tableNames, name)
	}
	extractor := vertipaq.New(tableNames, columns, index, opts.CacheSizeLimitBytes, opts.ColdTierThresholdBytes)

	return &Result{
		Session:   session,
		Model:     schema.Model,
		Extractor: extractor,
	}, nil
}
