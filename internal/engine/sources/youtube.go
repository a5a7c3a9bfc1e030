// Package sources holds the YouTube collaborators of the ingestion pipeline.
//
// The implementation is split across files by responsibility:
//
//	duration.go           compact ISO-8601 duration codec
//	youtube_types.go      intermediate records shared with the ingest package
//	youtube_api.go        Data API v3 client: channel/playlist lookup, item pages, detail batches
//	youtube_innertube.go  player response types, constants, low-level HTTP primitives
//	youtube_transcript.go caption track selection and timedtext retrieval
package sources
