// Package ingest builds the archive ingestion pipeline: per data source a
// remote file, an extraction and a spatial indexing step chained by
// immediate notifications.
//
// ARCHITECTURE:
//
//	remote_file[archive] ──(changed, immediate)──> extract[dir]:run
//	        │                                           │
//	        └──(changed, delayed)──> service[render]:restart
//	                                                    │
//	extract[dir] ──(ran, immediate)──> shape_index[dir]:run
//
// extract and shape_index are declared with action nothing: they only run
// when notified. A source whose URL has no known archive suffix gets no
// extract or shape_index resource.
//
// CRITICAL PATTERNS:
//   - remote_file is declared IgnoreFailure. A failed fetch becomes a
//     warning, the source counts as unchanged and its chain stays quiet.
//   - extract always reports a change when it ran, so indexing follows
//     every extraction.
//   - Extraction and indexing failures abort the pass.
package ingest
