// Package duckdb is a CSV ingestion engine: it sniffs the dialect, header
// and column types of delimited text files and reads them into typed Arrow
// record batches.
//
// # Architecture
//
// A scan moves through four layers:
//
//  1. filehandle opens local, memory-mapped, s3:// or gs:// files and
//     undoes compression and text encodings.
//  2. csvreader tokenizes a buffered stream into parse chunks and
//     materializes them into typed batches on an output queue.
//  3. sniffer drives a reader through its sniffing modes to pick the
//     dialect, header and column types, then switches it to parsing.
//  4. scan splits seekable files into row-aligned byte ranges, parses them
//     concurrently and delivers batches in file order to a sink.
//
// # Quick Start
//
//	cfg := config.NewCSVConfig("events.csv.gz")
//	sc, err := scan.New(cfg)
//	if err != nil {
//	    return err
//	}
//	stats, err := sc.Scan(ctx, func(rec arrow.Record) error {
//	    fmt.Println(rec.NumRows())
//	    return nil
//	})
//
// The csvscan command wraps the same pipeline and writes Arrow IPC,
// Parquet, newline-delimited JSON or PostgreSQL output.
package duckdb
