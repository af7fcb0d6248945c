package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/shopspring/decimal"

	"nse-history/internal/model"
)

const writeChunk = 1024

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Codec maps a configured compression name to a parquet codec.
func Codec(name string) (compress.Codec, error) {
	switch strings.ToLower(name) {
	case "", "zstd":
		return &parquet.Zstd, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "none":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", name)
	}
}

func schemaFor(extra []string) *parquet.Schema {
	group := parquet.Group{
		model.ColumnDate:   parquet.Optional(parquet.Date()),
		model.ColumnOpen:   parquet.Leaf(parquet.DoubleType),
		model.ColumnHigh:   parquet.Leaf(parquet.DoubleType),
		model.ColumnLow:    parquet.Leaf(parquet.DoubleType),
		model.ColumnClose:  parquet.Leaf(parquet.DoubleType),
		model.ColumnVolume: parquet.Int(64),
		model.ColumnSymbol: parquet.String(),
	}
	for _, name := range extra {
		group[name] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
	}
	return parquet.NewSchema("prices", group)
}

// writeParquet encodes ds to w. Columns with no value for a record are written as null.
func writeParquet(w io.Writer, ds *Dataset, codec compress.Codec, metadata map[string]string) error {
	schema := schemaFor(ds.Extra)
	options := []parquet.WriterOption{schema, parquet.Compression(codec)}
	for k, v := range metadata {
		options = append(options, parquet.KeyValueMetadata(k, v))
	}

	writer := parquet.NewWriter(w, options...)
	columns := schema.Columns()

	batch := make([]parquet.Row, 0, writeChunk)
	for _, rec := range ds.Records {
		batch = append(batch, encodeRecord(rec, columns))
		if len(batch) == writeChunk {
			if _, err := writer.WriteRows(batch); err != nil {
				return fmt.Errorf("write rows: %w", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if _, err := writer.WriteRows(batch); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func encodeRecord(rec Record, columns [][]string) parquet.Row {
	row := make(parquet.Row, len(columns))
	for i, path := range columns {
		var v parquet.Value
		switch name := path[0]; name {
		case model.ColumnDate:
			if rec.HasDate {
				v = parquet.Int32Value(daysSinceEpoch(rec.Date)).Level(0, 1, i)
			} else {
				v = parquet.NullValue().Level(0, 0, i)
			}
		case model.ColumnOpen:
			v = parquet.DoubleValue(rec.Open.InexactFloat64()).Level(0, 0, i)
		case model.ColumnHigh:
			v = parquet.DoubleValue(rec.High.InexactFloat64()).Level(0, 0, i)
		case model.ColumnLow:
			v = parquet.DoubleValue(rec.Low.InexactFloat64()).Level(0, 0, i)
		case model.ColumnClose:
			v = parquet.DoubleValue(rec.Close.InexactFloat64()).Level(0, 0, i)
		case model.ColumnVolume:
			v = parquet.Int64Value(rec.Volume).Level(0, 0, i)
		case model.ColumnSymbol:
			v = parquet.ByteArrayValue([]byte(rec.Symbol)).Level(0, 0, i)
		default:
			if x, ok := rec.Extra[name]; ok {
				v = parquet.DoubleValue(x.InexactFloat64()).Level(0, 1, i)
			} else {
				v = parquet.NullValue().Level(0, 0, i)
			}
		}
		row[i] = v
	}
	return row
}

// Read loads an artifact back into a Dataset, in file order.
func Read(path string) (*Dataset, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	metadata := make(map[string]string)
	for _, kv := range pf.Metadata().KeyValueMetadata {
		metadata[kv.Key] = kv.Value
	}

	columns := pf.Schema().Columns()
	names := make([]string, len(columns))
	ds := &Dataset{Records: make([]Record, 0, pf.NumRows())}
	for i, path := range columns {
		names[i] = path[0]
		if !isCore(path[0]) {
			ds.Extra = append(ds.Extra, path[0])
		}
	}

	reader := parquet.NewReader(pf)
	defer reader.Close()

	buf := make([]parquet.Row, 256)
	for {
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			ds.Records = append(ds.Records, decodeRow(row, names))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return ds, metadata, nil
}

// daysSinceEpoch floors toward negative infinity so pre-1970 dates land on
// the right day.
func daysSinceEpoch(t time.Time) int32 {
	secs := t.Unix()
	days := secs / 86400
	if secs%86400 < 0 {
		days--
	}
	return int32(days)
}

func decodeRow(row parquet.Row, names []string) Record {
	var rec Record
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(names) || v.IsNull() {
			continue
		}
		switch name := names[col]; name {
		case model.ColumnDate:
			rec.Date = epoch.AddDate(0, 0, int(v.Int32()))
			rec.HasDate = true
		case model.ColumnOpen:
			rec.Open = decimal.NewFromFloat(v.Double())
		case model.ColumnHigh:
			rec.High = decimal.NewFromFloat(v.Double())
		case model.ColumnLow:
			rec.Low = decimal.NewFromFloat(v.Double())
		case model.ColumnClose:
			rec.Close = decimal.NewFromFloat(v.Double())
		case model.ColumnVolume:
			rec.Volume = v.Int64()
		case model.ColumnSymbol:
			rec.Symbol = string(v.ByteArray())
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]decimal.Decimal)
			}
			rec.Extra[name] = decimal.NewFromFloat(v.Double())
		}
	}
	return rec
}

func isCore(name string) bool {
	for _, c := range CoreColumns {
		if c == name {
			return true
		}
	}
	return false
}
