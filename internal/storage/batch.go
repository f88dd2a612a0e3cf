package storage

// ChunkRows splits rows so that no chunk binds more than maxParams
// placeholders (len(columns) per row). Every chunk holds at least one row.
//
// Backends use it to stay under driver limits (SQLite 32766, Postgres 65535,
// SQL Server 2100 parameters per statement).
func ChunkRows(rows [][]any, columns int, maxParams int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := 1
	if columns > 0 && maxParams > columns {
		per = maxParams / columns
	}

	out := make([][][]any, 0, len(rows)/per+1)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
