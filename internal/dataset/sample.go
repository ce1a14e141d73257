package dataset

// Sample returns the fixed four-row animals table.
func Sample() Dataset {
	return Dataset{Columns: []Column{
		{Name: "animals", Kind: KindString, Values: []any{"falcon", "dog", "spider", "fish"}},
		{Name: "num_legs", Kind: KindInt64, Values: []any{int64(2), int64(4), int64(8), int64(0)}},
		{Name: "num_wings", Kind: KindInt64, Values: []any{int64(2), int64(0), int64(0), int64(0)}},
		{Name: "num_specimen_seen", Kind: KindInt64, Values: []any{int64(10), int64(2), int64(1), int64(8)}},
	}}
}
