// Package dataset loads app-store review files and validates them into
// reviews ready for storage. Validation happens once here; everything
// downstream can assume ratings are in range, text is present, and dates
// parsed.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/promptsense/promptsense/internal/models"
)

var validate = validator.New()

// Record is one raw row from a source file, prior to validation.
type Record struct {
	SourceID string
	Text     string `validate:"required"`
	Rating   int    `validate:"gte=1,lte=5"`
	Date     string `validate:"required"`
	Row      int    // 1-based data row number for skip reporting
}

// Skip explains why a row was rejected during load.
type Skip struct {
	Row    int
	Reason string
}

// Loaded is the outcome of loading a source file.
type Loaded struct {
	Format  string
	Reviews []*models.Review
	Skipped []Skip
}

// Date layouts tried in order. App-store exports are wildly inconsistent.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"Jan 2, 2006",
}

// Load reads a review file and validates every row. format may be "csv",
// "json", or empty to infer from the file extension. Invalid and duplicate
// rows are returned in Skipped, not dropped silently.
func Load(path, format string) (*Loaded, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			format = "csv"
		case ".json":
			format = "json"
		default:
			return nil, fmt.Errorf("cannot infer format from %q (use --format csv|json)", filepath.Base(path))
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	switch format {
	case "csv":
		records, err = readCSV(f)
	case "json":
		records, err = readJSON(f)
	default:
		return nil, fmt.Errorf("unknown format %q (use csv or json)", format)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no reviews found in %s", path)
	}

	loaded := validateRecords(records)
	loaded.Format = format
	return loaded, nil
}

// Column aliases accepted in CSV headers, matched case-insensitively.
var csvColumns = map[string][]string{
	"id":     {"id", "review_id"},
	"text":   {"text", "review", "content", "body"},
	"rating": {"rating", "score", "stars"},
	"date":   {"date", "review_date", "reviewed_at", "at"},
}

func readCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		for canonical, aliases := range csvColumns {
			for _, alias := range aliases {
				if name == alias {
					if _, seen := cols[canonical]; !seen {
						cols[canonical] = i
					}
				}
			}
		}
	}
	var missing []string
	for _, required := range []string{"text", "rating", "date"} {
		if _, ok := cols[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv header missing columns: %s", strings.Join(missing, ", "))
	}

	field := func(row []string, canonical string) string {
		i, ok := cols[canonical]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []Record
	rowNum := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		rowNum++

		rec := Record{
			SourceID: field(row, "id"),
			Text:     field(row, "text"),
			Date:     field(row, "date"),
			Row:      rowNum,
		}
		// A bad rating becomes 0, which the range check rejects.
		rec.Rating, _ = strconv.Atoi(field(row, "rating"))
		records = append(records, rec)
	}
	return records, nil
}

type jsonReview struct {
	ID     string      `json:"id"`
	Text   string      `json:"text"`
	Rating json.Number `json:"rating"`
	Date   string      `json:"date"`
}

func readJSON(r io.Reader) ([]Record, error) {
	var rows []jsonReview
	dec := json.NewDecoder(r)
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode json reviews: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec := Record{
			SourceID: row.ID,
			Text:     strings.TrimSpace(row.Text),
			Date:     strings.TrimSpace(row.Date),
			Row:      i + 1,
		}
		rec.Rating, _ = strconv.Atoi(row.Rating.String())
		records = append(records, rec)
	}
	return records, nil
}

// validateRecords applies the row invariants: struct validation (non-empty
// text, rating 1..5), parseable date, and no duplicate text. Duplicates are
// detected on lowercased, whitespace-collapsed text.
func validateRecords(records []Record) *Loaded {
	loaded := &Loaded{}
	seen := map[string]int{} // normalized text -> first row

	for _, rec := range records {
		if err := validate.Struct(rec); err != nil {
			loaded.Skipped = append(loaded.Skipped, Skip{Row: rec.Row, Reason: describeValidation(rec, err)})
			continue
		}

		date, err := parseDate(rec.Date)
		if err != nil {
			loaded.Skipped = append(loaded.Skipped, Skip{Row: rec.Row, Reason: fmt.Sprintf("unparseable date %q", rec.Date)})
			continue
		}

		key := normalizeText(rec.Text)
		if first, dup := seen[key]; dup {
			loaded.Skipped = append(loaded.Skipped, Skip{Row: rec.Row, Reason: fmt.Sprintf("duplicate of row %d", first)})
			continue
		}
		seen[key] = rec.Row

		loaded.Reviews = append(loaded.Reviews, &models.Review{
			SourceID: rec.SourceID,
			Text:     rec.Text,
			Rating:   rec.Rating,
			Date:     date,
		})
	}
	return loaded
}

// describeValidation turns a validator error into a short skip reason.
func describeValidation(rec Record, err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	switch verrs[0].Field() {
	case "Text":
		return "empty text"
	case "Rating":
		return fmt.Sprintf("rating %d out of range 1..5", rec.Rating)
	case "Date":
		return "missing date"
	}
	return verrs[0].Error()
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("no layout matched %q", s)
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
