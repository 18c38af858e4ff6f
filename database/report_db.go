package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// CompletenessRow reports how many active evidence photos an installation
// holds for one required image type versus the configured minimum.
type CompletenessRow struct {
	InstallationID   uint   `json:"installation_id"`
	InstallationName string `json:"installation_name"`
	TypeID           uint   `json:"type_id"`
	TypeName         string `json:"type_name"`
	MinimumCount     int    `json:"minimum_count"`
	ActiveCount      int    `json:"active_count"`
	UploadedCount    int    `json:"uploaded_count"`
}

// CompletenessFilter narrows the report; zero values mean "no filter".
type CompletenessFilter struct {
	InstallationID uint
	Region         string
	OnlyIncomplete bool
}

// GetCompletenessReport joins installations against required image types and
// counts active/uploaded local images per pair. Uses the raw sql.DB since the
// cross join plus conditional aggregation doesn't map cleanly onto GORM.
func GetCompletenessReport(db *sql.DB, filter CompletenessFilter) ([]CompletenessRow, error) {
	builder := psql.Select(
		"i.id",
		"i.name",
		"t.id",
		"t.name",
		"t.minimum_count",
		"COUNT(CASE WHEN li.is_active = 1 THEN 1 END)",
		"COUNT(CASE WHEN li.is_active = 1 AND li.is_uploaded = 1 THEN 1 END)",
	).
		From("installations i").
		CrossJoin("required_image_types t").
		LeftJoin("local_images li ON li.installation_id = i.id AND li.required_image_type_id = t.id").
		GroupBy("i.id", "i.name", "t.id", "t.name", "t.minimum_count").
		OrderBy("i.id", "t.id")

	if filter.InstallationID != 0 {
		builder = builder.Where(sq.Eq{"i.id": filter.InstallationID})
	}
	if filter.Region != "" {
		builder = builder.Where(sq.Eq{"i.region": filter.Region})
	}
	if filter.OnlyIncomplete {
		builder = builder.Having("COUNT(CASE WHEN li.is_active = 1 THEN 1 END) < t.minimum_count")
	}

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for completeness report: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run completeness report: %w", err)
	}
	defer rows.Close()

	var report []CompletenessRow
	for rows.Next() {
		var r CompletenessRow
		if err := rows.Scan(&r.InstallationID, &r.InstallationName, &r.TypeID, &r.TypeName, &r.MinimumCount, &r.ActiveCount, &r.UploadedCount); err != nil {
			return nil, fmt.Errorf("failed to scan completeness row: %w", err)
		}
		report = append(report, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completeness report rows: %w", err)
	}
	return report, nil
}
