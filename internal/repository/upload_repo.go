package repository

import (
	"database/sql"
	"time"
)

// Upload records one ingested file so a re-upload is detected by hash.
type Upload struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	FileHash    string    `json:"file_hash"`
	RecordCount int       `json:"record_count"`
	IngestedAt  time.Time `json:"ingested_at"`
}

type UploadRepo struct {
	db *sql.DB
}

func NewUploadRepo(db *sql.DB) *UploadRepo {
	return &UploadRepo{db: db}
}

// ExistsByHash checks whether a file with the given hash has already been
// ingested.
func (r *UploadRepo) ExistsByHash(hash string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM uploads WHERE file_hash = ?", hash,
	).Scan(&count)
	return count > 0, err
}

func (r *UploadRepo) Insert(u *Upload) error {
	_, err := r.db.Exec(
		`INSERT INTO uploads (id, kind, file_hash, record_count, ingested_at)
		VALUES (?,?,?,?,?)`,
		u.ID, u.Kind, u.FileHash, u.RecordCount, u.IngestedAt.Format(time.RFC3339),
	)
	return err
}
