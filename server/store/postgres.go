package store

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secsync/secsync/messages"
)

// Postgres is a pgxpool-backed Store using serializable transactions for
// clock validation.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already-connected pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the tables secsync needs if they do not already exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS secsync_documents (
	doc_id TEXT PRIMARY KEY,
	active_snapshot_id TEXT
);
CREATE TABLE IF NOT EXISTS secsync_snapshots (
	snapshot_id TEXT PRIMARY KEY,
	doc_id TEXT NOT NULL,
	envelope JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS secsync_updates (
	doc_id TEXT NOT NULL,
	snapshot_id TEXT NOT NULL,
	pub_key TEXT NOT NULL,
	clock BIGINT NOT NULL,
	version BIGINT NOT NULL,
	envelope JSONB NOT NULL,
	PRIMARY KEY (doc_id, snapshot_id, pub_key, clock)
);
CREATE TABLE IF NOT EXISTS secsync_snapshot_versions (
	doc_id TEXT NOT NULL,
	snapshot_id TEXT NOT NULL,
	next_version BIGINT NOT NULL,
	PRIMARY KEY (doc_id, snapshot_id)
);
`
	_, err := p.pool.Exec(ctx, ddl)
	return errors.Wrap(err, "store: migrate")
}

func (p *Postgres) GetDocument(ctx context.Context, docID string, createIfMissing bool) (*DocumentState, error) {
	var activeSnapshotID *string
	err := p.pool.QueryRow(ctx, `SELECT active_snapshot_id FROM secsync_documents WHERE doc_id = $1`, docID).Scan(&activeSnapshotID)
	if errors.Is(err, pgx.ErrNoRows) {
		if !createIfMissing {
			return nil, ErrDocumentNotFound
		}
		_, err := p.pool.Exec(ctx, `INSERT INTO secsync_documents (doc_id, active_snapshot_id) VALUES ($1, NULL) ON CONFLICT DO NOTHING`, docID)
		if err != nil {
			return nil, errors.Wrap(err, "store: create document")
		}
		return &DocumentState{DocID: docID}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: get document")
	}

	state := &DocumentState{DocID: docID}
	if activeSnapshotID == nil {
		return state, nil
	}

	var snapEnvelope []byte
	if err := p.pool.QueryRow(ctx, `SELECT envelope FROM secsync_snapshots WHERE snapshot_id = $1`, *activeSnapshotID).Scan(&snapEnvelope); err != nil {
		return nil, errors.Wrap(err, "store: load active snapshot")
	}
	var snap messages.Snapshot
	if err := json.Unmarshal(snapEnvelope, &snap); err != nil {
		return nil, errors.Wrap(err, "store: decode active snapshot")
	}
	state.Snapshot = &snap

	rows, err := p.pool.Query(ctx, `SELECT envelope FROM secsync_updates WHERE doc_id = $1 AND snapshot_id = $2 ORDER BY version ASC`, docID, *activeSnapshotID)
	if err != nil {
		return nil, errors.Wrap(err, "store: load updates")
	}
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "store: scan update")
		}
		var upd messages.Update
		if err := json.Unmarshal(raw, &upd); err != nil {
			return nil, errors.Wrap(err, "store: decode update")
		}
		state.Updates = append(state.Updates, upd)
	}
	return state, rows.Err()
}

func (p *Postgres) SaveSnapshot(ctx context.Context, docID string, snap *messages.Snapshot) (SnapshotSaveOutcome, error) {
	var outcome SnapshotSaveOutcome
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		var activeSnapshotID *string
		err := tx.QueryRow(ctx, `SELECT active_snapshot_id FROM secsync_documents WHERE doc_id = $1 FOR UPDATE`, docID).Scan(&activeSnapshotID)
		if errors.Is(err, pgx.ErrNoRows) {
			if _, err := tx.Exec(ctx, `INSERT INTO secsync_documents (doc_id, active_snapshot_id) VALUES ($1, NULL)`, docID); err != nil {
				return err
			}
			activeSnapshotID = nil
		} else if err != nil {
			return err
		}

		if activeSnapshotID != nil {
			if snap.PublicData.ParentSnapshotID != *activeSnapshotID {
				current, updates, err := loadSnapshotAndUpdatesTx(ctx, tx, docID, *activeSnapshotID)
				if err != nil {
					return err
				}
				outcome = SnapshotSaveOutcome{Accepted: false, CurrentSnapshot: current, MissingUpdates: updates}
				return nil
			}

			rows, err := tx.Query(ctx, `SELECT DISTINCT pub_key, MAX(clock) FROM secsync_updates WHERE doc_id = $1 AND snapshot_id = $2 GROUP BY pub_key`, docID, *activeSnapshotID)
			if err != nil {
				return err
			}
			serverClocks := map[string]int64{}
			for rows.Next() {
				var pk string
				var c int64
				if err := rows.Scan(&pk, &c); err != nil {
					rows.Close()
					return err
				}
				serverClocks[pk] = c
			}
			rows.Close()

			var missing []messages.Update
			for author, serverClock := range serverClocks {
				claimed, ok := snap.PublicData.ParentSnapshotUpdateClocks[author]
				if !ok || claimed < serverClock {
					authorMissing, err := loadAuthorUpdatesTx(ctx, tx, docID, *activeSnapshotID, author, claimed)
					if err != nil {
						return err
					}
					missing = append(missing, authorMissing...)
				}
			}
			if missing != nil {
				outcome = SnapshotSaveOutcome{Accepted: false, MissingUpdates: missing}
				return nil
			}
		}

		envelope, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO secsync_snapshots (snapshot_id, doc_id, envelope) VALUES ($1, $2, $3)`,
			snap.PublicData.SnapshotID, docID, envelope); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE secsync_documents SET active_snapshot_id = $1 WHERE doc_id = $2`, snap.PublicData.SnapshotID, docID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO secsync_snapshot_versions (doc_id, snapshot_id, next_version) VALUES ($1, $2, 0)`, docID, snap.PublicData.SnapshotID); err != nil {
			return err
		}
		outcome = SnapshotSaveOutcome{Accepted: true}
		return nil
	})
	if err != nil {
		return SnapshotSaveOutcome{}, errors.Wrap(err, "store: save snapshot")
	}
	return outcome, nil
}

func loadSnapshotAndUpdatesTx(ctx context.Context, tx pgx.Tx, docID, snapshotID string) (*messages.Snapshot, []messages.Update, error) {
	var envelope []byte
	if err := tx.QueryRow(ctx, `SELECT envelope FROM secsync_snapshots WHERE snapshot_id = $1`, snapshotID).Scan(&envelope); err != nil {
		return nil, nil, err
	}
	var snap messages.Snapshot
	if err := json.Unmarshal(envelope, &snap); err != nil {
		return nil, nil, err
	}
	updates, err := loadAuthorUpdatesTx(ctx, tx, docID, snapshotID, "", -1)
	return &snap, updates, err
}

// loadAuthorUpdatesTx loads updates for docID/snapshotID with clock >
// fromClockExclusive, optionally restricted to a single author.
func loadAuthorUpdatesTx(ctx context.Context, tx pgx.Tx, docID, snapshotID, author string, fromClockExclusive int64) ([]messages.Update, error) {
	var rows pgx.Rows
	var err error
	if author == "" {
		rows, err = tx.Query(ctx, `SELECT envelope FROM secsync_updates WHERE doc_id = $1 AND snapshot_id = $2 ORDER BY version ASC`, docID, snapshotID)
	} else {
		rows, err = tx.Query(ctx, `SELECT envelope FROM secsync_updates WHERE doc_id = $1 AND snapshot_id = $2 AND pub_key = $3 AND clock > $4 ORDER BY version ASC`, docID, snapshotID, author, fromClockExclusive)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []messages.Update
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var u messages.Update
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveUpdate(ctx context.Context, docID string, upd *messages.Update) (UpdateSaveOutcome, error) {
	var outcome UpdateSaveOutcome
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		var activeSnapshotID *string
		if err := tx.QueryRow(ctx, `SELECT active_snapshot_id FROM secsync_documents WHERE doc_id = $1 FOR UPDATE`, docID).Scan(&activeSnapshotID); err != nil {
			return err
		}
		if activeSnapshotID == nil || upd.PublicData.RefSnapshotID != *activeSnapshotID {
			outcome = UpdateSaveOutcome{Accepted: false}
			return nil
		}

		var storedClock *int64
		if err := tx.QueryRow(ctx, `SELECT clock FROM secsync_updates WHERE doc_id = $1 AND snapshot_id = $2 AND pub_key = $3 ORDER BY clock DESC LIMIT 1`,
			docID, *activeSnapshotID, upd.PublicData.PubKey).Scan(&storedClock); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		expected := int64(0)
		if storedClock != nil {
			expected = *storedClock + 1
		}

		if storedClock != nil && upd.PublicData.Clock == *storedClock {
			var raw []byte
			var version int64
			err := tx.QueryRow(ctx, `SELECT envelope, version FROM secsync_updates WHERE doc_id = $1 AND snapshot_id = $2 AND pub_key = $3 AND clock = $4`,
				docID, *activeSnapshotID, upd.PublicData.PubKey, upd.PublicData.Clock).Scan(&raw, &version)
			if err == nil {
				outcome = UpdateSaveOutcome{Accepted: true, AlreadyApplied: true, Version: version}
				return nil
			}
		}

		if upd.PublicData.Clock != expected {
			outcome = UpdateSaveOutcome{Accepted: false}
			return nil
		}

		var nextVersion int64
		if err := tx.QueryRow(ctx, `SELECT next_version FROM secsync_snapshot_versions WHERE doc_id = $1 AND snapshot_id = $2 FOR UPDATE`,
			docID, *activeSnapshotID).Scan(&nextVersion); err != nil {
			return err
		}
		upd.ServerData = &messages.UpdateServerData{Version: nextVersion}
		envelope, err := json.Marshal(upd)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO secsync_updates (doc_id, snapshot_id, pub_key, clock, version, envelope) VALUES ($1, $2, $3, $4, $5, $6)`,
			docID, *activeSnapshotID, upd.PublicData.PubKey, upd.PublicData.Clock, nextVersion, envelope); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE secsync_snapshot_versions SET next_version = next_version + 1 WHERE doc_id = $1 AND snapshot_id = $2`, docID, *activeSnapshotID); err != nil {
			return err
		}
		outcome = UpdateSaveOutcome{Accepted: true, Version: nextVersion}
		return nil
	})
	if err != nil {
		return UpdateSaveOutcome{}, errors.Wrap(err, "store: save update")
	}
	return outcome, nil
}
