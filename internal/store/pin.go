package store

import "time"

// SetPin pins or unpins a chat. Pins survive catalog replacement.
func (db *DB) SetPin(jid string, pinned bool) error {
	if !pinned {
		_, err := db.Exec(`DELETE FROM pins WHERE jid = ?`, jid)
		return err
	}
	_, err := db.Exec(`INSERT INTO pins (jid, pinned_at) VALUES (?, ?) ON CONFLICT(jid) DO NOTHING`,
		jid, time.Now().UnixMilli())
	return err
}

// Pins returns the set of pinned chat JIDs.
func (db *DB) Pins() (map[string]bool, error) {
	rows, err := db.Query(`SELECT jid FROM pins`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	pins := map[string]bool{}
	for rows.Next() {
		var jid string
		if err := rows.Scan(&jid); err != nil {
			return nil, err
		}
		pins[jid] = true
	}
	return pins, rows.Err()
}
