package storage

// dialect holds the statements that differ between drivers.
type dialect struct {
	name       string
	migrations []string
	// jamColumns lists the column names of an existing jams table.
	jamColumns string
	// userIDType is the column type for user id columns added to tables
	// created before they existed.
	userIDType string
	upsertPoll string
	markFired  string
}

var sqliteDialect = dialect{
	name: "sqlite",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS jams (
			poll_id       TEXT PRIMARY KEY,
			chat_id       INTEGER NOT NULL,
			message_id    INTEGER NOT NULL,
			jam_date      TEXT NOT NULL,
			poll_data     TEXT NOT NULL,
			drums         TEXT,
			bass          TEXT,
			leads         TEXT,
			fx            TEXT,
			drums_user_id INTEGER,
			bass_user_id  INTEGER,
			leads_user_id INTEGER,
			fx_user_id    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jams_jam_date ON jams(jam_date)`,
		`CREATE TABLE IF NOT EXISTS schedule_state (
			name       TEXT PRIMARY KEY,
			last_fired TEXT NOT NULL
		)`,
	},
	jamColumns: `SELECT name FROM pragma_table_info('jams')`,
	userIDType: "INTEGER",
	upsertPoll: `INSERT INTO jams (poll_id, chat_id, message_id, jam_date, poll_data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(poll_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			message_id = excluded.message_id,
			jam_date = excluded.jam_date,
			poll_data = excluded.poll_data`,
	markFired: `INSERT INTO schedule_state (name, last_fired) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET last_fired = excluded.last_fired`,
}

var mysqlDialect = dialect{
	name: "mysql",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS jams (
			poll_id       VARCHAR(64) NOT NULL PRIMARY KEY,
			chat_id       BIGINT NOT NULL,
			message_id    BIGINT NOT NULL,
			jam_date      DATETIME NOT NULL,
			poll_data     TEXT NOT NULL,
			drums         VARCHAR(255) NULL,
			bass          VARCHAR(255) NULL,
			leads         VARCHAR(255) NULL,
			fx            VARCHAR(255) NULL,
			drums_user_id BIGINT NULL,
			bass_user_id  BIGINT NULL,
			leads_user_id BIGINT NULL,
			fx_user_id    BIGINT NULL,
			INDEX idx_jams_jam_date (jam_date)
		) DEFAULT CHARSET = utf8mb4`,
		`CREATE TABLE IF NOT EXISTS schedule_state (
			name       VARCHAR(128) NOT NULL PRIMARY KEY,
			last_fired DATETIME NOT NULL
		) DEFAULT CHARSET = utf8mb4`,
	},
	jamColumns: `SELECT COLUMN_NAME FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = 'jams'`,
	userIDType: "BIGINT NULL",
	upsertPoll: `INSERT INTO jams (poll_id, chat_id, message_id, jam_date, poll_data)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			chat_id = VALUES(chat_id),
			message_id = VALUES(message_id),
			jam_date = VALUES(jam_date),
			poll_data = VALUES(poll_data)`,
	markFired: `INSERT INTO schedule_state (name, last_fired) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE last_fired = VALUES(last_fired)`,
}
