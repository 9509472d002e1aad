package session

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (id,
                      dir,
                      start_time,
                      port,
                      config)
VALUES (?, ?, ?, ?, ?)`

	insertRecordSQL = `
INSERT INTO records (session_id,
                     timestamp,
                     source,
                     velocity,
                     pitch,
                     roll,
                     status,
                     altitude,
                     latitude,
                     longitude,
                     len,
                     rssi,
                     snr,
                     quality)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertEventSQL = `
INSERT INTO events (session_id,
                    timestamp,
                    flag,
                    bit,
                    transition)
VALUES (?, ?, ?, ?, ?)`

	selectRecordsSQL = `
SELECT id,
       timestamp,
       source,
       velocity,
       pitch,
       roll,
       status,
       altitude,
       latitude,
       longitude,
       len,
       rssi,
       snr,
       quality
FROM records
WHERE session_id = ?
ORDER BY id`

	selectEventsSQL = `
SELECT id,
       timestamp,
       bit,
       transition
FROM events
WHERE session_id = ?
ORDER BY id`
)

//go:embed schema.sql
var initSchemaSQL string
