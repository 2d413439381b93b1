package sqlite3

const CreateTokenTable = `
    CREATE TABLE IF NOT EXISTS token (
        label   TEXT PRIMARY KEY,
        pin     TEXT,
        so_pin  TEXT
    )`

const InsertTokenQuery = `
    INSERT OR REPLACE INTO token (label, pin, so_pin)
    VALUES (?, ?, ?)
`

const GetTokenQuery = `
    SELECT pin, so_pin
    FROM token
    WHERE label = ?
`

const CreateCryptoObjectTable = `
    CREATE TABLE IF NOT EXISTS crypto_object (
        token_label  TEXT,
        handle       INTEGER,
        uuid         TEXT,
        attributes   BLOB,
        PRIMARY KEY (token_label, handle)
    )`

const InsertCryptoObjectQuery = `
    INSERT OR REPLACE INTO crypto_object (token_label, handle, uuid, attributes)
    VALUES (?, ?, ?, ?)
`

const CleanCryptoObjectsQuery = `
    DELETE FROM crypto_object WHERE token_label = ?
`

const GetCryptoObjectsQuery = `
    SELECT handle, uuid, attributes
    FROM crypto_object
    WHERE token_label = ?
`

var CreateStmts = []string{CreateTokenTable, CreateCryptoObjectTable}
