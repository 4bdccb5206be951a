package repo

// Schema cria as tabelas do vault (aplicado por db.Migrate no boot)
const Schema = `
CREATE TABLE IF NOT EXISTS token_balances (
	token   TEXT NOT NULL,
	owner   TEXT NOT NULL,
	balance NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	version BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (token, owner)
);
CREATE TABLE IF NOT EXISTS token_allowances (
	token   TEXT NOT NULL,
	owner   TEXT NOT NULL,
	spender TEXT NOT NULL,
	amount  NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (amount >= 0),
	PRIMARY KEY (token, owner, spender)
);
CREATE TABLE IF NOT EXISTS token_ledger (
	id         UUID PRIMARY KEY,
	token      TEXT NOT NULL,
	from_addr  TEXT NOT NULL,
	to_addr    TEXT NOT NULL,
	amount     NUMERIC(78,0) NOT NULL,
	memo       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS token_batches (
	key        TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`
