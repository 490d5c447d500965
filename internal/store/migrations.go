package store

const schema = `
CREATE TABLE IF NOT EXISTS observations (
    keyword    TEXT NOT NULL,
    country    TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    date       TEXT NOT NULL,
    rank       INTEGER,
    score      REAL,
    traffic    REAL,
    PRIMARY KEY (keyword, country, subject_id, date)
);

CREATE INDEX IF NOT EXISTS idx_observations_series
    ON observations(keyword, country, subject_id, date DESC);
CREATE INDEX IF NOT EXISTS idx_observations_country ON observations(country);
CREATE INDEX IF NOT EXISTS idx_observations_date ON observations(date);

CREATE TABLE IF NOT EXISTS subjects (
    id       TEXT PRIMARY KEY,
    name     TEXT NOT NULL DEFAULT '',
    platform TEXT NOT NULL DEFAULT ''
);
`
