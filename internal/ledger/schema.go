package ledger

// SchemaSQL defines the export_run table. One record per run, keyed by run ID.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS export_run SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS run_id ON export_run TYPE string;
    DEFINE FIELD IF NOT EXISTS mode ON export_run TYPE string ASSERT $value IN ["full", "incremental"];
    DEFINE FIELD IF NOT EXISTS status ON export_run TYPE string ASSERT $value IN ["succeeded", "failed"];
    DEFINE FIELD IF NOT EXISTS started_at ON export_run TYPE datetime;
    DEFINE FIELD IF NOT EXISTS completed_at ON export_run TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS window_start ON export_run TYPE int;
    DEFINE FIELD IF NOT EXISTS watermark ON export_run TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS kept_rows ON export_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS fresh_rows ON export_run TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS output_key ON export_run TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS previous_export ON export_run TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS query_id ON export_run TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS error ON export_run TYPE option<string>;

    DEFINE INDEX IF NOT EXISTS export_run_started ON export_run FIELDS started_at;
    DEFINE INDEX IF NOT EXISTS export_run_output ON export_run FIELDS output_key;
`
