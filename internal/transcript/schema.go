package transcript

// SchemaSQL contains the transcript schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- MESSAGE TABLE (append-only conversation transcript)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS chat_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS message_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string ASSERT $value IN ["user", "assistant"];
    DEFINE FIELD IF NOT EXISTS user_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS timestamp ON message TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS is_active ON message TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS job_id ON message TYPE option<string>;

    DEFINE INDEX IF NOT EXISTS message_chat ON message FIELDS chat_id;
    DEFINE INDEX IF NOT EXISTS message_owner ON message FIELDS user_id;
    DEFINE INDEX IF NOT EXISTS message_uuid ON message FIELDS message_id UNIQUE;

    -- ==========================================================================
    -- GENERATION JOB TABLE (detached config-generation jobs)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS generation_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS job_id ON generation_job TYPE string;
    DEFINE FIELD IF NOT EXISTS chat_id ON generation_job TYPE string;
    DEFINE FIELD IF NOT EXISTS user_id ON generation_job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON generation_job TYPE string;
    DEFINE FIELD IF NOT EXISTS result_ref ON generation_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS error ON generation_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS started_at ON generation_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON generation_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS job_uuid ON generation_job FIELDS job_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS job_owner ON generation_job FIELDS user_id;

    -- ==========================================================================
    -- PRINCIPAL TURN COUNTER (atomic per-principal sequence)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS principal_turns SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS user_id ON principal_turns TYPE string;
    DEFINE FIELD IF NOT EXISTS count ON principal_turns TYPE int DEFAULT 0;
`
