package registration

// NotifyChannel is the Postgres LISTEN/NOTIFY channel used as the change feed.
const NotifyChannel = "community_registrations_changes"

// RegistrationsTableDDL defines the SQL for the community_registrations table (Postgres).
const RegistrationsTableDDL = `
-- community_registrations DDL generated from domain/registration entity.

CREATE TABLE IF NOT EXISTS community_registrations (
  id                UUID        PRIMARY KEY,
  wallet_address    TEXT        NOT NULL,
  nft_token_id      TEXT        NOT NULL,
  nft_image_url     TEXT,
  project_name      TEXT        NOT NULL,
  project_image_url TEXT,
  description       TEXT        NOT NULL,
  twitter_url       TEXT,
  discord_url       TEXT,
  website_url       TEXT,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),

  -- 1 wallet = 1 registration（重複は 23505 unique_violation）
  CONSTRAINT uq_community_registrations_wallet UNIQUE (wallet_address),

  CONSTRAINT ck_community_registrations_wallet_format
    CHECK (wallet_address ~ '^r[1-9A-HJ-NP-Za-km-z]{24,34}$'),
  CONSTRAINT ck_community_registrations_project_name
    CHECK (char_length(btrim(project_name)) BETWEEN 1 AND 50),
  CONSTRAINT ck_community_registrations_description
    CHECK (char_length(btrim(description)) BETWEEN 1 AND 280)
);

CREATE INDEX IF NOT EXISTS idx_community_registrations_created_at
  ON community_registrations(created_at DESC);

-- 変更通知（realtime feed）
-- NOTIFY の payload は 8000 bytes 未満なので行そのものは送らず id だけ通知する。
-- 受信側が id で行を読み直す。
CREATE OR REPLACE FUNCTION trg_community_registrations_notify()
RETURNS TRIGGER AS $$
DECLARE
  payload JSONB;
BEGIN
  IF TG_OP = 'DELETE' THEN
    payload := jsonb_build_object('type', 'delete', 'id', OLD.id);
  ELSE
    payload := jsonb_build_object('type', lower(TG_OP), 'id', NEW.id);
  END IF;
  PERFORM pg_notify('community_registrations_changes', payload::text);
  RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_trigger WHERE tgname = 'community_registrations_notify_trg'
  ) THEN
    CREATE TRIGGER community_registrations_notify_trg
    AFTER INSERT OR UPDATE OR DELETE ON community_registrations
    FOR EACH ROW
    EXECUTE FUNCTION trg_community_registrations_notify();
  END IF;
END;
$$;
`
