package testhelpers

// FixtureSchema creates the tables integration tests query. It is
// idempotent so it can run against a reused container.
const FixtureSchema = `
CREATE TABLE IF NOT EXISTS orchestral_sections (
    id   bigserial PRIMARY KEY,
    name text NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS instruments (
    id         bigserial PRIMARY KEY,
    section_id bigint REFERENCES orchestral_sections (id),
    name       text NOT NULL UNIQUE,
    tags       text[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS profiles (
    id       uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id  text NOT NULL,
    username text NOT NULL,
    price    numeric(10, 2)
);

GRANT SELECT ON orchestral_sections, instruments TO anon, authenticated;
GRANT SELECT, INSERT, UPDATE, DELETE ON orchestral_sections, instruments, profiles TO authenticated;
GRANT USAGE ON ALL SEQUENCES IN SCHEMA public TO authenticated;
GRANT ALL ON orchestral_sections, instruments, profiles TO service_role;
GRANT ALL ON ALL SEQUENCES IN SCHEMA public TO service_role;

TRUNCATE profiles, instruments, orchestral_sections RESTART IDENTITY;

INSERT INTO orchestral_sections (name) VALUES ('strings'), ('woodwinds'), ('percussion');
INSERT INTO instruments (section_id, name, tags) VALUES
    (1, 'violin', '{bowed,high}'),
    (1, 'cello', '{bowed,low}'),
    (2, 'flute', '{high}');
`
