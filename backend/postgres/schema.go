package postgres

// schema is the multi-user case database DDL: the same entity graph as
// the embedded backend, expressed with BIGSERIAL/BIGINT rather than
// SQLite's INTEGER PRIMARY KEY rowid aliasing.
const schema = `
CREATE TABLE IF NOT EXISTS db_info (
    schema_version INTEGER NOT NULL,
    engine_version TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS objects (
    id BIGSERIAL PRIMARY KEY,
    parent_id BIGINT REFERENCES objects(id),
    type INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_objects_parent_id ON objects(parent_id);

CREATE TABLE IF NOT EXISTS images (
    id BIGINT PRIMARY KEY REFERENCES objects(id),
    type TEXT NOT NULL,
    sector_size INTEGER NOT NULL,
    size BIGINT NOT NULL,
    hash TEXT,
    device_id TEXT,
    timezone TEXT NOT NULL DEFAULT 'UTC'
);

CREATE TABLE IF NOT EXISTS image_names (
    image_id BIGINT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    path TEXT NOT NULL,
    PRIMARY KEY (image_id, sequence)
);

CREATE TABLE IF NOT EXISTS volume_systems (
    id BIGINT PRIMARY KEY REFERENCES objects(id),
    image_id BIGINT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
    type TEXT NOT NULL,
    byte_offset BIGINT NOT NULL,
    block_size INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS volumes (
    id BIGINT PRIMARY KEY REFERENCES objects(id),
    vs_id BIGINT NOT NULL REFERENCES volume_systems(id) ON DELETE CASCADE,
    slot_addr BIGINT NOT NULL,
    start_block BIGINT NOT NULL,
    length_block BIGINT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    flags INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_volumes_vs_id ON volumes(vs_id);

CREATE TABLE IF NOT EXISTS file_systems (
    id BIGINT PRIMARY KEY REFERENCES objects(id),
    parent_id BIGINT NOT NULL REFERENCES objects(id),
    volume_id BIGINT,
    image_id BIGINT,
    type TEXT NOT NULL,
    byte_offset BIGINT NOT NULL,
    block_size INTEGER NOT NULL,
    block_count BIGINT NOT NULL,
    root_inode BIGINT NOT NULL,
    first_inode BIGINT NOT NULL,
    last_inode BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_file_systems_parent_id ON file_systems(parent_id);

CREATE TABLE IF NOT EXISTS files (
    id BIGINT PRIMARY KEY REFERENCES objects(id),
    parent_id BIGINT NOT NULL REFERENCES objects(id),
    fs_id BIGINT REFERENCES file_systems(id),
    data_source_id BIGINT NOT NULL,
    name TEXT NOT NULL,
    attr_type INTEGER NOT NULL DEFAULT 0,
    attr_id INTEGER NOT NULL DEFAULT 0,
    meta_addr BIGINT NOT NULL,
    name_flags INTEGER NOT NULL DEFAULT 0,
    meta_flags INTEGER NOT NULL DEFAULT 0,
    type INTEGER NOT NULL,
    size BIGINT NOT NULL DEFAULT 0,
    mtime BIGINT,
    atime BIGINT,
    ctime BIGINT,
    crtime BIGINT,
    uid BIGINT,
    gid BIGINT,
    mode INTEGER,
    hash TEXT,
    known INTEGER NOT NULL DEFAULT 0,
    parent_path TEXT NOT NULL DEFAULT '/',
    has_layout BOOLEAN NOT NULL DEFAULT false,
    has_path BOOLEAN NOT NULL DEFAULT true,
    UNIQUE (fs_id, meta_addr, attr_type, attr_id)
);
CREATE INDEX IF NOT EXISTS idx_files_parent_id ON files(parent_id);
CREATE INDEX IF NOT EXISTS idx_files_fs_meta ON files(fs_id, meta_addr);

CREATE TABLE IF NOT EXISTS layout_ranges (
    file_id BIGINT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    byte_start BIGINT NOT NULL,
    byte_len BIGINT NOT NULL,
    PRIMARY KEY (file_id, sequence)
);
CREATE INDEX IF NOT EXISTS idx_layout_ranges_file_id ON layout_ranges(file_id);
`

const schemaVersion = 1
