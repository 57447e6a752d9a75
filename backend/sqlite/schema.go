package sqlite

// schema creates the single-user embedded case database. Every
// concrete-kind table carries a foreign key back to objects(id)
// (spec.md §3 invariant 1); indexes cover object parents, layout
// ranges, volumes.vs_id and the files fs/meta lookup. There are no
// artifact or attribute tables.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS db_info (
    schema_version INTEGER NOT NULL,
    engine_version TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS objects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    parent_id INTEGER REFERENCES objects(id),
    type INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_objects_parent_id ON objects(parent_id);

CREATE TABLE IF NOT EXISTS images (
    id INTEGER PRIMARY KEY REFERENCES objects(id),
    type TEXT NOT NULL,
    sector_size INTEGER NOT NULL,
    size INTEGER NOT NULL,
    hash TEXT,
    device_id TEXT,
    timezone TEXT NOT NULL DEFAULT 'UTC'
);

CREATE TABLE IF NOT EXISTS image_names (
    image_id INTEGER NOT NULL REFERENCES images(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    path TEXT NOT NULL,
    PRIMARY KEY (image_id, sequence)
);

CREATE TABLE IF NOT EXISTS volume_systems (
    id INTEGER PRIMARY KEY REFERENCES objects(id),
    image_id INTEGER NOT NULL REFERENCES images(id) ON DELETE CASCADE,
    type TEXT NOT NULL,
    byte_offset INTEGER NOT NULL,
    block_size INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS volumes (
    id INTEGER PRIMARY KEY REFERENCES objects(id),
    vs_id INTEGER NOT NULL REFERENCES volume_systems(id) ON DELETE CASCADE,
    slot_addr INTEGER NOT NULL,
    start_block INTEGER NOT NULL,
    length_block INTEGER NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    flags INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_volumes_vs_id ON volumes(vs_id);

CREATE TABLE IF NOT EXISTS file_systems (
    id INTEGER PRIMARY KEY REFERENCES objects(id),
    parent_id INTEGER NOT NULL REFERENCES objects(id),
    volume_id INTEGER,
    image_id INTEGER,
    type TEXT NOT NULL,
    byte_offset INTEGER NOT NULL,
    block_size INTEGER NOT NULL,
    block_count INTEGER NOT NULL,
    root_inode INTEGER NOT NULL,
    first_inode INTEGER NOT NULL,
    last_inode INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_file_systems_parent_id ON file_systems(parent_id);

CREATE TABLE IF NOT EXISTS files (
    id INTEGER PRIMARY KEY REFERENCES objects(id),
    parent_id INTEGER NOT NULL REFERENCES objects(id),
    fs_id INTEGER REFERENCES file_systems(id),
    data_source_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    attr_type INTEGER NOT NULL DEFAULT 0,
    attr_id INTEGER NOT NULL DEFAULT 0,
    meta_addr INTEGER NOT NULL,
    name_flags INTEGER NOT NULL DEFAULT 0,
    meta_flags INTEGER NOT NULL DEFAULT 0,
    type INTEGER NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,
    mtime INTEGER,
    atime INTEGER,
    ctime INTEGER,
    crtime INTEGER,
    uid INTEGER,
    gid INTEGER,
    mode INTEGER,
    hash TEXT,
    known INTEGER NOT NULL DEFAULT 0,
    parent_path TEXT NOT NULL DEFAULT '/',
    has_layout INTEGER NOT NULL DEFAULT 0,
    has_path INTEGER NOT NULL DEFAULT 1,
    UNIQUE (fs_id, meta_addr, attr_type, attr_id)
);
CREATE INDEX IF NOT EXISTS idx_files_parent_id ON files(parent_id);
CREATE INDEX IF NOT EXISTS idx_files_fs_meta ON files(fs_id, meta_addr);

CREATE TABLE IF NOT EXISTS layout_ranges (
    file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    byte_start INTEGER NOT NULL,
    byte_len INTEGER NOT NULL,
    PRIMARY KEY (file_id, sequence)
);
CREATE INDEX IF NOT EXISTS idx_layout_ranges_file_id ON layout_ranges(file_id);
`

const schemaVersion = 1
