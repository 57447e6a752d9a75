// Package postgres implements DbFacade against a Postgres case
// database using jackc/pgx/v4's database/sql driver, for the
// multi-user deployment spec.md §9 leaves open. A case database still
// serializes ingests through a single connection and a single
// ADDIMAGE savepoint, same as the embedded backend; true concurrent
// multi-writer ingest coordination is out of scope (see DESIGN.md).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/tskcat/engine/engine"
)

func init() {
	engine.RegisterBackend("postgres", open)
}

func open(ctx context.Context, opt engine.OpenOptions, create bool) (engine.DbFacade, error) {
	if opt.DBName == "" {
		return nil, engine.NewError(engine.KindArgument, "postgres backend requires a dbname")
	}
	host := opt.Host
	if host == "" {
		host = "localhost"
	}
	port := opt.Port
	if port == 0 {
		port = 5432
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, opt.User, opt.Password, opt.DBName)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, engine.Wrap(engine.KindReadIO, "open postgres database", err)
	}
	// A single connection serializes the savepoint discipline the same
	// way the embedded backend does (spec.md §4.2's single ADDIMAGE
	// savepoint assumes one session).
	db.SetMaxOpenConns(1)
	return &Backend{db: db}, nil
}

type Backend struct {
	db *sql.DB

	mu            sync.Mutex
	tx            *sql.Tx
	savepointName string
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (b *Backend) execer() execer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tx != nil {
		return b.tx
	}
	return b.db
}

func (b *Backend) CreateSchema(ctx context.Context, engineVersion string) error {
	var count int
	err := b.db.QueryRowContext(ctx, `SELECT count(*) FROM information_schema.tables WHERE table_name = 'db_info'`).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		var existing int
		if err := b.db.QueryRowContext(ctx, `SELECT count(*) FROM db_info`).Scan(&existing); err == nil && existing > 0 {
			return engine.NewError(engine.KindSchemaMismatch, "case database already exists")
		}
	}
	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx, `INSERT INTO db_info(schema_version, engine_version) VALUES ($1, $2)`, schemaVersion, engineVersion)
	return err
}

func (b *Backend) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := b.db.QueryRowContext(ctx, `SELECT schema_version FROM db_info LIMIT 1`).Scan(&v)
	return v, err
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) SavepointCreate(ctx context.Context, name string) error {
	b.mu.Lock()
	if b.tx != nil {
		b.mu.Unlock()
		return engine.NewError(engine.KindTransaction, "a savepoint is already open").WithContext(b.savepointName)
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	b.tx = tx
	b.savepointName = name
	b.mu.Unlock()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SAVEPOINT %s", name)); err != nil {
		tx.Rollback()
		b.mu.Lock()
		b.tx, b.savepointName = nil, ""
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *Backend) SavepointRelease(ctx context.Context, name string) error {
	b.mu.Lock()
	tx := b.tx
	b.mu.Unlock()
	if tx == nil {
		return engine.NewError(engine.KindTransaction, "no savepoint is open")
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", name)); err != nil {
		return err
	}
	err := tx.Commit()
	b.mu.Lock()
	b.tx, b.savepointName = nil, ""
	b.mu.Unlock()
	return err
}

func (b *Backend) SavepointRevert(ctx context.Context, name string) error {
	b.mu.Lock()
	tx := b.tx
	b.mu.Unlock()
	if tx == nil {
		return engine.NewError(engine.KindTransaction, "no savepoint is open")
	}
	_, rollbackErr := tx.ExecContext(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", name))
	err := tx.Rollback()
	b.mu.Lock()
	b.tx, b.savepointName = nil, ""
	b.mu.Unlock()
	if rollbackErr != nil {
		return rollbackErr
	}
	return err
}

func (b *Backend) InTransaction() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tx != nil
}

func nullID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(sec int64) interface{} {
	if sec == 0 {
		return nil
	}
	return sec
}

func timezoneOrDefault(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}

func (b *Backend) AddObject(ctx context.Context, typ engine.ObjectType, parentID int64) (int64, error) {
	var id int64
	err := b.execer().QueryRowContext(ctx,
		`INSERT INTO objects(parent_id, type) VALUES ($1, $2) RETURNING id`, nullID(parentID), int(typ)).Scan(&id)
	return id, err
}

func (b *Backend) AddImage(ctx context.Context, img *engine.Image) (int64, error) {
	id, err := b.AddObject(ctx, engine.ObjImage, 0)
	if err != nil {
		return 0, err
	}
	_, err = b.execer().ExecContext(ctx,
		`INSERT INTO images(id, type, sector_size, size, hash, device_id, timezone) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, string(img.Type), img.SectorSize, img.Size, nullStr(img.Hash), nullStr(img.DeviceID), timezoneOrDefault(img.Timezone))
	if err != nil {
		return 0, err
	}
	for i, part := range img.Parts {
		if err := b.AddImageName(ctx, id, part, i); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (b *Backend) AddImageName(ctx context.Context, imageID int64, path string, sequence int) error {
	_, err := b.execer().ExecContext(ctx,
		`INSERT INTO image_names(image_id, sequence, path) VALUES ($1, $2, $3)`, imageID, sequence, path)
	return err
}

func (b *Backend) AddVolumeSystem(ctx context.Context, vs *engine.VolumeSystem) (int64, error) {
	id, err := b.AddObject(ctx, engine.ObjVolumeSystem, vs.ImageID)
	if err != nil {
		return 0, err
	}
	_, err = b.execer().ExecContext(ctx,
		`INSERT INTO volume_systems(id, image_id, type, byte_offset, block_size) VALUES ($1, $2, $3, $4, $5)`,
		id, vs.ImageID, string(vs.Type), vs.ByteOffset, vs.BlockSize)
	return id, err
}

func (b *Backend) AddVolume(ctx context.Context, vol *engine.Volume) (int64, error) {
	id, err := b.AddObject(ctx, engine.ObjVolume, vol.VsID)
	if err != nil {
		return 0, err
	}
	_, err = b.execer().ExecContext(ctx,
		`INSERT INTO volumes(id, vs_id, slot_addr, start_block, length_block, description, flags) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, vol.VsID, vol.SlotAddr, vol.StartBlock, vol.LengthBlock, vol.Description, int(vol.Flags))
	return id, err
}

func (b *Backend) AddFileSystem(ctx context.Context, fs *engine.FileSystem) (int64, error) {
	id, err := b.AddObject(ctx, engine.ObjFileSystem, fs.ParentID)
	if err != nil {
		return 0, err
	}
	_, err = b.execer().ExecContext(ctx,
		`INSERT INTO file_systems(id, parent_id, volume_id, image_id, type, byte_offset, block_size, block_count, root_inode, first_inode, last_inode)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, fs.ParentID, nullID(fs.VolumeID), nullID(fs.ImageID), string(fs.Type), fs.ByteOffset, fs.BlockSize, fs.BlockCount, fs.RootInode, fs.FirstInode, fs.LastInode)
	return id, err
}

func (b *Backend) AddFsFile(ctx context.Context, file *engine.File) (int64, error) {
	id, err := b.AddObject(ctx, engine.ObjFile, file.ParentID)
	if err != nil {
		return 0, err
	}
	var fsID interface{}
	if file.HasFs {
		fsID = file.FsID
	}
	_, err = b.execer().ExecContext(ctx,
		`INSERT INTO files(id, parent_id, fs_id, data_source_id, name, attr_type, attr_id, meta_addr, name_flags, meta_flags,
		                    type, size, mtime, atime, ctime, crtime, uid, gid, mode, hash, known, parent_path, has_layout, has_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		id, file.ParentID, fsID, file.DataSourceID, file.Name, file.AttrType, file.AttrID, file.MetaAddr,
		int(file.NameFlags), int(file.MetaFlags), int(file.Type), file.Size,
		nullTime(file.Mtime.Unix()), nullTime(file.Atime.Unix()), nullTime(file.Ctime.Unix()), nullTime(file.Crtime.Unix()),
		file.UID, file.GID, file.Mode, nullStr(file.Hash), int(file.Known), file.ParentPath, file.HasLayout, file.HasPath)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (b *Backend) AddVirtualDir(ctx context.Context, fsID int64, parentDirID int64, name string) (int64, error) {
	return b.AddFsFile(ctx, &engine.File{
		ParentID:   parentDirID,
		FsID:       fsID,
		HasFs:      true,
		Name:       name,
		Type:       engine.FileVirtualDir,
		ParentPath: "/",
		HasPath:    true,
	})
}

func (b *Backend) AddUnallocParent(ctx context.Context, fsID int64) (int64, error) {
	root, err := b.GetFsRootDir(ctx, fsID)
	if err != nil {
		return 0, err
	}
	return b.AddVirtualDir(ctx, fsID, root.ID, "$Unalloc")
}

func (b *Backend) AddUnallocBlockFile(ctx context.Context, parentID int64, fsID int64, hasFs bool, size int64, ranges []engine.LayoutRange) (int64, error) {
	name := "UNALLOC_BLOCKS"
	if len(ranges) > 0 {
		last := ranges[len(ranges)-1]
		name = fmt.Sprintf("Unalloc_%d_%d_%d", parentID, ranges[0].ByteStart, last.ByteStart+last.ByteLen)
	}
	id, err := b.AddFsFile(ctx, &engine.File{
		ParentID:   parentID,
		FsID:       fsID,
		HasFs:      hasFs,
		Name:       name,
		Type:       engine.FileUnallocated,
		Size:       size,
		ParentPath: "/$Unalloc/",
		HasLayout:  true,
		HasPath:    true,
	})
	if err != nil {
		return 0, err
	}
	for _, r := range ranges {
		r.FileID = id
		if err := b.AddLayoutRange(ctx, r); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (b *Backend) AddLayoutRange(ctx context.Context, r engine.LayoutRange) error {
	_, err := b.execer().ExecContext(ctx,
		`INSERT INTO layout_ranges(file_id, sequence, byte_start, byte_len) VALUES ($1, $2, $3, $4)`,
		r.FileID, r.Sequence, r.ByteStart, r.ByteLen)
	return err
}

func (b *Backend) GetFsInfos(ctx context.Context, imageID int64) ([]engine.FsInfo, error) {
	rows, err := b.execer().QueryContext(ctx,
		`SELECT fs.id, fs.parent_id, fs.volume_id, fs.image_id, fs.type, fs.byte_offset, fs.block_size, fs.block_count, fs.root_inode, fs.first_inode, fs.last_inode
		   FROM file_systems fs
		   LEFT JOIN volumes v ON v.id = fs.volume_id
		   LEFT JOIN volume_systems vs ON vs.id = v.vs_id
		  WHERE fs.image_id = $1 OR vs.image_id = $1`, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.FsInfo
	for rows.Next() {
		var fi engine.FsInfo
		var volID, imgID sql.NullInt64
		var typ string
		if err := rows.Scan(&fi.ID, &fi.ParentID, &volID, &imgID, &typ, &fi.ByteOffset, &fi.BlockSize, &fi.BlockCount, &fi.RootInode, &fi.FirstInode, &fi.LastInode); err != nil {
			return nil, err
		}
		fi.Type = engine.FsType(typ)
		fi.VolumeID = volID.Int64
		fi.ImageID = imgID.Int64
		out = append(out, fi)
	}
	return out, rows.Err()
}

func (b *Backend) GetVolumes(ctx context.Context, imageID int64) ([]engine.VolumeRowInfo, error) {
	rows, err := b.execer().QueryContext(ctx,
		`SELECT v.id, v.vs_id, v.slot_addr, v.start_block, v.length_block, v.description, v.flags
		   FROM volumes v
		   JOIN volume_systems vs ON vs.id = v.vs_id
		  WHERE vs.image_id = $1`, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.VolumeRowInfo
	for rows.Next() {
		var vi engine.VolumeRowInfo
		var flags int
		if err := rows.Scan(&vi.ID, &vi.VsID, &vi.SlotAddr, &vi.StartBlock, &vi.LengthBlock, &vi.Description, &flags); err != nil {
			return nil, err
		}
		vi.Flags = engine.VolumeFlag(flags)
		out = append(out, vi)
	}
	return out, rows.Err()
}

func (b *Backend) GetVolumeSystem(ctx context.Context, objectID int64) (engine.VolumeSystemInfo, error) {
	var info engine.VolumeSystemInfo
	var typ string
	err := b.execer().QueryRowContext(ctx,
		`SELECT id, image_id, type, byte_offset, block_size FROM volume_systems WHERE id = $1`, objectID).
		Scan(&info.ID, &info.ImageID, &typ, &info.ByteOffset, &info.BlockSize)
	if err == sql.ErrNoRows {
		return info, engine.ErrNotFound
	}
	info.Type = engine.VsType(typ)
	return info, err
}

func (b *Backend) GetObject(ctx context.Context, objectID int64) (engine.ObjectInfo, error) {
	var info engine.ObjectInfo
	var parentID sql.NullInt64
	var typ int
	err := b.execer().QueryRowContext(ctx, `SELECT id, parent_id, type FROM objects WHERE id = $1`, objectID).
		Scan(&info.ID, &parentID, &typ)
	if err == sql.ErrNoRows {
		return info, engine.ErrNotFound
	}
	if err != nil {
		return info, err
	}
	info.ParentID = parentID.Int64
	info.Type = engine.ObjectType(typ)
	if info.Type == engine.ObjFile {
		if err := b.execer().QueryRowContext(ctx, `SELECT meta_addr FROM files WHERE id = $1`, objectID).Scan(&info.MetaAddr); err != nil && err != sql.ErrNoRows {
			return info, err
		}
	}
	return info, nil
}

func (b *Backend) GetParentImage(ctx context.Context, objectID int64) (int64, error) {
	for {
		obj, err := b.GetObject(ctx, objectID)
		if err != nil {
			return 0, err
		}
		if obj.Type == engine.ObjImage {
			return obj.ID, nil
		}
		if obj.ParentID == 0 {
			return 0, engine.ErrNotFound
		}
		objectID = obj.ParentID
	}
}

func (b *Backend) GetFsRootDir(ctx context.Context, fsID int64) (engine.ObjectInfo, error) {
	var info engine.ObjectInfo
	var parentID sql.NullInt64
	err := b.execer().QueryRowContext(ctx,
		`SELECT id, parent_id, meta_addr FROM files WHERE fs_id = $1 AND meta_addr = (SELECT root_inode FROM file_systems WHERE id = $1)`,
		fsID).Scan(&info.ID, &parentID, &info.MetaAddr)
	if err == sql.ErrNoRows {
		return info, engine.ErrNotFound
	}
	info.ParentID = parentID.Int64
	info.Type = engine.ObjFile
	return info, err
}

func (b *Backend) ResolveParent(ctx context.Context, fsID int64, metaAddr int64) (int64, error) {
	var id int64
	err := b.execer().QueryRowContext(ctx,
		`SELECT id FROM files WHERE fs_id = $1 AND meta_addr = $2 AND attr_type = 0 AND attr_id = 0`, fsID, metaAddr).
		Scan(&id)
	if err == sql.ErrNoRows {
		return 0, engine.ErrNotFound
	}
	return id, err
}
