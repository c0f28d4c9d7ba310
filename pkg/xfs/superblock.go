package xfs

import "github.com/google/uuid"

// UUIDValue returns the primary superblock's user-visible filesystem UUID
// (sb_uuid) as a uuid.UUID, for callers (fsstat) that want to print or
// compare it rather than handle the raw 16 on-disk bytes.
func (sb *SuperBlock) UUIDValue() uuid.UUID {
	return uuid.UUID(sb.UUID)
}

// MetaUUID returns the v5 metadata UUID (sb_meta_uuid), distinct from the
// user-visible UUID once the metauuid feature is in use. It's the zero
// UUID on a v4 image, which carries no SuperBlockV5Ext.
func (ext *SuperBlockV5Ext) MetaUUID() uuid.UUID {
	return uuid.UUID(ext.UUID2)
}

// SuperBlockUUID returns the mounted filesystem's user-visible UUID.
func (fs *FS) SuperBlockUUID() uuid.UUID {
	return fs.sb.UUIDValue()
}
