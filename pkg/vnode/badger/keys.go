package badger

import (
	"github.com/google/uuid"
)

// Database Key Namespace Design
// ==============================
//
// Key Namespace Prefixes:
//
// Data Type   Prefix   Key Format        Value Type
// =======================================================
// Path Index  "p:"     p:<cleaned path>  fileUUID (16 bytes)
// Inode       "i:"     i:<uuid>          inode (CBOR)
// Content     "d:"     d:<uuid>          raw bytes
//
// Paths map to UUIDs so an inode and its content survive independently of
// the name used to reach them.

const (
	prefixPath    = "p:"
	prefixInode   = "i:"
	prefixContent = "d:"
)

func keyPath(path string) []byte {
	return []byte(prefixPath + path)
}

func keyInode(id uuid.UUID) []byte {
	return append([]byte(prefixInode), id[:]...)
}

func keyContent(id uuid.UUID) []byte {
	return append([]byte(prefixContent), id[:]...)
}
