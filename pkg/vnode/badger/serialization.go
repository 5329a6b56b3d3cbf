package badger

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// inode is the persisted attribute record of one file.
type inode struct {
	ID      uuid.UUID `cbor:"1,keyasint"`
	Size    int64     `cbor:"2,keyasint"`
	Mode    uint32    `cbor:"3,keyasint"`
	MtimeNs int64     `cbor:"4,keyasint"`
}

// encMode is the CBOR encoder configured with Core Deterministic Encoding:
// the same inode always produces identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("badger: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("badger: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeInode(in *inode) ([]byte, error) {
	data, err := encMode.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inode: %w", err)
	}
	return data, nil
}

func decodeInode(data []byte) (*inode, error) {
	var in inode
	if err := decMode.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to decode inode: %w", err)
	}
	return &in, nil
}

func (in *inode) mtime() time.Time {
	return time.Unix(0, in.MtimeNs)
}

func (in *inode) touch() {
	in.MtimeNs = time.Now().UnixNano()
}
