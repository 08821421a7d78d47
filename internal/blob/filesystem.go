package blob

import (
	"idotplan/internal/infra/blob/fs"
)

// NewFilesystem stores plan files as plain files under root. Keys are paths
// relative to root, so the dispenser software can open the CSV directly.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
