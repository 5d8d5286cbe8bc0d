package cerr

import (
	"errors"
	"fmt"

	"github.com/kazz187/trackline/pkg/storage"
)

type storageOp string

const (
	storageRead   storageOp = "read"
	storageWrite  storageOp = "save"
	storageDelete storageOp = "remove"
)

// wrapStorage classifies a local storage failure on target. A missing key is
// NotFound for reads and deletes; everything else is Internal, with the path
// kept in the underlying error only.
func wrapStorage(op storageOp, target string, err error) error {
	if op != storageWrite && errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, fmt.Sprintf("no saved %s", target), err)
	}
	return NewError(Internal, fmt.Sprintf("could not %s the %s on disk", op, target), err)
}

func WrapStorageReadError(target string, err error) error {
	return wrapStorage(storageRead, target, err)
}

func WrapStorageWriteError(target string, err error) error {
	return wrapStorage(storageWrite, target, err)
}

func WrapStorageDeleteError(target string, err error) error {
	return wrapStorage(storageDelete, target, err)
}
