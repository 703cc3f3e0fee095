package sdfs

import "github.com/pkg/errors"

var (
	ErrNotMounted  = errors.New("sdfs: not mounted")
	ErrMounted     = errors.New("sdfs: already mounted")
	ErrConfig      = errors.New("sdfs: invalid config")
	ErrInvalidPath = errors.New("sdfs: invalid path")
	ErrResolve     = errors.New("sdfs: path resolution failed")
	ErrOpen        = errors.New("sdfs: open failed")
	ErrNotOpen     = errors.New("sdfs: not open")
	ErrInvalidSeek = errors.New("sdfs: invalid seek mode")
	ErrNoEntry     = errors.New("sdfs: no current entry")
	ErrNoFormatter = errors.New("sdfs: no formatter")
)
