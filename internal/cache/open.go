package cache

import (
	"fmt"
	"path/filepath"
)

// 存储驱动名，与配置中的 StorageDriver 一致。
const (
	DriverFS      = "fs"
	DriverLevelDB = "leveldb"
	DriverMemory  = "memory"
)

// Options 描述 Open 需要的驱动参数。
type Options struct {
	Driver   string
	Path     string
	Compress bool
}

// Open 按驱动名构造 Store。leveldb 数据库放在 Path/leveldb 子目录中。
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case DriverFS, "":
		return NewStore(opts.Path)
	case DriverLevelDB:
		return NewLevelDBStore(filepath.Join(opts.Path, "leveldb"), opts.Compress)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", opts.Driver)
	}
}
