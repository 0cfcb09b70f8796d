package config

import "errors"

var (
	errFileNotFound  = errors.New("config: file not found")
	errFileRead      = errors.New("config: cannot read file")
	errFileInvalid   = errors.New("config: invalid file")
	errHashTablePow  = errors.New("config: hash_table_pow must be > 0")
	errDepTablePow   = errors.New("config: dep_table_pow must be > 0")
	errHeapSizeZero  = errors.New("config: heap_size must be > 0")
	errSampleRange   = errors.New("config: sample_rate must be within [0,1]")
	errLogLevelRange = errors.New("config: log_level must be within [0,2]")
)
