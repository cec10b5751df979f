package config

import "errors"

var (
	ErrEmptyConfig             = errors.New("config file holds no configuration")
	ErrNameRequired            = errors.New("cache name must be provided")
	ErrDuplicateName           = errors.New("duplicated handler name")
	ErrInvalidTier             = errors.New("unknown cache tier")
	ErrInvalidLimit            = errors.New("cache limit must be a positive integer or NoLimit")
	ErrInvalidExpire           = errors.New("cache expire time must be non-negative")
	ErrInvalidClearCount       = errors.New("cache clear count must be a positive integer")
	ErrInvalidChunkSize        = errors.New("persistent cache chunk size must be a positive integer")
	ErrInvalidEvictionOrder    = errors.New("eviction order must be fifo or lifo")
	ErrInvalidConnectionConfig = errors.New("exactly one of host/port or unix socket must be provided")
)
