package configuration

import (
	"time"
)

type Configuration struct {
	HttpAddr          string        `usage:"HTTP address"`
	Dir               string        `usage:"data directory"`
	BufferCount       int           `usage:"max records per scan buffer"`
	BufferSize        int           `usage:"max bytes per scan buffer"`
	MaxReaders        int           `usage:"concurrent read passes per collection"`
	AppendChunk       int           `usage:"inserts written per append chunk"`
	Allocations       bool          `usage:"reserve slack bytes in unsized table records"`
	StatusInterval    time.Duration `usage:"interval between worker status messages"`
	LogLevel          string        `usage:"log level: debug, info, warn or error"`
	EnableCompression bool          `usage:"gzip http responses"`
	Version           bool          `usage:"show version and exit"`
	ShowBanner        bool          `usage:"show big banner"`
	ShowConfig        bool          `usage:"print config"`
}

func Default() Configuration {
	return Configuration{
		HttpAddr:          "127.0.0.1:8090",
		Dir:               "data",
		BufferCount:       15,
		BufferSize:        32 * 1024,
		MaxReaders:        3,
		AppendChunk:       40,
		Allocations:       true,
		StatusInterval:    5 * time.Second,
		LogLevel:          "info",
		EnableCompression: true,
		ShowBanner:        true,
	}
}
